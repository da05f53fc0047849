// Package workspace manages the request-scoped directories a conversion
// runs in. Each workspace is exclusively owned by one in-flight request:
// created empty at request start, populated during staging, and removed
// on every exit path.
package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Manager allocates workspaces under a common base directory.
type Manager struct {
	baseDir string
}

// NewManager creates a Manager rooted at baseDir. An empty baseDir falls
// back to the system temp directory.
func NewManager(baseDir string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Manager{baseDir: baseDir}
}

// Workspace is a uniquely named directory owned by a single request.
// It is valid from Create until Cleanup.
type Workspace struct {
	path string

	cleanupOnce sync.Once
}

// Create allocates a new empty workspace directory. The uuid suffix keeps
// concurrent requests from ever colliding.
func (m *Manager) Create() (*Workspace, error) {
	dir := filepath.Join(m.baseDir, "texconv-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating workspace directory: %w", err)
	}
	slog.Debug("created workspace", "path", dir)
	return &Workspace{path: dir}, nil
}

// Path returns the workspace root directory.
func (w *Workspace) Path() string {
	return w.path
}

// Join returns the path of name inside the workspace.
func (w *Workspace) Join(name string) string {
	return filepath.Join(w.path, name)
}

// Cleanup removes the workspace and everything in it. It is idempotent and
// best-effort: deletion failures are logged, never returned, so cleanup can
// run on error paths without masking the pipeline's own error.
func (w *Workspace) Cleanup() {
	if w == nil {
		return
	}
	w.cleanupOnce.Do(func() {
		if err := os.RemoveAll(w.path); err != nil {
			slog.Warn("workspace cleanup failed", "path", w.path, "error", err)
			return
		}
		slog.Debug("removed workspace", "path", w.path)
	})
}
