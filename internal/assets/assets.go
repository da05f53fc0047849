// Package assets seeds workspaces with the shared support files shipped
// alongside the service (style classes, shared images). The asset directory
// is read-only at runtime and safe for concurrent injection.
package assets

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Injector copies the contents of a fixed asset directory into workspaces.
type Injector struct {
	dir string
}

// NewInjector creates an Injector reading from dir. An empty dir disables
// injection entirely.
func NewInjector(dir string) *Injector {
	return &Injector{dir: dir}
}

// Inject copies every regular file at the top level of the asset directory
// into dstDir. A file that already exists at the destination is left alone:
// user-supplied content always wins over a shared asset of the same name.
//
// A missing or unreadable asset directory is not an error. Assets are a
// convenience, so injection is skipped with a warning and the conversion
// proceeds without them.
func (i *Injector) Inject(dstDir string) error {
	if i.dir == "" {
		return nil
	}

	entries, err := os.ReadDir(i.dir)
	if err != nil {
		slog.Warn("asset directory unavailable, skipping injection", "dir", i.dir, "error", err)
		return nil
	}

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		src := filepath.Join(i.dir, entry.Name())
		dst := filepath.Join(dstDir, entry.Name())
		if err := copyIfAbsent(src, dst); err != nil {
			return fmt.Errorf("injecting asset %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// copyIfAbsent copies src to dst unless dst already exists.
func copyIfAbsent(src, dst string) error {
	// O_EXCL makes the existence check and the create atomic, so a file
	// written moments earlier is never clobbered.
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	defer func() { _ = in.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}
