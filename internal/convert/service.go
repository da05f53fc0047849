// Package convert implements the document staging and conversion pipeline:
// an untrusted upload is staged into an isolated workspace, the entry
// document is resolved, an external renderer produces the artifact, and the
// workspace is torn down on every exit path.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/darven/go-texconv/internal/archive"
	"github.com/darven/go-texconv/internal/assets"
	"github.com/darven/go-texconv/internal/linkcheck"
	"github.com/darven/go-texconv/internal/sanitize"
	"github.com/darven/go-texconv/internal/workspace"
)

// defaultRenderTimeout bounds a single renderer invocation. A hung compiler
// would otherwise hold its workspace and goroutine indefinitely.
const defaultRenderTimeout = 2 * time.Minute

// archiveExt is the accepted container extension for multi-file uploads.
const archiveExt = ".zip"

// renderer is the closed rendering capability implemented by the two
// backends. Render must only be called with an entry document that exists
// inside the workspace.
type renderer interface {
	Format() Format
	Render(ctx context.Context, entry, outDir string) (string, error)
}

// Compile-time interface checks for the backend set.
var (
	_ renderer = (*tectonicRenderer)(nil)
	_ renderer = (*pandocRenderer)(nil)
)

// Service orchestrates the conversion pipeline. Safe for concurrent use:
// every request gets its own workspace and the shared state (asset set,
// renderer table) is read-only.
type Service struct {
	workspaces *workspace.Manager
	injector   *assets.Injector
	renderers  map[Format]renderer
	timeout    time.Duration
}

// Option customizes a Service.
type Option func(*Service)

// WithWorkspaceDir places workspaces under dir instead of the system
// temp directory.
func WithWorkspaceDir(dir string) Option {
	return func(s *Service) { s.workspaces = workspace.NewManager(dir) }
}

// WithAssetDir injects the shared support files in dir into every
// workspace before user content is written.
func WithAssetDir(dir string) Option {
	return func(s *Service) { s.injector = assets.NewInjector(dir) }
}

// WithRenderTimeout bounds each renderer invocation. Zero disables the
// deadline.
func WithRenderTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithRunner replaces the subprocess runner, e.g. with a fake in tests.
func WithRunner(r CommandRunner) Option {
	return func(s *Service) {
		s.renderers = map[Format]renderer{
			FormatPDF:      &tectonicRenderer{runner: r},
			FormatMarkdown: &pandocRenderer{runner: r},
		}
	}
}

// New creates a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workspaces: workspace.NewManager(""),
		injector:   assets.NewInjector(""),
		timeout:    defaultRenderTimeout,
	}
	WithRunner(ExecRunner{})(s)

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Convert runs the full pipeline: validate, stage, render, finalize.
//
// On failure the workspace is removed before the error is returned. On
// success the caller owns the Result and must call Close after the
// artifact has been fully delivered.
func (s *Service) Convert(ctx context.Context, req Request) (res *Result, err error) {
	// Validation happens before any filesystem state exists, so a bad
	// upload allocates nothing to clean up.
	isArchive, err := validateUpload(req)
	if err != nil {
		return nil, err
	}

	ws, err := s.workspaces.Create()
	if err != nil {
		return nil, internalError(err)
	}
	defer func() {
		if err != nil {
			ws.Cleanup()
		}
	}()

	entry, err := s.stage(req, ws, isArchive)
	if err != nil {
		return nil, err
	}

	artifact, err := s.render(ctx, req.Format, entry, ws)
	if err != nil {
		return nil, err
	}

	filename := downloadName(req)
	canonical := ws.Join(filename)
	if artifact != canonical {
		if err := os.Rename(artifact, canonical); err != nil {
			return nil, internalError(fmt.Errorf("relocating artifact: %w", err))
		}
	}

	slog.Info("conversion finished",
		"format", string(req.Format),
		"upload", req.UploadName,
		"download", filename)

	return &Result{
		Path:      canonical,
		MediaType: req.Format.MediaType(),
		Filename:  filename,
		ws:        ws,
	}, nil
}

// stage populates the workspace: shared assets first, then the upload, and
// resolves the entry document.
func (s *Service) stage(req Request, ws *workspace.Workspace, isArchive bool) (string, error) {
	if err := s.injector.Inject(ws.Path()); err != nil {
		return "", internalError(err)
	}

	saved := ws.Join(sanitize.BaseName(req.UploadName))
	if err := persistUpload(req.Content, saved); err != nil {
		return "", internalError(err)
	}

	if !isArchive {
		return saved, nil
	}

	entry, err := archive.Resolve(saved, ws.Path())
	if err != nil {
		return "", mapArchiveError(err)
	}
	return entry, nil
}

// render invokes the backend for the requested format under the render
// deadline.
func (s *Service) render(ctx context.Context, format Format, entry string, ws *workspace.Workspace) (string, error) {
	r, ok := s.renderers[format]
	if !ok {
		return "", validationError(fmt.Sprintf("unsupported target format %q", format), nil)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	artifact, err := r.Render(ctx, entry, ws.Path())
	if err != nil {
		return "", err
	}

	if format == FormatMarkdown {
		s.checkResources(artifact, filepath.Dir(entry))
	}
	return artifact, nil
}

// checkResources warns about image references in the converted Markdown
// that do not resolve inside the workspace. Advisory only: a broken
// reference never fails the request.
func (s *Service) checkResources(mdPath, baseDir string) {
	missing, err := linkcheck.MissingResources(mdPath, baseDir)
	if err != nil {
		slog.Debug("resource check skipped", "error", err)
		return
	}
	for _, ref := range missing {
		slog.Warn("converted document references missing resource", "resource", ref)
	}
}

// validateUpload rejects unsupported upload extensions and reports whether
// the upload is an archive.
func validateUpload(req Request) (isArchive bool, err error) {
	if req.UploadName == "" || req.Content == nil {
		return false, validationError("no upload provided", nil)
	}
	switch strings.ToLower(filepath.Ext(req.UploadName)) {
	case archive.SourceExt:
		return false, nil
	case archiveExt:
		return true, nil
	default:
		return false, validationError(
			fmt.Sprintf("unsupported upload type %q: only %s and %s files are accepted",
				filepath.Ext(req.UploadName), archive.SourceExt, archiveExt), nil)
	}
}

// persistUpload writes the upload body to path.
func persistUpload(content io.Reader, path string) error {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("persisting upload: %w", err)
	}
	if _, err := io.Copy(out, content); err != nil {
		_ = out.Close()
		return fmt.Errorf("persisting upload: %w", err)
	}
	return out.Close()
}

// downloadName computes the sanitized download file name for the request.
// An explicit output name wins; otherwise the upload's own stem is used.
func downloadName(req Request) string {
	base := sanitize.Stem(req.UploadName)
	if req.OutputName != "" {
		base = sanitize.BaseName(req.OutputName)
	}
	return base + "." + req.Format.Ext()
}

// mapArchiveError translates archive sentinels into the pipeline taxonomy.
func mapArchiveError(err error) error {
	switch {
	case errors.Is(err, archive.ErrNoEntryDocument):
		return structuralError(fmt.Sprintf("no %s entry document found in archive", archive.SourceExt), err)
	case errors.Is(err, archive.ErrUnsafePath):
		return structuralError(err.Error(), err)
	case errors.Is(err, archive.ErrBadArchive), errors.Is(err, archive.ErrArchiveTooLarge):
		return validationError(err.Error(), err)
	default:
		return internalError(err)
	}
}
