package convert

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
)

// tectonicRenderer compiles a LaTeX entry document to PDF by invoking the
// tectonic binary. Tectonic resolves packages and runs the required passes
// itself, so a single invocation suffices.
type tectonicRenderer struct {
	runner CommandRunner
}

func (r *tectonicRenderer) Format() Format { return FormatPDF }

// Render runs tectonic against entry and returns the produced PDF path.
// The working directory is the entry document's folder so relative inputs
// (injected style files, images) resolve. --print streams the engine's
// diagnostics and --keep-intermediates leaves build files in place for
// debugging a failed workspace before cleanup.
func (r *tectonicRenderer) Render(ctx context.Context, entry, outDir string) (string, error) {
	_, stderr, err := r.runner.Run(ctx, filepath.Dir(entry),
		"tectonic", entry, "--outdir", outDir, "--print", "--keep-intermediates")
	if err != nil {
		return "", classifyRenderError(ctx, "tectonic", stderr, err)
	}

	base := strings.TrimSuffix(filepath.Base(entry), filepath.Ext(entry))
	return filepath.Join(outDir, base+".pdf"), nil
}

// classifyRenderError maps a subprocess failure onto the closed error-kind
// set shared by both backends.
func classifyRenderError(ctx context.Context, tool string, stderr string, err error) error {
	if errors.Is(err, exec.ErrNotFound) {
		return backendMissingError(tool+" is not installed on the server", err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		slog.Warn("renderer killed", "tool", tool, "reason", ctxErr)
		return compilationError(tool+" did not finish before the render deadline", ctxErr)
	}
	if stderr == "" {
		stderr = err.Error()
	}
	return compilationError(stderr, err)
}
