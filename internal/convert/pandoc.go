package convert

import (
	"context"
	"path/filepath"
)

// markdownOutputName is pandoc's fixed output file inside the workspace.
// The pipeline renames it to the requested download name afterwards.
const markdownOutputName = "output.md"

// pandocRenderer converts a LaTeX entry document to GitHub-flavored
// Markdown by invoking pandoc.
type pandocRenderer struct {
	runner CommandRunner
}

func (r *pandocRenderer) Format() Format { return FormatMarkdown }

// Render runs pandoc against entry and returns the produced Markdown path.
// Wrapping is disabled so the output diffs cleanly, and --resource-path
// points at the entry document's directory so embedded images resolve.
func (r *pandocRenderer) Render(ctx context.Context, entry, outDir string) (string, error) {
	outPath := filepath.Join(outDir, markdownOutputName)

	_, stderr, err := r.runner.Run(ctx, filepath.Dir(entry),
		"pandoc", entry,
		"-f", "latex",
		"-t", "gfm",
		"-o", outPath,
		"--wrap=none",
		"--resource-path", filepath.Dir(entry))
	if err != nil {
		return "", classifyRenderError(ctx, "pandoc", stderr, err)
	}

	return outPath, nil
}
