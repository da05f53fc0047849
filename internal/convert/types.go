package convert

import (
	"fmt"
	"io"

	"github.com/darven/go-texconv/internal/workspace"
)

// Format selects the conversion target. The set is closed: each format
// owns one renderer backend and one output-path convention.
type Format string

const (
	FormatPDF      Format = "pdf"
	FormatMarkdown Format = "markdown"
)

// ParseFormat validates a caller-supplied format selector.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatPDF, FormatMarkdown:
		return Format(s), nil
	default:
		return "", validationError(fmt.Sprintf("unsupported target format %q", s), nil)
	}
}

// MediaType returns the response content type for the format.
func (f Format) MediaType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// Ext returns the download-name extension for the format (without dot).
func (f Format) Ext() string {
	switch f {
	case FormatPDF:
		return "pdf"
	case FormatMarkdown:
		return "md"
	default:
		return "bin"
	}
}

// Request describes one conversion. It is immutable once handed to
// Convert; Content is consumed during staging.
type Request struct {
	// UploadName is the client-supplied file name of the upload. Its
	// extension decides whether the upload is treated as a source document
	// or an archive.
	UploadName string

	// Content is the upload body.
	Content io.Reader

	// Format is the conversion target.
	Format Format

	// OutputName optionally overrides the base name of the download.
	OutputName string
}

// Result is a successfully rendered artifact. It is only valid until
// Close releases the owning workspace, so callers must finish streaming
// Path before closing.
type Result struct {
	// Path is the artifact location on disk.
	Path string

	// MediaType is the response content type.
	MediaType string

	// Filename is the sanitized download name, extension included.
	Filename string

	ws *workspace.Workspace
}

// Close releases the workspace holding the artifact. Idempotent and
// best-effort.
func (r *Result) Close() {
	if r != nil && r.ws != nil {
		r.ws.Cleanup()
	}
}
