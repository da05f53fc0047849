package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/darven/go-texconv/internal/convert"
	"github.com/darven/go-texconv/internal/metrics"
)

// uploadField is the multipart form field carrying the source document.
const uploadField = "file"

// handleConvert implements POST /convert/{format}. The workspace behind a
// successful result is released only after the artifact has been written
// to the client (or the attempt to write it ended), so the file stays
// present while it streams.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	format, err := convert.ParseFormat(chi.URLParam(r, "format"))
	if err != nil {
		s.writeConvertError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusBadRequest, "upload exceeds the size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart upload with a \"file\" field is required")
		return
	}
	defer func() { _ = file.Close() }()

	start := time.Now()
	res, err := s.converter.Convert(r.Context(), convert.Request{
		UploadName: header.Filename,
		Content:    file,
		Format:     format,
		OutputName: r.URL.Query().Get("output_filename"),
	})
	metrics.ObserveConversion(string(format), outcomeLabel(err), time.Since(start))
	if err != nil {
		s.writeConvertError(w, err)
		return
	}
	defer res.Close()

	s.streamArtifact(w, res)
}

// streamArtifact sends the rendered artifact as an attachment.
func (s *Server) streamArtifact(w http.ResponseWriter, res *convert.Result) {
	f, err := os.Open(res.Path)
	if err != nil {
		slog.Error("artifact vanished before streaming", "path", res.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "artifact no longer available")
		return
	}
	defer func() { _ = f.Close() }()

	w.Header().Set("Content-Type", res.MediaType)
	// Always quote the filename: sanitized names may contain spaces, and a
	// fixed shape keeps the header easy to assert on.
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	if info, err := f.Stat(); err == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, f); err != nil {
		// Client most likely went away mid-stream. The deferred Close
		// still releases the workspace.
		slog.Warn("artifact streaming aborted", "file", res.Filename, "error", err)
	}
}

// writeConvertError maps the pipeline's error taxonomy onto HTTP statuses:
// bad input is the client's to fix (400/422), a missing backend is ours
// (500). Diagnostic detail passes through unmodified.
func (s *Server) writeConvertError(w http.ResponseWriter, err error) {
	var cerr *convert.Error
	if !errors.As(err, &cerr) {
		slog.Error("conversion failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	switch cerr.Kind {
	case convert.KindValidation, convert.KindStructural:
		writeError(w, http.StatusBadRequest, cerr.Detail)
	case convert.KindCompilation:
		writeError(w, http.StatusUnprocessableEntity, cerr.Detail)
	case convert.KindBackendMissing:
		slog.Error("renderer backend missing", "error", cerr)
		writeError(w, http.StatusInternalServerError, cerr.Detail)
	default:
		slog.Error("conversion failed", "error", cerr)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// outcomeLabel is the metrics label for a finished conversion.
func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	var cerr *convert.Error
	if errors.As(err, &cerr) {
		return cerr.Kind.String()
	}
	return "internal"
}
