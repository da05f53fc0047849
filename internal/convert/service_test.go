package convert_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/darven/go-texconv/internal/convert"
)

// fakeRunner stands in for the external renderers. It fabricates the
// output file each backend contract promises and records the invocation
// for assertions.
type fakeRunner struct {
	mu    sync.Mutex
	calls []fakeCall

	// fail simulates a non-zero exit with this stderr when set.
	failStderr string
	// notFound simulates a missing binary.
	notFound bool
	// blockUntilCancel simulates a hung renderer.
	blockUntilCancel bool
	// onRun lets a test observe the staged workspace mid-render.
	onRun func(dir string)
}

type fakeCall struct {
	dir  string
	name string
	args []string
}

func (f *fakeRunner) Run(ctx context.Context, dir, name string, args ...string) (string, string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{dir: dir, name: name, args: args})
	f.mu.Unlock()

	if f.onRun != nil {
		f.onRun(dir)
	}
	if f.notFound {
		return "", "", &exec.Error{Name: name, Err: exec.ErrNotFound}
	}
	if f.blockUntilCancel {
		<-ctx.Done()
		return "", "", ctx.Err()
	}
	if f.failStderr != "" {
		return "", f.failStderr, errors.New("exit status 1")
	}

	switch name {
	case "tectonic":
		entry := args[0]
		outDir := args[2]
		base := strings.TrimSuffix(filepath.Base(entry), filepath.Ext(entry))
		return "", "", os.WriteFile(filepath.Join(outDir, base+".pdf"), []byte("%PDF-1.5 fake"), 0o640)
	case "pandoc":
		for i, a := range args {
			if a == "-o" {
				return "", "", os.WriteFile(args[i+1], []byte("# converted\n"), 0o640)
			}
		}
	}
	return "", "", nil
}

func (f *fakeRunner) lastCall(t *testing.T) fakeCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatal("renderer was never invoked")
	}
	return f.calls[len(f.calls)-1]
}

// newService builds a Service whose workspaces live under a dedicated
// directory so leftover state is observable.
func newService(t *testing.T, runner convert.CommandRunner, opts ...convert.Option) (*convert.Service, string) {
	t.Helper()
	wsDir := t.TempDir()
	all := append([]convert.Option{
		convert.WithWorkspaceDir(wsDir),
		convert.WithRunner(runner),
	}, opts...)
	return convert.New(all...), wsDir
}

func texRequest(format convert.Format) convert.Request {
	return convert.Request{
		UploadName: "report.tex",
		Content:    strings.NewReader(`\documentclass{article}\begin{document}Hello\end{document}`),
		Format:     format,
	}
}

func zipUpload(t *testing.T, name string, entries [][2]string) convert.Request {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		fw, err := w.Create(e[0])
		if err != nil {
			t.Fatalf("zip Create() error = %v", err)
		}
		if _, err := fw.Write([]byte(e[1])); err != nil {
			t.Fatalf("zip Write() error = %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zip Close() error = %v", err)
	}
	return convert.Request{UploadName: name, Content: &buf}
}

func wantKind(t *testing.T, err error, kind convert.Kind) *convert.Error {
	t.Helper()
	var cerr *convert.Error
	if !errors.As(err, &cerr) {
		t.Fatalf("error = %v, want *convert.Error", err)
	}
	if cerr.Kind != kind {
		t.Fatalf("error kind = %v, want %v (detail: %s)", cerr.Kind, kind, cerr.Detail)
	}
	return cerr
}

func dirEntryCount(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir(%s) error = %v", dir, err)
	}
	return len(entries)
}

func TestConvertSingleFileToPDF(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	svc, wsDir := newService(t, runner)

	res, err := svc.Convert(context.Background(), texRequest(convert.FormatPDF))
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}

	if res.Filename != "report.pdf" {
		t.Errorf("Filename = %q, want report.pdf", res.Filename)
	}
	if res.MediaType != "application/pdf" {
		t.Errorf("MediaType = %q, want application/pdf", res.MediaType)
	}
	data, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatalf("artifact unreadable: %v", err)
	}
	if len(data) == 0 {
		t.Error("artifact is empty")
	}

	call := runner.lastCall(t)
	if call.name != "tectonic" {
		t.Errorf("renderer = %q, want tectonic", call.name)
	}
	if call.dir != filepath.Dir(call.args[0]) {
		t.Errorf("working dir %q is not the entry document's folder", call.dir)
	}

	res.Close()
	if n := dirEntryCount(t, wsDir); n != 0 {
		t.Errorf("%d workspaces left after Close, want 0", n)
	}
}

func TestConvertMarkdownRenamesOutput(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	svc, _ := newService(t, runner)

	req := texRequest(convert.FormatMarkdown)
	req.OutputName = "My Report"
	res, err := svc.Convert(context.Background(), req)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	defer res.Close()

	if res.Filename != "My Report.md" {
		t.Errorf("Filename = %q, want 'My Report.md'", res.Filename)
	}
	if res.MediaType != "text/markdown; charset=utf-8" {
		t.Errorf("MediaType = %q", res.MediaType)
	}
	if filepath.Base(res.Path) != "My Report.md" {
		t.Errorf("artifact path %q not renamed to the download name", res.Path)
	}
	if _, err := os.Stat(res.Path); err != nil {
		t.Errorf("renamed artifact missing: %v", err)
	}
}

func TestConvertRejectsUnsupportedExtension(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	svc, wsDir := newService(t, runner)

	_, err := svc.Convert(context.Background(), convert.Request{
		UploadName: "essay.docx",
		Content:    strings.NewReader("not latex"),
		Format:     convert.FormatPDF,
	})
	wantKind(t, err, convert.KindValidation)

	// Validation fails before staging, so nothing was allocated.
	if n := dirEntryCount(t, wsDir); n != 0 {
		t.Errorf("%d workspaces created for rejected upload, want 0", n)
	}
}

func TestConvertCompilationFailureCleansUp(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{failStderr: "! Undefined control sequence.\nl.3 \\badmacro"}
	svc, wsDir := newService(t, runner)

	_, err := svc.Convert(context.Background(), texRequest(convert.FormatPDF))
	cerr := wantKind(t, err, convert.KindCompilation)

	// The compiler log passes through verbatim.
	if cerr.Detail != runner.failStderr {
		t.Errorf("Detail = %q, want the raw compiler log", cerr.Detail)
	}
	if n := dirEntryCount(t, wsDir); n != 0 {
		t.Errorf("%d workspaces left after failure, want 0", n)
	}
}

func TestConvertBackendMissing(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{notFound: true}
	svc, wsDir := newService(t, runner)

	_, err := svc.Convert(context.Background(), texRequest(convert.FormatPDF))
	wantKind(t, err, convert.KindBackendMissing)

	if n := dirEntryCount(t, wsDir); n != 0 {
		t.Errorf("%d workspaces left after failure, want 0", n)
	}
}

func TestConvertRenderTimeout(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{blockUntilCancel: true}
	svc, wsDir := newService(t, runner, convert.WithRenderTimeout(20*time.Millisecond))

	_, err := svc.Convert(context.Background(), texRequest(convert.FormatPDF))
	cerr := wantKind(t, err, convert.KindCompilation)
	if !strings.Contains(cerr.Detail, "deadline") {
		t.Errorf("Detail = %q, want mention of the render deadline", cerr.Detail)
	}
	if n := dirEntryCount(t, wsDir); n != 0 {
		t.Errorf("%d workspaces left after timeout, want 0", n)
	}
}

func TestConvertArchiveSelectsMainTex(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	svc, _ := newService(t, runner)

	req := zipUpload(t, "bundle.zip", [][2]string{
		{"other.tex", "decoy"},
		{"main.tex", "the entry"},
		{"figure.png", "bytes"},
	})
	req.Format = convert.FormatPDF

	res, err := svc.Convert(context.Background(), req)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	defer res.Close()

	call := runner.lastCall(t)
	if filepath.Base(call.args[0]) != "main.tex" {
		t.Errorf("entry document = %q, want main.tex", call.args[0])
	}
	if res.Filename != "bundle.pdf" {
		t.Errorf("Filename = %q, want bundle.pdf", res.Filename)
	}
}

func TestConvertArchiveWithoutEntryDocument(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	svc, wsDir := newService(t, runner)

	req := zipUpload(t, "images.zip", [][2]string{{"a.png", "x"}})
	req.Format = convert.FormatPDF

	_, err := svc.Convert(context.Background(), req)
	wantKind(t, err, convert.KindStructural)

	if n := dirEntryCount(t, wsDir); n != 0 {
		t.Errorf("%d workspaces left after failure, want 0", n)
	}
}

func TestConvertArchivePathTraversalIsStructural(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	svc, _ := newService(t, runner)

	req := zipUpload(t, "evil.zip", [][2]string{{"../escape.tex", "x"}})
	req.Format = convert.FormatPDF

	_, err := svc.Convert(context.Background(), req)
	wantKind(t, err, convert.KindStructural)
}

func TestConvertCorruptArchiveIsValidation(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	svc, _ := newService(t, runner)

	_, err := svc.Convert(context.Background(), convert.Request{
		UploadName: "broken.zip",
		Content:    strings.NewReader("definitely not a zip"),
		Format:     convert.FormatPDF,
	})
	wantKind(t, err, convert.KindValidation)
}

func TestConvertUserFileBeatsInjectedAsset(t *testing.T) {
	t.Parallel()

	assetDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(assetDir, "shared.sty"), []byte("shared version"), 0o640); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	var seen string
	runner := &fakeRunner{onRun: func(dir string) {
		data, err := os.ReadFile(filepath.Join(dir, "shared.sty"))
		if err == nil {
			seen = string(data)
		}
	}}
	svc, _ := newService(t, runner, convert.WithAssetDir(assetDir))

	req := zipUpload(t, "bundle.zip", [][2]string{
		{"main.tex", "doc"},
		{"shared.sty", "user version"},
	})
	req.Format = convert.FormatPDF

	res, err := svc.Convert(context.Background(), req)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	defer res.Close()

	if seen != "user version" {
		t.Errorf("renderer saw %q, want the user's shared.sty", seen)
	}
}

func TestConvertInjectsAssetsForSingleFileUpload(t *testing.T) {
	t.Parallel()

	assetDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(assetDir, "shared.sty"), []byte("shared"), 0o640); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	var injected bool
	runner := &fakeRunner{onRun: func(dir string) {
		_, err := os.Stat(filepath.Join(dir, "shared.sty"))
		injected = err == nil
	}}
	svc, _ := newService(t, runner, convert.WithAssetDir(assetDir))

	res, err := svc.Convert(context.Background(), texRequest(convert.FormatPDF))
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	defer res.Close()

	if !injected {
		t.Error("shared asset not visible to renderer")
	}
}

// Mixed success and failure conversions running concurrently must leave
// zero workspaces behind once all results are closed.
func TestConvertConcurrentLeavesNoWorkspaces(t *testing.T) {
	t.Parallel()

	wsDir := t.TempDir()
	okRunner := &fakeRunner{}
	okSvc := convert.New(convert.WithWorkspaceDir(wsDir), convert.WithRunner(okRunner))
	failSvc := convert.New(convert.WithWorkspaceDir(wsDir), convert.WithRunner(&fakeRunner{failStderr: "boom"}))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(fail bool) {
			defer wg.Done()
			svc := okSvc
			if fail {
				svc = failSvc
			}
			res, err := svc.Convert(context.Background(), texRequest(convert.FormatPDF))
			if err == nil {
				res.Close()
			}
		}(i%2 == 0)
	}
	wg.Wait()

	if n := dirEntryCount(t, wsDir); n != 0 {
		t.Errorf("%d workspaces left after all requests settled, want 0", n)
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	if f, err := convert.ParseFormat("pdf"); err != nil || f != convert.FormatPDF {
		t.Errorf("ParseFormat(pdf) = %v, %v", f, err)
	}
	if f, err := convert.ParseFormat("markdown"); err != nil || f != convert.FormatMarkdown {
		t.Errorf("ParseFormat(markdown) = %v, %v", f, err)
	}

	_, err := convert.ParseFormat("docx")
	wantKind(t, err, convert.KindValidation)
}

func TestPandocInvocationContract(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	svc, _ := newService(t, runner)

	res, err := svc.Convert(context.Background(), texRequest(convert.FormatMarkdown))
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	defer res.Close()

	call := runner.lastCall(t)
	if call.name != "pandoc" {
		t.Fatalf("renderer = %q, want pandoc", call.name)
	}
	joined := strings.Join(call.args, " ")
	for _, want := range []string{"-f latex", "-t gfm", "--wrap=none", "--resource-path"} {
		if !strings.Contains(joined, want) {
			t.Errorf("pandoc args %q missing %q", joined, want)
		}
	}
}
