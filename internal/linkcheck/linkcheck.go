// Package linkcheck inspects converted Markdown for image references that
// do not resolve on disk. It is advisory: the pipeline logs what it
// reports but never fails a conversion over it.
package linkcheck

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MissingResources parses the Markdown file at mdPath and returns the
// image destinations that are relative paths not present under baseDir.
// Remote and absolute destinations are ignored.
func MissingResources(mdPath, baseDir string) ([]string, error) {
	src, err := os.ReadFile(mdPath)
	if err != nil {
		return nil, fmt.Errorf("reading markdown: %w", err)
	}

	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	var missing []string
	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		img, ok := n.(*ast.Image)
		if !ok {
			return ast.WalkContinue, nil
		}
		if dest := string(img.Destination); isLocalRef(dest) && !exists(filepath.Join(baseDir, filepath.FromSlash(dest))) {
			missing = append(missing, dest)
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking markdown: %w", err)
	}
	return missing, nil
}

// isLocalRef reports whether dest is a relative filesystem reference.
func isLocalRef(dest string) bool {
	if dest == "" || filepath.IsAbs(dest) {
		return false
	}
	if u, err := url.Parse(dest); err != nil || u.Scheme != "" {
		return false
	}
	return true
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
