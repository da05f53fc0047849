// Package archive extracts uploaded zip archives into a workspace and
// locates the entry document to compile.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// SourceExt is the extension of compilable source documents.
const SourceExt = ".tex"

// maxExtractedBytes bounds total decompressed output so a zip bomb cannot
// fill the disk. Uploads are already size-capped at the HTTP layer; this
// caps the expansion ratio.
const maxExtractedBytes = 512 << 20

// Sentinel errors for archive handling.
var (
	ErrBadArchive      = errors.New("archive cannot be read")
	ErrUnsafePath      = errors.New("archive entry escapes the workspace")
	ErrNoEntryDocument = errors.New("archive contains no entry document")
	ErrArchiveTooLarge = errors.New("archive contents exceed size limit")
)

// Resolve extracts the archive at archivePath into root and returns the
// path of the entry document to compile. Files that already exist in root
// (injected assets) are overwritten: user content takes precedence.
func Resolve(archivePath, root string) (string, error) {
	if err := Extract(archivePath, root); err != nil {
		return "", err
	}
	return FindEntry(root, archiveBase(archivePath))
}

// Extract unpacks the zip archive into root, preserving its internal
// directory structure. Entries whose paths would land outside root fail
// with ErrUnsafePath rather than being followed.
func Extract(archivePath, root string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadArchive, err)
	}
	defer func() { _ = r.Close() }()

	var written int64
	for _, f := range r.File {
		n, err := extractFile(f, root, maxExtractedBytes-written)
		if err != nil {
			return err
		}
		written += n
	}
	return nil
}

func extractFile(f *zip.File, root string, budget int64) (int64, error) {
	name := filepath.FromSlash(f.Name)
	if !filepath.IsLocal(name) {
		return 0, fmt.Errorf("%w: %q", ErrUnsafePath, f.Name)
	}
	dst := filepath.Join(root, name)

	if f.FileInfo().IsDir() {
		return 0, os.MkdirAll(dst, 0o750)
	}
	if !f.Mode().IsRegular() {
		// Symlinks and other special entries are dropped; a link target
		// could point outside the workspace.
		return 0, nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return 0, err
	}

	rc, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadArchive, err)
	}
	defer func() { _ = rc.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, io.LimitReader(rc, budget+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrBadArchive, err)
	}
	if n > budget {
		return n, ErrArchiveTooLarge
	}
	return n, nil
}

// entryRule is one step of the entry-document search policy. It returns
// the entry path and true when it matches.
type entryRule func(root, archiveBase string) (string, bool)

// entryRules is the search policy, applied in order with first match
// winning. Keeping it as a list makes the tie-break order auditable.
var entryRules = []entryRule{
	// 1. main.tex at the workspace root.
	func(root, _ string) (string, bool) {
		return fileAt(filepath.Join(root, "main"+SourceExt))
	},
	// 2. The archive's own name with the source extension, at the root.
	func(root, base string) (string, bool) {
		if base == "" {
			return "", false
		}
		return fileAt(filepath.Join(root, base+SourceExt))
	},
	// 3. The first source file anywhere under the root, in lexical walk
	// order.
	func(root, _ string) (string, bool) {
		var found string
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				// Unreadable subtrees are skipped, not fatal.
				return nil
			}
			if strings.EqualFold(filepath.Ext(path), SourceExt) {
				found = path
				return fs.SkipAll
			}
			return nil
		})
		return found, found != ""
	},
}

// FindEntry applies the entry-document search policy under root.
// archiveBase is the archive file name without extension, used by the
// second rule. Returns ErrNoEntryDocument when nothing matches.
func FindEntry(root, archiveBase string) (string, error) {
	for _, rule := range entryRules {
		if path, ok := rule(root, archiveBase); ok {
			return path, nil
		}
	}
	return "", ErrNoEntryDocument
}

// fileAt reports path when it exists and is a regular file.
func fileAt(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return path, true
}

// archiveBase returns the archive file name with its extension removed.
func archiveBase(archivePath string) string {
	base := filepath.Base(archivePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
