// Package sanitize produces safe download file names from caller input.
package sanitize

import (
	"path/filepath"
	"strings"
)

// DefaultBaseName is used when sanitization leaves nothing usable.
const DefaultBaseName = "document"

// BaseName strips path components from s and removes every character
// outside [A-Za-z0-9_.- ] and space. Leading/trailing spaces and dots are
// trimmed so the result is safe in a Content-Disposition filename.
// The function is total and idempotent: it never returns an empty string,
// and BaseName(BaseName(s)) == BaseName(s) for any input.
func BaseName(s string) string {
	// Drop directory components, whichever separator the client used.
	s = s[strings.LastIndexByte(s, '\\')+1:]
	s = filepath.Base(filepath.ToSlash(s))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '_', r == '.', r == '-', r == ' ':
			b.WriteRune(r)
		}
	}

	out := strings.Trim(b.String(), " .")
	if out == "" {
		return DefaultBaseName
	}
	return out
}

// Stem returns the sanitized base name of s with its extension removed.
// Useful for deriving a download name from an uploaded file name.
func Stem(s string) string {
	base := BaseName(s)
	if ext := filepath.Ext(base); ext != "" && ext != base {
		base = strings.Trim(strings.TrimSuffix(base, ext), " .")
	}
	if base == "" {
		return DefaultBaseName
	}
	return base
}
