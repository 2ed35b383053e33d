// Package tables resolves the many names a table is known by into one
// canonical id and ranks candidate tables for a question.
package tables

import (
	"path/filepath"
	"regexp"
	"strings"
)

var (
	nonSlugRun   = regexp.MustCompile(`[^0-9a-z\x{4e00}-\x{9fa5}]+`)
	underscores  = regexp.MustCompile(`_+`)
	yearShape    = regexp.MustCompile(`^\d{4}$`)
	knownFileExt = map[string]bool{
		".xlsx": true, ".xls": true, ".csv": true,
		".json": true, ".md": true, ".txt": true,
	}
)

// Slug lowercases name and collapses every run of characters that is not
// an ASCII letter, digit or CJK ideograph into a single underscore.
func Slug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = nonSlugRun.ReplaceAllString(s, "_")
	s = underscores.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// StripExt removes a known data or schema file extension.
func StripExt(name string) string {
	ext := filepath.Ext(name)
	if knownFileExt[strings.ToLower(ext)] {
		return strings.TrimSuffix(name, ext)
	}
	return name
}

// IsYear reports whether s is a bare 4-digit year.
func IsYear(s string) bool {
	return yearShape.MatchString(s)
}
