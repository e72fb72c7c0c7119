// internal/util/util.go
package util

import (
	"path"
	"strings"
	"unicode/utf8"
)

// TruncateRunes truncates a string to a maximum number of runes,
// appending an ellipsis if truncated.
func TruncateRunes(text string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxRunes]) + "…"
}

// OneLine collapses every run of whitespace, newlines included, to a single
// space.
func OneLine(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// BaseName returns the final element of a client-supplied file name,
// accepting both slash styles. It returns "" for names that reduce to
// nothing usable.
func BaseName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), `\`, "/")
	base := path.Base(name)
	switch base {
	case ".", "/", "..":
		return ""
	}
	return base
}
