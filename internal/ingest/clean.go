// internal/ingest/clean.go
package ingest

import (
	"regexp"
	"strings"
	"unicode"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// CleanText repairs text extracted from paginated documents: line breaks
// that do not follow '.', '-' or ':' are joined with a space, whitespace
// runs collapse to one space and the result is trimmed.
func CleanText(text string) string {
	text = joinBrokenLines(text)
	text = whitespaceRun.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// joinBrokenLines replaces every whitespace run containing a newline with a
// single space unless the run directly follows '.', '-' or ':'. In that
// case the first whitespace character is kept and only a newline later in
// the run is joined.
func joinBrokenLines(text string) string {
	runes := []rune(text)
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(runes); {
		if !unicode.IsSpace(runes[i]) {
			b.WriteRune(runes[i])
			i++
			continue
		}
		j := i
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		run := runes[i:j]
		protected := i > 0 && strings.ContainsRune(".-:", runes[i-1])
		switch {
		case !protected && containsNewline(run):
			b.WriteRune(' ')
		case protected && containsNewline(run[1:]):
			b.WriteRune(run[0])
			b.WriteRune(' ')
		default:
			b.WriteString(string(run))
		}
		i = j
	}
	return b.String()
}

func containsNewline(rs []rune) bool {
	for _, r := range rs {
		if r == '\n' {
			return true
		}
	}
	return false
}
