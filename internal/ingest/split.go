// internal/ingest/split.go
package ingest

import (
	"strings"
	"unicode/utf8"
)

// DefaultSeparators are tried in order, from paragraph to character.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Piece is one chunk of split text and its rune offset in the source.
type Piece struct {
	Text        string
	StartOffset int
}

// Splitter breaks text into chunks of at most Size runes (when the
// separators allow it) with up to Overlap runes shared between
// neighbours. Separators stay attached to the start of the piece they
// precede.
type Splitter struct {
	Size       int
	Overlap    int
	Separators []string
}

// NewSplitter returns a Splitter using DefaultSeparators.
func NewSplitter(size, overlap int) *Splitter {
	return &Splitter{Size: size, Overlap: overlap, Separators: DefaultSeparators}
}

// Split returns the chunks of text with their start offsets.
func (s *Splitter) Split(text string) []Piece {
	chunks := s.splitText(text, s.Separators)
	pieces := make([]Piece, 0, len(chunks))
	index, prevLen := 0, 0
	for _, c := range chunks {
		offset := max(0, index+prevLen-s.Overlap)
		index = runeIndex(text, c, offset)
		pieces = append(pieces, Piece{Text: c, StartOffset: index})
		prevLen = runeLen(c)
	}
	return pieces
}

func (s *Splitter) splitText(text string, separators []string) []string {
	var final []string
	separator := separators[len(separators)-1]
	var next []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			next = separators[i+1:]
			break
		}
	}

	var good []string
	for _, piece := range splitKeepingSeparator(text, separator) {
		if runeLen(piece) < s.Size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.merge(good)...)
			good = nil
		}
		if len(next) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.splitText(piece, next)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.merge(good)...)
	}
	return final
}

// merge packs pieces into chunks no larger than Size, carrying up to
// Overlap runes of trailing pieces into the next chunk.
func (s *Splitter) merge(pieces []string) []string {
	var docs []string
	var current []string
	total := 0
	for _, p := range pieces {
		n := runeLen(p)
		if total+n > s.Size && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
				docs = append(docs, doc)
			}
			for total > s.Overlap || (total+n > s.Size && total > 0) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
	}
	if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

// splitKeepingSeparator splits text on sep and prefixes each piece after
// the first with the separator. An empty sep splits into runes.
func splitKeepingSeparator(text, sep string) []string {
	var parts []string
	if sep == "" {
		for _, r := range text {
			parts = append(parts, string(r))
		}
		return parts
	}
	raw := strings.Split(text, sep)
	for i, p := range raw {
		if i > 0 {
			p = sep + p
		}
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

// runeIndex finds sub in text at or after the rune offset from, returning
// a rune index or -1.
func runeIndex(text, sub string, from int) int {
	byteFrom := 0
	for i := 0; i < from && byteFrom < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[byteFrom:])
		byteFrom += size
	}
	idx := strings.Index(text[byteFrom:], sub)
	if idx < 0 {
		return -1
	}
	return from + utf8.RuneCountInString(text[byteFrom:byteFrom+idx])
}
