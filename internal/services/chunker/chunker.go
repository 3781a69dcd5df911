// Package chunker splits markdown into bounded, overlapping chunks for embedding.
//
// Text is cut at the coarsest boundary that fits: blank-line blocks, then lines, then
// sentences, then words, and only as a last resort inside a word. Pieces are packed
// greedily, and each chunk after the first repeats up to overlap runes of the end of the
// previous one, cut at sentence or word boundaries. Sizes are measured in runes. The same input always yields the same chunks.
package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var boundaries = []*regexp.Regexp{
	regexp.MustCompile(`\n[ \t]*\n\s*`),     // blocks
	regexp.MustCompile(`\n`),                // lines
	regexp.MustCompile(`[.!?]+["')\]]*\s+`), // sentences
	regexp.MustCompile(`\s+`),               // words
}

// Chunker holds the size limits
type Chunker struct {
	maxChars int
	overlap  int
}

// New creates a chunker. overlap is clamped to [0, maxChars).
func New(maxChars, overlap int) *Chunker {
	if maxChars < 1 {
		maxChars = 1
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxChars {
		overlap = maxChars - 1
	}
	return &Chunker{maxChars: maxChars, overlap: overlap}
}

// Split returns the chunks of text in order. Whitespace-only input yields no chunks.
func (c *Chunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	pieces := c.pieces(text, 0)

	var chunks []string
	var current []string
	currentLen := 0
	fresh := 0 // pieces in current that were not carried over

	for _, piece := range pieces {
		n := utf8.RuneCountInString(piece)

		if currentLen+n > c.maxChars && fresh > 0 {
			if chunk := strings.TrimSpace(strings.Join(current, "")); chunk != "" {
				chunks = append(chunks, chunk)
			}

			carry, carryLen := c.tail(current)
			if carryLen+n > c.maxChars {
				carry, carryLen = nil, 0
			}
			current = append([]string(nil), carry...)
			currentLen = carryLen
			fresh = 0
		}

		current = append(current, piece)
		currentLen += n
		fresh++
	}

	if fresh > 0 {
		if chunk := strings.TrimSpace(strings.Join(current, "")); chunk != "" {
			chunks = append(chunks, chunk)
		}
	}

	return chunks
}

// pieces cuts text at the given boundary level, descending a level for any piece still too long.
// Separators stay attached to the piece before them, so the pieces concatenate to text.
func (c *Chunker) pieces(text string, level int) []string {
	if utf8.RuneCountInString(text) <= c.maxChars {
		return []string{text}
	}
	if level >= len(boundaries) {
		return hardSplit(text, c.maxChars)
	}

	var out []string
	for _, part := range splitAfter(text, boundaries[level]) {
		out = append(out, c.pieces(part, level+1)...)
	}
	return out
}

// tail returns the trailing text of pieces that fits in the overlap budget.
// Whole pieces are taken while they fit; the piece that does not is cut into sentences,
// or words if no sentence fits, and its trailing units fill the rest of the budget.
func (c *Chunker) tail(pieces []string) ([]string, int) {
	if c.overlap == 0 {
		return nil, 0
	}

	var carry []string
	total := 0
	for i := len(pieces) - 1; i >= 0; i-- {
		n := utf8.RuneCountInString(pieces[i])
		if total+n <= c.overlap {
			carry = append([]string{pieces[i]}, carry...)
			total += n
			continue
		}

		units, unitsLen := trailingUnits(pieces[i], c.overlap-total)
		carry = append(units, carry...)
		total += unitsLen
		break
	}

	if strings.TrimSpace(strings.Join(carry, "")) == "" {
		return nil, 0
	}
	return carry, total
}

// trailingUnits returns the last sentences of piece fitting in budget runes, falling back to words
func trailingUnits(piece string, budget int) ([]string, int) {
	for _, re := range boundaries[2:] {
		units := splitAfter(piece, re)

		total := 0
		start := len(units)
		for i := len(units) - 1; i >= 0; i-- {
			n := utf8.RuneCountInString(units[i])
			if total+n > budget {
				break
			}
			total += n
			start = i
		}

		if strings.TrimSpace(strings.Join(units[start:], "")) != "" {
			return units[start:], total
		}
	}
	return nil, 0
}

// splitAfter splits text after every match of re
func splitAfter(text string, re *regexp.Regexp) []string {
	matches := re.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return []string{text}
	}

	parts := make([]string, 0, len(matches)+1)
	prev := 0
	for _, m := range matches {
		if m[1] > prev {
			parts = append(parts, text[prev:m[1]])
			prev = m[1]
		}
	}
	if prev < len(text) {
		parts = append(parts, text[prev:])
	}
	return parts
}

// hardSplit cuts text into runs of at most size runes
func hardSplit(text string, size int) []string {
	var out []string
	for len(text) > 0 {
		i, count := 0, 0
		for i < len(text) && count < size {
			_, width := utf8.DecodeRuneInString(text[i:])
			i += width
			count++
		}
		out = append(out, text[:i])
		text = text[i:]
	}
	return out
}
