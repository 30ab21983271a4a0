// Package shingle provides text normalization, character n-gram shingling
// and Jaccard similarity.
package shingle

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Set is a set of shingles.
type Set map[string]struct{}

// Normalize prepares raw answer text for analysis: NFKC, unified newlines,
// control characters removed, runs of spaces collapsed and every line trimmed.
// Line structure is kept so markup such as headings and bullets survives.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	text := norm.NFKC.String(raw)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == '\n' || !unicode.IsControl(r) {
			b.WriteRune(r)
		}
	}

	lines := strings.Split(b.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.FieldsFunc(line, isSpace), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func isSpace(r rune) bool {
	return r == ' ' || r == '　'
}

// Collapse replaces every whitespace run, including newlines, with a single
// space and trims both ends.
func Collapse(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Shingles returns the set of overlapping character n-grams of the collapsed
// text. Text shorter than n yields a single shingle holding the whole text;
// empty text yields an empty set.
func Shingles(text string, n int) Set {
	if n < 1 {
		n = 1
	}
	runes := []rune(Collapse(text))
	set := make(Set)
	if len(runes) == 0 {
		return set
	}
	if len(runes) < n {
		set[string(runes)] = struct{}{}
		return set
	}
	for i := 0; i+n <= len(runes); i++ {
		set[string(runes[i:i+n])] = struct{}{}
	}
	return set
}

// Jaccard returns |a∩b| / |a∪b|, or 0 when both sets are empty.
func Jaccard(a, b Set) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for s := range small {
		if _, ok := large[s]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// Similarity is Jaccard over the n-gram shingles of two texts.
func Similarity(a, b string, n int) float64 {
	return Jaccard(Shingles(a, n), Shingles(b, n))
}
