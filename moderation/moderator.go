// Package moderation censors forbidden words in message content before
// it is persisted or broadcast.
package moderation

import (
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Filter masks forbidden patterns while preserving the original length
// and spacing of the text. Matching is case-insensitive and ignores
// punctuation, so "b.a.d" still matches "bad".
type Filter struct {
	machine *goahocorasick.Machine
	mask    rune
}

// NewFilter builds the Aho-Corasick automaton over the normalized word
// list. An empty list yields a filter that passes everything through.
func NewFilter(words []string, mask rune) (*Filter, error) {
	if len(words) == 0 {
		return &Filter{mask: mask}, nil
	}
	patterns := make([][]rune, len(words))
	for i, w := range words {
		normalized, _ := normalize([]rune(w))
		patterns[i] = normalized
	}
	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return nil, err
	}
	return &Filter{machine: machine, mask: mask}, nil
}

// Clean returns text with every forbidden span replaced by the mask
// rune. The input is returned unchanged when nothing matches.
func (f *Filter) Clean(text string) string {
	if f.machine == nil {
		return text
	}
	original := []rune(text)
	normalized, origIdx := normalize(original)
	if len(normalized) == 0 {
		return text
	}

	matches := f.machine.MultiPatternSearch(normalized, false)
	if len(matches) == 0 {
		return text
	}

	for _, match := range matches {
		start := match.Pos
		end := start + len(match.Word)
		if start < 0 || end > len(origIdx) {
			continue
		}
		// Mask the original span covered by the normalized match,
		// including any punctuation the normalization skipped over.
		for i := origIdx[start]; i <= origIdx[end-1]; i++ {
			original[i] = f.mask
		}
	}
	return string(original)
}

// normalize lowercases the runes and drops punctuation, spacing and
// symbols, keeping a mapping from normalized positions back to the
// original rune indexes.
func normalize(runes []rune) ([]rune, []int) {
	normalized := make([]rune, 0, len(runes))
	origIdx := make([]int, 0, len(runes))
	for i, r := range runes {
		if unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) {
			continue
		}
		normalized = append(normalized, unicode.ToLower(r))
		origIdx = append(origIdx, i)
	}
	return normalized, origIdx
}
