// Package match builds marketplace queries for catalog items and scores
// listing titles against them.
package match

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lower-cases s, strips diacritics ("Pokémon" → "pokemon") and
// collapses runs of whitespace.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// Word boundaries are any non letter/digit rune, so phrases such as "mr. mime"
// or "farfetch'd" match as a unit.
const (
	wordStart = `(?:^|[^\p{L}\p{N}])`
	wordEnd   = `(?:$|[^\p{L}\p{N}])`
)

// wordPattern compiles a case-insensitive whole-word matcher for the
// normalized phrase. It returns nil for an empty phrase.
func wordPattern(phrase string) *regexp.Regexp {
	phrase = Normalize(phrase)
	if phrase == "" {
		return nil
	}
	return regexp.MustCompile(`(?i)` + wordStart + regexp.QuoteMeta(phrase) + wordEnd)
}

// anyWordPattern compiles a whole-word alternation over words.
func anyWordPattern(words []string) *regexp.Regexp {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		if w = Normalize(w); w != "" {
			quoted = append(quoted, regexp.QuoteMeta(w))
		}
	}
	return regexp.MustCompile(`(?i)` + wordStart + `(?:` + strings.Join(quoted, "|") + `)` + wordEnd)
}
