// Package normalize implements the name-normalization rules shared by
// the IdentityCatalog's indices and the Resolver's fuzzy strategies.
// It generalizes a simpler matcher that only collapsed whitespace and
// stripped a hand-picked prefix list into a full pipeline: whitespace
// collapse, Unicode diacritic stripping, lowercasing, and a second
// stopword-stripped variant used only by fuzzy matching.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fullStopwords is the primary stopword set stripped by the
// fuzzy-matching normalization variant.
var fullStopwords = map[string]bool{
	"de": true, "do": true, "da": true, "del": true, "la": true,
	"fc": true, "sc": true, "cf": true, "ac": true, "ss": true,
	"club": true, "sporting": true,
}

// reducedStopwords is the fallback set used when stripping the full
// set would leave fewer than two tokens.
var reducedStopwords = map[string]bool{
	"de": true, "do": true, "da": true, "del": true, "la": true,
}

var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// stripDiacritics removes combining marks via Unicode NFD decomposition.
func stripDiacritics(s string) string {
	out, _, err := transform.String(diacriticStripper, s)
	if err != nil {
		return s
	}
	return out
}

// collapseWhitespace collapses runs of whitespace into single spaces
// and trims the result.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Key returns the canonical index key for a raw name: whitespace
// collapsed, diacritics stripped, lowercased. This is the form used by
// aliasIndex, teamsByLeague and teamsGlobal.
func Key(raw string) string {
	s := collapseWhitespace(raw)
	s = stripDiacritics(s)
	return strings.ToLower(s)
}

// Display returns the name with whitespace collapsed but original case
// and diacritics preserved, for use in display contexts.
func Display(raw string) string {
	return collapseWhitespace(raw)
}

// FuzzyVariant returns the stopword-stripped normalization used only by
// fuzzy matching. It degrades to the reduced stopword set when
// stripping the full set would leave at most one token.
func FuzzyVariant(raw string) string {
	key := Key(raw)
	tokens := strings.Fields(key)
	if len(tokens) == 0 {
		return key
	}

	stripped := stripTokens(tokens, fullStopwords)
	if len(stripped) >= 2 {
		return strings.Join(stripped, " ")
	}

	stripped = stripTokens(tokens, reducedStopwords)
	if len(stripped) >= 1 {
		return strings.Join(stripped, " ")
	}

	return strings.Join(tokens, " ")
}

func stripTokens(tokens []string, stop map[string]bool) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !stop[t] {
			out = append(out, t)
		}
	}
	return out
}
