package topic

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxKeywords and maxNameLen bound the fallback extractor's output.
const (
	maxKeywords = 3
	maxNameLen  = 30
)

// ExtractKeywords is the deterministic classifier-free fallback: it ranks
// tokens of the candidate texts by frequency and joins the top three into
// a tab name. Ties resolve by first occurrence, so the result is stable
// for a given input.
func ExtractKeywords(texts []string, stop Stopwords) string {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	pos := 0

	for _, text := range texts {
		for _, token := range tokenize(text) {
			if len(token) <= 3 || stop.Contains(token) {
				continue
			}
			if _, seen := counts[token]; !seen {
				firstSeen[token] = pos
				pos++
			}
			counts[token]++
		}
	}
	if len(counts) == 0 {
		return ""
	}

	ranked := make([]string, 0, len(counts))
	for token := range counts {
		ranked = append(ranked, token)
	}
	// Descending frequency, ties by first-seen order.
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0; j-- {
			a, b := ranked[j-1], ranked[j]
			if counts[b] > counts[a] || (counts[b] == counts[a] && firstSeen[b] < firstSeen[a]) {
				ranked[j-1], ranked[j] = b, a
			} else {
				break
			}
		}
	}
	if len(ranked) > maxKeywords {
		ranked = ranked[:maxKeywords]
	}

	name := strings.Join(ranked, " ")
	if len(name) > maxNameLen {
		// Back up to a rune boundary so the cut never splits a
		// multibyte character.
		cut := maxNameLen
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = strings.TrimSpace(name[:cut])
	}
	return name
}

// tokenize lowercases text, strips non-alphanumeric characters in place
// (so "let's" becomes "lets", not "let s"), and splits on whitespace.
func tokenize(text string) []string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}
