// Package textmatch implements the bag-of-words matching used to rank
// memories and context items against a query.
package textmatch

import (
	"strings"
	"unicode"
)

// stopWords are ignored when building word sets.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "of": true,
	"to": true, "in": true, "on": true, "for": true, "is": true, "it": true,
	"at": true, "by": true, "with": true, "from": true, "as": true, "be": true,
}

// Words lowercases text and splits it on anything that is not a letter or
// digit, dropping stop words. Order is preserved; duplicates are kept.
func Words(text string) []string {
	fields := tokens(text)
	out := fields[:0]
	for _, f := range fields {
		if !stopWords[f] {
			out = append(out, f)
		}
	}
	return out
}

func tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Set returns the distinct words of text.
func Set(text string) map[string]struct{} {
	words := Words(text)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// Overlap returns the share of distinct query words that appear in text,
// in [0,1]. An empty query scores 0.
func Overlap(query, text string) float64 {
	q := Set(query)
	if len(q) == 0 {
		return 0
	}
	t := Set(text)
	hits := 0
	for w := range q {
		if _, ok := t[w]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(q))
}

// MatchPhrases returns the phrases whose words occur consecutively in
// text, compared case-insensitively on word boundaries. Stop words count
// here, so "sign in" does not match "sign up".
func MatchPhrases(text string, phrases []string) []string {
	padded := " " + strings.Join(tokens(text), " ") + " "
	var matched []string
	for _, p := range phrases {
		words := tokens(p)
		if len(words) == 0 {
			continue
		}
		if strings.Contains(padded, " "+strings.Join(words, " ")+" ") {
			matched = append(matched, p)
		}
	}
	return matched
}
