package index

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// separators split words even when no whitespace surrounds them.
const separators = `,;:!?()[]{}"<>`

// Tokenizer turns text into index terms. The same Tokenizer must be used when
// building an index and when querying it; any difference silently breaks recall.
//
// Text is lowercased, split into words, stripped of leading and trailing
// punctuation, and every token that is not purely letters and digits or that
// is a stopword is dropped.
type Tokenizer struct {
	stopwords map[string]struct{}
}

// NewTokenizer builds a Tokenizer. A nil stopwords slice selects the standard
// English list; an empty non-nil slice disables stopword removal.
func NewTokenizer(stopwords []string) *Tokenizer {
	if stopwords == nil {
		stopwords = EnglishStopwords
	}
	set := make(map[string]struct{}, len(stopwords))
	lower := cases.Lower(language.Und)
	for _, w := range stopwords {
		set[lower.String(w)] = struct{}{}
	}
	return &Tokenizer{stopwords: set}
}

// Tokens returns the terms of text in order, with repeats.
func (t *Tokenizer) Tokens(text string) []string {
	// cases.Caser keeps state and is not safe for concurrent use.
	lowered := cases.Lower(language.Und).String(text)
	fields := strings.FieldsFunc(lowered, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(separators, r)
	})

	out := make([]string, 0, len(fields))
	for _, field := range fields {
		tok := strings.TrimFunc(field, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if tok == "" || !isAlnum(tok) {
			continue
		}
		if _, stop := t.stopwords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// Counts returns the term frequency multiset of text.
func (t *Tokenizer) Counts(text string) map[string]int {
	counts := make(map[string]int)
	for _, tok := range t.Tokens(text) {
		counts[tok]++
	}
	return counts
}

// QueryTerms returns the distinct terms of a query, sorted.
func (t *Tokenizer) QueryTerms(query string) []string {
	counts := t.Counts(query)
	terms := make([]string, 0, len(counts))
	for term := range counts {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

func isAlnum(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsNumber(r) {
			return false
		}
	}
	return true
}
