// Package normalize implements the canonical text-normalization
// pipeline (spec.md §4.6): lowercase, strip punctuation, tokenize,
// drop stop words, stem, drop numeric/short tokens, count — while
// tracking a reversible transformed->surface-form mapping.
package normalize

import (
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	porterstemmer "github.com/blevesearch/go-porterstemmer"
)

// Normalizer is the canonical, job-path normalizer (spec.md §4.6,
// steps 1-9). It is safe for concurrent use: the underlying stop-word
// token map is read-only after construction.
type Normalizer struct {
	stopWords analysis.TokenMap
}

// New builds a Normalizer backed by the NLTK-equivalent English
// stop-word list bundled with bleve's English analyzer.
func New() (*Normalizer, error) {
	tm := analysis.NewTokenMap()
	if err := tm.LoadBytes(en.StopWords); err != nil {
		return nil, err
	}
	return &Normalizer{stopWords: tm}, nil
}

// Result is the output of normalizing one extracted text block.
type Result struct {
	Counts          map[string]int
	Transformations map[string][]string // transformed form -> surface forms that produced it
}

// Normalize runs the canonical pipeline over text and returns the
// per-stem counts plus the reversible transformation map fragment
// produced by this call (spec.md §4.6 Reversibility).
func (n *Normalizer) Normalize(text string) Result {
	res := Result{Counts: map[string]int{}, Transformations: map[string][]string{}}
	if text == "" {
		return res
	}

	text = strings.ReplaceAll(text, "\n", " ")
	for _, word := range strings.Fields(text) {
		current := word

		lower := strings.ToLower(current)
		if lower != current {
			record(res.Transformations, lower, current)
		}
		current = lower

		stripped := stripPunctuation(current)
		if stripped != current {
			record(res.Transformations, stripped, current)
		}
		current = stripped

		if current == "" || n.stopWords[current] {
			continue
		}

		stemmed := porterstemmer.StemString(current)
		if stemmed != current {
			record(res.Transformations, stemmed, current)
		}
		current = stemmed

		if current == "" || containsDigit(current) || len(current) <= 3 {
			continue
		}
		res.Counts[current]++
	}
	return res
}

func record(m map[string][]string, key, value string) {
	for _, v := range m[key] {
		if v == value {
			return
		}
	}
	m[key] = append(m[key], value)
}

func containsDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// stripPunctuation removes ASCII punctuation characters, matching
// Python's str.translate(str.maketrans('', '', string.punctuation)).
func stripPunctuation(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isASCIIPunct(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const asciiPunct = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

func isASCIIPunct(r rune) bool {
	return strings.ContainsRune(asciiPunct, r)
}
