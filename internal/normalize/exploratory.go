package normalize

import "strings"

// ExploratoryNormalizer is the unstemmed variant the original tooling
// used for ad hoc notebook exploration: it lowercases, strips
// punctuation, and drops stop words like the canonical pipeline, but
// never stems and skips the numeric and length filters, so short and
// numeric tokens survive into the counts. It is never imported by the
// dispatcher (spec.md §4.6) and exists only for supplementary reporting.
type ExploratoryNormalizer struct {
	stopWords map[string]bool
}

// NewExploratory builds an ExploratoryNormalizer sharing the same
// stop-word source as the canonical Normalizer.
func NewExploratory() (*ExploratoryNormalizer, error) {
	n, err := New()
	if err != nil {
		return nil, err
	}
	return &ExploratoryNormalizer{stopWords: n.stopWords}, nil
}

// Normalize runs the relaxed pipeline and returns plain counts; it does
// not track reversibility since its output is never rolled up into the
// WordTransformationMap.
func (e *ExploratoryNormalizer) Normalize(text string) map[string]int {
	counts := map[string]int{}
	if text == "" {
		return counts
	}

	text = strings.ReplaceAll(text, "\n", " ")
	for _, word := range strings.Fields(text) {
		current := stripPunctuation(strings.ToLower(word))
		if current == "" || e.stopWords[current] {
			continue
		}
		counts[current]++
	}
	return counts
}
