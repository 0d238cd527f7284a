package normalize

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_Deterministic(t *testing.T) {
	n, err := New()
	require.NoError(t, err)

	text := "The Regulation requires Inspection of every Facility."
	first := n.Normalize(text)
	second := n.Normalize(text)
	assert.Equal(t, first.Counts, second.Counts)
}

func TestNormalize_DropsStopWordsAndShortTokens(t *testing.T) {
	n, err := New()
	require.NoError(t, err)

	res := n.Normalize("the and of a an to in")
	assert.Empty(t, res.Counts)
}

func TestNormalize_DropsNumericTokens(t *testing.T) {
	n, err := New()
	require.NoError(t, err)

	res := n.Normalize("section 1234 applies")
	_, hasNumeric := res.Counts["1234"]
	assert.False(t, hasNumeric)
}

func TestNormalize_DropsTokensOfLengthThreeOrLess(t *testing.T) {
	n, err := New()
	require.NoError(t, err)

	res := n.Normalize("cat dog owl regulation")
	assert.NotContains(t, res.Counts, "cat")
	assert.NotContains(t, res.Counts, "dog")
	assert.NotContains(t, res.Counts, "owl")
	assert.Contains(t, res.Counts, "regul")
}

func TestNormalize_StemsToCommonRoot(t *testing.T) {
	n, err := New()
	require.NoError(t, err)

	res := n.Normalize("Regulation Regulations Regulated")
	total := 0
	for stem, count := range res.Counts {
		if stem == "regul" {
			total += count
		}
	}
	assert.Equal(t, 3, total)
}

func TestNormalize_ReversibilityRecordsOnlyOnChange(t *testing.T) {
	n, err := New()
	require.NoError(t, err)

	res := n.Normalize("Inspection")
	// lowercase changes Inspection->inspection, stemming changes
	// inspection->inspect: both hops recorded, single-hop each.
	assert.Contains(t, res.Transformations["inspection"], "Inspection")
	assert.Contains(t, res.Transformations["inspect"], "inspection")
	assert.NotContains(t, res.Transformations["inspect"], "Inspection")
}

func TestNormalize_PunctuationStripped(t *testing.T) {
	n, err := New()
	require.NoError(t, err)

	res := n.Normalize("facility, facility. facility!")
	assert.Equal(t, 3, res.Counts["factili"]+res.Counts["facil"])
}

func TestTransformStore_MergeUnionsWithoutOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "word_transformation_map.json")
	store := NewTransformStore(path)

	require.NoError(t, store.Merge(map[string][]string{"inspect": {"inspection"}}))
	require.NoError(t, store.Merge(map[string][]string{"inspect": {"Inspecting"}}))

	all, err := store.All()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"inspection", "Inspecting"}, all["inspect"])

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
}

func TestTransformStore_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "word_transformation_map.json")

	require.NoError(t, NewTransformStore(path).Merge(map[string][]string{"regul": {"Regulation"}}))

	forms, ok := NewTransformStore(path).Lookup("regul")
	require.True(t, ok)
	assert.Equal(t, []string{"Regulation"}, forms)
}

func TestSelectSurfaceForm_PrefersInternalUpperNoPeriod(t *testing.T) {
	assert.Equal(t, "FCC", SelectSurfaceForm([]string{"fcc.", "FCC", "Fcc"}))
	assert.Equal(t, "first", SelectSurfaceForm([]string{"first", "second"}))
	assert.Equal(t, "", SelectSurfaceForm(nil))
}

func TestExploratoryNormalizer_KeepsShortAndNumericTokens(t *testing.T) {
	e, err := NewExploratory()
	require.NoError(t, err)

	counts := e.Normalize("Cat 123 the dog")
	assert.Contains(t, counts, "cat")
	assert.Contains(t, counts, "123")
	assert.Contains(t, counts, "dog")
	assert.NotContains(t, counts, "the")
}
