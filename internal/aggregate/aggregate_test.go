package aggregate

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecfr-wordfreq/internal/catalog"
	"ecfr-wordfreq/internal/normalize"
	"ecfr-wordfreq/internal/pathmap"
)

type fakeSource struct {
	records []catalog.WordCountRecord
}

func (f *fakeSource) StreamWordCounts(ctx context.Context) func(yield func(catalog.WordCountRecord, error) bool) {
	return func(yield func(catalog.WordCountRecord, error) bool) {
		for _, r := range f.records {
			if !yield(r, nil) {
				return
			}
		}
	}
}

func newTransformsForTest(t *testing.T) *normalize.TransformStore {
	t.Helper()
	ts := normalize.NewTransformStore(filepath.Join(t.TempDir(), "transform.json"))
	require.NoError(t, ts.Merge(map[string][]string{
		"regul": {"Regulation"},
		"facil": {"Facility"},
	}))
	return ts
}

func TestRun_AttributesOnlyKnownOwners(t *testing.T) {
	source := &fakeSource{records: []catalog.WordCountRecord{
		{TaskID: 1, TitleNumber: 7, VersionDate: "2021-03-15", Rows: []catalog.WordCountRow{
			{Type: "chapter", Code: "I", Stem: "regul", Count: 5},
			{Type: "chapter", Code: "UNOWNED", Stem: "facil", Count: 9},
		}},
	}}
	agencyMap := pathmap.TitleAgencyMap{
		7: {"chapter": {"I": {{ID: "agency-a", ShortName: "AA", DisplayName: "Agency A"}}}},
	}
	ts := newTransformsForTest(t)

	res, err := Run(context.Background(), source, agencyMap, ts)
	require.NoError(t, err)

	r, ok := res.ByAgencyYear["2021|AA"]
	require.True(t, ok)
	assert.Equal(t, 5, r.YearlyCount) // only the owned row's 5 words count, not the unowned 9
	assert.Equal(t, 5, r.MonthlyCounts["03"])
}

func TestRun_RollupConservation(t *testing.T) {
	source := &fakeSource{records: []catalog.WordCountRecord{
		{TaskID: 1, TitleNumber: 7, VersionDate: "2021-01-10", Rows: []catalog.WordCountRow{
			{Type: "chapter", Code: "I", Stem: "regul", Count: 3},
		}},
		{TaskID: 2, TitleNumber: 7, VersionDate: "2021-06-10", Rows: []catalog.WordCountRow{
			{Type: "chapter", Code: "I", Stem: "facil", Count: 4},
		}},
	}}
	agencyMap := pathmap.TitleAgencyMap{
		7: {"chapter": {"I": {{ID: "agency-a", ShortName: "AA", DisplayName: "Agency A"}}}},
	}
	ts := newTransformsForTest(t)

	res, err := Run(context.Background(), source, agencyMap, ts)
	require.NoError(t, err)

	r := res.ByAgencyYear["2021|AA"]
	require.NotNil(t, r)
	sum := 0
	for _, c := range r.MonthlyCounts {
		sum += c
	}
	assert.Equal(t, r.YearlyCount, sum)
	assert.LessOrEqual(t, len(r.TopWords), 100)
}

func TestRun_TopWordsTruncatedAndTieBroken(t *testing.T) {
	rows := make([]catalog.WordCountRow, 0, 150)
	for i := 0; i < 150; i++ {
		rows = append(rows, catalog.WordCountRow{Type: "chapter", Code: "I", Stem: fmt.Sprintf("stem%03d", i), Count: 1})
	}
	source := &fakeSource{records: []catalog.WordCountRecord{
		{TaskID: 1, TitleNumber: 7, VersionDate: "2021-01-10", Rows: rows},
	}}
	agencyMap := pathmap.TitleAgencyMap{
		7: {"chapter": {"I": {{ID: "agency-a", ShortName: "AA", DisplayName: "Agency A"}}}},
	}
	ts := newTransformsForTest(t)

	res, err := Run(context.Background(), source, agencyMap, ts)
	require.NoError(t, err)

	r := res.ByAgencyYear["2021|AA"]
	require.NotNil(t, r)
	require.Len(t, r.TopWords, 100)
	for i := 1; i < len(r.TopWords); i++ {
		prev, cur := r.TopWords[i-1], r.TopWords[i]
		if prev.Count == cur.Count {
			assert.Less(t, prev.Word, cur.Word)
		} else {
			assert.Greater(t, prev.Count, cur.Count)
		}
	}
}

func TestRun_SurfaceFormRewriting(t *testing.T) {
	source := &fakeSource{records: []catalog.WordCountRecord{
		{TaskID: 1, TitleNumber: 7, VersionDate: "2021-01-10", Rows: []catalog.WordCountRow{
			{Type: "chapter", Code: "I", Stem: "regul", Count: 2},
		}},
	}}
	agencyMap := pathmap.TitleAgencyMap{
		7: {"chapter": {"I": {{ID: "agency-a", ShortName: "AA", DisplayName: "Agency A"}}}},
	}
	ts := newTransformsForTest(t)

	res, err := Run(context.Background(), source, agencyMap, ts)
	require.NoError(t, err)

	r := res.ByAgencyYear["2021|AA"]
	require.Len(t, r.TopWords, 1)
	assert.Equal(t, "Regulation", r.TopWords[0].Word)
}
