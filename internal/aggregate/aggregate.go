// Package aggregate implements the C8 Aggregator: join persisted word
// counts with the TitleAgencyMap, compute monthly/yearly totals, and
// truncate top words to 100 per (year, agency) (spec.md §4.8).
package aggregate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"ecfr-wordfreq/internal/catalog"
	"ecfr-wordfreq/internal/normalize"
	"ecfr-wordfreq/internal/pathmap"
)

// WordCountSource is the subset of catalog.Store the aggregator reads from.
type WordCountSource interface {
	StreamWordCounts(ctx context.Context) func(yield func(catalog.WordCountRecord, error) bool)
}

// AgencyYearReport is one (year, agency) bucket of the rollup.
type AgencyYearReport struct {
	AgencyShortName string
	AgencyDN        string
	Year            string
	MonthlyCounts   map[string]int // "01".."12" -> total words
	YearlyCount     int
	TopWords        []WordCount

	running map[string]int
}

// TitleYearReport mirrors AgencyYearReport but keyed by title, the
// supplemented title-keyed rollup from SPEC_FULL.md §6.
type TitleYearReport struct {
	TitleNumber   int
	Year          string
	MonthlyCounts map[string]int
	YearlyCount   int
	TopWords      []WordCount

	running map[string]int
}

// WordCount is one entry of a truncated top-words list.
type WordCount struct {
	Word  string
	Count int
}

// Result bundles every report artifact the aggregator produces.
type Result struct {
	ByAgencyYear map[string]*AgencyYearReport // key: year + "|" + agency short name
	ByTitleYear  map[string]*TitleYearReport  // key: year + "|" + title number
	Top10Flat    []FlatTop10
}

// FlatTop10 is one row of the supplemented top_10_words.json report:
// top 10 words for one (agency, title, version) triple.
type FlatTop10 struct {
	AgencyShortName string
	TitleNumber     int
	VersionDate     string
	Words           []WordCount
}

// Run streams every WordCountRecord, rewrites stems to their selected
// surface forms, attributes records to owning agencies via
// TitleAgencyMap, and accumulates the rollups described in spec.md §4.8.
// Run is not safe for concurrent use on the same source/transforms.
func Run(ctx context.Context, source WordCountSource, agencyMap pathmap.TitleAgencyMap, transforms *normalize.TransformStore) (Result, error) {
	res := Result{
		ByAgencyYear: map[string]*AgencyYearReport{},
		ByTitleYear:  map[string]*TitleYearReport{},
	}

	allForms, err := transforms.All()
	if err != nil {
		return res, fmt.Errorf("aggregate: load transformations: %w", err)
	}
	surfaceCache := map[string]string{}
	surfaceFor := func(stem string) string {
		if s, ok := surfaceCache[stem]; ok {
			return s
		}
		s := normalize.SelectSurfaceForm(allForms[stem])
		if s == "" {
			s = stem
		}
		surfaceCache[stem] = s
		return s
	}

	var iterErr error
	for rec, err := range source.StreamWordCounts(ctx) {
		if err != nil {
			iterErr = fmt.Errorf("aggregate: stream word counts: %w", err)
			break
		}
		year, month, err := splitVersionDate(rec.VersionDate)
		if err != nil {
			continue // DataError: the record is skipped; nothing is logged
		}

		totalWords := 0
		rewritten := map[string]int{}
		for _, row := range rec.Rows {
			totalWords += row.Count
			rewritten[surfaceFor(row.Stem)] += row.Count
		}

		attributed := map[string]pathmap.AgencyInfo{}
		ownedTotal := map[string]int{}
		ownedWords := map[string]map[string]int{}
		for _, row := range rec.Rows {
			credited := map[string]bool{}
			for _, a := range agencyMap[rec.TitleNumber][row.Type][row.Code] {
				// spec.md Testable Property 9: a row with no owning agency
				// for its (type, code) is never credited to any agency.
				if credited[a.ShortName] {
					continue
				}
				credited[a.ShortName] = true
				if _, ok := attributed[a.ShortName]; !ok {
					attributed[a.ShortName] = a
					ownedWords[a.ShortName] = map[string]int{}
				}
				ownedTotal[a.ShortName] += row.Count
				ownedWords[a.ShortName][surfaceFor(row.Stem)] += row.Count
			}
		}

		for shortName, info := range attributed {
			key := year + "|" + shortName
			r, ok := res.ByAgencyYear[key]
			if !ok {
				r = &AgencyYearReport{AgencyShortName: shortName, AgencyDN: info.DisplayName, Year: year, MonthlyCounts: map[string]int{}, running: map[string]int{}}
				res.ByAgencyYear[key] = r
			}
			r.MonthlyCounts[month] += ownedTotal[shortName]
			r.YearlyCount += ownedTotal[shortName]
			for w, c := range ownedWords[shortName] {
				r.running[w] += c
			}

			if flatWords := topN(ownedWords[shortName], 10); len(flatWords) > 0 {
				res.Top10Flat = append(res.Top10Flat, FlatTop10{
					AgencyShortName: shortName,
					TitleNumber:     rec.TitleNumber,
					VersionDate:     rec.VersionDate,
					Words:           flatWords,
				})
			}
		}

		tkey := fmt.Sprintf("%s|%d", year, rec.TitleNumber)
		tr, ok := res.ByTitleYear[tkey]
		if !ok {
			tr = &TitleYearReport{TitleNumber: rec.TitleNumber, Year: year, MonthlyCounts: map[string]int{}, running: map[string]int{}}
			res.ByTitleYear[tkey] = tr
		}
		tr.MonthlyCounts[month] += totalWords
		tr.YearlyCount += totalWords
		for w, c := range rewritten {
			tr.running[w] += c
		}
	}
	if iterErr != nil {
		return res, iterErr
	}

	for _, r := range res.ByAgencyYear {
		r.TopWords = topN(r.running, 100)
		r.running = nil
	}
	for _, r := range res.ByTitleYear {
		r.TopWords = topN(r.running, 100)
		r.running = nil
	}
	return res, nil
}

// topN sorts counts by count desc, tie-broken by word string asc
// (spec.md Testable Property 8 / Scenario F), truncated to n.
func topN(counts map[string]int, n int) []WordCount {
	list := make([]WordCount, 0, len(counts))
	for w, c := range counts {
		list = append(list, WordCount{Word: w, Count: c})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Count != list[j].Count {
			return list[i].Count > list[j].Count
		}
		return list[i].Word < list[j].Word
	})
	if len(list) > n {
		list = list[:n]
	}
	return list
}

func splitVersionDate(d string) (year, month string, err error) {
	parts := strings.SplitN(d, "-", 3)
	if len(parts) < 2 {
		return "", "", fmt.Errorf("malformed version date %q", d)
	}
	return parts[0], parts[1], nil
}
