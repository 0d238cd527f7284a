package aggregate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
)

// WriteReports persists the five downstream JSON artifacts named in
// spec.md §6, plus the supplemented title-keyed rollup (SPEC_FULL.md
// §6), all via write-temp-then-rename for crash safety.
func WriteReports(dir string, res Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	yearAgency := buildYearAgencyTopWords(res)
	if err := writeJSONAtomic(filepath.Join(dir, "year_agency_top_words.json"), yearAgency); err != nil {
		return err
	}

	monthlyYearly := buildMonthlyYearlyCounts(res)
	if err := writeJSONAtomic(filepath.Join(dir, "monthly_yearly_counts.json"), monthlyYearly); err != nil {
		return err
	}

	if err := writeJSONAtomic(filepath.Join(dir, "top_10_words.json"), res.Top10Flat); err != nil {
		return err
	}

	d3 := buildD3StackedData(res)
	if err := writeJSONAtomic(filepath.Join(dir, "d3_stacked_data.json"), d3); err != nil {
		return err
	}

	chart := buildAgencyChartData(res)
	return writeJSONAtomic(filepath.Join(dir, "agency_chart_data.json"), chart)
}

// yearAgencyEntry is the on-disk shape of one year_agency_top_words.json row.
type yearAgencyEntry struct {
	Year      string          `json:"year"`
	Agency    string          `json:"agency_short_name"`
	AgencyDN  string          `json:"agency_display_name"`
	TopWords  []wordCountJSON `json:"top_words"`
	WordCount int             `json:"yearly_word_count"`
}

type wordCountJSON struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

func buildYearAgencyTopWords(res Result) []yearAgencyEntry {
	out := make([]yearAgencyEntry, 0, len(res.ByAgencyYear))
	for _, r := range res.ByAgencyYear {
		out = append(out, yearAgencyEntry{
			Year:      r.Year,
			Agency:    r.AgencyShortName,
			AgencyDN:  r.AgencyDN,
			TopWords:  toWordCountJSON(r.TopWords),
			WordCount: r.YearlyCount,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Agency < out[j].Agency
	})
	return out
}

// monthlyYearlyReport carries both the agency-keyed rollup (spec.md
// §4.8) and the supplemented title-keyed rollup (SPEC_FULL.md §6).
type monthlyYearlyReport struct {
	ByAgency []monthlyYearlyAgencyEntry `json:"by_agency"`
	ByTitle  []monthlyYearlyTitleEntry  `json:"by_title"`
}

type monthlyYearlyAgencyEntry struct {
	Year          string         `json:"year"`
	Agency        string         `json:"agency_short_name"`
	MonthlyCounts map[string]int `json:"monthly_word_counts"`
	YearlyCount   int            `json:"yearly_word_count"`
}

type monthlyYearlyTitleEntry struct {
	Year          string         `json:"year"`
	TitleNumber   int            `json:"title_number"`
	MonthlyCounts map[string]int `json:"monthly_word_counts"`
	YearlyCount   int            `json:"yearly_word_count"`
}

func buildMonthlyYearlyCounts(res Result) monthlyYearlyReport {
	var out monthlyYearlyReport
	for _, r := range res.ByAgencyYear {
		out.ByAgency = append(out.ByAgency, monthlyYearlyAgencyEntry{
			Year: r.Year, Agency: r.AgencyShortName, MonthlyCounts: r.MonthlyCounts, YearlyCount: r.YearlyCount,
		})
	}
	for _, r := range res.ByTitleYear {
		out.ByTitle = append(out.ByTitle, monthlyYearlyTitleEntry{
			Year: r.Year, TitleNumber: r.TitleNumber, MonthlyCounts: r.MonthlyCounts, YearlyCount: r.YearlyCount,
		})
	}
	sort.Slice(out.ByAgency, func(i, j int) bool {
		if out.ByAgency[i].Year != out.ByAgency[j].Year {
			return out.ByAgency[i].Year < out.ByAgency[j].Year
		}
		return out.ByAgency[i].Agency < out.ByAgency[j].Agency
	})
	sort.Slice(out.ByTitle, func(i, j int) bool {
		if out.ByTitle[i].Year != out.ByTitle[j].Year {
			return out.ByTitle[i].Year < out.ByTitle[j].Year
		}
		return out.ByTitle[i].TitleNumber < out.ByTitle[j].TitleNumber
	})
	return out
}

// d3StackedRow is one row of the D3 stacked-bar-chart input: one
// observation per (year, agency) with its yearly total, shaped for
// direct consumption by a d3.stack() call.
type d3StackedRow struct {
	Year   string `json:"year"`
	Agency string `json:"agency"`
	Total  int    `json:"total"`
}

func buildD3StackedData(res Result) []d3StackedRow {
	out := make([]d3StackedRow, 0, len(res.ByAgencyYear))
	for _, r := range res.ByAgencyYear {
		out = append(out, d3StackedRow{Year: r.Year, Agency: r.AgencyShortName, Total: r.YearlyCount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Agency < out[j].Agency
	})
	return out
}

// agencyChartEntry is one agency's full time series, for a simple
// line/bar chart keyed by agency rather than by (year, agency) row.
type agencyChartEntry struct {
	Agency string         `json:"agency"`
	ByYear map[string]int `json:"by_year"`
}

func buildAgencyChartData(res Result) []agencyChartEntry {
	byAgency := map[string]map[string]int{}
	for _, r := range res.ByAgencyYear {
		if byAgency[r.AgencyShortName] == nil {
			byAgency[r.AgencyShortName] = map[string]int{}
		}
		byAgency[r.AgencyShortName][r.Year] = r.YearlyCount
	}
	out := make([]agencyChartEntry, 0, len(byAgency))
	for agency, byYear := range byAgency {
		out = append(out, agencyChartEntry{Agency: agency, ByYear: byYear})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Agency < out[j].Agency })
	return out
}

func toWordCountJSON(words []WordCount) []wordCountJSON {
	out := make([]wordCountJSON, len(words))
	for i, w := range words {
		out[i] = wordCountJSON{Word: w.Word, Count: w.Count}
	}
	return out
}

func writeJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
