package ecfrclient

import (
	"encoding/json"
	"fmt"
)

// Title models one row of GET /versioner/v1/titles.json.
type Title struct {
	Number          int    `json:"number"`
	Name            string `json:"name"`
	LatestAmendedOn string `json:"latest_amended_on"`
	LatestIssueDate string `json:"latest_issue_date"`
	UpToDateAsOf    string `json:"up_to_date_as_of"`
	Reserved        bool   `json:"reserved"`
}

// TitleVersion models one entry of content_versions from
// GET /versioner/v1/versions/title-{n}.json.
type TitleVersion struct {
	Date          string `json:"date"`
	AmendmentDate string `json:"amendment_date"`
	IssueDate     string `json:"issue_date"`
	Identifier    string `json:"identifier"`
	Name          string `json:"name"`
	Part          string `json:"part"`
	Substantive   bool   `json:"substantive"`
	Removed       bool   `json:"removed"`
	Subpart       string `json:"subpart,omitempty"`
	Type          string `json:"type"`
}

// DocumentReference is one entry in an agency's cfr_references list. It
// always carries a Title and zero or more subdivision selectors
// (chapter, subtitle, subchapter, part, ...) whose key names vary by
// agency and whose JSON values may be strings or numbers; both are
// coerced to strings here since the path map only ever compares them
// as strings.
type DocumentReference struct {
	Title  int
	Fields map[string]string
}

// UnmarshalJSON captures "title" into Title and every other scalar
// field into Fields, coercing numeric values to their string form.
func (d *DocumentReference) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	d.Fields = make(map[string]string, len(raw))
	for k, v := range raw {
		if k == "title" {
			switch t := v.(type) {
			case float64:
				d.Title = int(t)
			case string:
				var n int
				if _, err := fmt.Sscanf(t, "%d", &n); err == nil {
					d.Title = n
				}
			}
			continue
		}
		if v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			d.Fields[k] = t
		case float64:
			d.Fields[k] = trimFloat(t)
		case bool:
			d.Fields[k] = fmt.Sprintf("%t", t)
		}
	}
	return nil
}

func trimFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

// Agency models one entry (recursively) of GET /admin/v1/agencies.json.
type Agency struct {
	Slug          string               `json:"slug"`
	Name          string               `json:"name"`
	ShortName     string               `json:"short_name"`
	DisplayName   string               `json:"display_name"`
	SortableName  string               `json:"sortable_name"`
	Children      []Agency             `json:"children"`
	CFRReferences []DocumentReference  `json:"cfr_references"`
}
