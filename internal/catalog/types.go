// Package catalog persists and queries Agencies, Titles, TitleVersions,
// Jobs, and WordCounts (spec.md §3/§4.2) over a pgxpool-backed Postgres
// connection.
package catalog

import "time"

// Agency is the catalog's persisted shape of an eCFR agency, including
// its flattened DocumentReferences (spec.md §3).
type Agency struct {
	Slug          string
	Name          string
	ShortName     string
	DisplayName   string
	SortableName  string
	ParentSlug    string
	CFRReferences []DocumentReference
}

// DocumentReference is one row of an agency's cfr_references.
type DocumentReference struct {
	Title  int
	Fields map[string]string
}

// Title is the catalog's persisted shape of an eCFR title.
type Title struct {
	Number          int
	Name            string
	LatestAmendedOn string
	LatestIssueDate string
	UpToDateAsOf    string
	Reserved        bool
}

// TitleVersion is one dated publish snapshot of a title.
type TitleVersion struct {
	TitleNumber   int
	VersionDate   string // YYYY-MM-DD
	AmendmentDate string
	IssueDate     string
	Identifier    string
	Name          string
	Part          string
	Subpart       string
	Substantive   bool
	Removed       bool
	Type          string
}

// JobStatus enumerates the Job lifecycle states (spec.md §3).
type JobStatus string

const (
	StatusPending    JobStatus = "PENDING"
	StatusProcessing JobStatus = "PROCESSING"
	StatusCompleted  JobStatus = "COMPLETED"
	StatusFailed     JobStatus = "FAILED"
)

// Job is a VersionProcessingJob row.
type Job struct {
	ID             int64
	TitleNumber    int
	VersionDate    string
	Status         JobStatus
	AttemptCount   int
	LockID         string
	LockAcquiredAt time.Time
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastAttemptAt  time.Time
}

// WordCountRow is one (stem, count) contribution to a job's
// (type, code) subdivision, the flattened relational shape of a
// WordCountRecord's word_statistics map (spec.md §3; see DESIGN.md for
// why one row per stem was chosen over a single JSONB payload column).
type WordCountRow struct {
	Type  string
	Code  string
	Stem  string
	Count int
}

// WordCountRecord groups the rows produced by a single extraction for
// insertion via InsertWordCounts.
type WordCountRecord struct {
	TaskID      int64
	TitleNumber int
	VersionDate string
	Rows        []WordCountRow
}
