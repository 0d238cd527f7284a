package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBError wraps a failed database operation, per spec.md §7's DBError
// taxonomy entry.
type DBError struct {
	Op  string
	Err error
}

func (e *DBError) Error() string { return fmt.Sprintf("catalog: %s: %v", e.Op, e.Err) }
func (e *DBError) Unwrap() error { return e.Err }

// Store is the C2 Catalog Store: a thin persistence layer over a
// pgxpool connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open builds a Store from a pooled connection, dialed from dsn.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, &DBError{Op: "open", Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &DBError{Op: "ping", Err: err}
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// Pool exposes the underlying pool.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// UpsertAgencies bulk-inserts agencies and their DocumentReferences,
// replacing each agency's reference set wholesale (spec.md §3's
// "effectively immutable, replace wholesale on re-sync" lifecycle).
func (s *Store) UpsertAgencies(ctx context.Context, agencies []Agency) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &DBError{Op: "upsert_agencies begin", Err: err}
	}
	defer tx.Rollback(ctx)

	for _, a := range agencies {
		if err := upsertAgency(ctx, tx, a, a.ParentSlug); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return &DBError{Op: "upsert_agencies commit", Err: err}
	}
	return nil
}

func upsertAgency(ctx context.Context, tx pgx.Tx, a Agency, parentSlug string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO agencies (slug, name, short_name, display_name, sortable_name, parent_slug, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), now())
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			short_name = EXCLUDED.short_name,
			display_name = EXCLUDED.display_name,
			sortable_name = EXCLUDED.sortable_name,
			parent_slug = EXCLUDED.parent_slug,
			updated_at = now()
	`, a.Slug, a.Name, a.ShortName, a.DisplayName, a.SortableName, parentSlug)
	if err != nil {
		return &DBError{Op: "upsert_agency", Err: err}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM agency_document_references WHERE agency_slug = $1`, a.Slug); err != nil {
		return &DBError{Op: "clear_agency_references", Err: err}
	}
	for _, ref := range a.CFRReferences {
		fields, err := json.Marshal(ref.Fields)
		if err != nil {
			return &DBError{Op: "marshal_reference_fields", Err: err}
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO agency_document_references (agency_slug, title_number, fields)
			VALUES ($1, $2, $3)
		`, a.Slug, ref.Title, fields); err != nil {
			return &DBError{Op: "insert_agency_reference", Err: err}
		}
	}
	return nil
}

// UpsertTitles bulk-inserts titles, conflict-resolving on number.
func (s *Store) UpsertTitles(ctx context.Context, titles []Title) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &DBError{Op: "upsert_titles begin", Err: err}
	}
	defer tx.Rollback(ctx)

	for _, t := range titles {
		if _, err := tx.Exec(ctx, `
			INSERT INTO titles (number, name, latest_amended_on, latest_issue_date, up_to_date_as_of, reserved, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now())
			ON CONFLICT (number) DO UPDATE SET
				name = EXCLUDED.name,
				latest_amended_on = EXCLUDED.latest_amended_on,
				latest_issue_date = EXCLUDED.latest_issue_date,
				up_to_date_as_of = EXCLUDED.up_to_date_as_of,
				reserved = EXCLUDED.reserved,
				updated_at = now()
		`, t.Number, t.Name, t.LatestAmendedOn, t.LatestIssueDate, t.UpToDateAsOf, t.Reserved); err != nil {
			return &DBError{Op: "upsert_title", Err: err}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return &DBError{Op: "upsert_titles commit", Err: err}
	}
	return nil
}

// UpsertTitleVersions bulk-inserts the versions of one title.
func (s *Store) UpsertTitleVersions(ctx context.Context, titleNumber int, versions []TitleVersion) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &DBError{Op: "upsert_title_versions begin", Err: err}
	}
	defer tx.Rollback(ctx)

	for _, v := range versions {
		if _, err := tx.Exec(ctx, `
			INSERT INTO title_versions
				(title_number, version_date, amendment_date, issue_date, identifier, name, part, subpart, substantive, removed, type)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (title_number, version_date) DO UPDATE SET
				amendment_date = EXCLUDED.amendment_date,
				issue_date = EXCLUDED.issue_date,
				identifier = EXCLUDED.identifier,
				name = EXCLUDED.name,
				part = EXCLUDED.part,
				subpart = EXCLUDED.subpart,
				substantive = EXCLUDED.substantive,
				removed = EXCLUDED.removed,
				type = EXCLUDED.type
		`, titleNumber, v.VersionDate, v.AmendmentDate, v.IssueDate, v.Identifier, v.Name, v.Part, v.Subpart, v.Substantive, v.Removed, v.Type); err != nil {
			return &DBError{Op: "upsert_title_version", Err: err}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return &DBError{Op: "upsert_title_versions commit", Err: err}
	}
	return nil
}

// ListAgencies returns every persisted agency with its references.
func (s *Store) ListAgencies(ctx context.Context) ([]Agency, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT slug, name, short_name, display_name, sortable_name, COALESCE(parent_slug, '')
		FROM agencies ORDER BY slug
	`)
	if err != nil {
		return nil, &DBError{Op: "list_agencies", Err: err}
	}
	defer rows.Close()

	byS := map[string]*Agency{}
	var order []string
	for rows.Next() {
		var a Agency
		if err := rows.Scan(&a.Slug, &a.Name, &a.ShortName, &a.DisplayName, &a.SortableName, &a.ParentSlug); err != nil {
			return nil, &DBError{Op: "scan_agency", Err: err}
		}
		byS[a.Slug] = &a
		order = append(order, a.Slug)
	}
	if err := rows.Err(); err != nil {
		return nil, &DBError{Op: "list_agencies rows", Err: err}
	}

	refRows, err := s.pool.Query(ctx, `SELECT agency_slug, title_number, fields FROM agency_document_references`)
	if err != nil {
		return nil, &DBError{Op: "list_agency_references", Err: err}
	}
	defer refRows.Close()
	for refRows.Next() {
		var slug string
		var ref DocumentReference
		var fields []byte
		if err := refRows.Scan(&slug, &ref.Title, &fields); err != nil {
			return nil, &DBError{Op: "scan_agency_reference", Err: err}
		}
		if err := json.Unmarshal(fields, &ref.Fields); err != nil {
			return nil, &DBError{Op: "unmarshal_reference_fields", Err: err}
		}
		if a, ok := byS[slug]; ok {
			a.CFRReferences = append(a.CFRReferences, ref)
		}
	}
	if err := refRows.Err(); err != nil {
		return nil, &DBError{Op: "list_agency_references rows", Err: err}
	}

	out := make([]Agency, 0, len(order))
	for _, slug := range order {
		out = append(out, *byS[slug])
	}
	return out, nil
}

// ListTitleNumbers returns every persisted title number.
func (s *Store) ListTitleNumbers(ctx context.Context) ([]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT number FROM titles ORDER BY number`)
	if err != nil {
		return nil, &DBError{Op: "list_title_numbers", Err: err}
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, &DBError{Op: "scan_title_number", Err: err}
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// ListVersionsForTitle returns versions for a title, newest first.
func (s *Store) ListVersionsForTitle(ctx context.Context, titleNumber int) ([]TitleVersion, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT title_number, version_date::text, amendment_date, issue_date, identifier, name, part, subpart, substantive, removed, type
		FROM title_versions
		WHERE title_number = $1
		ORDER BY version_date DESC
	`, titleNumber)
	if err != nil {
		return nil, &DBError{Op: "list_versions_for_title", Err: err}
	}
	defer rows.Close()

	var out []TitleVersion
	for rows.Next() {
		var v TitleVersion
		if err := rows.Scan(&v.TitleNumber, &v.VersionDate, &v.AmendmentDate, &v.IssueDate, &v.Identifier, &v.Name, &v.Part, &v.Subpart, &v.Substantive, &v.Removed, &v.Type); err != nil {
			return nil, &DBError{Op: "scan_title_version", Err: err}
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// CreatePendingJobIfAbsent is idempotent on (title_number, version_date).
func (s *Store) CreatePendingJobIfAbsent(ctx context.Context, titleNumber int, versionDate string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO version_processing_jobs (title_number, version_date)
		VALUES ($1, $2)
		ON CONFLICT (title_number, version_date) DO NOTHING
	`, titleNumber, versionDate)
	if err != nil {
		return &DBError{Op: "create_pending_job_if_absent", Err: err}
	}
	return nil
}

// ClaimPendingJobs implements the exact claim transaction from
// spec.md §5: SELECT ... FOR UPDATE SKIP LOCKED then UPDATE within one
// transaction, committed before returning so the PROCESSING status is
// visible to other workers and row locks release.
func (s *Store) ClaimPendingJobs(ctx context.Context, batchSize int, lockID string, now time.Time) ([]Job, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, &DBError{Op: "claim begin", Err: err}
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, title_number, version_date::text, status, attempt_count
		FROM version_processing_jobs
		WHERE status = 'PENDING'
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, batchSize)
	if err != nil {
		return nil, &DBError{Op: "claim select", Err: err}
	}
	var claimed []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.TitleNumber, &j.VersionDate, &j.Status, &j.AttemptCount); err != nil {
			rows.Close()
			return nil, &DBError{Op: "claim scan", Err: err}
		}
		claimed = append(claimed, j)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, &DBError{Op: "claim rows", Err: err}
	}
	rows.Close()

	if len(claimed) == 0 {
		if err := tx.Commit(ctx); err != nil {
			return nil, &DBError{Op: "claim commit empty", Err: err}
		}
		return nil, nil
	}

	ids := make([]int64, len(claimed))
	for i, j := range claimed {
		ids[i] = j.ID
	}
	if _, err := tx.Exec(ctx, `
		UPDATE version_processing_jobs
		   SET status = 'PROCESSING',
		       attempt_count = attempt_count + 1,
		       lock_id = $2,
		       lock_acquired_at = $3,
		       last_attempt_at = $3,
		       updated_at = $3
		 WHERE id = ANY($1)
	`, ids, lockID, now); err != nil {
		return nil, &DBError{Op: "claim update", Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, &DBError{Op: "claim commit", Err: err}
	}

	for i := range claimed {
		claimed[i].Status = StatusProcessing
		claimed[i].AttemptCount++
		claimed[i].LockID = lockID
		claimed[i].LockAcquiredAt = now
	}
	return claimed, nil
}

// UpdateJobStatus transitions a job to a terminal status and clears
// lock fields, per spec.md §4.2. It runs as its own statement on the
// pool, outside any other transaction, so a rolled-back
// InsertWordCounts does not also drop the status write (spec.md §4.7/§9).
func (s *Store) UpdateJobStatus(ctx context.Context, jobID int64, status JobStatus, errMsg string) error {
	var errArg any
	if errMsg != "" {
		errArg = errMsg
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE version_processing_jobs
		   SET status = $2,
		       error_message = $3,
		       lock_id = NULL,
		       lock_acquired_at = NULL,
		       updated_at = now()
		 WHERE id = $1
	`, jobID, string(status), errArg)
	if err != nil {
		return &DBError{Op: "update_job_status", Err: err}
	}
	return nil
}

// ReclaimExpiredLocks resets PROCESSING jobs whose lock has outlived
// ttl back to PENDING, clearing lock fields (the sweeper, spec.md §5).
// It returns the number of jobs reclaimed.
func (s *Store) ReclaimExpiredLocks(ctx context.Context, ttl time.Duration, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE version_processing_jobs
		   SET status = 'PENDING',
		       lock_id = NULL,
		       lock_acquired_at = NULL,
		       updated_at = $2
		 WHERE status = 'PROCESSING'
		   AND lock_acquired_at < $2 - $1::interval
	`, fmt.Sprintf("%d seconds", int(ttl.Seconds())), now)
	if err != nil {
		return 0, &DBError{Op: "reclaim_expired_locks", Err: err}
	}
	return tag.RowsAffected(), nil
}

// InsertWordCounts upserts every row of rec under its task_id,
// favoring upsert-on-rerun over delete-then-insert (spec.md §3 rerun
// invariant, resolved in DESIGN.md).
func (s *Store) InsertWordCounts(ctx context.Context, rec WordCountRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &DBError{Op: "insert_word_counts begin", Err: err}
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, row := range rec.Rows {
		batch.Queue(`
			INSERT INTO version_word_counts (task_id, title_number, version_date, type, code, word_stem, word_count)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (task_id, title_number, version_date, type, code, word_stem)
			DO UPDATE SET word_count = EXCLUDED.word_count
		`, rec.TaskID, rec.TitleNumber, rec.VersionDate, row.Type, row.Code, row.Stem, row.Count)
	}
	br := tx.SendBatch(ctx, batch)
	for range rec.Rows {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return &DBError{Op: "insert_word_counts exec", Err: err}
		}
	}
	if err := br.Close(); err != nil {
		return &DBError{Op: "insert_word_counts batch close", Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return &DBError{Op: "insert_word_counts commit", Err: err}
	}
	return nil
}

// StreamWordCounts yields every persisted word-count row via a
// Go 1.23 range-over-func iterator backed by a streaming query, so C8
// never materializes the full table in memory.
func (s *Store) StreamWordCounts(ctx context.Context) func(yield func(WordCountRecord, error) bool) {
	return func(yield func(WordCountRecord, error) bool) {
		rows, err := s.pool.Query(ctx, `
			SELECT task_id, title_number, version_date::text, type, code, word_stem, word_count
			FROM version_word_counts
			ORDER BY task_id, type, code
		`)
		if err != nil {
			yield(WordCountRecord{}, &DBError{Op: "stream_word_counts", Err: err})
			return
		}
		defer rows.Close()

		var current WordCountRecord
		haveCurrent := false
		flush := func() bool {
			if !haveCurrent {
				return true
			}
			return yield(current, nil)
		}

		for rows.Next() {
			var taskID int64
			var titleNumber int
			var versionDate, typ, code, stem string
			var count int
			if err := rows.Scan(&taskID, &titleNumber, &versionDate, &typ, &code, &stem, &count); err != nil {
				yield(WordCountRecord{}, &DBError{Op: "stream_word_counts scan", Err: err})
				return
			}
			if !haveCurrent || current.TaskID != taskID || current.TitleNumber != titleNumber || current.VersionDate != versionDate {
				if !flush() {
					return
				}
				current = WordCountRecord{TaskID: taskID, TitleNumber: titleNumber, VersionDate: versionDate}
				haveCurrent = true
			}
			current.Rows = append(current.Rows, WordCountRow{Type: typ, Code: code, Stem: stem, Count: count})
		}
		if err := rows.Err(); err != nil {
			yield(WordCountRecord{}, &DBError{Op: "stream_word_counts rows", Err: err})
			return
		}
		flush()
	}
}
