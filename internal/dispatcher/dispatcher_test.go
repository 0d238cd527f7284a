package dispatcher

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ecfr-wordfreq/internal/catalog"
	"ecfr-wordfreq/internal/normalize"
	"ecfr-wordfreq/internal/pathmap"
)

type fakeFetcher struct {
	mu   sync.Mutex
	docs map[string][]byte
	err  map[string]error
}

func (f *fakeFetcher) FetchFullTitle(ctx context.Context, titleNumber int, versionDate string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := key(titleNumber, versionDate)
	if err, ok := f.err[key]; ok {
		return nil, err
	}
	return f.docs[key], nil
}

func key(title int, date string) string {
	return date + "#" + itoa(title)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

type fakeStore struct {
	mu        sync.Mutex
	jobs      []catalog.Job
	claimed   bool
	completed map[int64]bool
	failed    map[int64]string
	inserted  map[int64]catalog.WordCountRecord
}

func newFakeStore(jobs []catalog.Job) *fakeStore {
	return &fakeStore{jobs: jobs, completed: map[int64]bool{}, failed: map[int64]string{}, inserted: map[int64]catalog.WordCountRecord{}}
}

func (s *fakeStore) ClaimPendingJobs(ctx context.Context, batchSize int, lockID string, now time.Time) ([]catalog.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimed {
		return nil, nil
	}
	s.claimed = true
	return s.jobs, nil
}

func (s *fakeStore) UpdateJobStatus(ctx context.Context, jobID int64, status catalog.JobStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == catalog.StatusCompleted {
		s.completed[jobID] = true
	} else if status == catalog.StatusFailed {
		s.failed[jobID] = errMsg
	}
	return nil
}

func (s *fakeStore) InsertWordCounts(ctx context.Context, rec catalog.WordCountRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted[rec.TaskID] = rec
	return nil
}

func (s *fakeStore) ReclaimExpiredLocks(ctx context.Context, ttl time.Duration, now time.Time) (int64, error) {
	return 0, nil
}

func newDispatcherForTest(t *testing.T, store Store, fetcher Fetcher, paths pathmap.TitlePathMap) *Dispatcher {
	t.Helper()
	n, err := normalize.New()
	require.NoError(t, err)
	ts := normalize.NewTransformStore(filepath.Join(t.TempDir(), "transform.json"))
	return New(store, fetcher, paths, n, ts, 1, 10, time.Hour, zap.NewNop())
}

func TestDispatcher_FailureIsolation(t *testing.T) {
	paths := pathmap.TitlePathMap{
		7: {"chapter": {"I": {}}},
	}
	jobs := []catalog.Job{
		{ID: 1, TitleNumber: 7, VersionDate: "2021-01-01"},
		{ID: 2, TitleNumber: 7, VersionDate: "2021-01-02"},
	}
	fetcher := &fakeFetcher{
		docs: map[string][]byte{
			key(7, "2021-01-02"): []byte(`<ROOT><DIV TYPE="chapter" N="I">Running runs runner</DIV></ROOT>`),
		},
		err: map[string]error{
			key(7, "2021-01-01"): errors.New("network blip"),
		},
	}
	store := newFakeStore(jobs)
	d := newDispatcherForTest(t, store, fetcher, paths)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = d.Run(ctx)

	assert.Equal(t, "fetch full title: network blip", store.failed[1])
	assert.True(t, store.completed[2])
	assert.NotEmpty(t, store.inserted[2].Rows)
}

func TestDispatcher_NoOpWhenTitleAbsentFromPathMap(t *testing.T) {
	jobs := []catalog.Job{{ID: 1, TitleNumber: 99, VersionDate: "2021-01-01"}}
	store := newFakeStore(jobs)
	fetcher := &fakeFetcher{docs: map[string][]byte{}}
	d := newDispatcherForTest(t, store, fetcher, pathmap.TitlePathMap{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = d.Run(ctx)

	assert.True(t, store.completed[1])
	assert.Empty(t, store.inserted[1].Rows)
}

func TestDispatcher_EmptySelectorScenario(t *testing.T) {
	paths := pathmap.TitlePathMap{7: {"chapter": {"II": {}}}}
	jobs := []catalog.Job{{ID: 1, TitleNumber: 7, VersionDate: "2021-01-01"}}
	fetcher := &fakeFetcher{docs: map[string][]byte{
		key(7, "2021-01-01"): []byte(`<ROOT><DIV TYPE="CHAPTER" N="I">hi</DIV></ROOT>`),
	}}
	store := newFakeStore(jobs)
	d := newDispatcherForTest(t, store, fetcher, paths)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = d.Run(ctx)

	assert.True(t, store.completed[1])
	assert.Empty(t, store.inserted[1].Rows)
}
