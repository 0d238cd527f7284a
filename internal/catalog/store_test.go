package catalog

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// newTestStore opens a Store against CATALOG_TEST_DSN, skipping the
// test when unset. Unlike the teacher's sqlite-backed store tests,
// the claim protocol under test (FOR UPDATE SKIP LOCKED) has no
// in-process equivalent, so these tests require a real Postgres
// instance rather than running unconditionally.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("CATALOG_TEST_DSN")
	if dsn == "" {
		t.Skip("CATALOG_TEST_DSN not set; skipping catalog integration test")
	}
	ctx := context.Background()
	st, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

func TestClaimPendingJobs_Uniqueness(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		require.NoError(t, st.CreatePendingJobIfAbsent(ctx, 7, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i).Format("2006-01-02")))
	}

	seen := map[int64]bool{}
	locks := map[string]bool{}
	for w := 0; w < 5; w++ {
		lockID := uuid.NewString()
		jobs, err := st.ClaimPendingJobs(ctx, 10, lockID, time.Now())
		require.NoError(t, err)
		locks[lockID] = true
		for _, j := range jobs {
			require.False(t, seen[j.ID], "job %d claimed twice", j.ID)
			seen[j.ID] = true
			require.Equal(t, 1, j.AttemptCount)
		}
	}
	require.Len(t, seen, 50)
	require.Len(t, locks, 5)
}

func TestCreatePendingJobIfAbsent_Idempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreatePendingJobIfAbsent(ctx, 50, "2021-06-01"))
	require.NoError(t, st.CreatePendingJobIfAbsent(ctx, 50, "2021-06-01"))

	jobs, err := st.ClaimPendingJobs(ctx, 10, uuid.NewString(), time.Now())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
}

func TestReclaimExpiredLocks(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreatePendingJobIfAbsent(ctx, 12, "2019-03-04"))
	jobs, err := st.ClaimPendingJobs(ctx, 1, uuid.NewString(), time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	n, err := st.ReclaimExpiredLocks(ctx, time.Hour, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}
