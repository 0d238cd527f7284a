// Package planner implements the C3 Job Planner: take the operator's
// interest filter (or every persisted title), enumerate versions newest
// first, and materialize idempotent pending jobs (spec.md §4.3).
package planner

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"ecfr-wordfreq/internal/catalog"
)

// Store is the subset of catalog.Store the planner depends on.
type Store interface {
	ListTitleNumbers(ctx context.Context) ([]int, error)
	ListVersionsForTitle(ctx context.Context, titleNumber int) ([]catalog.TitleVersion, error)
	CreatePendingJobIfAbsent(ctx context.Context, titleNumber int, versionDate string) error
}

// Plan walks every title in interestTitles (falling back to every
// persisted title when interestTitles is empty), enumerates its
// versions newest first, and enqueues a pending job for each. It is
// idempotent: calling it twice produces no duplicate jobs (spec.md
// Testable Property 2 / Scenario E).
func Plan(ctx context.Context, store Store, interestTitles []int, log *zap.Logger) (int, error) {
	titles := interestTitles
	if len(titles) == 0 {
		var err error
		titles, err = store.ListTitleNumbers(ctx)
		if err != nil {
			return 0, fmt.Errorf("planner: list titles: %w", err)
		}
	}

	created := 0
	for _, title := range titles {
		versions, err := store.ListVersionsForTitle(ctx, title)
		if err != nil {
			return created, fmt.Errorf("planner: list versions for title %d: %w", title, err)
		}
		for i, v := range versions {
			if err := store.CreatePendingJobIfAbsent(ctx, title, v.VersionDate); err != nil {
				return created, fmt.Errorf("planner: enqueue title %d version %s: %w", title, v.VersionDate, err)
			}
			created++
			// Each enqueue commits on its own; there is no multi-job
			// transaction. Progress is logged every 100 versions.
			if (i+1)%100 == 0 {
				log.Debug("planned batch", zap.Int("title", title), zap.Int("count", i+1))
			}
		}
		log.Info("planned title", zap.Int("title", title), zap.Int("versions", len(versions)))
	}
	return created, nil
}
