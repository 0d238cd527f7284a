// Package dispatcher implements the C7 Job Dispatcher: a pool of
// worker goroutines that claim PENDING jobs, run them through the
// fetch/extract/normalize pipeline, and record outcomes (spec.md
// §4.7/§5).
package dispatcher

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ecfr-wordfreq/internal/catalog"
	"ecfr-wordfreq/internal/metrics"
	"ecfr-wordfreq/internal/normalize"
	"ecfr-wordfreq/internal/pathmap"
	"ecfr-wordfreq/internal/xmlextract"
)

// Fetcher is the subset of ecfrclient.Client the dispatcher depends on.
type Fetcher interface {
	FetchFullTitle(ctx context.Context, titleNumber int, versionDate string) ([]byte, error)
}

// Store is the subset of catalog.Store the dispatcher depends on.
type Store interface {
	ClaimPendingJobs(ctx context.Context, batchSize int, lockID string, now time.Time) ([]catalog.Job, error)
	UpdateJobStatus(ctx context.Context, jobID int64, status catalog.JobStatus, errMsg string) error
	InsertWordCounts(ctx context.Context, rec catalog.WordCountRecord) error
	ReclaimExpiredLocks(ctx context.Context, ttl time.Duration, now time.Time) (int64, error)
}

// Dispatcher owns the worker pool and sweeper.
type Dispatcher struct {
	store       Store
	client      Fetcher
	paths       pathmap.TitlePathMap
	normalizer  *normalize.Normalizer
	transforms  *normalize.TransformStore
	workerCount int
	batchSize   int
	lockTTL     time.Duration
	log         *zap.Logger
}

// New builds a Dispatcher.
func New(store Store, client Fetcher, paths pathmap.TitlePathMap, normalizer *normalize.Normalizer, transforms *normalize.TransformStore, workerCount, batchSize int, lockTTL time.Duration, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store:       store,
		client:      client,
		paths:       paths,
		normalizer:  normalizer,
		transforms:  transforms,
		workerCount: workerCount,
		batchSize:   batchSize,
		lockTTL:     lockTTL,
		log:         log,
	}
}

// Run starts workerCount worker goroutines and a lock-reclamation
// sweeper, returning when ctx is cancelled. No single job's error
// escapes its worker loop (spec.md §7), and a failed claim query is
// logged and retried after 2s, so the workers and the sweeper always
// return nil and Run returns nil.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < d.workerCount; i++ {
		workerID := i
		g.Go(func() error { return d.workerLoop(ctx, workerID) })
	}
	g.Go(func() error { return d.sweepLoop(ctx) })

	return g.Wait()
}

func (d *Dispatcher) workerLoop(ctx context.Context, workerID int) error {
	log := d.log.With(zap.Int("worker", workerID))
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		start := time.Now()
		lockID := uuid.NewString()
		jobs, err := d.store.ClaimPendingJobs(ctx, d.batchSize, lockID, time.Now())
		metrics.ClaimRoundDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			log.Error("claim failed", zap.Error(err))
			if !sleepCtx(ctx, 2*time.Second) {
				return nil
			}
			continue
		}
		if len(jobs) == 0 {
			if !sleepCtx(ctx, 2*time.Second) {
				return nil
			}
			continue
		}
		metrics.JobsClaimed.Add(float64(len(jobs)))

		for _, job := range jobs {
			d.processJob(ctx, log, job)
			if !sleepCtx(ctx, 250*time.Millisecond) {
				return nil
			}
		}
	}
}

func (d *Dispatcher) processJob(ctx context.Context, log *zap.Logger, job catalog.Job) {
	jlog := log.With(zap.Int64("job_id", job.ID), zap.Int("title", job.TitleNumber), zap.String("version_date", job.VersionDate))

	defer func() {
		if p := recover(); p != nil {
			jlog.Error("job panicked", zap.Any("panic", p))
			metrics.JobsFailed.Inc()
			if uerr := d.store.UpdateJobStatus(ctx, job.ID, catalog.StatusFailed, fmt.Sprintf("panic: %v", p)); uerr != nil {
				jlog.Error("failed to record job failure", zap.Error(uerr))
			}
		}
	}()

	rec, err := d.runJob(ctx, job)
	if err != nil {
		jlog.Warn("job failed", zap.Error(err))
		metrics.JobsFailed.Inc()
		// No word counts have been written on this path, so the FAILED
		// status write is the only database change for the job.
		if uerr := d.store.UpdateJobStatus(ctx, job.ID, catalog.StatusFailed, err.Error()); uerr != nil {
			jlog.Error("failed to record job failure", zap.Error(uerr))
		}
		return
	}

	if len(rec.Rows) > 0 {
		if err := d.store.InsertWordCounts(ctx, rec); err != nil {
			jlog.Warn("insert word counts failed", zap.Error(err))
			metrics.JobsFailed.Inc()
			if uerr := d.store.UpdateJobStatus(ctx, job.ID, catalog.StatusFailed, err.Error()); uerr != nil {
				jlog.Error("failed to record job failure", zap.Error(uerr))
			}
			return
		}
	}

	if err := d.store.UpdateJobStatus(ctx, job.ID, catalog.StatusCompleted, ""); err != nil {
		jlog.Error("failed to record job completion", zap.Error(err))
		return
	}
	metrics.JobsCompleted.Inc()
}

// runJob performs the fetch/extract/normalize portion of a job without
// touching job status, so processJob can decide COMPLETED vs FAILED
// from a single call site.
func (d *Dispatcher) runJob(ctx context.Context, job catalog.Job) (catalog.WordCountRecord, error) {
	rec := catalog.WordCountRecord{TaskID: job.ID, TitleNumber: job.TitleNumber, VersionDate: job.VersionDate}

	selector, ok := d.paths[job.TitleNumber]
	if !ok {
		// Title absent from the path map: no-op completion, not a
		// failure (spec.md §4.7 — operator may broaden the interest
		// filter before rebuilding the path map).
		return rec, nil
	}

	xmlBytes, err := d.client.FetchFullTitle(ctx, job.TitleNumber, job.VersionDate)
	if err != nil {
		return rec, fmt.Errorf("fetch full title: %w", err)
	}
	if len(xmlBytes) == 0 {
		return rec, nil
	}

	extracted, err := xmlextract.Extract(bytes.NewReader(xmlBytes), xmlextract.Selector(selector))
	if err != nil {
		return rec, fmt.Errorf("extract: %w", err)
	}

	transformDelta := map[string][]string{}
	for typ, byCode := range extracted {
		for code, text := range byCode {
			if text == "" {
				continue
			}
			result := d.normalizer.Normalize(text)
			for stem, count := range result.Counts {
				rec.Rows = append(rec.Rows, catalog.WordCountRow{Type: typ, Code: code, Stem: stem, Count: count})
				metrics.WordsNormalized.Add(float64(count))
			}
			for stem, forms := range result.Transformations {
				transformDelta[stem] = append(transformDelta[stem], forms...)
			}
		}
	}

	if len(transformDelta) > 0 {
		if err := d.transforms.Merge(transformDelta); err != nil {
			return rec, fmt.Errorf("merge transformations: %w", err)
		}
	}

	return rec, nil
}

func (d *Dispatcher) sweepLoop(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := d.store.ReclaimExpiredLocks(ctx, d.lockTTL, time.Now())
			if err != nil {
				d.log.Error("sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				d.log.Info("reclaimed expired locks", zap.Int64("count", n))
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
