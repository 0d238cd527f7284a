// Package metrics exposes the Prometheus counters and histogram the
// dispatcher updates during a run.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// JobsClaimed counts jobs moved PENDING -> PROCESSING.
	JobsClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ecfr_jobs_claimed_total",
		Help: "Total number of version-processing jobs claimed by any worker.",
	})
	// JobsCompleted counts jobs that reached COMPLETED.
	JobsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ecfr_jobs_completed_total",
		Help: "Total number of version-processing jobs that completed successfully.",
	})
	// JobsFailed counts jobs that reached FAILED.
	JobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ecfr_jobs_failed_total",
		Help: "Total number of version-processing jobs that failed.",
	})
	// ClaimRoundDuration measures how long a single claim-batch transaction takes.
	ClaimRoundDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ecfr_claim_round_duration_seconds",
		Help:    "Duration of a single FOR UPDATE SKIP LOCKED claim transaction.",
		Buckets: prometheus.DefBuckets,
	})
	// WordsNormalized counts tokens surviving the canonical normalizer.
	WordsNormalized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ecfr_words_normalized_total",
		Help: "Total number of tokens that survived the canonical text normalizer.",
	})
)

// Serve starts a blocking HTTP server exposing /metrics. Callers run it
// in its own goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	return srv.ListenAndServe()
}
