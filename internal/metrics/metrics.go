// Package metrics defines the Prometheus collectors shared across the
// pipeline. Collectors are registered on the default registry; the serve
// subcommand exposes them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchRequests counts outbound HTTP requests by method.
	FetchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "m3uforge",
		Name:      "fetch_requests_total",
		Help:      "Outbound HTTP requests issued by the fetcher.",
	}, []string{"method"})

	// FetchFailures counts fetch-level failures (network error, timeout, non-2xx).
	FetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "m3uforge",
		Name:      "fetch_failures_total",
		Help:      "Fetches that ended in a network error, timeout, or non-2xx status.",
	})

	// Probes counts validator probes by result (valid / invalid).
	Probes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "m3uforge",
		Name:      "probes_total",
		Help:      "Stream validation probes by outcome.",
	}, []string{"result"})

	// ProbeCacheHits counts validate() calls answered from the run cache.
	ProbeCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "m3uforge",
		Name:      "probe_cache_hits_total",
		Help:      "Validator calls served from the per-run memoization cache.",
	})

	// SourceEntries counts candidate entries produced per source.
	SourceEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "m3uforge",
		Name:      "source_entries_total",
		Help:      "Candidate entries produced by each source parser.",
	}, []string{"source"})

	// RunDuration observes total pipeline run time in seconds.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "m3uforge",
		Name:      "run_duration_seconds",
		Help:      "Wall time of a full discovery-to-render pipeline run.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})

	// PlaylistEntries records how many entries survived assembly in the last run.
	PlaylistEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "m3uforge",
		Name:      "playlist_entries",
		Help:      "Entries in the most recently rendered playlist.",
	})
)
