package ingestion

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Status label values for the drain and commit counters.
const (
	statusSuccess      = "success"
	statusFailure      = "failure"
	statusPartial      = "partial"
	statusEvictFailure = "evict_failure"
)

var (
	recordsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "logtier",
		Subsystem: "pipeline",
		Name:      "records_ingested_total",
		Help:      "Records admitted to a local batch.",
	})

	drainsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logtier",
		Subsystem: "pipeline",
		Name:      "drains_total",
		Help:      "Local batch drains to the staging cache by status.",
	}, []string{"status"})

	commitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logtier",
		Subsystem: "pipeline",
		Name:      "commits_total",
		Help:      "Staging cache commits to the cold store by status.",
	}, []string{"status"})

	rowsCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "logtier",
		Subsystem: "pipeline",
		Name:      "rows_committed_total",
		Help:      "Rows accepted by the cold store.",
	})

	entriesEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "logtier",
		Subsystem: "pipeline",
		Name:      "entries_evicted_total",
		Help:      "Staged entries evicted after a successful commit.",
	})
)
