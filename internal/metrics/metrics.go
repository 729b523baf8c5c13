// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestionOutcomes counts inbound messages by terminal ingestion
	// status.
	IngestionOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dendrite_ingestion_outcomes_total",
		Help: "Inbound Slack messages by terminal ingestion status.",
	}, []string{"status"})

	// CommitsTotal counts successful ledger appends.
	CommitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dendrite_commits_total",
		Help: "Successful graph commits appended to the ledger.",
	})

	// ConflictsTotal counts detected conflicts by type.
	ConflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dendrite_conflicts_total",
		Help: "Post-commit conflicts by conflict type.",
	}, []string{"type"})

	// PermalinkFallbacks counts permalink lookups that degraded to the
	// locally constructed URL.
	PermalinkFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dendrite_permalink_fallbacks_total",
		Help: "Permalink resolutions that fell back to the deterministic local URL.",
	})
)
