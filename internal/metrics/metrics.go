// Package metrics declares the Prometheus collectors of the agent events service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
)

var (
	// Ingestion metrics
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentevents_ingested_events_total",
			Help: "Total number of events decoded and published, by event type",
		},
		[]string{"type"},
	)

	IngestFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentevents_ingest_failures_total",
			Help: "Total number of rejected ingestion batches, by reason",
		},
		[]string{"reason"},
	)

	// Queue metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentevents_queue_published_total",
			Help: "Total number of events handed to the event queue",
		},
		[]string{"backend", "status"},
	)

	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentevents_queue_consumed_total",
			Help: "Total number of queued events persisted by consumers",
		},
		[]string{"status"},
	)

	// Query metrics
	Queries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentevents_queries_total",
			Help: "Total number of event queries, by outcome",
		},
		[]string{"outcome"},
	)

	QueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agentevents_query_duration_seconds",
			Help:    "Duration of event queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SelectedEvents = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agentevents_query_selected_events",
			Help:    "Number of events returned per query",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)
)

// Handler returns the HTTP handler exposing the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
