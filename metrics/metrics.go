package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blackwolf_events_ingested_total",
			Help: "Total number of threat events ingested",
		},
		[]string{"tenant"},
	)

	CorrelationMatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blackwolf_correlation_matches_total",
			Help: "Total number of correlation rule matches",
		},
		[]string{"rule_type"},
	)

	IncidentsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blackwolf_incidents_created_total",
			Help: "Total number of incidents created",
		},
		[]string{"severity", "origin"},
	)

	AlertsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blackwolf_alerts_dispatched_total",
			Help: "Total number of alert delivery attempts",
		},
		[]string{"channel", "status"},
	)

	IPsBlocked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blackwolf_ips_blocked_total",
			Help: "Total number of automatic IP blocks inserted",
		},
	)

	EnrichmentLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blackwolf_enrichment_lookups_total",
			Help: "Total number of IP reputation lookups",
		},
		[]string{"outcome"},
	)

	UploadProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "blackwolf_upload_processing_duration_seconds",
			Help:    "Time taken to process a sensor batch upload",
			Buckets: prometheus.DefBuckets,
		},
	)
)
