package enrich

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InFlight tracks lookups currently running across all batches
	InFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "userlink_enrich_inflight",
		Help: "Number of link lookups currently in flight",
	})

	// Outcomes counts record outcomes by status
	Outcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "userlink_enrich_outcomes_total",
		Help: "Total enrichment outcomes by status",
	}, []string{"status"})

	// BatchDuration observes how long one batch took
	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "userlink_enrich_batch_duration_seconds",
		Help:    "Enrichment batch duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})
)
