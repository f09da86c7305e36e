// Package metrics provides Prometheus metrics for the extraction pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Extraction outcomes.
const (
	OutcomeOK           = "ok"
	OutcomeEmpty        = "empty"
	OutcomeBackendError = "backend_error"
	OutcomePanic        = "panic"
	OutcomeSuperseded   = "superseded"
)

// Parsed line results.
const (
	LineAccepted = "accepted"
	LineDropped  = "dropped"
)

var (
	// ExtractionsTotal counts extraction runs.
	// Labels: owner (user, char), outcome
	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wardrobe",
			Name:      "extractions_total",
			Help:      "Total number of extraction runs by owner kind and outcome",
		},
		[]string{"owner", "outcome"},
	)

	// ExtractionDuration tracks how long a backend round trip plus parsing takes.
	ExtractionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "wardrobe",
			Name:      "extraction_duration_seconds",
			Help:      "Duration of extraction runs in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// ParsedLinesTotal counts response lines by parse result.
	// Labels: result (accepted, dropped)
	ParsedLinesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wardrobe",
			Name:      "parsed_lines_total",
			Help:      "Total number of generated response lines by parse result",
		},
		[]string{"result"},
	)

	// AppliesTotal counts confirmed applies.
	// Labels: owner (user, char)
	AppliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wardrobe",
			Name:      "applies_total",
			Help:      "Total number of applied outfit updates",
		},
		[]string{"owner"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
