// Package metrics exposes prometheus collectors for the conversion
// service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConversionsTotal is exported so tests can assert on per-outcome
	// increments.
	ConversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "texconv_conversions_total",
			Help: "Conversions processed, by target format and outcome.",
		},
		[]string{"format", "outcome"},
	)

	conversionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "texconv_conversion_duration_seconds",
			Help:    "Wall-clock duration of the conversion pipeline.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"format"},
	)
)

// ObserveConversion records one finished conversion. outcome is "success"
// or the failure kind.
func ObserveConversion(format, outcome string, elapsed time.Duration) {
	ConversionsTotal.WithLabelValues(format, outcome).Inc()
	conversionDuration.WithLabelValues(format).Observe(elapsed.Seconds())
}

// Handler serves the prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
