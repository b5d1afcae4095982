// Package metrics holds the Prometheus collectors for discovery runs and
// the upstream services they call.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DiscoveryRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizfinder_discovery_runs_total",
			Help: "Discovery runs by final outcome",
		},
		[]string{"outcome"},
	)

	DiscoveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bizfinder_discovery_duration_seconds",
			Help:    "Wall time of a discovery run",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
		},
	)

	GeocodeLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizfinder_geocode_lookups_total",
			Help: "Geocoder lookups by result",
		},
		[]string{"result"},
	)

	OverpassAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizfinder_overpass_attempts_total",
			Help: "Overpass query attempts by status",
		},
		[]string{"status"},
	)

	WebsiteLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizfinder_website_lookups_total",
			Help: "Website searches by outcome",
		},
		[]string{"outcome"},
	)

	WebsiteLookupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bizfinder_website_lookup_duration_seconds",
			Help:    "Duration of website searches",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
	)
)

// Outcome labels shared by the counters above.
const (
	OutcomeMatch    = "match"
	OutcomeFallback = "fallback"
	OutcomeNone     = "none"
	OutcomeError    = "error"
)

// ObserveWebsiteLookup records a website search that started at start.
func ObserveWebsiteLookup(outcome string, start time.Time) {
	WebsiteLookupsTotal.WithLabelValues(outcome).Inc()
	WebsiteLookupDuration.Observe(time.Since(start).Seconds())
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
