// Package metrics holds the Prometheus instrumentation for the rating
// service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all Prometheus metrics for the rater.
type Registry struct {
	reg *prometheus.Registry

	RatingDuration *prometheus.HistogramVec
	RatingsTotal   *prometheus.CounterVec
	RatingValue    *prometheus.HistogramVec

	ComponentFallbacks *prometheus.CounterVec
	AdvisoryOutcomes   *prometheus.CounterVec

	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	WSClients prometheus.Gauge
}

// NewRegistry creates and registers all rater metrics on a private registry.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		RatingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rater_rating_duration_seconds",
				Help:    "Duration of full rating cycles in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"token"},
		),

		RatingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rater_ratings_total",
				Help: "Total rating cycles computed by token",
			},
			[]string{"token"},
		),

		RatingValue: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rater_rating_value",
				Help:    "Distribution of emitted 1-10 ratings",
				Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
			},
			[]string{"token"},
		),

		ComponentFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rater_component_fallbacks_total",
				Help: "Component timeouts that degraded to the neutral fallback",
			},
			[]string{"component"},
		),

		AdvisoryOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rater_advisory_outcomes_total",
				Help: "Advisory consultations by outcome",
			},
			[]string{"outcome"},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rater_cache_hits_total",
				Help: "Rating cache hits by cache type",
			},
			[]string{"cache_type"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rater_cache_misses_total",
				Help: "Rating cache misses by cache type",
			},
			[]string{"cache_type"},
		),

		WSClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rater_ws_clients",
				Help: "Currently connected alert stream clients",
			},
		),
	}

	r.reg.MustRegister(
		r.RatingDuration,
		r.RatingsTotal,
		r.RatingValue,
		r.ComponentFallbacks,
		r.AdvisoryOutcomes,
		r.CacheHits,
		r.CacheMisses,
		r.WSClients,
	)
	return r
}

// Handler serves the /metrics scrape endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests and custom exporters.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// RatingComputed records one completed rating cycle.
func (r *Registry) RatingComputed(token string, rating float64, elapsed time.Duration) {
	r.RatingsTotal.WithLabelValues(token).Inc()
	r.RatingDuration.WithLabelValues(token).Observe(elapsed.Seconds())
	r.RatingValue.WithLabelValues(token).Observe(rating)
}

// ComponentFallback records one neutral-fallback degradation.
func (r *Registry) ComponentFallback(component string) {
	r.ComponentFallbacks.WithLabelValues(component).Inc()
}

// AdvisoryOutcome records whether an advisory consultation was blended in.
func (r *Registry) AdvisoryOutcome(blended bool) {
	outcome := "blended"
	if !blended {
		outcome = "failed"
	}
	r.AdvisoryOutcomes.WithLabelValues(outcome).Inc()
}

// CacheHit records one rating cache hit.
func (r *Registry) CacheHit() {
	r.CacheHits.WithLabelValues("rating").Inc()
}

// CacheMiss records one rating cache miss.
func (r *Registry) CacheMiss() {
	r.CacheMisses.WithLabelValues("rating").Inc()
}

// WSClientCount sets the connected alert stream subscriber gauge.
func (r *Registry) WSClientCount(n int) {
	r.WSClients.Set(float64(n))
}
