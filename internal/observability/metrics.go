// Package observability exposes Prometheus metrics for HTTP traffic, authentication and sync passes.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tyemirov/rideposter/internal/activitysync"
)

// Metrics holds the application's collectors on a private registry.
type Metrics struct {
	// RequestLatency tracks HTTP latency by route, method and status.
	RequestLatency *prometheus.HistogramVec
	// HTTPRequestsTotal counts HTTP requests by route, method and status.
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTPRequestsInFlight is the number of requests being served.
	HTTPRequestsInFlight prometheus.Gauge
	// AuthEvents counts authentication events such as login success.
	AuthEvents *prometheus.CounterVec
	// TokenRefreshes counts Strava token refreshes by outcome.
	TokenRefreshes *prometheus.CounterVec
	// SyncPasses counts sync passes by outcome.
	SyncPasses *prometheus.CounterVec
	// SyncActivities counts activities seen by sync passes by stage.
	SyncActivities *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers every collector under the namespace.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	metrics := &Metrics{
		registry: registry,
		RequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_latency_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		AuthEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_events_total",
				Help:      "Total number of authentication events",
			},
			[]string{"event"},
		),
		TokenRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "strava_token_refreshes_total",
				Help:      "Total number of Strava token refresh attempts",
			},
			[]string{"outcome"},
		),
		SyncPasses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_passes_total",
				Help:      "Total number of activity sync passes",
			},
			[]string{"outcome"},
		),
		SyncActivities: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_activities_total",
				Help:      "Activities seen by sync passes",
			},
			[]string{"stage"},
		),
	}
	registry.MustRegister(
		metrics.RequestLatency,
		metrics.HTTPRequestsTotal,
		metrics.HTTPRequestsInFlight,
		metrics.AuthEvents,
		metrics.TokenRefreshes,
		metrics.SyncPasses,
		metrics.SyncActivities,
	)
	return metrics
}

// Handler serves the registry in the Prometheus exposition format.
func (metrics *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(metrics.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (metrics *Metrics) Registry() *prometheus.Registry {
	return metrics.registry
}

// Increment records an authentication event.
func (metrics *Metrics) Increment(event string) {
	metrics.AuthEvents.WithLabelValues(event).Inc()
}

// RecordRefresh records a Strava token refresh outcome.
func (metrics *Metrics) RecordRefresh(outcome string) {
	metrics.TokenRefreshes.WithLabelValues(outcome).Inc()
}

// RecordSync records a finished sync pass and its activity counts.
func (metrics *Metrics) RecordSync(outcome string, result activitysync.Result) {
	metrics.SyncPasses.WithLabelValues(outcome).Inc()
	metrics.SyncActivities.WithLabelValues("fetched").Add(float64(result.Fetched))
	metrics.SyncActivities.WithLabelValues("dropped").Add(float64(result.Dropped))
	metrics.SyncActivities.WithLabelValues("valid").Add(float64(result.Valid))
	metrics.SyncActivities.WithLabelValues("persisted").Add(float64(result.Persisted))
	metrics.SyncActivities.WithLabelValues("upsert_failed").Add(float64(result.Valid - result.Persisted))
}

// RecordHTTPRequest records one served request.
func (metrics *Metrics) RecordHTTPRequest(endpoint string, method string, status string, durationSeconds float64) {
	metrics.RequestLatency.WithLabelValues(endpoint, method, status).Observe(durationSeconds)
	metrics.HTTPRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}
