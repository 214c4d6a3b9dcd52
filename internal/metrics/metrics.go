// Package metrics provides Prometheus metrics for the county health service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "county_health"

// Lookup outcomes recorded by ObserveLookup.
const (
	OutcomeFound    = "found"
	OutcomeNotFound = "not_found"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Manager owns the collectors of one service instance.  Every Manager uses
// its own registry so tests can create as many as they like.
type Manager struct {
	registry *prometheus.Registry

	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	lookups           *prometheus.CounterVec
	cacheResults      *prometheus.CounterVec
	cacheInvalidation prometheus.Counter
	rateLimited       prometheus.Counter
}

// New creates a Manager with a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Manager {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	auto := promauto.With(reg)

	return &Manager{
		registry: reg,
		httpRequests: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		lookups: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "county_data_lookups_total",
			Help:      "county_data requests by outcome",
		}, []string{"outcome"}),
		cacheResults: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_cache_total",
			Help:      "Response cache lookups by result",
		}, []string{"result"}),
		cacheInvalidation: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_cache_invalidations_total",
			Help:      "Number of times the response cache was flushed after an ingest",
		}),
		rateLimited: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "Requests rejected by the rate limiter",
		}),
	}
}

// ObserveHTTP records one served request.
func (m *Manager) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveLookup counts a county_data request by outcome.
func (m *Manager) ObserveLookup(outcome string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(outcome).Inc()
}

// ObserveCache counts a cache hit or miss.
func (m *Manager) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheResults.WithLabelValues(result).Inc()
}

func (m *Manager) ObserveInvalidation() {
	if m == nil {
		return
	}
	m.cacheInvalidation.Inc()
}

func (m *Manager) ObserveRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Manager) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
