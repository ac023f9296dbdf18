// Package telemetry holds Prometheus metrics and OpenTelemetry tracing setup.
package telemetry

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"glowlogy/cmd/internal/cache"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the process metric set. A nil *Metrics is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	cacheLookups      *prometheus.CounterVec
	cacheInvalidated  *prometheus.CounterVec
	cacheDurableFails *prometheus.CounterVec

	dedupeShared *prometheus.CounterVec
	batchFlushes *prometheus.CounterVec
	batchSize    *prometheus.HistogramVec

	rateLimited *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpActive   prometheus.Gauge
	wsClients    prometheus.Gauge
}

// NewMetrics registers the metric set on a private registry, together with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "glowlogy_cache_lookups_total",
			Help: "Cache lookups by namespace and serving tier (memory, storage, miss).",
		}, []string{"namespace", "source"}),
		cacheInvalidated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "glowlogy_cache_invalidations_total",
			Help: "Namespace invalidations.",
		}, []string{"namespace"}),
		cacheDurableFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "glowlogy_cache_durable_write_failures_total",
			Help: "Durable tier writes that left the entry volatile-only.",
		}, []string{"namespace"}),
		dedupeShared: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "glowlogy_coord_dedupe_shared_total",
			Help: "Calls that joined an in-flight fetch instead of starting one.",
		}, []string{"namespace"}),
		batchFlushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "glowlogy_coord_batch_flushes_total",
			Help: "Combined by-id fetches.",
		}, []string{"collection"}),
		batchSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "glowlogy_coord_batch_ids",
			Help:    "Distinct ids per combined fetch.",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
		}, []string{"collection"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "glowlogy_rate_limited_total",
			Help: "Actions rejected by a rate-limit policy.",
		}, []string{"policy"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "glowlogy_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "glowlogy_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		httpActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "glowlogy_http_active_requests",
			Help: "Requests currently being served.",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "glowlogy_ws_clients",
			Help: "Connected invalidation feed clients.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.cacheLookups, m.cacheInvalidated, m.cacheDurableFails,
		m.dedupeShared, m.batchFlushes, m.batchSize,
		m.rateLimited,
		m.httpRequests, m.httpDuration, m.httpActive, m.wsClients,
	)
	return m
}

// Registry exposes the underlying registry (tests gather from it).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) CacheLookup(ns string, src cache.Source) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(ns, string(src)).Inc()
}

func (m *Metrics) CacheInvalidated(ns string) {
	if m == nil {
		return
	}
	m.cacheInvalidated.WithLabelValues(ns).Inc()
}

func (m *Metrics) CacheDurableWriteFailed(ns string) {
	if m == nil {
		return
	}
	m.cacheDurableFails.WithLabelValues(ns).Inc()
}

func (m *Metrics) DedupeShared(key string) {
	if m == nil {
		return
	}
	// Keys may embed identities; only the namespace part is a label.
	ns, _, _ := strings.Cut(key, ":")
	m.dedupeShared.WithLabelValues(ns).Inc()
}

func (m *Metrics) BatchFlushed(collection string, ids int) {
	if m == nil {
		return
	}
	m.batchFlushes.WithLabelValues(collection).Inc()
	m.batchSize.WithLabelValues(collection).Observe(float64(ids))
}

// RateLimited counts a rejection under policy.
func (m *Metrics) RateLimited(policy string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(policy).Inc()
}

// WSClients adjusts the connected feed client gauge by delta.
func (m *Metrics) WSClients(delta int) {
	if m == nil {
		return
	}
	m.wsClients.Add(float64(delta))
}

// ObserveHTTP records one finished request. route should be the mux pattern,
// not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// TrackActive increments the in-flight gauge and returns the matching decrement.
func (m *Metrics) TrackActive() func() {
	if m == nil {
		return func() {}
	}
	m.httpActive.Inc()
	return m.httpActive.Dec
}
