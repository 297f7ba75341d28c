// Package metrics exposes Prometheus collectors for the sync queue, the note
// cache and the HTTP layer.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so several instances can coexist in
// tests.
type Collector struct {
	registry *prometheus.Registry

	QueuePending prometheus.Gauge
	SyncOps      *prometheus.CounterVec
	SyncDuration *prometheus.HistogramVec

	CacheHits     prometheus.Counter
	CacheRebuilds prometheus.Counter
	CacheNotes    prometheus.Gauge
	CacheRebuild  prometheus.Histogram

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewCollector creates and registers every collector under namespace.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		QueuePending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_queue_depth",
			Help:      "Operations waiting in the sync queue.",
		}),
		SyncOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_operations_total",
			Help:      "Finished sync operations by kind and result.",
		}, []string{"kind", "result"}),
		SyncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_operation_duration_seconds",
			Help:      "Sync operation duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),

		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "note_cache_hits_total",
			Help:      "Reads served from the note snapshot.",
		}),
		CacheRebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "note_cache_rebuilds_total",
			Help:      "Full rescans of the notes root.",
		}),
		CacheNotes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notes",
			Help:      "Notes in the latest snapshot.",
		}),
		CacheRebuild: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "note_cache_rebuild_duration_seconds",
			Help:      "Time spent rescanning the notes root.",
			Buckets:   prometheus.DefBuckets,
		}),

		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	c.registry.MustRegister(
		c.QueuePending, c.SyncOps, c.SyncDuration,
		c.CacheHits, c.CacheRebuilds, c.CacheNotes, c.CacheRebuild,
		c.HTTPRequests, c.HTTPDuration,
	)
	return c
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// OperationQueued implements syncqueue.Observer.
func (c *Collector) OperationQueued(string, int) {}

// OperationStarted implements syncqueue.Observer.
func (c *Collector) OperationStarted(string) {}

// QueueDepth implements syncqueue.DepthObserver.
func (c *Collector) QueueDepth(pending int) {
	c.QueuePending.Set(float64(pending))
}

// OperationFinished implements syncqueue.Observer.
func (c *Collector) OperationFinished(name string, elapsed time.Duration, err error) {
	kind := Kind(name)
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.SyncOps.WithLabelValues(kind, result).Inc()
	c.SyncDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// CacheHit implements notes.CacheObserver.
func (c *Collector) CacheHit() { c.CacheHits.Inc() }

// CacheRebuilt implements notes.CacheObserver.
func (c *Collector) CacheRebuilt(notes int, elapsed time.Duration) {
	c.CacheRebuilds.Inc()
	c.CacheNotes.Set(float64(notes))
	c.CacheRebuild.Observe(elapsed.Seconds())
}

// Kind strips the per-path suffix from an operation name so label
// cardinality stays bounded: "commit-and-push new/x.md" → "commit-and-push".
func Kind(name string) string {
	kind, _, _ := strings.Cut(name, " ")
	return kind
}

// Middleware records request counts and latencies by chi route pattern.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		c.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
