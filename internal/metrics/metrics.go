// Package metrics exposes Prometheus collectors for invoice aggregation,
// payment status changes, the invoice cache and the HTTP layer.
//
// Every method is safe to call on a nil *Collectors so components can run
// without metrics in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "faturas"

// Collectors groups every metric the service records.
type Collectors struct {
	registry *prometheus.Registry

	aggregationDuration prometheus.Histogram
	aggregatedItems     prometheus.Histogram
	aggregationFailures prometheus.Counter
	skippedRecords      prometheus.Counter
	statusUpdates       *prometheus.CounterVec
	bulkUpdates         prometheus.Histogram
	cacheLookups        *prometheus.CounterVec
	eventPublishes      *prometheus.CounterVec
	activeSessions      prometheus.Gauge
	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
}

// New creates the collectors on a dedicated registry that also carries the
// Go runtime and process collectors.
func New() *Collectors {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	c := &Collectors{
		registry: reg,
		aggregationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invoice_aggregation_seconds",
			Help:      "Time spent building a monthly invoice.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		aggregatedItems: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invoice_items",
			Help:      "Number of line items in a built invoice.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		aggregationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_aggregation_failures_total",
			Help:      "Aggregations that failed and fell back to an empty invoice.",
		}),
		skippedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_skipped_records_total",
			Help:      "Malformed records left out of an invoice.",
		}),
		statusUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_updates_total",
			Help:      "Payment status changes by item type and new status.",
		}, []string{"type", "status"}),
		bulkUpdates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bulk_paid_items",
			Help:      "Items updated by a single mark-all-paid batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_cache_lookups_total",
			Help:      "Invoice cache lookups by result.",
		}, []string{"result"}),
		eventPublishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publishes_total",
			Help:      "Payment events published to the message broker by outcome.",
		}, []string{"outcome"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Signed-in users with a live application state.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.aggregationDuration,
		c.aggregatedItems,
		c.aggregationFailures,
		c.skippedRecords,
		c.statusUpdates,
		c.bulkUpdates,
		c.cacheLookups,
		c.eventPublishes,
		c.activeSessions,
		c.httpRequests,
		c.httpDuration,
	)
	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collectors) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collectors) ObserveAggregation(d time.Duration, items, skipped int) {
	if c == nil {
		return
	}
	c.aggregationDuration.Observe(d.Seconds())
	c.aggregatedItems.Observe(float64(items))
	if skipped > 0 {
		c.skippedRecords.Add(float64(skipped))
	}
}

func (c *Collectors) RecordAggregationFailure() {
	if c == nil {
		return
	}
	c.aggregationFailures.Inc()
}

func (c *Collectors) RecordStatusUpdate(itemType, status string) {
	if c == nil {
		return
	}
	c.statusUpdates.WithLabelValues(itemType, status).Inc()
}

func (c *Collectors) RecordBulkUpdate(items int) {
	if c == nil {
		return
	}
	c.bulkUpdates.Observe(float64(items))
}

func (c *Collectors) RecordCacheLookup(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

func (c *Collectors) RecordEventPublish(err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.eventPublishes.WithLabelValues(outcome).Inc()
}

func (c *Collectors) SetActiveSessions(n int) {
	if c == nil {
		return
	}
	c.activeSessions.Set(float64(n))
}

func (c *Collectors) ObserveHTTP(method, route string, code int, d time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
