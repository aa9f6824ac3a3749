// Package metrics exposes Prometheus collectors for HTTP traffic and ledger
// operations.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/stock-ledger/stock"
)

// Collector owns its own registry so several can coexist in tests.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	ItemStock     *prometheus.GaugeVec
	ItemAllocated *prometheus.GaugeVec
	ReplayEntries prometheus.Histogram
}

var _ stock.Observer = (*Collector)(nil)

// New registers every collector under the given prefix.
func New(prefix string) *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	c.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	c.OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_ledger_operations_total",
			Help: "Ledger mutations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
	c.OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_ledger_operation_duration_seconds",
			Help:    "Duration of ledger mutations including lock wait",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	c.ItemStock = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: prefix + "_item_total_stock",
			Help: "Total stock per item after the last reconciliation",
		},
		[]string{"item_id"},
	)
	c.ItemAllocated = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: prefix + "_item_allocated_quantity",
			Help: "Allocated quantity per item after the last reconciliation",
		},
		[]string{"item_id"},
	)
	c.ReplayEntries = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    prefix + "_replay_entries",
			Help:    "Number of active entries replayed per reconciliation",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.HTTPRequestsTotal, c.HTTPRequestDuration,
		c.OperationsTotal, c.OperationDuration,
		c.ItemStock, c.ItemAllocated, c.ReplayEntries,
	)
	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry is exposed for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Middleware records request counts and latency by chi route pattern.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		code := strconv.Itoa(status)
		c.HTTPRequestsTotal.WithLabelValues(r.Method, path, code).Inc()
		c.HTTPRequestDuration.WithLabelValues(r.Method, path, code).Observe(time.Since(start).Seconds())
	})
}

// ObserveOperation implements stock.Observer.
func (c *Collector) ObserveOperation(op string, err error, elapsed time.Duration) {
	c.OperationsTotal.WithLabelValues(op, outcome(err)).Inc()
	c.OperationDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveReconcile implements stock.Observer. Soft-deleted items drop their
// per-item series, so the gauges only track the live catalog.
func (c *Collector) ObserveReconcile(itemID stock.ItemID, totals stock.Totals, entries int, deleted bool) {
	c.ReplayEntries.Observe(float64(entries))
	id := itemID.String()
	if deleted {
		c.ItemStock.DeleteLabelValues(id)
		c.ItemAllocated.DeleteLabelValues(id)
		return
	}
	c.ItemStock.WithLabelValues(id).Set(float64(totals.TotalStock))
	c.ItemAllocated.WithLabelValues(id).Set(float64(totals.AllocatedQuantity))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, stock.ErrLockTimeout):
		return "lock_timeout"
	case stock.IsNotFound(err):
		return "not_found"
	case stock.IsConflict(err):
		return "conflict"
	case stock.IsClientError(err):
		return "rejected"
	default:
		return "error"
	}
}
