// Package metrics counts boundary-layer operations for Prometheus scraping.
// The collector keeps its own registry so embedding hosts that already run
// Prometheus never see duplicate-registration panics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector tracks per-operation call and failure counts plus bytes moved.
type Collector struct {
	registry *prometheus.Registry

	operations *prometheus.CounterVec
	failures   *prometheus.CounterVec
	bytesRead  prometheus.Counter
}

// NewCollector returns a ready collector with all metrics registered.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fsbridge",
			Name:      "operations_total",
			Help:      "Boundary operations by name.",
		}, []string{"op"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fsbridge",
			Name:      "operation_failures_total",
			Help:      "Failed boundary operations by name.",
		}, []string{"op"}),
		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fsbridge",
			Name:      "bytes_read_total",
			Help:      "Bytes returned to callers by read operations.",
		}),
	}
	c.registry.MustRegister(c.operations, c.failures, c.bytesRead)
	return c
}

// Operation records one call of the named operation.
func (c *Collector) Operation(op string) {
	c.operations.WithLabelValues(op).Inc()
}

// Failure records one failed call of the named operation.
func (c *Collector) Failure(op string) {
	c.failures.WithLabelValues(op).Inc()
}

// BytesRead records bytes handed back to a caller.
func (c *Collector) BytesRead(n int) {
	if n > 0 {
		c.bytesRead.Add(float64(n))
	}
}

// Handler exposes the collector's registry for scraping.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
