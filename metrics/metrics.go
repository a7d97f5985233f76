// Package metrics exposes runbox execution and gateway metrics in the
// Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/isdmx/runbox/sandbox"
)

const namespace = "runbox"

// Collector holds all Prometheus metrics for runbox on a custom registry.
// It implements sandbox.Recorder.
type Collector struct {
	Registry *prometheus.Registry

	ExecutionsTotal     *prometheus.CounterVec
	ExecutionFailures   *prometheus.CounterVec
	ExecutionDuration   *prometheus.HistogramVec
	OutputTruncations   *prometheus.CounterVec
	ActiveExecutions    prometheus.Gauge
	ContainerIsolation  prometheus.Gauge
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	RateLimitedTotal    *prometheus.CounterVec
}

var _ sandbox.Recorder = (*Collector)(nil)

// NewCollector creates a Collector with every metric registered, plus the
// Go runtime and process collectors.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,

		ExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sandbox",
			Name:      "executions_total",
			Help:      "Total classified executions.",
		}, []string{"language", "isolation", "status"}),

		ExecutionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sandbox",
			Name:      "infrastructure_failures_total",
			Help:      "Executions that failed before a program outcome could be classified.",
		}, []string{"language"}),

		ExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sandbox",
			Name:      "execution_duration_seconds",
			Help:      "Wall-clock execution time in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"language", "isolation"}),

		OutputTruncations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sandbox",
			Name:      "output_truncations_total",
			Help:      "Executions whose captured output hit the cap.",
		}, []string{"language", "stream"}),

		ActiveExecutions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sandbox",
			Name:      "active_executions",
			Help:      "Number of executions currently in flight.",
		}),

		ContainerIsolation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sandbox",
			Name:      "container_isolation",
			Help:      "1 when executions run in containers, 0 when they run on the host.",
		}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "route", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		RateLimitedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by admission control.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		c.ExecutionsTotal,
		c.ExecutionFailures,
		c.ExecutionDuration,
		c.OutputTruncations,
		c.ActiveExecutions,
		c.ContainerIsolation,
		c.HTTPRequestsTotal,
		c.HTTPRequestDuration,
		c.RateLimitedTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

func (c *Collector) ExecutionStarted(string) {
	c.ActiveExecutions.Inc()
}

func (c *Collector) ExecutionFinished(language, isolation string, status sandbox.Status, elapsed time.Duration) {
	c.ActiveExecutions.Dec()
	c.ExecutionsTotal.WithLabelValues(language, isolation, string(status)).Inc()
	c.ExecutionDuration.WithLabelValues(language, isolation).Observe(elapsed.Seconds())
}

func (c *Collector) ExecutionFailed(language string) {
	c.ActiveExecutions.Dec()
	c.ExecutionFailures.WithLabelValues(language).Inc()
}

func (c *Collector) OutputTruncated(language, stream string) {
	c.OutputTruncations.WithLabelValues(language, stream).Inc()
}

// SetIsolation records the process-wide isolation decision.
func (c *Collector) SetIsolation(d sandbox.Decision) {
	if d.ContainerRuntimeAvailable {
		c.ContainerIsolation.Set(1)
		return
	}
	c.ContainerIsolation.Set(0)
}

// ObserveRequest records one completed HTTP request.
func (c *Collector) ObserveRequest(method, route string, statusCode int, elapsed time.Duration) {
	c.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	c.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RateLimited records a rejected request.
func (c *Collector) RateLimited(reason string) {
	c.RateLimitedTotal.WithLabelValues(reason).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{Registry: c.Registry})
}
