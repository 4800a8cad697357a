// Package metrics exposes Prometheus collectors for protocol calls, tool
// invocations, waits and the HTTP surface.
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

// DefaultNamespace prefixes every metric name
const DefaultNamespace = "browser_bridge"

// Collector owns a private registry so several collectors can coexist in
// one process (tests do this).
type Collector struct {
	registry *prometheus.Registry

	// Protocol metrics
	cdpCalls        *prometheus.CounterVec
	cdpCallDuration *prometheus.HistogramVec
	cdpPending      prometheus.Gauge
	cdpDropped      *prometheus.CounterVec
	cdpEvents       *prometheus.CounterVec

	// Tool metrics
	toolCalls        *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec

	// Wait metrics
	waits        *prometheus.CounterVec
	waitDuration *prometheus.HistogramVec

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	connected prometheus.Gauge
}

// NewCollector creates a collector with its own registry, including the
// Go runtime and process collectors
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	c := &Collector{registry: reg}

	c.cdpCalls = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cdp_calls_total",
			Help:      "Total number of protocol calls by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	c.cdpCallDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cdp_call_duration_seconds",
			Help:      "Protocol call round-trip time in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"method"},
	)

	c.cdpPending = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cdp_pending_calls",
		Help:      "Calls waiting for a reply",
	})

	c.cdpDropped = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cdp_frames_dropped_total",
			Help:      "Inbound frames dropped by reason",
		},
		[]string{"reason"},
	)

	c.cdpEvents = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cdp_events_total",
			Help:      "Protocol events received by method",
		},
		[]string{"method"},
	)

	c.toolCalls = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and result kind",
		},
		[]string{"tool", "kind"},
	)

	c.toolCallDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool invocation duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"tool"},
	)

	c.waits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "waits_total",
			Help:      "Condition waits by condition and outcome",
		},
		[]string{"condition", "outcome"},
	)

	c.waitDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "wait_duration_seconds",
			Help:      "Condition wait duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"condition"},
	)

	c.httpRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	c.connected = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "browser_connected",
		Help:      "1 while a debugging connection is Ready",
	})

	return c
}

// ObserveCall implements cdp.Observer
func (c *Collector) ObserveCall(method, outcome string, d time.Duration) {
	c.cdpCalls.WithLabelValues(method, outcome).Inc()
	c.cdpCallDuration.WithLabelValues(method).Observe(d.Seconds())
}

// SetPending implements cdp.Observer
func (c *Collector) SetPending(n int) {
	c.cdpPending.Set(float64(n))
}

// FrameDropped implements cdp.Observer
func (c *Collector) FrameDropped(reason string) {
	c.cdpDropped.WithLabelValues(reason).Inc()
}

// EventReceived implements cdp.Observer
func (c *Collector) EventReceived(method string) {
	c.cdpEvents.WithLabelValues(method).Inc()
}

// ObserveWait implements automation.WaitObserver
func (c *Collector) ObserveWait(condition, outcome string, d time.Duration) {
	c.waits.WithLabelValues(condition, outcome).Inc()
	c.waitDuration.WithLabelValues(condition).Observe(d.Seconds())
}

// ObserveTool records one tool invocation. kind is "ok" on success, else
// the error kind.
func (c *Collector) ObserveTool(tool, kind string, d time.Duration) {
	c.toolCalls.WithLabelValues(tool, kind).Inc()
	c.toolCallDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// RecordHTTPRequest records one request served by the HTTP API
func (c *Collector) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// SetConnected records whether the bridge holds a Ready connection
func (c *Collector) SetConnected(connected bool) {
	if connected {
		c.connected.Set(1)
		return
	}
	c.connected.Set(0)
}

// Registry returns the collector's registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
