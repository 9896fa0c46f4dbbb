// Package observability provides Prometheus metrics for the trading engine.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Scheduler metrics
	CyclesTotal      *prometheus.CounterVec
	CycleDuration    prometheus.Histogram
	SymbolsProcessed *prometheus.CounterVec
	Reconnects       *prometheus.CounterVec

	// Broker metrics
	BrokerCalls       *prometheus.CounterVec
	BrokerCallLatency *prometheus.HistogramVec

	// Order metrics
	OrderTransitions *prometheus.CounterVec
	SubmitRetries    prometheus.Counter
	OpenOrders       prometheus.Gauge

	// Health metrics
	LastCycleUnix prometheus.Gauge
}

// NewMetrics creates a Metrics instance on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "smcbot"
	}
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		CyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "cycles_total",
			Help:      "Total number of scheduler cycles by result",
		}, []string{"result"}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a full scheduler cycle",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		SymbolsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "symbols_total",
			Help:      "Symbols handled per cycle by result",
		}, []string{"result"}),
		Reconnects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "reconnects_total",
			Help:      "Broker reconnection attempts by result",
		}, []string{"result"}),

		BrokerCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "calls_total",
			Help:      "Broker calls by operation and result",
		}, []string{"op", "result"}),
		BrokerCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "call_latency_seconds",
			Help:      "Broker call latency by operation",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"op"}),

		OrderTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "transitions_total",
			Help:      "Order state transitions by target state",
		}, []string{"state"}),
		SubmitRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "submit_retries_total",
			Help:      "Submission retries after transient broker errors",
		}),
		OpenOrders: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "active",
			Help:      "Orders currently tracked as active",
		}),

		LastCycleUnix: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix time of the last completed cycle",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordCycle records a finished cycle.
func (m *Metrics) RecordCycle(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(result).Inc()
	m.CycleDuration.Observe(d.Seconds())
	m.LastCycleUnix.Set(float64(time.Now().Unix()))
}

// RecordSymbol records the result of one symbol pipeline.
func (m *Metrics) RecordSymbol(result string) {
	if m == nil {
		return
	}
	m.SymbolsProcessed.WithLabelValues(result).Inc()
}

// RecordReconnect records a reconnection attempt outcome.
func (m *Metrics) RecordReconnect(ok bool) {
	if m == nil {
		return
	}
	m.Reconnects.WithLabelValues(resultLabel(ok)).Inc()
}

// RecordBrokerCall records one broker call.
func (m *Metrics) RecordBrokerCall(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.BrokerCalls.WithLabelValues(op, resultLabel(err == nil)).Inc()
	m.BrokerCallLatency.WithLabelValues(op).Observe(d.Seconds())
}

// RecordTransition records an order entering state.
func (m *Metrics) RecordTransition(state string) {
	if m == nil {
		return
	}
	m.OrderTransitions.WithLabelValues(state).Inc()
}

// RecordSubmitRetry records one submission retry.
func (m *Metrics) RecordSubmitRetry() {
	if m == nil {
		return
	}
	m.SubmitRetries.Inc()
}

// SetActiveOrders sets the active order gauge.
func (m *Metrics) SetActiveOrders(n int) {
	if m == nil {
		return
	}
	m.OpenOrders.Set(float64(n))
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
