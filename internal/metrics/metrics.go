/*

This file defines the Prometheus collectors exported on /metrics. Collectors are registered
on a private registry so tests and multiple instances never collide with the default one.

*/

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const NAMESPACE = "lvm"

// Cycle kinds used as label values.
const (
	CYCLE_OPERATION = "operation"
	CYCLE_EMERGENCY = "emergency"
)

// Cycle outcomes used as label values.
const (
	OUTCOME_COMPLETED = "completed"
	OUTCOME_FAILED    = "failed"
	OUTCOME_SKIPPED   = "skipped"
)

// Metrics groups every collector the monitor updates.
type Metrics struct {
	registry *prometheus.Registry

	Cycles        *prometheus.CounterVec
	CycleDuration *prometheus.HistogramVec
	HealthFactor  *prometheus.GaugeVec
	RiskScore     prometheus.Gauge
	Decisions     *prometheus.CounterVec
	Tasks         *prometheus.CounterVec
	VaultDeficit  prometheus.Gauge
}

// New creates the collectors and registers them, with the Go and process collectors, on a
// fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "cycles_total",
			Help:      "Cycles by kind and outcome.",
		}, []string{"kind", "outcome"}),
		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: NAMESPACE,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of completed cycles.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"kind"}),
		HealthFactor: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Name:      "health_factor",
			Help:      "Last observed health factor by source (cheap or detailed).",
		}, []string{"source"}),
		RiskScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Name:      "risk_score",
			Help:      "Last overall risk score (0-100, higher is safer).",
		}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "decisions_total",
			Help:      "Decisions by action and source after risk override.",
		}, []string{"action", "source"}),
		Tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "tasks_total",
			Help:      "Task submissions by type and result.",
		}, []string{"type", "result"}),
		VaultDeficit: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Name:      "vault_liquidity_deficit_kaia",
			Help:      "Liquidity missing to cover pending withdrawals, 0 when covered.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Cycles,
		m.CycleDuration,
		m.HealthFactor,
		m.RiskScore,
		m.Decisions,
		m.Tasks,
		m.VaultDeficit,
	)
	return m
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCycle records a finished or skipped cycle.
func (m *Metrics) ObserveCycle(kind, outcome string, took time.Duration) {
	m.Cycles.WithLabelValues(kind, outcome).Inc()
	if outcome != OUTCOME_SKIPPED {
		m.CycleDuration.WithLabelValues(kind).Observe(took.Seconds())
	}
}

// ObserveTask records a task submission result.
func (m *Metrics) ObserveTask(taskType string, err error) {
	result := "submitted"
	if err != nil {
		result = "failed"
	}
	m.Tasks.WithLabelValues(taskType, result).Inc()
}
