package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MatchingMetrics is what the engine and reconciler report into.
type MatchingMetrics interface {
	MatchFormed(reusedRoom bool)
	MatchDissolved(reason string)
	LockContention()
	TicketsSwept(count int)
	ReconcileAnomaly(kind string)
	SetQueueDepth(depth int)
}

// NewMetrics registers the matching metrics on the given registry.
func NewMetrics(registry *prometheus.Registry) MatchingMetrics {
	m := &prometheusMetrics{
		matchesFormed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roulette_matches_formed_total",
			Help: "Matches committed, by whether an existing room was reused",
		}, []string{"room"}),
		matchesDissolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roulette_matches_dissolved_total",
			Help: "Matches dissolved, by reason",
		}, []string{"reason"}),
		lockContention: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roulette_pair_lock_contention_total",
			Help: "Candidate scans that moved on because another instance held the pair lock",
		}),
		ticketsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roulette_tickets_swept_total",
			Help: "Stale tickets removed by lazy sweeps",
		}),
		reconcileAnomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roulette_reconcile_anomalies_total",
			Help: "Drift anomalies detected and healed by reconciliation, by kind",
		}, []string{"kind"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roulette_queue_depth",
			Help: "Tickets currently in the waiting pool",
		}),
	}
	registry.MustRegister(
		m.matchesFormed,
		m.matchesDissolved,
		m.lockContention,
		m.ticketsSwept,
		m.reconcileAnomalies,
		m.queueDepth,
	)
	return m
}

type prometheusMetrics struct {
	matchesFormed      *prometheus.CounterVec
	matchesDissolved   *prometheus.CounterVec
	lockContention     prometheus.Counter
	ticketsSwept       prometheus.Counter
	reconcileAnomalies *prometheus.CounterVec
	queueDepth         prometheus.Gauge
}

func (m *prometheusMetrics) MatchFormed(reusedRoom bool) {
	label := "fresh"
	if reusedRoom {
		label = "reused"
	}
	m.matchesFormed.WithLabelValues(label).Inc()
}

func (m *prometheusMetrics) MatchDissolved(reason string) {
	m.matchesDissolved.WithLabelValues(reason).Inc()
}

func (m *prometheusMetrics) LockContention() {
	m.lockContention.Inc()
}

func (m *prometheusMetrics) TicketsSwept(count int) {
	m.ticketsSwept.Add(float64(count))
}

func (m *prometheusMetrics) ReconcileAnomaly(kind string) {
	m.reconcileAnomalies.WithLabelValues(kind).Inc()
}

func (m *prometheusMetrics) SetQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}

// NopMetrics discards every observation; handy default when no registry is
// wired.
type NopMetrics struct{}

func (NopMetrics) MatchFormed(bool)          {}
func (NopMetrics) MatchDissolved(string)     {}
func (NopMetrics) LockContention()           {}
func (NopMetrics) TicketsSwept(int)          {}
func (NopMetrics) ReconcileAnomaly(string)   {}
func (NopMetrics) SetQueueDepth(int)         {}
