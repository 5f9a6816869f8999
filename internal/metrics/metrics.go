// Package metrics holds the Prometheus collectors for the ledger and task
// core. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the ledger and task flows.
type Metrics struct {
	registry       *prometheus.Registry
	ledgerEntries  *prometheus.CounterVec
	txRetries      *prometheus.CounterVec
	txResults      *prometheus.CounterVec
	escrowOutcomes *prometheus.CounterVec
	claimConflicts prometheus.Counter
	purchases      prometheus.Counter
}

// New returns Metrics registered on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ledgerEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ideahub",
			Name:      "ledger_entries_total",
			Help:      "Ledger entries written, by transaction type.",
		}, []string{"type"}),
		txRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ideahub",
			Name:      "db_tx_retries_total",
			Help:      "Transactions retried after a serialization failure or deadlock.",
		}, []string{"op"}),
		txResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ideahub",
			Name:      "db_tx_total",
			Help:      "Finished transactions, by operation and result kind.",
		}, []string{"op", "result"}),
		escrowOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ideahub",
			Name:      "escrow_outcomes_total",
			Help:      "Escrows leaving HELD, by outcome.",
		}, []string{"outcome"}),
		claimConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ideahub",
			Name:      "task_claim_conflicts_total",
			Help:      "Claims that lost the race for a PENDING task.",
		}),
		purchases: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ideahub",
			Name:      "marketplace_purchases_total",
			Help:      "Completed marketplace purchases.",
		}),
	}
	m.registry.MustRegister(
		m.ledgerEntries, m.txRetries, m.txResults, m.escrowOutcomes, m.claimConflicts, m.purchases,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// LedgerEntry counts one ledger row of txType.
func (m *Metrics) LedgerEntry(txType string) {
	if m == nil {
		return
	}
	m.ledgerEntries.WithLabelValues(txType).Inc()
}

// TxRetry counts a serialization retry of op.
func (m *Metrics) TxRetry(op string) {
	if m == nil {
		return
	}
	m.txRetries.WithLabelValues(op).Inc()
}

// TxFinished counts a finished transaction of op by result.
func (m *Metrics) TxFinished(op, result string) {
	if m == nil {
		return
	}
	m.txResults.WithLabelValues(op, result).Inc()
}

// EscrowOutcome counts an escrow release or refund.
func (m *Metrics) EscrowOutcome(outcome string) {
	if m == nil {
		return
	}
	m.escrowOutcomes.WithLabelValues(outcome).Inc()
}

// ClaimConflict counts a claim lost to a concurrent claimer.
func (m *Metrics) ClaimConflict() {
	if m == nil {
		return
	}
	m.claimConflicts.Inc()
}

// Purchase counts a completed marketplace purchase.
func (m *Metrics) Purchase() {
	if m == nil {
		return
	}
	m.purchases.Inc()
}
