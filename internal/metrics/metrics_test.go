package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.LedgerEntry("FEE")
	m.TxRetry("approve")
	m.TxFinished("approve", "ok")
	m.EscrowOutcome("RELEASED")
	m.ClaimConflict()
	m.Purchase()
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.LedgerEntry("ESCROW_LOCK")
	m.LedgerEntry("ESCROW_LOCK")
	m.ClaimConflict()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	if !strings.Contains(out, `ideahub_ledger_entries_total{type="ESCROW_LOCK"} 2`) {
		t.Errorf("ledger counter missing from output:\n%s", out)
	}
	if !strings.Contains(out, "ideahub_task_claim_conflicts_total 1") {
		t.Errorf("claim conflict counter missing from output")
	}
}
