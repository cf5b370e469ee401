package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestLedgerMetricsCounters(t *testing.T) {
	m := Ledger()
	if Ledger() != m {
		t.Fatalf("registry should be a singleton")
	}
	before := testutil.ToFloat64(m.credsStages.WithLabelValues("claim", "ok"))
	m.ObserveCredsStage("claim", "ok")
	if got := testutil.ToFloat64(m.credsStages.WithLabelValues("claim", "ok")); got != before+1 {
		t.Fatalf("unexpected counter value: %v", got)
	}

	m.ObserveIssuerRequest("GET", 0, time.Millisecond)
	if got := testutil.ToFloat64(m.issuerRequests.WithLabelValues("GET", "transport_error")); got < 1 {
		t.Fatalf("transport errors should be counted")
	}

	var nilMetrics *LedgerMetrics
	nilMetrics.ObserveTransfer("ok")
}
