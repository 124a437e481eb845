package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordCreditMutation("deduct", ResultOK)
	m.RecordCreditMutation("deduct", ResultOK)
	m.RecordCreditMutation("deduct", ResultRejected)
	m.RecordRevision("paid", ResultOK)
	m.RecordRevision("", ResultRejected)
	m.RecordRetry("revision")

	if got := testutil.ToFloat64(m.creditMutations.WithLabelValues("deduct", ResultOK)); got != 2 {
		t.Fatalf("expected 2 ok deductions, got %v", got)
	}
	if got := testutil.ToFloat64(m.revisions.WithLabelValues("none", ResultRejected)); got != 1 {
		t.Fatalf("expected empty revision type labelled none, got %v", got)
	}
	if got := testutil.ToFloat64(m.retries.WithLabelValues("revision")); got != 1 {
		t.Fatalf("expected 1 retry, got %v", got)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *EngineMetrics
	m.RecordCreditMutation("add", ResultOK)
	m.RecordCreditsSpent(5)
	m.RecordRevision("free", ResultOK)
	m.RecordRetry("create_request")
}
