package model

import "testing"

func TestWorkflowStatusSets(t *testing.T) {
	for _, s := range []WorkflowStatus{WorkflowPending, WorkflowRunning, "queued"} {
		if !s.Continues() || s.Terminal() {
			t.Fatalf("expected %q to continue", s)
		}
	}
	for _, s := range []WorkflowStatus{WorkflowSuccessful, WorkflowFailed, WorkflowCancelled} {
		if s.Continues() || !s.Terminal() {
			t.Fatalf("expected %q to be terminal", s)
		}
	}
}

func TestBridgeStatusNeedsBothLegs(t *testing.T) {
	if (BridgeStatus{SourceStatus: "COMPLETED", DestinationStatus: "PENDING"}).Settled() {
		t.Fatal("destination leg still pending")
	}
	done := BridgeStatus{SourceStatus: "COMPLETED", DestinationStatus: "completed"}
	if !done.Settled() || !done.Succeeded() {
		t.Fatal("expected both legs completed")
	}
	refunded := BridgeStatus{SourceStatus: "COMPLETED", DestinationStatus: "REFUNDED"}
	if !refunded.Settled() || refunded.Succeeded() {
		t.Fatal("refund is terminal but not a success")
	}
}

func TestCycleReportCount(t *testing.T) {
	r := CycleReport{Outcomes: []TaskOutcome{{Outcome: OutcomeSkipped}, {Outcome: OutcomeSuccessful}, {Outcome: OutcomeSkipped}}}
	if r.Count(OutcomeSkipped) != 2 || r.Count(OutcomeError) != 0 {
		t.Fatalf("unexpected counts for %#v", r.Outcomes)
	}
	if !(TxStatus{Confirmations: 1}).Settled() || (TxStatus{Status: "pending"}).Settled() {
		t.Fatal("unexpected tx status settlement")
	}
}
