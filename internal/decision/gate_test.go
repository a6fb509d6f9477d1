package decision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ggonzalez94/defi-keeper/internal/metrics"
	"github.com/ggonzalez94/defi-keeper/internal/model"
)

type oracleFunc func(context.Context, model.DecisionRequest) (model.DecisionResponse, error)

func (f oracleFunc) Decide(ctx context.Context, req model.DecisionRequest) (model.DecisionResponse, error) {
	return f(ctx, req)
}

func request(ids ...string) model.DecisionRequest {
	req := model.DecisionRequest{Kind: "balance"}
	for _, id := range ids {
		req.Actions = append(req.Actions, model.ProposedAction{ID: id, Summary: "move " + id})
	}
	return req
}

func decision(id string, verdict model.Verdict, confidence string) model.ActionDecision {
	return model.ActionDecision{ID: id, Verdict: verdict, Confidence: decimal.RequireFromString(confidence), Rationale: "because"}
}

func TestEvaluateOracleErrorRejectsAll(t *testing.T) {
	gate := NewGate(oracleFunc(func(context.Context, model.DecisionRequest) (model.DecisionResponse, error) {
		return model.DecisionResponse{}, errors.New("connection refused")
	}), Config{}, metrics.New(), zap.NewNop())

	res := gate.Evaluate(context.Background(), request("a", "b"))
	require.Len(t, res.Approvals, 2)
	assert.Empty(t, res.Approved())
	assert.Contains(t, res.Approvals[0].Reason, "oracle unavailable")
}

func TestEvaluateTimeoutRejectsAll(t *testing.T) {
	gate := NewGate(oracleFunc(func(ctx context.Context, _ model.DecisionRequest) (model.DecisionResponse, error) {
		<-ctx.Done()
		return model.DecisionResponse{}, ctx.Err()
	}), Config{Timeout: 10 * time.Millisecond}, nil, zap.NewNop())

	res := gate.Evaluate(context.Background(), request("a"))
	require.Len(t, res.Approvals, 1)
	assert.False(t, res.Approvals[0].Approved)
	assert.Contains(t, res.Approvals[0].Reason, "timed out")
}

func TestEvaluateFailsClosedOnAmbiguity(t *testing.T) {
	resp := model.DecisionResponse{
		Rationale: "mixed",
		Decisions: []model.ActionDecision{
			decision("ok", model.VerdictApprove, "0.9"),
			decision("dup", model.VerdictApprove, "0.9"),
			decision("dup", model.VerdictReject, "0.9"),
			decision("weird", "maybe", "0.9"),
			decision("shy", model.VerdictApprove, "0.49"),
			decision("no", model.VerdictReject, "0.99"),
			decision("same", model.VerdictApprove, "0.8"),
			decision("same", model.VerdictApprove, "0.7"),
		},
	}
	gate := NewGate(oracleFunc(func(context.Context, model.DecisionRequest) (model.DecisionResponse, error) {
		return resp, nil
	}), Config{}, metrics.New(), zap.NewNop())

	res := gate.Evaluate(context.Background(), request("ok", "dup", "weird", "shy", "no", "missing", "same"))
	require.Len(t, res.Approvals, 7)
	assert.Equal(t, map[string]bool{"ok": true, "same": true}, res.Approved())
	assert.Equal(t, "mixed", res.Rationale)

	reasons := map[string]string{}
	for _, a := range res.Approvals {
		reasons[a.ID] = a.Reason
	}
	assert.Contains(t, reasons["dup"], "conflicting")
	assert.Contains(t, reasons["weird"], "unknown verdict")
	assert.Contains(t, reasons["shy"], "below minimum")
	assert.Equal(t, "no decision returned", reasons["missing"])
}

func TestEvaluateNoActionsSkipsOracle(t *testing.T) {
	called := false
	gate := NewGate(oracleFunc(func(context.Context, model.DecisionRequest) (model.DecisionResponse, error) {
		called = true
		return model.DecisionResponse{}, nil
	}), Config{}, nil, zap.NewNop())

	res := gate.Evaluate(context.Background(), model.DecisionRequest{Kind: "yield"})
	assert.Empty(t, res.Approvals)
	assert.False(t, called)
}

func TestEvaluateExplicitZeroMinConfidenceAcceptsAnyApprove(t *testing.T) {
	oracle := oracleFunc(func(context.Context, model.DecisionRequest) (model.DecisionResponse, error) {
		return model.DecisionResponse{Decisions: []model.ActionDecision{decision("low", model.VerdictApprove, "0.1")}}, nil
	})

	zero := NewGate(oracle, Config{MinConfidence: decimal.NewNullDecimal(decimal.Zero)}, nil, zap.NewNop())
	assert.Equal(t, map[string]bool{"low": true}, zero.Evaluate(context.Background(), request("low")).Approved())

	unset := NewGate(oracle, Config{}, nil, zap.NewNop())
	res := unset.Evaluate(context.Background(), request("low"))
	assert.Empty(t, res.Approved())
	assert.Contains(t, res.Approvals[0].Reason, "below minimum 0.5")
}
