// Package decision turns advisory oracle answers into per-action approvals.
// Anything short of a clear, confident approve is a reject.
package decision

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	clierr "github.com/ggonzalez94/defi-keeper/internal/errors"
	"github.com/ggonzalez94/defi-keeper/internal/metrics"
	"github.com/ggonzalez94/defi-keeper/internal/model"
	"github.com/ggonzalez94/defi-keeper/internal/providers"
)

const DefaultTimeout = 30 * time.Second

var DefaultMinConfidence = decimal.RequireFromString("0.5")

// Config bounds a Gate. An unset MinConfidence falls back to
// DefaultMinConfidence; a set zero accepts any confidence.
type Config struct {
	Timeout       time.Duration
	MinConfidence decimal.NullDecimal
}

type Approval struct {
	ID         string          `json:"id"`
	Approved   bool            `json:"approved"`
	Confidence decimal.Decimal `json:"confidence"`
	Reason     string          `json:"reason"`
}

type Result struct {
	Approvals []Approval `json:"approvals"`
	Rationale string     `json:"rationale,omitempty"`
}

// Approved returns the ids of approved actions.
func (r Result) Approved() map[string]bool {
	out := map[string]bool{}
	for _, a := range r.Approvals {
		if a.Approved {
			out[a.ID] = true
		}
	}
	return out
}

type Gate struct {
	oracle  providers.DecisionOracle
	cfg     Config
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewGate(oracle providers.DecisionOracle, cfg Config, m *metrics.Metrics, log *zap.Logger) *Gate {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if !cfg.MinConfidence.Valid {
		cfg.MinConfidence = decimal.NewNullDecimal(DefaultMinConfidence)
	}
	return &Gate{oracle: oracle, cfg: cfg, metrics: m, log: log}
}

// Evaluate asks the oracle about req and returns one approval per proposed
// action, in request order. It never returns an error.
func (g *Gate) Evaluate(ctx context.Context, req model.DecisionRequest) Result {
	if len(req.Actions) == 0 {
		return Result{}
	}
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	resp, err := g.oracle.Decide(callCtx, req)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			err = clierr.Wrap(clierr.CodeTimeout, "decision oracle timed out", err)
		}
		g.log.Warn("decision oracle failed, rejecting all actions", zap.String("kind", req.Kind), zap.Error(err))
		return g.record(rejectAll(req.Actions, "oracle unavailable: "+err.Error()))
	}
	return g.record(g.reconcile(req.Actions, resp))
}

func (g *Gate) reconcile(actions []model.ProposedAction, resp model.DecisionResponse) Result {
	byID := map[string][]model.ActionDecision{}
	for _, d := range resp.Decisions {
		byID[d.ID] = append(byID[d.ID], d)
	}

	out := Result{Rationale: resp.Rationale}
	for _, action := range actions {
		approval := Approval{ID: action.ID}
		decisions := byID[action.ID]
		switch {
		case len(decisions) == 0:
			approval.Reason = "no decision returned"
		case conflicting(decisions):
			approval.Reason = "conflicting decisions returned"
		default:
			d := decisions[0]
			approval.Confidence = d.Confidence
			switch {
			case d.Verdict != model.VerdictApprove && d.Verdict != model.VerdictReject:
				approval.Reason = fmt.Sprintf("unknown verdict %q", d.Verdict)
			case d.Verdict == model.VerdictReject:
				approval.Reason = nonEmpty(d.Rationale, "rejected by oracle")
			case d.Confidence.LessThan(g.cfg.MinConfidence.Decimal):
				approval.Reason = fmt.Sprintf("confidence %s below minimum %s", d.Confidence, g.cfg.MinConfidence.Decimal)
			default:
				approval.Approved = true
				approval.Reason = d.Rationale
			}
		}
		out.Approvals = append(out.Approvals, approval)
	}
	return out
}

func (g *Gate) record(r Result) Result {
	for _, a := range r.Approvals {
		g.metrics.ObserveDecision(a.Approved)
		g.log.Info("action decision", zap.String("action_id", a.ID), zap.Bool("approved", a.Approved), zap.String("reason", a.Reason))
	}
	return r
}

func conflicting(decisions []model.ActionDecision) bool {
	for _, d := range decisions[1:] {
		if d.Verdict != decisions[0].Verdict {
			return true
		}
	}
	return false
}

func rejectAll(actions []model.ProposedAction, reason string) Result {
	out := Result{Rationale: reason}
	for _, a := range actions {
		out.Approvals = append(out.Approvals, Approval{ID: a.ID, Reason: reason})
	}
	return out
}

func nonEmpty(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
