package rebalance

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ggonzalez94/defi-keeper/internal/amount"
	"github.com/ggonzalez94/defi-keeper/internal/decision"
	clierr "github.com/ggonzalez94/defi-keeper/internal/errors"
	"github.com/ggonzalez94/defi-keeper/internal/metrics"
	"github.com/ggonzalez94/defi-keeper/internal/model"
	"github.com/ggonzalez94/defi-keeper/internal/providers"
	"github.com/ggonzalez94/defi-keeper/internal/registry"
)

const BalanceLoop = "balance"

type BalancerConfig struct {
	Account          string
	Chains           []registry.Chain
	ThresholdPercent int64
	ReadConcurrency  int
	TokenDecimals    int
}

// Balancer keeps an account's USDC evenly spread across chains.
type Balancer struct {
	cfg      BalancerConfig
	readers  map[int64]providers.ChainReader
	gate     *decision.Gate
	executor *Executor
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time
}

func NewBalancer(cfg BalancerConfig, readers map[int64]providers.ChainReader, gate *decision.Gate, executor *Executor, m *metrics.Metrics, log *zap.Logger) *Balancer {
	if cfg.ThresholdPercent <= 0 {
		cfg.ThresholdPercent = DefaultThresholdPercent
	}
	if cfg.ReadConcurrency <= 0 {
		cfg.ReadConcurrency = DefaultReadConcurrency
	}
	return &Balancer{cfg: cfg, readers: readers, gate: gate, executor: executor, metrics: m, log: log, now: time.Now}
}

// ReadBalances reads the account balance on every configured chain. Any
// failed read fails the whole snapshot.
func (b *Balancer) ReadBalances(ctx context.Context) ([]model.ChainBalance, error) {
	out := make([]model.ChainBalance, len(b.cfg.Chains))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.ReadConcurrency)
	for i, chain := range b.cfg.Chains {
		g.Go(func() error {
			reader, ok := b.readers[chain.ID]
			if !ok {
				return clierr.New(clierr.CodeConfig, fmt.Sprintf("no chain reader configured for %s", chain.Name))
			}
			bal, err := reader.BalanceOf(gctx, chain.USDC, b.cfg.Account)
			if err != nil {
				return fmt.Errorf("read %s balance: %w", chain.Name, err)
			}
			out[i] = model.ChainBalance{ChainID: chain.ID, Name: chain.Name, Balance: bal, TokenAddress: chain.USDC}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Plan detects the imbalance in balances and returns the matched actions.
func (b *Balancer) Plan(balances []model.ChainBalance) (Imbalance, []model.RebalanceAction) {
	imb := Detect(balances, b.cfg.ThresholdPercent)
	return imb, Match(imb)
}

// RunCycle reads, plans, gates and executes one balance cycle. Only
// cancellation is returned as an error.
func (b *Balancer) RunCycle(ctx context.Context, cycle int) (model.CycleReport, error) {
	report := model.CycleReport{Loop: BalanceLoop, Cycle: cycle, StartedAt: b.now().UTC()}
	defer func() {
		report.Duration = b.now().Sub(report.StartedAt)
		b.metrics.ObserveCycle(BalanceLoop, report.Duration)
		for _, o := range report.Outcomes {
			b.metrics.ObserveOutcome(BalanceLoop, o.Outcome)
		}
	}()
	log := b.log.With(zap.Int("cycle", cycle))

	balances, err := b.ReadBalances(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		log.Error("balance snapshot failed, skipping detection", zap.Error(err))
		report.Error = err.Error()
		return report, nil
	}
	for _, bal := range balances {
		log.Debug("chain balance", zap.String("chain", bal.Name), zap.String("balance", amount.Format(bal.Balance, b.cfg.TokenDecimals)))
	}

	imb, actions := b.Plan(balances)
	if len(actions) == 0 {
		log.Info("balances within range", zap.String("target", imb.Target.String()))
		return report, nil
	}

	ids := make([]string, len(actions))
	proposed := make([]model.ProposedAction, len(actions))
	for i, a := range actions {
		ids[i] = fmt.Sprintf("bridge-%d-%d-%d", a.Source.ChainID, a.Destination.ChainID, i)
		proposed[i] = model.ProposedAction{
			ID: ids[i],
			Summary: fmt.Sprintf("bridge %s USDC from %s to %s",
				amount.Format(a.Amount, b.cfg.TokenDecimals), a.Source.Name, a.Destination.Name),
			Detail: a,
		}
		b.metrics.ObserveAction("bridge", "proposed")
	}
	res := b.gate.Evaluate(ctx, model.DecisionRequest{
		Kind:     BalanceLoop,
		Snapshot: balanceSnapshot{Balances: balances, Target: imb.Target, ThresholdPercent: b.cfg.ThresholdPercent},
		Actions:  proposed,
	})
	report.Rationale = res.Rationale

	approved := res.Approved()
	var runIDs []string
	var run []model.RebalanceAction
	for i, a := range actions {
		if approved[ids[i]] {
			runIDs = append(runIDs, ids[i])
			run = append(run, a)
			continue
		}
		report.Outcomes = append(report.Outcomes, model.TaskOutcome{
			ID:      ids[i],
			Account: b.cfg.Account,
			ChainID: a.Source.ChainID,
			Outcome: model.OutcomeRejected,
			Reason:  reasonFor(res, ids[i]),
		})
	}
	if len(run) > 0 {
		report.Outcomes = append(report.Outcomes, b.executor.Bridges(ctx, runIDs, run)...)
	}
	return report, ctx.Err()
}

type balanceSnapshot struct {
	Balances         []model.ChainBalance `json:"balances"`
	Target           *big.Int             `json:"target"`
	ThresholdPercent int64                `json:"threshold_percent"`
}

func reasonFor(res decision.Result, actionID string) string {
	for _, a := range res.Approvals {
		if a.ID == actionID {
			return a.Reason
		}
	}
	return "no decision returned"
}
