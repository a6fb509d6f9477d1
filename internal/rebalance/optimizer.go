package rebalance

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ggonzalez94/defi-keeper/internal/amount"
	"github.com/ggonzalez94/defi-keeper/internal/decision"
	"github.com/ggonzalez94/defi-keeper/internal/metrics"
	"github.com/ggonzalez94/defi-keeper/internal/model"
	"github.com/ggonzalez94/defi-keeper/internal/providers"
	"github.com/ggonzalez94/defi-keeper/internal/registry"
)

const YieldLoop = "yield"

type OptimizerConfig struct {
	Account          string
	ChainID          int64
	Protocols        []registry.Protocol
	MinAPYDifference decimal.Decimal
	Threshold        *big.Int
	ReadConcurrency  int
	TokenDecimals    int
}

// Optimizer moves lending positions toward the best-yielding protocol.
type Optimizer struct {
	cfg      OptimizerConfig
	yields   providers.YieldSource
	gate     *decision.Gate
	executor *Executor
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time
}

func NewOptimizer(cfg OptimizerConfig, yields providers.YieldSource, gate *decision.Gate, executor *Executor, m *metrics.Metrics, log *zap.Logger) *Optimizer {
	if cfg.MinAPYDifference.IsZero() {
		cfg.MinAPYDifference = DefaultMinAPYDifference
	}
	if cfg.Threshold == nil {
		cfg.Threshold = new(big.Int).Set(DefaultRebalanceThreshold)
	}
	if cfg.ReadConcurrency <= 0 {
		cfg.ReadConcurrency = DefaultReadConcurrency
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = registry.BaseChainID
	}
	return &Optimizer{cfg: cfg, yields: yields, gate: gate, executor: executor, metrics: m, log: log, now: time.Now}
}

type protocolSnapshot struct {
	yields   []model.YieldData
	holdings []Holding
}

// Snapshot reads yields and positions for every configured protocol. The
// result keeps protocol order.
func (o *Optimizer) Snapshot(ctx context.Context) ([]model.YieldData, []Holding, error) {
	per := make([]protocolSnapshot, len(o.cfg.Protocols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.ReadConcurrency)
	for i, p := range o.cfg.Protocols {
		g.Go(func() error {
			markets, err := o.yields.FetchProtocolYields(gctx, p.EnsoID, o.cfg.ChainID)
			if err != nil {
				return fmt.Errorf("fetch %s yields: %w", p.Key, err)
			}
			positions, err := o.yields.FetchPositions(gctx, p.EnsoID, o.cfg.ChainID, o.cfg.Account)
			if err != nil {
				return fmt.Errorf("fetch %s positions: %w", p.Key, err)
			}
			per[i] = collect(p, markets, positions)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var yields []model.YieldData
	var holdings []Holding
	for _, s := range per {
		yields = append(yields, s.yields...)
		holdings = append(holdings, s.holdings...)
	}
	return yields, holdings, nil
}

func collect(p registry.Protocol, markets []model.Market, positions []model.Position) protocolSnapshot {
	var out protocolSnapshot
	for _, pm := range p.Markets {
		for _, m := range markets {
			if strings.EqualFold(m.Address, pm.Pool) {
				out.yields = append(out.yields, model.YieldData{
					Protocol:      p.Key,
					APY:           m.APY,
					TVL:           m.TVL,
					MarketAddress: pm.Pool,
					TokenAddress:  pm.Token,
				})
				break
			}
		}
		for _, pos := range positions {
			if !strings.EqualFold(pos.Market, pm.Pool) {
				continue
			}
			held, ok := new(big.Int).SetString(strings.TrimSpace(pos.Balance), 10)
			if ok && held.Sign() > 0 {
				out.holdings = append(out.holdings, Holding{Protocol: p.Key, Amount: held})
			}
			break
		}
	}
	return out
}

// RunCycle reads yields, ranks opportunities, gates and executes them. Only
// cancellation is returned as an error.
func (o *Optimizer) RunCycle(ctx context.Context, cycle int) (model.CycleReport, error) {
	report := model.CycleReport{Loop: YieldLoop, Cycle: cycle, StartedAt: o.now().UTC()}
	defer func() {
		report.Duration = o.now().Sub(report.StartedAt)
		o.metrics.ObserveCycle(YieldLoop, report.Duration)
		for _, out := range report.Outcomes {
			o.metrics.ObserveOutcome(YieldLoop, out.Outcome)
		}
	}()
	log := o.log.With(zap.Int("cycle", cycle))

	yields, holdings, err := o.Snapshot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		log.Error("yield snapshot failed", zap.Error(err))
		report.Error = err.Error()
		return report, nil
	}
	opps := FindOpportunities(holdings, yields, o.cfg.MinAPYDifference, o.cfg.Threshold)
	if len(opps) == 0 {
		log.Info("no yield opportunities", zap.Int("markets", len(yields)), zap.Int("positions", len(holdings)))
		return report, nil
	}

	ids := make([]string, len(opps))
	proposed := make([]model.ProposedAction, len(opps))
	for i, opp := range opps {
		ids[i] = fmt.Sprintf("yield-%s-%s-%d", strings.ToLower(opp.From.Protocol), strings.ToLower(opp.To.Protocol), i)
		proposed[i] = model.ProposedAction{
			ID: ids[i],
			Summary: fmt.Sprintf("move %s USDC from %s (%s%% APY) to %s (%s%% APY)",
				amount.Format(opp.Amount, o.cfg.TokenDecimals),
				opp.From.Protocol, opp.From.APY.String(), opp.To.Protocol, opp.To.APY.String()),
			Detail: opp,
		}
		o.metrics.ObserveAction("yield", "proposed")
	}
	res := o.gate.Evaluate(ctx, model.DecisionRequest{
		Kind:     YieldLoop,
		Snapshot: yieldSnapshot{Yields: yields, Positions: holdings},
		Actions:  proposed,
	})
	report.Rationale = res.Rationale

	approved := res.Approved()
	var runIDs []string
	var run []model.RebalanceOpportunity
	for i, opp := range opps {
		if approved[ids[i]] {
			runIDs = append(runIDs, ids[i])
			run = append(run, opp)
			continue
		}
		report.Outcomes = append(report.Outcomes, model.TaskOutcome{
			ID:      ids[i],
			Account: o.cfg.Account,
			ChainID: o.cfg.ChainID,
			Outcome: model.OutcomeRejected,
			Reason:  reasonFor(res, ids[i]),
		})
	}
	if len(run) > 0 {
		report.Outcomes = append(report.Outcomes, o.executor.YieldMoves(ctx, o.cfg.ChainID, runIDs, run)...)
	}
	return report, ctx.Err()
}

type yieldSnapshot struct {
	Yields    []model.YieldData `json:"yields"`
	Positions []Holding         `json:"positions"`
}
