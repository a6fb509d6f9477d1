package rebalance

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	clierr "github.com/ggonzalez94/defi-keeper/internal/errors"
	"github.com/ggonzalez94/defi-keeper/internal/metrics"
	"github.com/ggonzalez94/defi-keeper/internal/model"
	"github.com/ggonzalez94/defi-keeper/internal/poll"
	"github.com/ggonzalez94/defi-keeper/internal/providers"
	"github.com/ggonzalez94/defi-keeper/internal/settlement"
)

const (
	DefaultBridgeSlippage     int64 = 1
	DefaultSwapSlippage       int64 = 1
	DefaultBundleSlippageBps  int64 = 100
	DefaultReadConcurrency          = 4
	defaultStatusInterval           = 10 * time.Second
	defaultStatusDeadline           = 30 * time.Minute
)

type ExecutorConfig struct {
	Account           string
	BridgeSlippage    int64
	SwapSlippage      int64
	BundleSlippageBps int64
	Concurrency       int
	StatusInterval    time.Duration
	StatusDeadline    time.Duration
}

// Executor runs approved rebalance moves through the same build, authorize,
// submit and await path as subscription settlement. Moves out of one chain
// are serialized because they share that account's nonce.
type Executor struct {
	cfg        ExecutorConfig
	writer     providers.ChainWriter
	yields     providers.YieldSource
	builder    *settlement.Builder
	authorizer *settlement.Authorizer
	submitter  *settlement.Submitter
	locks      keyedMutex
	metrics    *metrics.Metrics
	log        *zap.Logger
	newID      func() string
}

func NewExecutor(cfg ExecutorConfig, writer providers.ChainWriter, yields providers.YieldSource, builder *settlement.Builder, authorizer *settlement.Authorizer, submitter *settlement.Submitter, m *metrics.Metrics, log *zap.Logger) *Executor {
	if cfg.BridgeSlippage <= 0 {
		cfg.BridgeSlippage = DefaultBridgeSlippage
	}
	if cfg.SwapSlippage <= 0 {
		cfg.SwapSlippage = DefaultSwapSlippage
	}
	if cfg.BundleSlippageBps <= 0 {
		cfg.BundleSlippageBps = DefaultBundleSlippageBps
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultReadConcurrency
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = defaultStatusInterval
	}
	if cfg.StatusDeadline <= 0 {
		cfg.StatusDeadline = defaultStatusDeadline
	}
	return &Executor{
		cfg:        cfg,
		writer:     writer,
		yields:     yields,
		builder:    builder,
		authorizer: authorizer,
		submitter:  submitter,
		metrics:    m,
		log:        log,
		newID:      uuid.NewString,
	}
}

// Bridges executes actions concurrently across source chains and returns
// one outcome per action, in input order. ids labels each action.
func (e *Executor) Bridges(ctx context.Context, ids []string, actions []model.RebalanceAction) []model.TaskOutcome {
	outcomes := make([]model.TaskOutcome, len(actions))
	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	for i, action := range actions {
		g.Go(func() error {
			unlock := e.locks.Lock(action.Source.ChainID)
			defer unlock()
			outcomes[i] = e.bridge(ctx, ids[i], action)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (e *Executor) bridge(ctx context.Context, id string, action model.RebalanceAction) model.TaskOutcome {
	outcome := model.TaskOutcome{ID: id, Account: e.cfg.Account, ChainID: action.Source.ChainID}
	log := e.log.With(
		zap.String("action_id", id),
		zap.Int64("source_chain", action.Source.ChainID),
		zap.Int64("destination_chain", action.Destination.ChainID),
		zap.String("amount", action.Amount.String()),
	)
	if err := ctx.Err(); err != nil {
		return e.finish(log, "bridge", outcome, model.OutcomeCancelled, "cancelled before execution")
	}

	routeReq := providers.BridgeRouteRequest{
		AmountIn:   action.Amount.String(),
		AmountOut:  "0",
		ChainIDIn:  action.Source.ChainID,
		ChainIDOut: action.Destination.ChainID,
		Owner:      e.cfg.Account,
		Recipient:  e.cfg.Account,
		Slippage:   e.cfg.BridgeSlippage,
		TokenIn:    action.Source.TokenAddress,
		TokenOut:   action.Destination.TokenAddress,
	}
	routes, err := e.writer.FetchBridgingRoutes(ctx, routeReq)
	if err != nil {
		return e.fail(ctx, log, "bridge", outcome, "fetch bridging routes", err)
	}
	if len(routes) == 0 {
		return e.finish(log, "bridge", outcome, model.OutcomeError, "no bridging route available")
	}
	route := routes[0]

	exe, err := e.builder.BuildBridge(ctx, providers.BridgeRequest{BridgeRouteRequest: routeReq, Route: route})
	if err != nil {
		return e.fail(ctx, log, "bridge", outcome, "build bridge", err)
	}
	state, err := e.submit(ctx, action.Source.ChainID, exe)
	outcome.TxHash = state.Outcome.TxHash
	if err != nil {
		return e.fail(ctx, log, "bridge", outcome, "submit bridge", err)
	}
	if state.Status != model.WorkflowSuccessful {
		return e.finish(log, "bridge", outcome, settlement.OutcomeFor(state.Status), state.Outcome.Message)
	}
	e.metrics.ObserveAction("bridge", "submitted")

	status, err := poll.Until(ctx, func(ctx context.Context) (model.BridgeStatus, error) {
		return e.writer.FetchBridgingStatus(ctx, state.Outcome.TxHash, route.PID, action.Source.ChainID, action.Destination.ChainID)
	}, func(st model.BridgeStatus) bool { return !st.Settled() }, e.cfg.StatusInterval,
		poll.WithDeadline(e.cfg.StatusDeadline), poll.WithRetryable(clierr.IsTransient))
	if err != nil {
		if errors.Is(err, poll.ErrExhausted) {
			err = clierr.Wrap(clierr.CodeTimeout, "bridge legs did not settle", err)
		}
		return e.fail(ctx, log, "bridge", outcome, "await bridge", err)
	}
	if !status.Succeeded() {
		return e.finish(log, "bridge", outcome, model.OutcomeFailed, fmt.Sprintf("bridge legs ended source=%s destination=%s", status.SourceStatus, status.DestinationStatus))
	}
	return e.finish(log, "bridge", outcome, model.OutcomeSuccessful, "")
}

// Swap exchanges tokens on one chain of the configured account through the
// first quoted route. Account and Slippage on req default from the config.
func (e *Executor) Swap(ctx context.Context, id string, req providers.SwapRouteRequest) model.TaskOutcome {
	unlock := e.locks.Lock(req.ChainID)
	defer unlock()

	if req.Account == "" {
		req.Account = e.cfg.Account
	}
	if req.Slippage <= 0 {
		req.Slippage = e.cfg.SwapSlippage
	}
	outcome := model.TaskOutcome{ID: id, Account: req.Account, ChainID: req.ChainID}
	log := e.log.With(
		zap.String("action_id", id),
		zap.Int64("chain_id", req.ChainID),
		zap.String("token_in", req.TokenIn),
		zap.String("token_out", req.TokenOut),
		zap.String("amount", req.AmountIn),
	)
	if err := ctx.Err(); err != nil {
		return e.finish(log, "swap", outcome, model.OutcomeCancelled, "cancelled before execution")
	}

	routes, err := e.writer.FetchSwapRoutes(ctx, req)
	if err != nil {
		return e.fail(ctx, log, "swap", outcome, "fetch swap routes", err)
	}
	if len(routes) == 0 {
		return e.finish(log, "swap", outcome, model.OutcomeError, "no swap route available")
	}
	exe, err := e.builder.BuildSwap(ctx, providers.SwapRequest{SwapRouteRequest: req, Route: routes[0]})
	if err != nil {
		return e.fail(ctx, log, "swap", outcome, "build swap", err)
	}
	state, err := e.submit(ctx, req.ChainID, exe)
	outcome.TxHash = state.Outcome.TxHash
	if err != nil {
		return e.fail(ctx, log, "swap", outcome, "submit swap", err)
	}
	if state.Status != model.WorkflowSuccessful {
		return e.finish(log, "swap", outcome, settlement.OutcomeFor(state.Status), state.Outcome.Message)
	}
	return e.finish(log, "swap", outcome, model.OutcomeSuccessful, "")
}

// YieldMoves executes withdraw+deposit bundles on chainID one at a time.
func (e *Executor) YieldMoves(ctx context.Context, chainID int64, ids []string, opps []model.RebalanceOpportunity) []model.TaskOutcome {
	outcomes := make([]model.TaskOutcome, 0, len(opps))
	unlock := e.locks.Lock(chainID)
	defer unlock()
	for i, opp := range opps {
		outcomes = append(outcomes, e.yieldMove(ctx, chainID, ids[i], opp))
	}
	return outcomes
}

func (e *Executor) yieldMove(ctx context.Context, chainID int64, id string, opp model.RebalanceOpportunity) model.TaskOutcome {
	outcome := model.TaskOutcome{ID: id, Account: e.cfg.Account, ChainID: chainID}
	log := e.log.With(
		zap.String("action_id", id),
		zap.String("from", opp.From.Protocol),
		zap.String("to", opp.To.Protocol),
		zap.String("amount", opp.Amount.String()),
	)
	if err := ctx.Err(); err != nil {
		return e.finish(log, "yield", outcome, model.OutcomeCancelled, "cancelled before execution")
	}

	call, err := e.yields.BuildBundle(ctx, providers.BundleRequest{
		ChainID:     chainID,
		FromAddress: e.cfg.Account,
		SlippageBps: e.cfg.BundleSlippageBps,
		From:        opp.From,
		To:          opp.To,
		Amount:      new(big.Int).Set(opp.Amount),
	})
	if err != nil {
		return e.fail(ctx, log, "yield", outcome, "build bundle", err)
	}
	exe, err := e.builder.Fold([]model.Call{call})
	if err != nil {
		return e.fail(ctx, log, "yield", outcome, "fold bundle", err)
	}
	state, err := e.submit(ctx, chainID, exe)
	outcome.TxHash = state.Outcome.TxHash
	if err != nil {
		return e.fail(ctx, log, "yield", outcome, "submit bundle", err)
	}
	if state.Status != model.WorkflowSuccessful {
		return e.finish(log, "yield", outcome, settlement.OutcomeFor(state.Status), state.Outcome.Message)
	}
	e.metrics.ObserveAction("yield", "submitted")
	if state.Outcome.TxHash == "" {
		return e.finish(log, "yield", outcome, model.OutcomeSuccessful, "")
	}

	tx, err := poll.Until(ctx, func(ctx context.Context) (model.TxStatus, error) {
		return e.yields.TransactionStatus(ctx, state.Outcome.TxHash, chainID)
	}, func(st model.TxStatus) bool { return !st.Settled() }, e.cfg.StatusInterval,
		poll.WithDeadline(e.cfg.StatusDeadline), poll.WithRetryable(clierr.IsTransient))
	if err != nil {
		if errors.Is(err, poll.ErrExhausted) {
			err = clierr.Wrap(clierr.CodeTimeout, "bundle transaction not confirmed", err)
		}
		return e.fail(ctx, log, "yield", outcome, "await bundle", err)
	}
	log.Info("bundle confirmed", zap.String("status", tx.Status), zap.Int64("confirmations", tx.Confirmations))
	return e.finish(log, "yield", outcome, model.OutcomeSuccessful, "")
}

func (e *Executor) submit(ctx context.Context, chainID int64, exe model.Executable) (model.WorkflowState, error) {
	auth, err := e.authorizer.Authorize(ctx, e.cfg.Account, chainID, exe)
	if err != nil {
		return model.WorkflowState{}, err
	}
	return e.submitter.SubmitAndAwait(ctx, providers.Submission{
		TaskID:     e.newID(),
		Executable: exe,
		Signature:  auth.Signature,
		Executor:   auth.Executor,
		SubAccount: e.cfg.Account,
	})
}

func (e *Executor) fail(ctx context.Context, log *zap.Logger, kind string, outcome model.TaskOutcome, stage string, err error) model.TaskOutcome {
	if ctx.Err() != nil {
		return e.finish(log, kind, outcome, model.OutcomeCancelled, "cancelled during "+stage)
	}
	return e.finish(log, kind, outcome, model.OutcomeError, stage+": "+err.Error())
}

func (e *Executor) finish(log *zap.Logger, kind string, outcome model.TaskOutcome, result model.OutcomeKind, reason string) model.TaskOutcome {
	outcome.Outcome = result
	outcome.Reason = reason
	e.metrics.ObserveAction(kind, string(result))
	fields := []zap.Field{zap.String("outcome", string(result))}
	if reason != "" {
		fields = append(fields, zap.String("reason", reason))
	}
	if outcome.TxHash != "" {
		fields = append(fields, zap.String("tx_hash", outcome.TxHash))
	}
	if result == model.OutcomeSuccessful {
		log.Info("rebalance action finished", fields...)
	} else {
		log.Warn("rebalance action finished", fields...)
	}
	return outcome
}
