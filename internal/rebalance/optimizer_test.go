package rebalance

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ggonzalez94/defi-keeper/internal/metrics"
	"github.com/ggonzalez94/defi-keeper/internal/model"
	"github.com/ggonzalez94/defi-keeper/internal/registry"
)

const (
	aavePool   = "0xe0B015E54d54fc84A6cB9B666099c46adE9335FF"
	morphoPool = "0xc1fc9E5eC3058921eA5025D703CBE31764756319"
	fluidPool  = "0x1A5E82708221faD9336f3148D60Bfb9d8A297dE9"
)

func seededYields() *fakeYields {
	return &fakeYields{
		markets: map[string][]model.Market{
			"aave-v3": {{Address: aavePool, APY: decimal.RequireFromString("3.2"), TVL: "1000"}},
			"morpho":  {{Address: "0xdead", APY: decimal.RequireFromString("99")}, {Address: morphoPool, APY: decimal.RequireFromString("4.5"), TVL: "500"}},
			"fluid":   {{Address: fluidPool, APY: decimal.RequireFromString("4.1"), TVL: "800"}},
		},
		positions: map[string][]model.Position{
			"aave-v3": {{Market: aavePool, Balance: "12000000"}},
			"fluid":   {{Market: fluidPool, Balance: "7000000"}},
		},
	}
}

func newOptimizer(p *pipeline, oracle oracleFunc) *Optimizer {
	return NewOptimizer(OptimizerConfig{Account: testAccount, Protocols: registry.Protocols(), TokenDecimals: 6}, p.yields, gate(oracle), p.executor, metrics.New(), zap.NewNop())
}

func TestOptimizerSnapshotMatchesConfiguredMarkets(t *testing.T) {
	p := newPipeline(t)
	p.yields = seededYields()
	o := newOptimizer(p, approveAll)

	yields, holdings, err := o.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, yields, 3)
	assert.Equal(t, "AAVE", yields[0].Protocol)
	assert.True(t, yields[1].APY.Equal(decimal.RequireFromString("4.5")), "unconfigured markets are ignored")
	assert.Equal(t, []Holding{{Protocol: "AAVE", Amount: holdings[0].Amount}, {Protocol: "FLUID", Amount: holdings[1].Amount}}, holdings)
	assert.Equal(t, "12000000", holdings[0].Amount.String())
}

func TestOptimizerExecutesApprovedMove(t *testing.T) {
	p := newPipeline(t)
	p.yields = seededYields()
	p.executor.yields = p.yields
	o := newOptimizer(p, approveAll)

	report, err := o.RunCycle(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1, "fluid is within the minimum APY gain")
	assert.Equal(t, model.OutcomeSuccessful, report.Outcomes[0].Outcome, report.Outcomes[0].Reason)

	require.Len(t, p.yields.bundles, 1)
	bundle := p.yields.bundles[0]
	assert.Equal(t, "AAVE", bundle.From.Protocol)
	assert.Equal(t, "MORPHO", bundle.To.Protocol)
	assert.Equal(t, int64(100), bundle.SlippageBps)
	assert.Equal(t, registry.BaseChainID, bundle.ChainID)
	require.Len(t, p.backend.submissions, 1)
}

func TestOptimizerRejectedMoveIsReported(t *testing.T) {
	p := newPipeline(t)
	p.yields = seededYields()
	p.executor.yields = p.yields
	reject := func(_ context.Context, req model.DecisionRequest) (model.DecisionResponse, error) {
		return model.DecisionResponse{Decisions: []model.ActionDecision{{ID: req.Actions[0].ID, Verdict: model.VerdictReject, Confidence: decimal.NewFromInt(1), Rationale: "gas too high"}}}, nil
	}
	o := newOptimizer(p, reject)

	report, err := o.RunCycle(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, model.OutcomeRejected, report.Outcomes[0].Outcome)
	assert.Equal(t, "gas too high", report.Outcomes[0].Reason)
	assert.Empty(t, p.yields.bundles)
}

func TestOptimizerSnapshotErrorEndsCycle(t *testing.T) {
	p := newPipeline(t)
	p.yields = &fakeYields{err: errors.New("enso down")}
	o := newOptimizer(p, approveAll)

	report, err := o.RunCycle(context.Background(), 1)
	require.NoError(t, err)
	assert.Contains(t, report.Error, "enso down")
	assert.Empty(t, report.Outcomes)
}
