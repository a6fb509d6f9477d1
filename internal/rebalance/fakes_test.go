package rebalance

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ggonzalez94/defi-keeper/internal/decision"
	"github.com/ggonzalez94/defi-keeper/internal/metrics"
	"github.com/ggonzalez94/defi-keeper/internal/model"
	"github.com/ggonzalez94/defi-keeper/internal/providers"
	"github.com/ggonzalez94/defi-keeper/internal/settlement"
	"github.com/ggonzalez94/defi-keeper/internal/signer"
)

const (
	testKey     = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"
	testAccount = "0x2222222222222222222222222222222222222222"
	testPlugin  = "0x1111111111111111111111111111111111111111"
)

type fakeReader struct {
	balance *big.Int
	err     error
}

func (f fakeReader) BalanceOf(context.Context, string, string) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return new(big.Int).Set(f.balance), nil
}

func (f fakeReader) NetworkID(context.Context) (int64, error) { return 0, nil }

type fakeWriter struct {
	mu      sync.Mutex
	bridges []providers.BridgeRequest
	swaps   []providers.SwapRequest
	noRoute bool
}

func (f *fakeWriter) BuildTransfer(context.Context, providers.TransferRequest) ([]model.Call, error) {
	return nil, nil
}

func (f *fakeWriter) BuildBridge(_ context.Context, req providers.BridgeRequest) ([]model.Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bridges = append(f.bridges, req)
	return []model.Call{{To: req.TokenIn, Value: "0", Data: "0x095ea7b3"}, {To: testPlugin, Value: "0", Data: "0x01"}}, nil
}

func (f *fakeWriter) BuildSwap(_ context.Context, req providers.SwapRequest) ([]model.Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.swaps = append(f.swaps, req)
	return []model.Call{{To: req.TokenIn, Value: "0", Data: "0x095ea7b3"}, {To: testPlugin, Value: "0", Data: "0x02"}}, nil
}

func (f *fakeWriter) FetchSwapRoutes(context.Context, providers.SwapRouteRequest) ([]model.SwapRoute, error) {
	if f.noRoute {
		return nil, nil
	}
	return []model.SwapRoute{{Raw: []byte(`{"aggregator":"odos"}`)}, {Raw: []byte(`{"aggregator":"1inch"}`)}}, nil
}

func (f *fakeWriter) FetchBridgingRoutes(context.Context, providers.BridgeRouteRequest) ([]model.BridgeRoute, error) {
	if f.noRoute {
		return nil, nil
	}
	return []model.BridgeRoute{{PID: 42}}, nil
}

func (f *fakeWriter) FetchBridgingStatus(_ context.Context, _ string, pid, _, _ int64) (model.BridgeStatus, error) {
	if pid != 42 {
		return model.BridgeStatus{SourceStatus: "FAILED", DestinationStatus: "FAILED"}, nil
	}
	return model.BridgeStatus{SourceStatus: "COMPLETED", DestinationStatus: "COMPLETED"}, nil
}

type fakeBackend struct {
	mu          sync.Mutex
	submissions []providers.Submission
}

func (f *fakeBackend) FetchExecutorNonce(context.Context, string, string, int64) (string, error) {
	return "1", nil
}

func (f *fakeBackend) ExecutableDigest(_ context.Context, req providers.DigestRequest) (apitypes.TypedData, error) {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {{Name: "chainId", Type: "uint256"}, {Name: "verifyingContract", Type: "address"}},
			"Execution":    {{Name: "account", Type: "address"}, {Name: "nonce", Type: "uint256"}, {Name: "data", Type: "bytes"}},
		},
		PrimaryType: "Execution",
		Domain:      apitypes.TypedDataDomain{ChainId: math.NewHexOrDecimal256(req.ChainID), VerifyingContract: req.PluginAddress},
		Message:     apitypes.TypedDataMessage{"account": req.Account, "nonce": req.Nonce, "data": req.Data},
	}, nil
}

func (f *fakeBackend) SubmitTask(_ context.Context, _ string, sub providers.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submissions = append(f.submissions, sub)
	return nil
}

func (f *fakeBackend) FetchWorkflowState(_ context.Context, taskID string) (model.WorkflowState, error) {
	return model.WorkflowState{TaskID: taskID, Status: model.WorkflowSuccessful, Outcome: model.WorkflowOutcome{TxHash: "0xbeef"}}, nil
}

type fakeYields struct {
	markets   map[string][]model.Market
	positions map[string][]model.Position
	bundles   []providers.BundleRequest
	err       error
}

func (f *fakeYields) FetchProtocolYields(_ context.Context, protocolID string, _ int64) ([]model.Market, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.markets[protocolID], nil
}

func (f *fakeYields) FetchPositions(_ context.Context, protocolID string, _ int64, _ string) ([]model.Position, error) {
	return f.positions[protocolID], nil
}

func (f *fakeYields) BuildBundle(_ context.Context, req providers.BundleRequest) (model.Call, error) {
	f.bundles = append(f.bundles, req)
	return model.Call{To: "0x80EbA3855878739F4710233A8a19d89Bdd2ffB8E", Value: "0", Data: "0xabcdef"}, nil
}

func (f *fakeYields) TransactionStatus(context.Context, string, int64) (model.TxStatus, error) {
	return model.TxStatus{Status: "success", Confirmations: 2}, nil
}

type oracleFunc func(context.Context, model.DecisionRequest) (model.DecisionResponse, error)

func (f oracleFunc) Decide(ctx context.Context, req model.DecisionRequest) (model.DecisionResponse, error) {
	return f(ctx, req)
}

func approveAll(_ context.Context, req model.DecisionRequest) (model.DecisionResponse, error) {
	resp := model.DecisionResponse{Rationale: "ok"}
	for _, a := range req.Actions {
		resp.Decisions = append(resp.Decisions, model.ActionDecision{ID: a.ID, Verdict: model.VerdictApprove, Confidence: decimal.RequireFromString("0.9")})
	}
	return resp, nil
}

type pipeline struct {
	writer   *fakeWriter
	backend  *fakeBackend
	yields   *fakeYields
	executor *Executor
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	s, err := signer.NewLocalSignerFromInputs(signer.KeySourceEnv, testKey)
	require.NoError(t, err)
	p := &pipeline{writer: &fakeWriter{}, backend: &fakeBackend{}, yields: &fakeYields{}}
	log := zap.NewNop()
	builder := settlement.NewBuilder(p.writer, common.HexToAddress("0x40A2aCCbd92BCA938b02010E17A5b8929b49130D"))
	auth := settlement.NewAuthorizer(p.backend, s, common.HexToAddress(testPlugin))
	sub := settlement.NewSubmitter(p.backend, settlement.SubmitterConfig{RegistryID: "reg", Interval: time.Millisecond, MaxAttempts: 5}, log)
	p.executor = NewExecutor(ExecutorConfig{Account: testAccount, StatusInterval: time.Millisecond, StatusDeadline: time.Second}, p.writer, p.yields, builder, auth, sub, metrics.New(), log)
	return p
}

func gate(oracle oracleFunc) *decision.Gate {
	return decision.NewGate(oracle, decision.Config{Timeout: 50 * time.Millisecond}, nil, zap.NewNop())
}
