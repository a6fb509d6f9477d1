package settlement

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	clierr "github.com/ggonzalez94/defi-keeper/internal/errors"
	"github.com/ggonzalez94/defi-keeper/internal/model"
	"github.com/ggonzalez94/defi-keeper/internal/providers"
)

const (
	testKey        = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"
	testSubAccount = "0x2222222222222222222222222222222222222222"
	testReceiver   = "0x4444444444444444444444444444444444444444"
	testToken      = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
	testMultiSend  = "0x40A2aCCbd92BCA938b02010E17A5b8929b49130D"
	testPlugin     = "0x1111111111111111111111111111111111111111"
)

type fakeTasks struct {
	pages [][]model.Task
	err   error
	calls []int
}

func (f *fakeTasks) FetchTasks(_ context.Context, _ string, offset, limit int) ([]model.Task, error) {
	f.calls = append(f.calls, offset)
	if f.err != nil {
		return nil, f.err
	}
	page := offset / limit
	if page >= len(f.pages) {
		return nil, nil
	}
	return f.pages[page], nil
}

type fakeReader struct {
	balances map[string]*big.Int
	err      error
	network  int64
}

func (f *fakeReader) BalanceOf(_ context.Context, _ string, account string) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	if b, ok := f.balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (f *fakeReader) NetworkID(context.Context) (int64, error) { return f.network, nil }

type fakeWriter struct {
	mu        sync.Mutex
	transfers []providers.TransferRequest
	bridges   []providers.BridgeRequest
	routes    []model.BridgeRoute
	status    []model.BridgeStatus
	err       error
}

func (f *fakeWriter) BuildTransfer(_ context.Context, req providers.TransferRequest) ([]model.Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers = append(f.transfers, req)
	if f.err != nil {
		return nil, f.err
	}
	return []model.Call{{To: req.Token, Value: "0", Data: "0xa9059cbb"}}, nil
}

func (f *fakeWriter) BuildBridge(_ context.Context, req providers.BridgeRequest) ([]model.Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bridges = append(f.bridges, req)
	return []model.Call{{To: req.TokenIn, Value: "0", Data: "0x095ea7b3"}, {To: testPlugin, Value: "0", Data: "0x01"}}, nil
}

func (f *fakeWriter) BuildSwap(context.Context, providers.SwapRequest) ([]model.Call, error) {
	return []model.Call{{To: testToken, Value: "0", Data: "0x"}}, nil
}

func (f *fakeWriter) FetchSwapRoutes(context.Context, providers.SwapRouteRequest) ([]model.SwapRoute, error) {
	return []model.SwapRoute{{Raw: []byte(`{}`)}}, nil
}

func (f *fakeWriter) FetchBridgingRoutes(context.Context, providers.BridgeRouteRequest) ([]model.BridgeRoute, error) {
	return f.routes, nil
}

func (f *fakeWriter) FetchBridgingStatus(context.Context, string, int64, int64, int64) (model.BridgeStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.status) == 0 {
		return model.BridgeStatus{SourceStatus: "COMPLETED", DestinationStatus: "COMPLETED"}, nil
	}
	st := f.status[0]
	if len(f.status) > 1 {
		f.status = f.status[1:]
	}
	return st, nil
}

type fakeBackend struct {
	mu          sync.Mutex
	nonce       string
	digests     []providers.DigestRequest
	submissions []providers.Submission
	states      map[string][]model.WorkflowState
	polls       map[string]int
	nonceErr    error
	submitErr   error
	stateErr    error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{nonce: "7", states: map[string][]model.WorkflowState{}, polls: map[string]int{}}
}

func (f *fakeBackend) FetchExecutorNonce(context.Context, string, string, int64) (string, error) {
	if f.nonceErr != nil {
		return "", f.nonceErr
	}
	return f.nonce, nil
}

func (f *fakeBackend) ExecutableDigest(_ context.Context, req providers.DigestRequest) (apitypes.TypedData, error) {
	f.mu.Lock()
	f.digests = append(f.digests, req)
	f.mu.Unlock()
	return executableTypedData(req), nil
}

func (f *fakeBackend) SubmitTask(_ context.Context, _ string, sub providers.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submissions = append(f.submissions, sub)
	return nil
}

func (f *fakeBackend) FetchWorkflowState(_ context.Context, taskID string) (model.WorkflowState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stateErr != nil {
		return model.WorkflowState{}, f.stateErr
	}
	f.polls[taskID]++
	seq := f.states[taskID]
	if len(seq) == 0 {
		return model.WorkflowState{TaskID: taskID, Status: model.WorkflowSuccessful, Outcome: model.WorkflowOutcome{TxHash: "0xabc"}}, nil
	}
	st := seq[0]
	if len(seq) > 1 {
		f.states[taskID] = seq[1:]
	}
	return st, nil
}

func executableTypedData(req providers.DigestRequest) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"ExecutionParams": {
				{Name: "operation", Type: "uint8"},
				{Name: "to", Type: "address"},
				{Name: "account", Type: "address"},
				{Name: "executor", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "data", Type: "bytes"},
			},
		},
		PrimaryType: "ExecutionParams",
		Domain: apitypes.TypedDataDomain{
			Name:              "ExecutorPlugin",
			Version:           "1.0",
			ChainId:           math.NewHexOrDecimal256(req.ChainID),
			VerifyingContract: req.PluginAddress,
		},
		Message: apitypes.TypedDataMessage{
			"operation": "1",
			"to":        req.To,
			"account":   req.Account,
			"executor":  req.Executor,
			"value":     req.Value,
			"nonce":     req.Nonce,
			"data":      req.Data,
		},
	}
}

var errUnavailable = clierr.New(clierr.CodeUnavailable, "backend unavailable")
