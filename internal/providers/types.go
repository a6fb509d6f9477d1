package providers

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/ggonzalez94/defi-keeper/internal/model"
)

// TaskSource lists pending automation tasks for an executor registry.
type TaskSource interface {
	FetchTasks(ctx context.Context, registryID string, offset, limit int) ([]model.Task, error)
}

// ChainReader is a read-only view of one chain.
type ChainReader interface {
	BalanceOf(ctx context.Context, token, account string) (*big.Int, error)
	NetworkID(ctx context.Context) (int64, error)
}

type TransferRequest struct {
	ChainID int64
	Account string
	Token   string
	To      string
	Amount  string
}

type BridgeRouteRequest struct {
	AmountIn   string
	AmountOut  string
	ChainIDIn  int64
	ChainIDOut int64
	Owner      string
	Recipient  string
	Slippage   int64
	TokenIn    string
	TokenOut   string
}

type BridgeRequest struct {
	BridgeRouteRequest
	Route model.BridgeRoute
}

// SwapRouteRequest quotes a same-chain token swap. Slippage is in percent.
type SwapRouteRequest struct {
	ChainID  int64
	Account  string
	TokenIn  string
	TokenOut string
	AmountIn string
	Slippage int64
}

type SwapRequest struct {
	SwapRouteRequest
	Route model.SwapRoute
}

// ChainWriter builds low-level calls for an account. It never broadcasts.
type ChainWriter interface {
	BuildTransfer(ctx context.Context, req TransferRequest) ([]model.Call, error)
	BuildBridge(ctx context.Context, req BridgeRequest) ([]model.Call, error)
	BuildSwap(ctx context.Context, req SwapRequest) ([]model.Call, error)
	FetchSwapRoutes(ctx context.Context, req SwapRouteRequest) ([]model.SwapRoute, error)
	FetchBridgingRoutes(ctx context.Context, req BridgeRouteRequest) ([]model.BridgeRoute, error)
	FetchBridgingStatus(ctx context.Context, txHash string, pid, chainIn, chainOut int64) (model.BridgeStatus, error)
}

type DigestRequest struct {
	Account       string
	ChainID       int64
	Data          string
	Executor      string
	Nonce         string
	Operation     model.CallType
	PluginAddress string
	To            string
	Value         string
}

type Submission struct {
	TaskID     string
	Executable model.Executable
	Signature  string
	Executor   string
	Skip       bool
	SkipReason string
	SubAccount string
}

// ExecutorBackend covers the executor-facing half of the automation API.
type ExecutorBackend interface {
	FetchExecutorNonce(ctx context.Context, account, executor string, chainID int64) (string, error)
	ExecutableDigest(ctx context.Context, req DigestRequest) (apitypes.TypedData, error)
	SubmitTask(ctx context.Context, registryID string, sub Submission) error
	FetchWorkflowState(ctx context.Context, taskID string) (model.WorkflowState, error)
}

type BundleRequest struct {
	ChainID     int64
	FromAddress string
	SlippageBps int64
	From        model.YieldData
	To          model.YieldData
	Amount      *big.Int
}

// YieldSource reports protocol yields and account positions, and builds
// withdraw+deposit bundles.
type YieldSource interface {
	FetchProtocolYields(ctx context.Context, protocolID string, chainID int64) ([]model.Market, error)
	FetchPositions(ctx context.Context, protocolID string, chainID int64, account string) ([]model.Position, error)
	BuildBundle(ctx context.Context, req BundleRequest) (model.Call, error)
	TransactionStatus(ctx context.Context, txHash string, chainID int64) (model.TxStatus, error)
}

// DecisionOracle is the external approver for proposed rebalances. Its
// answers are advisory and may be slow, missing, or malformed.
type DecisionOracle interface {
	Decide(ctx context.Context, req model.DecisionRequest) (model.DecisionResponse, error)
}
