// Package chain reads ERC20 balances and the network id over JSON-RPC.
package chain

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	clierr "github.com/ggonzalez94/defi-keeper/internal/errors"
	"github.com/ggonzalez94/defi-keeper/internal/providers"
	"github.com/ggonzalez94/defi-keeper/internal/registry"
)

var erc20ABI = mustABI(registry.ERC20MinimalABI)

// caller is the subset of ethclient.Client the reader needs.
type caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

type Reader struct {
	client caller
	closer func()
}

var _ providers.ChainReader = (*Reader)(nil)

// Dial connects to rpcURL. Call Close when done.
func Dial(ctx context.Context, rpcURL string) (*Reader, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
	}
	return &Reader{client: client, closer: client.Close}, nil
}

func newReader(c caller) *Reader {
	return &Reader{client: c}
}

func (r *Reader) Close() {
	if r.closer != nil {
		r.closer()
	}
}

func (r *Reader) BalanceOf(ctx context.Context, token, account string) (*big.Int, error) {
	if !common.IsHexAddress(token) || !common.IsHexAddress(account) {
		return nil, clierr.New(clierr.CodeValidation, "balanceOf requires hex token and account addresses")
	}
	data, err := erc20ABI.Pack("balanceOf", common.HexToAddress(account))
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack balanceOf", err)
	}
	to := common.HexToAddress(token)
	raw, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, rpcError("call balanceOf", err)
	}
	out, err := erc20ABI.Unpack("balanceOf", raw)
	if err != nil || len(out) == 0 {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode balanceOf", err)
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, clierr.New(clierr.CodeUnavailable, "decode balanceOf: unexpected type")
	}
	return balance, nil
}

func (r *Reader) NetworkID(ctx context.Context) (int64, error) {
	id, err := r.client.ChainID(ctx)
	if err != nil {
		return 0, rpcError("read chain id", err)
	}
	return id.Int64(), nil
}

func rpcError(msg string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return clierr.Wrap(clierr.CodeTimeout, msg, err)
	}
	return clierr.Wrap(clierr.CodeUnavailable, msg, err)
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
