package settlement

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ggonzalez94/defi-keeper/internal/errors"
	"github.com/ggonzalez94/defi-keeper/internal/model"
	"github.com/ggonzalez94/defi-keeper/internal/multisend"
	"github.com/ggonzalez94/defi-keeper/internal/providers"
)

// Builder asks the chain writer for calls and folds them into one executable.
type Builder struct {
	writer    providers.ChainWriter
	multiSend common.Address
}

func NewBuilder(writer providers.ChainWriter, multiSend common.Address) *Builder {
	return &Builder{writer: writer, multiSend: multiSend}
}

// Fold batches calls through MultiSend.
func (b *Builder) Fold(calls []model.Call) (model.Executable, error) {
	return multisend.Encode(calls, b.multiSend)
}

func (b *Builder) BuildTransfer(ctx context.Context, task model.Task, chainID int64, token string) (model.Executable, error) {
	calls, err := b.writer.BuildTransfer(ctx, providers.TransferRequest{
		ChainID: chainID,
		Account: task.SubAccount,
		Token:   token,
		To:      task.Metadata.Receiver,
		Amount:  task.Metadata.TransferAmount,
	})
	if err != nil {
		return model.Executable{}, err
	}
	if len(calls) == 0 {
		return model.Executable{}, clierr.New(clierr.CodeUnavailable, "backend returned no transfer calls")
	}
	return b.Fold(calls)
}

func (b *Builder) BuildBridge(ctx context.Context, req providers.BridgeRequest) (model.Executable, error) {
	calls, err := b.writer.BuildBridge(ctx, req)
	if err != nil {
		return model.Executable{}, err
	}
	if len(calls) == 0 {
		return model.Executable{}, clierr.New(clierr.CodeUnavailable, "backend returned no bridge calls")
	}
	return b.Fold(calls)
}

func (b *Builder) BuildSwap(ctx context.Context, req providers.SwapRequest) (model.Executable, error) {
	calls, err := b.writer.BuildSwap(ctx, req)
	if err != nil {
		return model.Executable{}, err
	}
	if len(calls) == 0 {
		return model.Executable{}, clierr.New(clierr.CodeUnavailable, "backend returned no swap calls")
	}
	return b.Fold(calls)
}
