package settlement

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	clierr "github.com/ggonzalez94/defi-keeper/internal/errors"
	"github.com/ggonzalez94/defi-keeper/internal/model"
	"github.com/ggonzalez94/defi-keeper/internal/providers"
	"github.com/ggonzalez94/defi-keeper/internal/signer"
)

type Authorization struct {
	Nonce     string
	Signature string
	Executor  string
}

// Authorizer produces the executor signature over an executable digest.
type Authorizer struct {
	backend providers.ExecutorBackend
	signer  signer.Signer
	plugin  common.Address
}

func NewAuthorizer(backend providers.ExecutorBackend, s signer.Signer, plugin common.Address) *Authorizer {
	return &Authorizer{backend: backend, signer: s, plugin: plugin}
}

func (a *Authorizer) Executor() common.Address {
	return a.signer.Address()
}

func (a *Authorizer) Authorize(ctx context.Context, account string, chainID int64, exe model.Executable) (Authorization, error) {
	executor := a.signer.Address().Hex()
	nonce, err := a.backend.FetchExecutorNonce(ctx, account, executor, chainID)
	if err != nil {
		return Authorization{}, err
	}
	typed, err := a.backend.ExecutableDigest(ctx, providers.DigestRequest{
		Account:       account,
		ChainID:       chainID,
		Data:          exe.Data,
		Executor:      executor,
		Nonce:         nonce,
		Operation:     exe.CallType,
		PluginAddress: a.plugin.Hex(),
		To:            exe.To,
		Value:         exe.Value,
	})
	if err != nil {
		return Authorization{}, err
	}

	sig, err := a.signer.SignTypedData(typed)
	if err != nil {
		return Authorization{}, clierr.Wrap(clierr.CodeSigner, "sign executable digest", err)
	}
	recovered, err := signer.RecoverTypedData(typed, sig)
	if err != nil {
		return Authorization{}, clierr.Wrap(clierr.CodeSigner, "verify executable signature", err)
	}
	if recovered != a.signer.Address() {
		return Authorization{}, clierr.New(clierr.CodeSigner, fmt.Sprintf("signature recovers to %s, expected executor %s", recovered.Hex(), executor))
	}
	return Authorization{Nonce: nonce, Signature: hexutil.Encode(sig), Executor: executor}, nil
}
