// Package multisend folds a list of calls into one Safe MultiSend delegatecall.
package multisend

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	clierr "github.com/ggonzalez94/defi-keeper/internal/errors"
	"github.com/ggonzalez94/defi-keeper/internal/model"
	"github.com/ggonzalez94/defi-keeper/internal/registry"
)

var (
	parsedOnce sync.Once
	parsedABI  abi.ABI
	parsedErr  error
)

func multiSendABI() (abi.ABI, error) {
	parsedOnce.Do(func() {
		parsedABI, parsedErr = abi.JSON(strings.NewReader(registry.MultiSendABI))
	})
	return parsedABI, parsedErr
}

// Pack produces the packed transactions blob:
// operation (1 byte) | to (20 bytes) | value (32 bytes) | data length (32 bytes) | data.
func Pack(calls []model.Call) ([]byte, error) {
	if len(calls) == 0 {
		return nil, clierr.New(clierr.CodeValidation, "no calls to batch")
	}
	var out []byte
	for i, call := range calls {
		if call.Operation != model.CallTypeCall && call.Operation != model.CallTypeDelegateCall {
			return nil, clierr.New(clierr.CodeValidation, fmt.Sprintf("call %d: unsupported operation %d", i, call.Operation))
		}
		if !common.IsHexAddress(call.To) {
			return nil, clierr.New(clierr.CodeValidation, fmt.Sprintf("call %d: invalid target %q", i, call.To))
		}
		value, err := ParseValue(call.Value)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeValidation, fmt.Sprintf("call %d: value", i), err)
		}
		data, err := decodeHex(call.Data)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeValidation, fmt.Sprintf("call %d: data", i), err)
		}

		out = append(out, byte(call.Operation))
		out = append(out, common.HexToAddress(call.To).Bytes()...)
		out = append(out, common.LeftPadBytes(value.Bytes(), 32)...)
		out = append(out, common.LeftPadBytes(big.NewInt(int64(len(data))).Bytes(), 32)...)
		out = append(out, data...)
	}
	return out, nil
}

// Encode wraps the packed calls in multiSend(bytes) and returns the executable
// that delegatecalls the MultiSend contract with zero value.
func Encode(calls []model.Call, multiSend common.Address) (model.Executable, error) {
	packed, err := Pack(calls)
	if err != nil {
		return model.Executable{}, err
	}
	parsed, err := multiSendABI()
	if err != nil {
		return model.Executable{}, clierr.Wrap(clierr.CodeInternal, "parse multisend abi", err)
	}
	data, err := parsed.Pack("multiSend", packed)
	if err != nil {
		return model.Executable{}, clierr.Wrap(clierr.CodeInternal, "encode multiSend call", err)
	}
	return model.Executable{
		CallType: model.CallTypeDelegateCall,
		To:       multiSend.Hex(),
		Value:    "0",
		Data:     hexutil.Encode(data),
	}, nil
}

// ParseValue reads a non-negative uint256 from a decimal or 0x-hex string.
// An empty string is zero.
func ParseValue(raw string) (*big.Int, error) {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return new(big.Int), nil
	}
	v := new(big.Int)
	var ok bool
	if strings.HasPrefix(clean, "0x") || strings.HasPrefix(clean, "0X") {
		if len(clean) == 2 {
			return v, nil
		}
		_, ok = v.SetString(clean[2:], 16)
	} else {
		_, ok = v.SetString(clean, 10)
	}
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("amount must be non-negative")
	}
	if v.BitLen() > 256 {
		return nil, fmt.Errorf("amount exceeds uint256")
	}
	return v, nil
}

func decodeHex(v string) ([]byte, error) {
	clean := strings.TrimSpace(v)
	clean = strings.TrimPrefix(clean, "0x")
	if clean == "" {
		return []byte{}, nil
	}
	if len(clean)%2 != 0 {
		clean = "0" + clean
	}
	buf, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return buf, nil
}
