package settlement

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ggonzalez94/defi-keeper/internal/errors"
	"github.com/ggonzalez94/defi-keeper/internal/model"
)

// SkipError marks a task that is reported as skipped instead of settled. It
// unwraps to a CodeValidation error.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string { return e.Reason }

func (e *SkipError) Unwrap() error { return clierr.New(clierr.CodeValidation, e.Reason) }

func skip(format string, args ...any) error {
	return &SkipError{Reason: fmt.Sprintf(format, args...)}
}

// IsSkip reports whether err asks for the task to be skipped.
func IsSkip(err error) bool {
	var target *SkipError
	return errors.As(err, &target)
}

// ValidateTask checks that a task carries a complete subscription and returns
// the parsed transfer amount.
func ValidateTask(task model.Task) (*big.Int, error) {
	md := task.Metadata
	var missing []string
	if strings.TrimSpace(md.Every) == "" {
		missing = append(missing, "every")
	}
	if strings.TrimSpace(md.Receiver) == "" {
		missing = append(missing, "receiver")
	}
	if strings.TrimSpace(md.TransferAmount) == "" {
		missing = append(missing, "transferAmount")
	}
	if len(missing) > 0 {
		return nil, skip("inconsistent task params: missing %s", strings.Join(missing, ", "))
	}
	if !common.IsHexAddress(task.SubAccount) {
		return nil, skip("invalid sub-account address %q", task.SubAccount)
	}
	if !common.IsHexAddress(md.Receiver) {
		return nil, skip("invalid receiver address %q", md.Receiver)
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(md.TransferAmount), 10)
	if !ok {
		return nil, skip("transferAmount %q is not a base-unit integer", md.TransferAmount)
	}
	if amount.Sign() <= 0 {
		return nil, skip("transferAmount must be positive")
	}
	return amount, nil
}

// CheckBalance skips a task whose sub-account cannot cover the transfer. A
// task that was already settled fails here on re-fetch, which keeps
// settlement idempotent.
func CheckBalance(balance, amount *big.Int) error {
	if balance == nil || balance.Cmp(amount) < 0 {
		return skip("insufficient balance or automation already completed")
	}
	return nil
}
