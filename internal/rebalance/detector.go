// Package rebalance detects cross-chain and cross-protocol imbalances and
// executes the approved moves through the settlement pipeline.
package rebalance

import (
	"math/big"

	"github.com/ggonzalez94/defi-keeper/internal/model"
)

const DefaultThresholdPercent int64 = 15

// Imbalance is one detection snapshot. High and Low never share a chain.
type Imbalance struct {
	Target *big.Int
	High   []model.ChainBalance
	Low    []model.ChainBalance
}

// Detect computes the equal-share target and the chains outside the
// ±thresholdPercent band around it. Arithmetic is integer throughout.
func Detect(balances []model.ChainBalance, thresholdPercent int64) Imbalance {
	out := Imbalance{Target: new(big.Int)}
	if len(balances) == 0 {
		return out
	}

	total := new(big.Int)
	for _, b := range balances {
		if b.Balance != nil {
			total.Add(total, b.Balance)
		}
	}
	out.Target.Quo(total, big.NewInt(int64(len(balances))))

	// Compare balance*100 against target*(100±θ) so neither edge is rounded.
	upper := scaled(out.Target, 100+thresholdPercent)
	lower := scaled(out.Target, 100-thresholdPercent)
	hundred := big.NewInt(100)
	for _, b := range balances {
		bal := new(big.Int).Mul(balanceOf(b), hundred)
		switch {
		case bal.Cmp(upper) > 0:
			out.High = append(out.High, b)
		case bal.Cmp(lower) < 0:
			out.Low = append(out.Low, b)
		}
	}
	return out
}

func scaled(v *big.Int, factor int64) *big.Int {
	return new(big.Int).Mul(v, big.NewInt(factor))
}

func balanceOf(b model.ChainBalance) *big.Int {
	if b.Balance == nil {
		return new(big.Int)
	}
	return b.Balance
}
