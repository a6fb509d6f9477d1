package rebalance

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/ggonzalez94/defi-keeper/internal/model"
	"github.com/ggonzalez94/defi-keeper/internal/providers/yieldutil"
)

var (
	DefaultMinAPYDifference   = decimal.RequireFromString("0.5")
	DefaultRebalanceThreshold = big.NewInt(5_000_000)
)

// Holding is the account's balance in one protocol.
type Holding struct {
	Protocol string   `json:"protocol"`
	Amount   *big.Int `json:"amount"`
}

// FindOpportunities proposes moving each holding into the best-yielding
// protocol when the APY gain is at least minAPYDifference and the holding is
// at least threshold. Holdings are visited in the given order.
func FindOpportunities(holdings []Holding, yields []model.YieldData, minAPYDifference decimal.Decimal, threshold *big.Int) []model.RebalanceOpportunity {
	best, ok := yieldutil.Best(yields)
	if !ok {
		return nil
	}
	current := map[string]model.YieldData{}
	for _, y := range yields {
		if _, seen := current[y.Protocol]; !seen {
			current[y.Protocol] = y
		}
	}

	var out []model.RebalanceOpportunity
	for _, h := range holdings {
		from, ok := current[h.Protocol]
		if !ok || h.Amount == nil {
			continue
		}
		if from.Protocol == best.Protocol {
			continue
		}
		if best.APY.Sub(from.APY).LessThan(minAPYDifference) {
			continue
		}
		if threshold != nil && h.Amount.Cmp(threshold) < 0 {
			continue
		}
		out = append(out, model.RebalanceOpportunity{From: from, To: best, Amount: new(big.Int).Set(h.Amount)})
	}
	return out
}
