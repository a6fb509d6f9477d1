package rebalance

import (
	"math/big"
	"sort"

	"github.com/ggonzalez94/defi-keeper/internal/model"
)

// Match pairs surplus chains with deficit chains in a single greedy pass.
// Each side keeps a running pool, so the total assigned out of a chain never
// exceeds its surplus and the total assigned into a chain never exceeds its
// deficit.
func Match(imb Imbalance) []model.RebalanceAction {
	if imb.Target == nil || len(imb.High) == 0 || len(imb.Low) == 0 {
		return nil
	}

	type pool struct {
		chain     model.ChainBalance
		remaining *big.Int
	}
	highs := make([]pool, 0, len(imb.High))
	for _, h := range imb.High {
		highs = append(highs, pool{chain: h, remaining: new(big.Int).Sub(balanceOf(h), imb.Target)})
	}
	lows := make([]pool, 0, len(imb.Low))
	for _, l := range imb.Low {
		lows = append(lows, pool{chain: l, remaining: new(big.Int).Sub(imb.Target, balanceOf(l))})
	}
	order := func(ps []pool) {
		sort.SliceStable(ps, func(i, j int) bool {
			if c := ps[i].remaining.Cmp(ps[j].remaining); c != 0 {
				return c > 0
			}
			return ps[i].chain.ChainID < ps[j].chain.ChainID
		})
	}
	order(highs)
	order(lows)

	var actions []model.RebalanceAction
	i, j := 0, 0
	for i < len(highs) && j < len(lows) {
		h, l := &highs[i], &lows[j]
		amount := new(big.Int).Set(h.remaining)
		if l.remaining.Cmp(amount) < 0 {
			amount.Set(l.remaining)
		}
		if amount.Sign() > 0 {
			actions = append(actions, model.RebalanceAction{Source: h.chain, Destination: l.chain, Amount: amount})
			h.remaining.Sub(h.remaining, amount)
			l.remaining.Sub(l.remaining, amount)
		}
		if h.remaining.Sign() <= 0 {
			i++
		}
		if l.remaining.Sign() <= 0 {
			j++
		}
	}
	return actions
}
