package yieldutil

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ggonzalez94/defi-keeper/internal/model"
)

// PositiveFirst returns the first strictly positive value, or zero.
func PositiveFirst(values ...decimal.Decimal) decimal.Decimal {
	for _, value := range values {
		if value.IsPositive() {
			return value
		}
	}
	return decimal.Zero
}

// ParseTVL reads a TVL string leniently. Unparsable values rank as zero.
func ParseTVL(raw string) decimal.Decimal {
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero
	}
	return v
}

// Sort orders yields best first: highest APY, then highest TVL, then
// protocol name.
func Sort(items []model.YieldData) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.APY.Equal(b.APY) {
			return a.APY.GreaterThan(b.APY)
		}
		aTVL, bTVL := ParseTVL(a.TVL), ParseTVL(b.TVL)
		if !aTVL.Equal(bTVL) {
			return aTVL.GreaterThan(bTVL)
		}
		return strings.Compare(a.Protocol, b.Protocol) < 0
	})
}

// Best returns the top-ranked yield without reordering the input.
func Best(items []model.YieldData) (model.YieldData, bool) {
	if len(items) == 0 {
		return model.YieldData{}, false
	}
	ranked := append([]model.YieldData(nil), items...)
	Sort(ranked)
	return ranked[0], true
}
