package rebalance

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggonzalez94/defi-keeper/internal/model"
)

func yieldOf(protocol, apy, tvl string) model.YieldData {
	return model.YieldData{Protocol: protocol, APY: decimal.RequireFromString(apy), TVL: tvl, MarketAddress: "0x" + protocol}
}

func TestFindOpportunitiesMovesToBestProtocol(t *testing.T) {
	yields := []model.YieldData{yieldOf("AAVE", "3.1", "100"), yieldOf("MORPHO", "4.2", "50"), yieldOf("FLUID", "3.9", "70")}
	holdings := []Holding{
		{Protocol: "AAVE", Amount: big.NewInt(10_000_000)},
		{Protocol: "FLUID", Amount: big.NewInt(20_000_000)},
		{Protocol: "MORPHO", Amount: big.NewInt(30_000_000)},
	}

	opps := FindOpportunities(holdings, yields, DefaultMinAPYDifference, DefaultRebalanceThreshold)
	require.Len(t, opps, 1, "fluid gains only 0.3")
	assert.Equal(t, "AAVE", opps[0].From.Protocol)
	assert.Equal(t, "MORPHO", opps[0].To.Protocol)
	assert.Equal(t, int64(10_000_000), opps[0].Amount.Int64())
}

func TestFindOpportunitiesAppliesThresholds(t *testing.T) {
	yields := []model.YieldData{yieldOf("AAVE", "3", "1"), yieldOf("MORPHO", "3.5", "1")}

	exact := FindOpportunities([]Holding{{Protocol: "AAVE", Amount: big.NewInt(5_000_000)}}, yields, DefaultMinAPYDifference, DefaultRebalanceThreshold)
	assert.Len(t, exact, 1, "difference and amount bounds are inclusive")

	small := FindOpportunities([]Holding{{Protocol: "AAVE", Amount: big.NewInt(4_999_999)}}, yields, DefaultMinAPYDifference, DefaultRebalanceThreshold)
	assert.Empty(t, small)

	strict := FindOpportunities([]Holding{{Protocol: "AAVE", Amount: big.NewInt(9_000_000)}}, yields, decimal.RequireFromString("0.51"), DefaultRebalanceThreshold)
	assert.Empty(t, strict)
}

func TestFindOpportunitiesTieBreaksOnTVL(t *testing.T) {
	yields := []model.YieldData{yieldOf("AAVE", "2", "1"), yieldOf("MORPHO", "5", "10"), yieldOf("FLUID", "5", "90")}
	opps := FindOpportunities([]Holding{{Protocol: "AAVE", Amount: big.NewInt(6_000_000)}}, yields, DefaultMinAPYDifference, DefaultRebalanceThreshold)
	require.Len(t, opps, 1)
	assert.Equal(t, "FLUID", opps[0].To.Protocol)
}

func TestFindOpportunitiesIgnoresUnknownHoldings(t *testing.T) {
	yields := []model.YieldData{yieldOf("MORPHO", "5", "10")}
	assert.Empty(t, FindOpportunities([]Holding{{Protocol: "EULER", Amount: big.NewInt(9_000_000)}}, yields, DefaultMinAPYDifference, DefaultRebalanceThreshold))
	assert.Empty(t, FindOpportunities(nil, nil, DefaultMinAPYDifference, DefaultRebalanceThreshold))
}
