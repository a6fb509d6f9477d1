package registry

import "strings"

// Chain is a network the keeper holds USDC on.
type Chain struct {
	ID   int64
	Name string
	USDC string
}

const BaseChainID int64 = 8453

var chains = []Chain{
	{ID: 8453, Name: "BASE", USDC: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"},
	{ID: 1970, Name: "SWELL", USDC: "0xc0b2983A17A5E7f34E0aBcb00F3a77Bf709E2093"},
	{ID: 34443, Name: "MODE", USDC: "0xd988097fb8612cc24eec14542bc03424c656005f"},
}

// Chains returns the supported chains in their canonical order.
func Chains() []Chain {
	return append([]Chain(nil), chains...)
}

func ChainByID(id int64) (Chain, bool) {
	for _, c := range chains {
		if c.ID == id {
			return c, true
		}
	}
	return Chain{}, false
}

func ChainByName(name string) (Chain, bool) {
	for _, c := range chains {
		if strings.EqualFold(c.Name, strings.TrimSpace(name)) {
			return c, true
		}
	}
	return Chain{}, false
}
