package registry

import "strings"

// Protocol is a lending protocol tracked by the yield optimizer.
type Protocol struct {
	Key     string
	EnsoID  string
	ChainID int64
	Markets []ProtocolMarket
}

type ProtocolMarket struct {
	Pool  string
	Token string
}

var protocols = []Protocol{
	{
		Key:     "AAVE",
		EnsoID:  "aave-v3",
		ChainID: BaseChainID,
		Markets: []ProtocolMarket{{Pool: "0xe0B015E54d54fc84A6cB9B666099c46adE9335FF", Token: chains[0].USDC}},
	},
	{
		Key:     "MORPHO",
		EnsoID:  "morpho",
		ChainID: BaseChainID,
		Markets: []ProtocolMarket{{Pool: "0xc1fc9E5eC3058921eA5025D703CBE31764756319", Token: chains[0].USDC}},
	},
	{
		Key:     "FLUID",
		EnsoID:  "fluid",
		ChainID: BaseChainID,
		Markets: []ProtocolMarket{{Pool: "0x1A5E82708221faD9336f3148D60Bfb9d8A297dE9", Token: chains[0].USDC}},
	},
}

func Protocols() []Protocol {
	out := make([]Protocol, 0, len(protocols))
	for _, p := range protocols {
		p.Markets = append([]ProtocolMarket(nil), p.Markets...)
		out = append(out, p)
	}
	return out
}

// SelectProtocols returns the protocols whose key matches one of names, in
// canonical order. An empty filter selects all of them.
func SelectProtocols(names []string) ([]Protocol, []string) {
	if len(names) == 0 {
		return Protocols(), nil
	}
	want := map[string]bool{}
	for _, n := range names {
		want[strings.ToUpper(strings.TrimSpace(n))] = true
	}
	var out []Protocol
	for _, p := range Protocols() {
		if want[p.Key] {
			out = append(out, p)
			delete(want, p.Key)
		}
	}
	var unknown []string
	for n := range want {
		unknown = append(unknown, n)
	}
	return out, unknown
}
