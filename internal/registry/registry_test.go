package registry

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

func TestABIConstantsParse(t *testing.T) {
	for _, raw := range []string{ERC20MinimalABI, MultiSendABI} {
		if _, err := abi.JSON(strings.NewReader(raw)); err != nil {
			t.Fatalf("failed to parse abi json: %v", err)
		}
	}
}

func TestMultiSendSelector(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(MultiSendABI))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := common.Bytes2Hex(parsed.Methods["multiSend"].ID); got != "8d80ff0a" {
		t.Fatalf("unexpected multiSend selector %s", got)
	}
}

func TestChainsHaveRPCDefaultsAndValidTokens(t *testing.T) {
	for _, c := range Chains() {
		if rpc, ok := DefaultRPCURL(c.ID); !ok || rpc == "" {
			t.Fatalf("expected rpc default for %s", c.Name)
		}
		if !common.IsHexAddress(c.USDC) {
			t.Fatalf("invalid usdc address for %s: %s", c.Name, c.USDC)
		}
	}
	if c, ok := ChainByName("mode"); !ok || c.ID != 34443 {
		t.Fatalf("expected mode lookup by name, got %+v ok=%v", c, ok)
	}
}

func TestResolveRPCURLPrefersOverride(t *testing.T) {
	got, err := ResolveRPCURL(map[int64]string{8453: " http://127.0.0.1:8545 "}, 8453)
	if err != nil || got != "http://127.0.0.1:8545" {
		t.Fatalf("expected override, got %q err=%v", got, err)
	}
	if _, err := ResolveRPCURL(nil, 999999); err == nil {
		t.Fatal("expected error for unknown chain without override")
	}
}

func TestSelectProtocols(t *testing.T) {
	got, unknown := SelectProtocols([]string{"morpho", "aave", "compound"})
	if len(got) != 2 || got[0].Key != "AAVE" || got[1].Key != "MORPHO" {
		t.Fatalf("unexpected selection %+v", got)
	}
	if len(unknown) != 1 || unknown[0] != "COMPOUND" {
		t.Fatalf("unexpected unknown %v", unknown)
	}
	all, _ := SelectProtocols(nil)
	if len(all) != 3 {
		t.Fatalf("expected all protocols, got %d", len(all))
	}
}

func TestIsAllowedBaseURL(t *testing.T) {
	cases := map[string]bool{
		"https://api.enso.finance/api/v1": true,
		"http://127.0.0.1:8080":           true,
		"http://localhost:9999/v1":        true,
		"http://api.enso.finance":         false,
		"ftp://localhost":                 false,
		"":                                false,
	}
	for in, want := range cases {
		if got := IsAllowedBaseURL(in); got != want {
			t.Fatalf("%q: expected %v, got %v", in, want, got)
		}
	}
}
