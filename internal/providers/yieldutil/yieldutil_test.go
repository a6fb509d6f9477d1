package yieldutil

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ggonzalez94/defi-keeper/internal/model"
)

func TestPositiveFirst(t *testing.T) {
	got := PositiveFirst(decimal.NewFromInt(-1), decimal.Zero, decimal.RequireFromString("4.2"), decimal.NewFromInt(5))
	if !got.Equal(decimal.RequireFromString("4.2")) {
		t.Fatalf("expected first positive value, got %s", got)
	}
}

func TestSort(t *testing.T) {
	items := []model.YieldData{
		{Protocol: "morpho", APY: decimal.RequireFromString("8"), TVL: "100"},
		{Protocol: "aave-v3", APY: decimal.RequireFromString("8"), TVL: "100"},
		{Protocol: "fluid", APY: decimal.RequireFromString("4"), TVL: "900"},
		{Protocol: "euler", APY: decimal.RequireFromString("8"), TVL: "250"},
	}
	Sort(items)
	want := []string{"euler", "aave-v3", "morpho", "fluid"}
	for i, p := range want {
		if items[i].Protocol != p {
			t.Fatalf("unexpected sort order at %d: %#v", i, items)
		}
	}
}

func TestBestDoesNotReorderInput(t *testing.T) {
	items := []model.YieldData{
		{Protocol: "a", APY: decimal.RequireFromString("1.5")},
		{Protocol: "b", APY: decimal.RequireFromString("2.5")},
	}
	best, ok := Best(items)
	if !ok || best.Protocol != "b" {
		t.Fatalf("unexpected best %#v", best)
	}
	if items[0].Protocol != "a" {
		t.Fatal("input was reordered")
	}
	if _, ok := Best(nil); ok {
		t.Fatal("expected no best for empty input")
	}
}
