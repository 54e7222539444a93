package pnl

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/coinbot/internal/model"
)

func usd(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func TestApplyFillWeightedAverageOnRepeatedBuys(t *testing.T) {
	tr := New(decimal.Zero, nil)
	tr.ApplyFill("m1", "Yes", model.Buy, usd(10), usd(0.40))
	tr.ApplyFill("m1", "Yes", model.Buy, usd(10), usd(0.60))

	pos, ok := tr.Position("m1", "Yes")
	if !ok {
		t.Fatal("expected position to exist")
	}
	if !pos.Qty.Equal(usd(20)) {
		t.Fatalf("expected qty 20, got %s", pos.Qty)
	}
	if !pos.AvgPrice.Equal(usd(0.50)) {
		t.Fatalf("expected avg price 0.50, got %s", pos.AvgPrice)
	}
}

func TestApplyFillRealizesOnPartialSell(t *testing.T) {
	tr := New(decimal.Zero, nil)
	tr.ApplyFill("m1", "Yes", model.Buy, usd(10), usd(0.40))
	tr.ApplyFill("m1", "Yes", model.Sell, usd(4), usd(0.60))

	pos, _ := tr.Position("m1", "Yes")
	if !pos.Qty.Equal(usd(6)) {
		t.Fatalf("expected remaining qty 6, got %s", pos.Qty)
	}

	snap := tr.Snapshot()
	if !snap.RealizedTradingUSD.Equal(usd(0.8)) {
		t.Fatalf("expected realized 0.8 (4 * (0.60-0.40)), got %s", snap.RealizedTradingUSD)
	}
}

func TestApplyFillSellBeyondLongOpensShort(t *testing.T) {
	tr := New(decimal.Zero, nil)
	tr.ApplyFill("m1", "Yes", model.Buy, usd(5), usd(0.40))
	tr.ApplyFill("m1", "Yes", model.Sell, usd(8), usd(0.60))

	pos, _ := tr.Position("m1", "Yes")
	if !pos.Qty.Equal(usd(-3)) {
		t.Fatalf("expected short residual -3, got %s", pos.Qty)
	}
	if !pos.AvgPrice.Equal(usd(0.60)) {
		t.Fatalf("expected short opened at fill price 0.60, got %s", pos.AvgPrice)
	}
}

func TestApplyFillAccruesFeesOnEveryFill(t *testing.T) {
	tr := New(decimal.NewFromInt(50), nil) // 50 bps = 0.5%
	tr.ApplyFill("m1", "Yes", model.Buy, usd(100), usd(0.50))

	snap := tr.Snapshot()
	want := usd(100).Mul(usd(0.50)).Mul(decimal.NewFromInt(50)).Div(decimal.NewFromInt(10_000))
	if !snap.FeesUSD.Equal(want) {
		t.Fatalf("expected fees %s, got %s", want, snap.FeesUSD)
	}
}

func TestSettleMarketUsesWinningOutcomeWhenNoExplicitPrice(t *testing.T) {
	tr := New(decimal.Zero, nil)
	tr.ApplyFill("m1", "Yes", model.Buy, usd(10), usd(0.40))
	tr.ApplyFill("m1", "No", model.Buy, usd(10), usd(0.60))

	settled := tr.SettleMarket("m1", "Yes", nil)
	if settled != 2 {
		t.Fatalf("expected 2 positions settled, got %d", settled)
	}

	snap := tr.Snapshot()
	// Yes settles at 1: (1-0.40)*10 = 6. No settles at 0: (0-0.60)*10 = -6.
	if !snap.RealizedSettledUSD.Equal(usd(0)) {
		t.Fatalf("expected net realized settled 0, got %s", snap.RealizedSettledUSD)
	}

	posYes, _ := tr.Position("m1", "Yes")
	if !posYes.Qty.IsZero() {
		t.Fatalf("expected position flattened after settlement, got qty %s", posYes.Qty)
	}
}

func TestSettleMarketSkipsZeroQtyPositions(t *testing.T) {
	tr := New(decimal.Zero, nil)
	tr.ApplyFill("m1", "Yes", model.Buy, usd(10), usd(0.40))
	tr.ApplyFill("m1", "Yes", model.Sell, usd(10), usd(0.60)) // flattens to zero

	settled := tr.SettleMarket("m1", "Yes", nil)
	if settled != 0 {
		t.Fatalf("expected 0 positions settled (already flat), got %d", settled)
	}
}

func TestOpenMarketsListsOnlyNonZeroPositions(t *testing.T) {
	tr := New(decimal.Zero, nil)
	tr.ApplyFill("m1", "Yes", model.Buy, usd(10), usd(0.40))
	tr.ApplyFill("m2", "Yes", model.Buy, usd(10), usd(0.40))
	tr.ApplyFill("m2", "Yes", model.Sell, usd(10), usd(0.50)) // flattens m2

	open := tr.OpenMarkets()
	if len(open) != 1 || open[0] != "m1" {
		t.Fatalf("expected only m1 open, got %v", open)
	}
}
