package orchestrator

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/coinbot/internal/model"
)

func TestLimitPriceAndSizePadsBuyAboveLastFill(t *testing.T) {
	intent := model.ExecutionIntent{
		Side:              model.Buy,
		MaxSlippageBps:    100, // 1%
		TargetNotionalUSD: decimal.NewFromInt(10),
	}
	sourceEvents := []model.TradeEvent{{Price: decimal.NewFromFloat(0.50)}}

	price, size := limitPriceAndSize(intent, sourceEvents)

	wantPrice := decimal.NewFromFloat(0.505)
	if !price.Equal(wantPrice) {
		t.Errorf("price = %v, want %v", price, wantPrice)
	}
	wantSize := decimal.NewFromInt(10).Div(wantPrice)
	if !size.Equal(wantSize) {
		t.Errorf("size = %v, want %v", size, wantSize)
	}
}

func TestLimitPriceAndSizePadsSellBelowLastFill(t *testing.T) {
	intent := model.ExecutionIntent{
		Side:              model.Sell,
		MaxSlippageBps:    100,
		TargetNotionalUSD: decimal.NewFromInt(10),
	}
	sourceEvents := []model.TradeEvent{{Price: decimal.NewFromFloat(0.50)}}

	price, _ := limitPriceAndSize(intent, sourceEvents)

	wantPrice := decimal.NewFromFloat(0.495)
	if !price.Equal(wantPrice) {
		t.Errorf("price = %v, want %v", price, wantPrice)
	}
}

func TestLimitPriceAndSizeFallsBackToMidWithNoSourceEvents(t *testing.T) {
	intent := model.ExecutionIntent{
		Side:              model.Buy,
		MaxSlippageBps:    0,
		TargetNotionalUSD: decimal.NewFromInt(5),
	}

	price, size := limitPriceAndSize(intent, nil)

	if !price.Equal(decimal.NewFromFloat(0.5)) {
		t.Errorf("price = %v, want 0.5", price)
	}
	if !size.Equal(decimal.NewFromInt(10)) {
		t.Errorf("size = %v, want 10", size)
	}
}

func TestLimitPriceAndSizeFloorsNonPositivePriceAtOneCent(t *testing.T) {
	intent := model.ExecutionIntent{
		Side:              model.Sell,
		MaxSlippageBps:    10_000, // 100% haircut drives price to zero
		TargetNotionalUSD: decimal.NewFromInt(1),
	}
	sourceEvents := []model.TradeEvent{{Price: decimal.NewFromFloat(0.10)}}

	price, _ := limitPriceAndSize(intent, sourceEvents)

	if !price.Equal(decimal.NewFromFloat(0.01)) {
		t.Errorf("price = %v, want 0.01 floor", price)
	}
}
