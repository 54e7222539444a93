package policy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/coinbot/internal/model"
)

func usd(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func baseConfig() Config {
	return Config{
		SizingMode:              SizingCappedProportional,
		FixedOrderNotionalUSD:   usd(10),
		SizeMultiplier:          usd(1),
		MinOrderNotionalUSD:     usd(1),
		MaxNotionalPerOrderUSD:  usd(25),
		MaxSlippageBps:          120,
		NearExpiryCutoffSeconds: 25,
		MaxSourceStalenessMs:    4000,
	}
}

func TestApplyBlocksNearExpiry(t *testing.T) {
	p := New(baseConfig())
	now := time.Now().UTC()
	intent := model.ExecutionIntent{MarketID: "m1", Outcome: "Yes", Side: model.Buy, TargetNotionalUSD: usd(10)}
	events := []model.TradeEvent{{
		ExecutedTS: now,
		Window:     &model.MarketWindow{EndTS: now.Add(10 * time.Second)},
	}}

	decision := p.Apply(intent, events, now)
	if !decision.Blocked() || decision.BlockedReason != "near_expiry_cutoff" {
		t.Fatalf("expected near_expiry_cutoff block, got %+v", decision)
	}
}

func TestApplyBlocksStaleSource(t *testing.T) {
	p := New(baseConfig())
	now := time.Now().UTC()
	intent := model.ExecutionIntent{MarketID: "m1", Outcome: "Yes", Side: model.Buy, TargetNotionalUSD: usd(10)}
	events := []model.TradeEvent{{ExecutedTS: now.Add(-5 * time.Second)}}

	decision := p.Apply(intent, events, now)
	if !decision.Blocked() || decision.BlockedReason != "source_stale" {
		t.Fatalf("expected source_stale block, got %+v", decision)
	}
}

func TestApplyBlocksBelowMinNotional(t *testing.T) {
	cfg := baseConfig()
	cfg.MinOrderNotionalUSD = usd(5)
	p := New(cfg)
	now := time.Now().UTC()
	intent := model.ExecutionIntent{MarketID: "m1", Outcome: "Yes", Side: model.Buy, TargetNotionalUSD: usd(1)}

	decision := p.Apply(intent, nil, now)
	if !decision.Blocked() || decision.BlockedReason != "below_min_order_notional" {
		t.Fatalf("expected below_min_order_notional block, got %+v", decision)
	}
}

func TestCappedProportionalCapsAfterScaling(t *testing.T) {
	cfg := baseConfig()
	cfg.SizeMultiplier = usd(3)
	cfg.MaxNotionalPerOrderUSD = usd(20)
	p := New(cfg)
	now := time.Now().UTC()
	intent := model.ExecutionIntent{MarketID: "m1", Outcome: "Yes", Side: model.Buy, TargetNotionalUSD: usd(10)}

	decision := p.Apply(intent, nil, now)
	if decision.Blocked() {
		t.Fatalf("unexpected block: %s", decision.BlockedReason)
	}
	if !decision.Intent.TargetNotionalUSD.Equal(usd(20)) {
		t.Fatalf("expected size capped at 20, got %s", decision.Intent.TargetNotionalUSD)
	}
}

func TestFixedSizingIgnoresSourceNotional(t *testing.T) {
	cfg := baseConfig()
	cfg.SizingMode = SizingFixed
	cfg.FixedOrderNotionalUSD = usd(7)
	p := New(cfg)
	now := time.Now().UTC()
	intent := model.ExecutionIntent{MarketID: "m1", Outcome: "Yes", Side: model.Buy, TargetNotionalUSD: usd(999)}

	decision := p.Apply(intent, nil, now)
	if decision.Blocked() {
		t.Fatalf("unexpected block: %s", decision.BlockedReason)
	}
	if !decision.Intent.TargetNotionalUSD.Equal(usd(7)) {
		t.Fatalf("expected fixed size 7, got %s", decision.Intent.TargetNotionalUSD)
	}
}
