package risktracker

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/coinbot/internal/model"
)

func usd(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func TestCheckAndApplyOrdersWindowThenMarketThenDaily(t *testing.T) {
	now := time.Now().UTC()

	t.Run("window cap checked first", func(t *testing.T) {
		tr := New(Config{
			MaxTotalNotionalPer15mWindowUSD: usd(10),
			MaxNotionalPerMarketUSD:         usd(1000),
			MaxDailyTradedVolumeUSD:         usd(1000),
		})
		intent := model.ExecutionIntent{MarketID: "m1", WindowID: "w1", TargetNotionalUSD: usd(20)}
		snap := tr.CheckAndApply(intent, now)
		if !snap.Blocked || snap.BlockedReason != "window_cap_exceeded" {
			t.Fatalf("expected window_cap_exceeded, got %+v", snap)
		}
	})

	t.Run("market cap checked before daily", func(t *testing.T) {
		tr := New(Config{
			MaxTotalNotionalPer15mWindowUSD: usd(1000),
			MaxNotionalPerMarketUSD:         usd(10),
			MaxDailyTradedVolumeUSD:         usd(1000),
		})
		intent := model.ExecutionIntent{MarketID: "m1", WindowID: "w1", TargetNotionalUSD: usd(20)}
		snap := tr.CheckAndApply(intent, now)
		if !snap.Blocked || snap.BlockedReason != "market_cap_exceeded" {
			t.Fatalf("expected market_cap_exceeded, got %+v", snap)
		}
	})

	t.Run("daily cap last", func(t *testing.T) {
		tr := New(Config{
			MaxTotalNotionalPer15mWindowUSD: usd(1000),
			MaxNotionalPerMarketUSD:         usd(1000),
			MaxDailyTradedVolumeUSD:         usd(10),
		})
		intent := model.ExecutionIntent{MarketID: "m1", WindowID: "w1", TargetNotionalUSD: usd(20)}
		snap := tr.CheckAndApply(intent, now)
		if !snap.Blocked || snap.BlockedReason != "daily_cap_exceeded" {
			t.Fatalf("expected daily_cap_exceeded, got %+v", snap)
		}
	})
}

func TestCheckAndApplyCommitsAllThreeCountersOnPass(t *testing.T) {
	tr := New(Config{
		MaxTotalNotionalPer15mWindowUSD: usd(100),
		MaxNotionalPerMarketUSD:         usd(100),
		MaxDailyTradedVolumeUSD:         usd(100),
	})
	now := time.Now().UTC()
	intent := model.ExecutionIntent{MarketID: "m1", WindowID: "w1", TargetNotionalUSD: usd(10)}

	snap := tr.CheckAndApply(intent, now)
	if snap.Blocked {
		t.Fatalf("unexpected block: %s", snap.BlockedReason)
	}

	// A second call against the same counters should reflect the committed
	// totals from the first, proving window/market/daily all advanced together.
	snap2 := tr.CheckAndApply(intent, now)
	if snap2.Blocked {
		t.Fatalf("unexpected block on second call: %s", snap2.BlockedReason)
	}
	if !snap2.TotalNotionalCurrent15mUSD.Equal(usd(20)) {
		t.Errorf("expected window total 20, got %s", snap2.TotalNotionalCurrent15mUSD)
	}
	if !snap2.TotalNotionalTodayUSD.Equal(usd(20)) {
		t.Errorf("expected daily total 20, got %s", snap2.TotalNotionalTodayUSD)
	}
	if !snap2.MarketExposureUSD["m1"].Equal(usd(20)) {
		t.Errorf("expected market total 20, got %s", snap2.MarketExposureUSD["m1"])
	}
}

func TestDailyRolloverResetsDailyButNotMarketOrWindow(t *testing.T) {
	tr := New(Config{
		MaxTotalNotionalPer15mWindowUSD: usd(100),
		MaxNotionalPerMarketUSD:         usd(100),
		MaxDailyTradedVolumeUSD:         usd(100),
	})
	day1 := time.Date(2026, 7, 30, 23, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 7, 31, 1, 0, 0, 0, time.UTC)

	intent := model.ExecutionIntent{MarketID: "m1", WindowID: "w1", TargetNotionalUSD: usd(10)}
	tr.CheckAndApply(intent, day1)

	snap := tr.CheckAndApply(intent, day2)
	if snap.Blocked {
		t.Fatalf("unexpected block after rollover: %s", snap.BlockedReason)
	}
	if !snap.TotalNotionalTodayUSD.Equal(usd(10)) {
		t.Errorf("expected daily counter reset to 10, got %s", snap.TotalNotionalTodayUSD)
	}
	// the per-market budget is a standing cap, not a daily allowance, so it
	// must keep accumulating across the rollover rather than reset to 10.
	if !snap.MarketExposureUSD["m1"].Equal(usd(20)) {
		t.Errorf("expected market counter to persist at 20, got %s", snap.MarketExposureUSD["m1"])
	}
	// window counter persists across the rollover; second call in the same
	// window should show the accumulated 20, not a reset 10.
	if !snap.TotalNotionalCurrent15mUSD.Equal(usd(20)) {
		t.Errorf("expected window counter to persist at 20, got %s", snap.TotalNotionalCurrent15mUSD)
	}
}

func TestResetWindowClearsCounter(t *testing.T) {
	tr := New(Config{
		MaxTotalNotionalPer15mWindowUSD: usd(100),
		MaxNotionalPerMarketUSD:         usd(100),
		MaxDailyTradedVolumeUSD:         usd(100),
	})
	now := time.Now().UTC()
	intent := model.ExecutionIntent{MarketID: "m1", WindowID: "w1", TargetNotionalUSD: usd(10)}
	tr.CheckAndApply(intent, now)

	tr.ResetWindow("w1")

	snap := tr.CheckAndApply(intent, now)
	if !snap.TotalNotionalCurrent15mUSD.Equal(usd(10)) {
		t.Errorf("expected window counter cleared then rebuilt to 10, got %s", snap.TotalNotionalCurrent15mUSD)
	}
}
