// Package risktracker enforces the three notional-volume budgets (15-minute
// window, per-market, daily) that gate every sized intent before submission.
package risktracker

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/coinbot/internal/model"
)

type Config struct {
	MaxTotalNotionalPer15mWindowUSD decimal.Decimal
	MaxNotionalPerMarketUSD         decimal.Decimal
	MaxDailyTradedVolumeUSD         decimal.Decimal
}

// Tracker maintains running, never-decreasing notional counters. Only the
// daily counter resets, on UTC midnight rollover; the per-market and
// per-window counters are standing budgets that only an explicit ResetWindow
// call (per-window only) clears.
type Tracker struct {
	mu sync.Mutex
	cfg Config

	windowNotional map[string]decimal.Decimal
	marketNotional map[string]decimal.Decimal
	dailyNotional  decimal.Decimal
	lastResetDay   int
}

func New(cfg Config) *Tracker {
	return &Tracker{
		cfg:            cfg,
		windowNotional: make(map[string]decimal.Decimal),
		marketNotional: make(map[string]decimal.Decimal),
		lastResetDay:   time.Now().UTC().YearDay(),
	}
}

// CheckAndApply evaluates intent against the three ordered caps. On pass, it
// commits all three counters atomically and returns an unblocked snapshot.
func (t *Tracker) CheckAndApply(intent model.ExecutionIntent, now time.Time) model.RiskSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.checkDayReset(now)

	windowID := intent.WindowID
	if windowID == "" {
		windowID = "na"
	}

	windowCurrent := t.windowNotional[windowID]
	windowProjected := windowCurrent.Add(intent.TargetNotionalUSD)
	if windowProjected.GreaterThan(t.cfg.MaxTotalNotionalPer15mWindowUSD) {
		return model.RiskSnapshot{
			TotalNotionalTodayUSD:      t.dailyNotional,
			TotalNotionalCurrent15mUSD: windowCurrent,
			MarketExposureUSD:          map[string]decimal.Decimal{},
			Blocked:                    true,
			BlockedReason:              "window_cap_exceeded",
		}
	}

	marketCurrent := t.marketNotional[intent.MarketID]
	marketProjected := marketCurrent.Add(intent.TargetNotionalUSD)
	if marketProjected.GreaterThan(t.cfg.MaxNotionalPerMarketUSD) {
		return model.RiskSnapshot{
			TotalNotionalTodayUSD:      t.dailyNotional,
			TotalNotionalCurrent15mUSD: windowCurrent,
			MarketExposureUSD:          map[string]decimal.Decimal{intent.MarketID: marketCurrent},
			Blocked:                    true,
			BlockedReason:              "market_cap_exceeded",
		}
	}

	dailyProjected := t.dailyNotional.Add(intent.TargetNotionalUSD)
	if dailyProjected.GreaterThan(t.cfg.MaxDailyTradedVolumeUSD) {
		return model.RiskSnapshot{
			TotalNotionalTodayUSD:      t.dailyNotional,
			TotalNotionalCurrent15mUSD: windowCurrent,
			MarketExposureUSD:          map[string]decimal.Decimal{intent.MarketID: marketCurrent},
			Blocked:                    true,
			BlockedReason:              "daily_cap_exceeded",
		}
	}

	t.windowNotional[windowID] = windowProjected
	t.marketNotional[intent.MarketID] = marketProjected
	t.dailyNotional = dailyProjected

	return model.RiskSnapshot{
		TotalNotionalTodayUSD:      t.dailyNotional,
		TotalNotionalCurrent15mUSD: windowProjected,
		MarketExposureUSD:          map[string]decimal.Decimal{intent.MarketID: marketProjected},
	}
}

func (t *Tracker) checkDayReset(now time.Time) {
	today := now.UTC().YearDay()
	if t.lastResetDay != today {
		t.dailyNotional = decimal.Zero
		t.lastResetDay = today
		log.Info().Msg("risk_tracker_daily_reset")
	}
}

// ResetWindow clears the notional counter for windowID. Nothing in the
// pipeline calls it, so window counters stay in memory for the life of the
// process.
func (t *Tracker) ResetWindow(windowID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.windowNotional, windowID)
}
