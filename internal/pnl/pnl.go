// Package pnl tracks per-(market,outcome) positions, realized/unrealized
// PnL, fees, and market settlement.
package pnl

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/coinbot/internal/model"
)

type Snapshot struct {
	RealizedTradingUSD decimal.Decimal
	RealizedSettledUSD decimal.Decimal
	UnrealizedUSD       decimal.Decimal
	FeesUSD             decimal.Decimal
	NetUSD              decimal.Decimal
}

type positionKey struct {
	marketID string
	outcome  string
}

// Tracker is the in-memory PnL ledger. Persist, if set, is called with the
// touched positions after every fill and settlement; marks and restored
// positions are not persisted.
type Tracker struct {
	mu sync.Mutex

	positions      map[positionKey]*model.Position
	marks          map[positionKey]decimal.Decimal
	realizedTrading decimal.Decimal
	realizedSettled decimal.Decimal
	fees            decimal.Decimal
	feeBps          decimal.Decimal

	persist func(marketID, outcome string, pos model.Position)
}

func New(feeBps decimal.Decimal, persist func(marketID, outcome string, pos model.Position)) *Tracker {
	return &Tracker{
		positions: make(map[positionKey]*model.Position),
		marks:     make(map[positionKey]decimal.Decimal),
		feeBps:    feeBps,
		persist:   persist,
	}
}

func (t *Tracker) SetMark(marketID, outcome string, price decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.marks[positionKey{marketID, outcome}] = price
}

// ApplyFill folds one executed fill into the position for (marketID, outcome).
func (t *Tracker) ApplyFill(marketID, outcome string, side model.Side, qty, price decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := positionKey{marketID, outcome}
	pos, ok := t.positions[key]
	if !ok {
		pos = &model.Position{}
		t.positions[key] = pos
	}

	t.fees = t.fees.Add(qty.Mul(price).Abs().Mul(t.feeBps).Div(decimal.NewFromInt(10_000)))

	if side == model.Buy {
		if pos.Qty.LessThanOrEqual(decimal.Zero) {
			pos.Qty = qty
			pos.AvgPrice = price
		} else {
			newQty := pos.Qty.Add(qty)
			pos.AvgPrice = pos.Qty.Mul(pos.AvgPrice).Add(qty.Mul(price)).Div(newQty)
			pos.Qty = newQty
		}
	} else {
		if pos.Qty.IsPositive() {
			closeQty := decimal.Min(qty, pos.Qty)
			t.realizedTrading = t.realizedTrading.Add(price.Sub(pos.AvgPrice).Mul(closeQty))
			pos.Qty = pos.Qty.Sub(closeQty)
			if pos.Qty.IsZero() {
				pos.AvgPrice = decimal.Zero
			}
			// Residual beyond the long qty opens a short at the fill price.
			residual := qty.Sub(closeQty)
			if residual.IsPositive() {
				pos.Qty = pos.Qty.Sub(residual)
				pos.AvgPrice = price
			}
		} else {
			pos.Qty = pos.Qty.Sub(qty)
			pos.AvgPrice = price
		}
	}

	if t.persist != nil {
		t.persist(marketID, outcome, *pos)
	}
}

// SettleMarket resolves every open position in marketID. winningOutcome and
// outcomeSettlePrices are both optional; an explicit per-outcome settle
// price wins, else the winning outcome settles at 1 and all others at 0.
// Returns the number of positions settled.
func (t *Tracker) SettleMarket(marketID string, winningOutcome string, outcomeSettlePrices map[string]decimal.Decimal) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	settled := 0
	for key, pos := range t.positions {
		if key.marketID != marketID || pos.Qty.IsZero() {
			continue
		}

		settlePx, ok := outcomeSettlePrices[key.outcome]
		if !ok {
			if winningOutcome != "" && key.outcome == winningOutcome {
				settlePx = decimal.NewFromInt(1)
			} else {
				settlePx = decimal.Zero
			}
		}

		t.realizedSettled = t.realizedSettled.Add(settlePx.Sub(pos.AvgPrice).Mul(pos.Qty))
		pos.Qty = decimal.Zero
		pos.AvgPrice = decimal.Zero
		t.marks[key] = settlePx

		if t.persist != nil {
			t.persist(key.marketID, key.outcome, *pos)
		}
		settled++
	}
	return settled
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	unrealized := decimal.Zero
	for key, pos := range t.positions {
		if pos.Qty.IsZero() {
			continue
		}
		mark, ok := t.marks[key]
		if !ok {
			mark = pos.AvgPrice
		}
		unrealized = unrealized.Add(mark.Sub(pos.AvgPrice).Mul(pos.Qty))
	}

	net := t.realizedTrading.Add(t.realizedSettled).Add(unrealized).Sub(t.fees)
	return Snapshot{
		RealizedTradingUSD: t.realizedTrading,
		RealizedSettledUSD: t.realizedSettled,
		UnrealizedUSD:      unrealized,
		FeesUSD:            t.fees,
		NetUSD:             net,
	}
}

// Restore seeds the tracker's in-memory positions from persisted records,
// e.g. at startup after loading from the Store.
func (t *Tracker) Restore(marketID, outcome string, pos model.Position) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.positions[positionKey{marketID, outcome}] = &model.Position{Qty: pos.Qty, AvgPrice: pos.AvgPrice}
}

// OpenMarkets returns the distinct market ids holding a nonzero position,
// for the orchestrator's periodic settlement-reconciliation sweep.
func (t *Tracker) OpenMarkets() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen := make(map[string]bool)
	var out []string
	for key, pos := range t.positions {
		if pos.Qty.IsZero() || seen[key.marketID] {
			continue
		}
		seen[key.marketID] = true
		out = append(out, key.marketID)
	}
	return out
}

func (t *Tracker) Position(marketID, outcome string) (model.Position, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pos, ok := t.positions[positionKey{marketID, outcome}]
	if !ok {
		return model.Position{}, false
	}
	return *pos, true
}
