// Package coalescer buckets trade events by market/window/outcome and, after
// a quiet period, nets them into a single execution intent.
package coalescer

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/coinbot/internal/model"
)

type Config struct {
	CoalesceMs        int
	MaxSlippageBps    int
	NetOppositeTrades bool
}

// Flushed pairs a coalesced intent with the source events it was built from,
// in executed_ts order, so downstream policy checks (near-expiry, staleness)
// can inspect the most recent contributing event.
type Flushed struct {
	Intent       model.ExecutionIntent
	SourceEvents []model.TradeEvent
}

// Coalescer buckets events by key and emits Flushed intents on its Intents
// channel once each bucket's quiet timer fires.
type Coalescer struct {
	cfg Config

	mu      sync.Mutex
	events  map[string][]model.TradeEvent
	timers  map[string]*time.Timer

	intents chan Flushed
}

func New(cfg Config) *Coalescer {
	return &Coalescer{
		cfg:     cfg,
		events:  make(map[string][]model.TradeEvent),
		timers:  make(map[string]*time.Timer),
		intents: make(chan Flushed, 256),
	}
}

// Intents is the channel the orchestrator drains flushed intents from.
func (c *Coalescer) Intents() <-chan Flushed {
	return c.intents
}

// Push appends event to its bucket, starting the bucket's quiet timer on
// first arrival.
func (c *Coalescer) Push(event model.TradeEvent) {
	key := c.key(event)

	c.mu.Lock()
	c.events[key] = append(c.events[key], event)
	_, running := c.timers[key]
	if !running {
		c.timers[key] = time.AfterFunc(time.Duration(c.cfg.CoalesceMs)*time.Millisecond, func() {
			c.flush(key)
		})
	}
	c.mu.Unlock()
}

func (c *Coalescer) flush(key string) {
	c.mu.Lock()
	events := c.events[key]
	delete(c.events, key)
	delete(c.timers, key)
	c.mu.Unlock()

	if len(events) == 0 {
		return
	}

	sorted := make([]model.TradeEvent, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ExecutedTS.Before(sorted[j].ExecutedTS)
	})

	intent := c.toIntent(sorted)
	if intent == nil {
		return
	}
	c.intents <- Flushed{Intent: *intent, SourceEvents: sorted}
}

// toIntent expects events already sorted by executed_ts.
func (c *Coalescer) toIntent(sorted []model.TradeEvent) *model.ExecutionIntent {
	first := sorted[0]
	eventIDs := make([]string, len(sorted))
	for i, e := range sorted {
		eventIDs[i] = e.EventID
	}

	var side model.Side
	var targetNotional decimal.Decimal

	if c.cfg.NetOppositeTrades {
		net := decimal.Zero
		for _, e := range sorted {
			direction := decimal.NewFromInt(1)
			if e.Side == model.Sell {
				direction = decimal.NewFromInt(-1)
			}
			net = net.Add(direction.Mul(e.NotionalUSD))
		}
		if net.IsZero() {
			return nil
		}
		if net.IsPositive() {
			side = model.Buy
		} else {
			side = model.Sell
		}
		targetNotional = net.Abs()
	} else {
		side = first.Side
		targetNotional = decimal.Zero
		for _, e := range sorted {
			targetNotional = targetNotional.Add(e.NotionalUSD)
		}
	}

	return &model.ExecutionIntent{
		IntentID:          intentID(first.MarketID, first.Outcome, side, first.WindowID(), eventIDs),
		MarketID:          first.MarketID,
		Outcome:           first.Outcome,
		Side:              side,
		TargetNotionalUSD: targetNotional,
		MaxSlippageBps:    c.cfg.MaxSlippageBps,
		CoalescedEventIDs: eventIDs,
		WindowID:          first.WindowID(),
		CreatedTS:         time.Now().UTC(),
	}
}

func (c *Coalescer) key(event model.TradeEvent) string {
	base := event.MarketID + ":" + event.WindowID() + ":" + event.Outcome
	if c.cfg.NetOppositeTrades {
		return base
	}
	return base + ":" + string(event.Side)
}

// intentID is deterministic over the sorted event ids so arrival order
// never changes the id of an equivalent intent.
func intentID(marketID, outcome string, side model.Side, windowID string, eventIDs []string) string {
	sorted := make([]string, len(eventIDs))
	copy(sorted, eventIDs)
	sort.Strings(sorted)

	raw := marketID + "|" + outcome + "|" + string(side) + "|" + windowID + "|" + strings.Join(sorted, ",")
	digest := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(digest[:])[:20]
}
