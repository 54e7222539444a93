package coalescer

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/coinbot/internal/model"
)

func usd(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func TestPushFlushesNetDirectionOnQuietTimer(t *testing.T) {
	c := New(Config{CoalesceMs: 30, MaxSlippageBps: 100, NetOppositeTrades: true})

	base := time.Now().UTC()
	// Two buys then a smaller opposite sell, arriving out of executed_ts
	// order, should still net to a BUY sized at the remaining notional.
	c.Push(model.TradeEvent{EventID: "e2", MarketID: "m1", Outcome: "Yes", Side: model.Buy,
		NotionalUSD: usd(10), ExecutedTS: base.Add(2 * time.Millisecond)})
	c.Push(model.TradeEvent{EventID: "e1", MarketID: "m1", Outcome: "Yes", Side: model.Buy,
		NotionalUSD: usd(10), ExecutedTS: base})
	c.Push(model.TradeEvent{EventID: "e3", MarketID: "m1", Outcome: "Yes", Side: model.Sell,
		NotionalUSD: usd(5), ExecutedTS: base.Add(4 * time.Millisecond)})

	select {
	case flushed := <-c.Intents():
		if flushed.Intent.Side != model.Buy {
			t.Fatalf("expected net BUY, got %s", flushed.Intent.Side)
		}
		if !flushed.Intent.TargetNotionalUSD.Equal(usd(15)) {
			t.Fatalf("expected net notional 15, got %s", flushed.Intent.TargetNotionalUSD)
		}
		want := []string{"e1", "e2", "e3"}
		for i, id := range want {
			if flushed.Intent.CoalescedEventIDs[i] != id {
				t.Fatalf("coalesced ids not in executed_ts order: %v", flushed.Intent.CoalescedEventIDs)
			}
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for flush")
	}
}

func TestExactCancellationEmitsNothing(t *testing.T) {
	c := New(Config{CoalesceMs: 20, MaxSlippageBps: 100, NetOppositeTrades: true})

	base := time.Now().UTC()
	c.Push(model.TradeEvent{EventID: "e1", MarketID: "m1", Outcome: "Yes", Side: model.Buy,
		NotionalUSD: usd(10), ExecutedTS: base})
	c.Push(model.TradeEvent{EventID: "e2", MarketID: "m1", Outcome: "Yes", Side: model.Sell,
		NotionalUSD: usd(10), ExecutedTS: base.Add(time.Millisecond)})

	select {
	case flushed := <-c.Intents():
		t.Fatalf("expected no intent on exact cancellation, got %+v", flushed.Intent)
	case <-time.After(100 * time.Millisecond):
		// expected: quiet timer fired, bucket netted to zero, nothing emitted.
	}
}

func TestBucketKeyIncludesOutcomeAlways(t *testing.T) {
	netting := New(Config{CoalesceMs: 10, NetOppositeTrades: true})
	noNetting := New(Config{CoalesceMs: 10, NetOppositeTrades: false})

	e := model.TradeEvent{MarketID: "m1", Outcome: "Yes", Side: model.Buy}
	if got := netting.key(e); got != "m1:na:Yes" {
		t.Errorf("net_opposite_trades key = %q, want m1:na:Yes", got)
	}
	if got := noNetting.key(e); got != "m1:na:Yes:BUY" {
		t.Errorf("fill_by_fill key = %q, want m1:na:Yes:BUY", got)
	}
}

func TestIntentIDDeterministicRegardlessOfArrivalOrder(t *testing.T) {
	id1 := intentID("m1", "Yes", model.Buy, "w1", []string{"e1", "e2", "e3"})
	id2 := intentID("m1", "Yes", model.Buy, "w1", []string{"e3", "e1", "e2"})
	if id1 != id2 {
		t.Errorf("intent id depends on event id ordering: %s != %s", id1, id2)
	}
}
