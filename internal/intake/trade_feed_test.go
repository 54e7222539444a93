package intake

import "testing"

func TestLooksLikeTradeOnPriceSizePair(t *testing.T) {
	if !looksLikeTrade(map[string]any{"price": "0.5", "size": "10"}) {
		t.Error("expected price/size payload to look like a trade")
	}
}

func TestLooksLikeTradeOnEventType(t *testing.T) {
	if !looksLikeTrade(map[string]any{"event_type": "fill"}) {
		t.Error("expected event_type=fill to look like a trade")
	}
	if looksLikeTrade(map[string]any{"event_type": "book"}) {
		t.Error("expected event_type=book to not look like a trade")
	}
}

func TestLooksLikeTradeFalseOnUnrelatedPayload(t *testing.T) {
	if looksLikeTrade(map[string]any{"foo": "bar"}) {
		t.Error("expected unrelated payload to not look like a trade")
	}
}

func TestWalletMatchesDirectField(t *testing.T) {
	payload := map[string]any{"owner": "0xABCDEF"}
	if !walletMatches(payload, "0xabcdef") {
		t.Error("expected case-insensitive match on owner field")
	}
}

func TestWalletMatchesNestedOrderContainer(t *testing.T) {
	payload := map[string]any{
		"maker_orders": []any{
			map[string]any{"maker_address": "0xDEAD"},
		},
	}
	if !walletMatches(payload, "0xdead") {
		t.Error("expected match inside maker_orders container")
	}
}

func TestWalletMatchesFalseWhenAbsent(t *testing.T) {
	if walletMatches(map[string]any{"owner": "0x1111"}, "0x2222") {
		t.Error("expected no match for a different wallet")
	}
}
