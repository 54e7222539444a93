package intake

import "testing"

func TestRawEventIDPrefersUpstreamID(t *testing.T) {
	raw := map[string]any{"id": "abc-123"}
	if got := rawEventID(raw); got != "abc-123" {
		t.Errorf("got %q, want abc-123", got)
	}
}

func TestRawEventIDPrefersTradeIDForWsRows(t *testing.T) {
	raw := map[string]any{"trade_id": "t-789", "transaction_hash": "0xabc"}
	if got := rawEventID(raw); got != "t-789" {
		t.Errorf("got %q, want t-789", got)
	}
}

func TestRawEventIDFallsBackToCompositeDigest(t *testing.T) {
	raw := map[string]any{
		"transaction_hash": "0xabc",
		"market":           "m1",
		"timestamp":        "1700000000",
		"size":             "10",
	}
	got := rawEventID(raw)
	if len(got) != 16 {
		t.Fatalf("expected 16-char fallback id, got %q", got)
	}

	// Same inputs always produce the same fallback id.
	again := rawEventID(raw)
	if got != again {
		t.Errorf("expected deterministic fallback, got %q != %q", got, again)
	}
}

func TestNewestEventIDReturnsFirstRowsID(t *testing.T) {
	rows := []map[string]any{
		{"id": "newest"},
		{"id": "older"},
	}
	if got := newestEventID(rows); got != "newest" {
		t.Errorf("got %q, want newest", got)
	}
	if got := newestEventID(nil); got != "" {
		t.Errorf("expected empty for no rows, got %q", got)
	}
}
