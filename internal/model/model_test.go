package model

import "testing"

func TestDedupeKeyFingerprintPriority(t *testing.T) {
	cases := []struct {
		name string
		key  DedupeKey
		want string
	}{
		{
			name: "event id wins over everything",
			key:  DedupeKey{EventID: "evt-1", TxHash: "0xabc", Sequence: "5", MarketID: "m1"},
			want: "id:evt-1",
		},
		{
			name: "tx hash + sequence wins over tx hash + market",
			key:  DedupeKey{TxHash: "0xabc", Sequence: "5", MarketID: "m1"},
			want: "txseq:0xabc:5",
		},
		{
			name: "tx hash + market when sequence absent",
			key:  DedupeKey{TxHash: "0xabc", MarketID: "m1"},
			want: "tx:0xabc:m1",
		},
		{
			name: "fallback on market + seen time",
			key:  DedupeKey{MarketID: "m1", SeenAtUnix: 1700000000},
			want: "fallback:m1:1700000000",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.key.Fingerprint(); got != c.want {
				t.Errorf("got %q, want %q", got, c.want)
			}
		})
	}
}

func TestWindowIDDefaultsToNA(t *testing.T) {
	e := TradeEvent{}
	if got := e.WindowID(); got != "na" {
		t.Errorf("got %q, want na", got)
	}

	e.Window = &MarketWindow{WindowID: "w-123"}
	if got := e.WindowID(); got != "w-123" {
		t.Errorf("got %q, want w-123", got)
	}
}
