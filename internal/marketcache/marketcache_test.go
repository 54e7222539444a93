package marketcache

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestDecodeStringListFromJSONArray(t *testing.T) {
	got := decodeStringList([]any{"Yes", "No"})
	if len(got) != 2 || got[0] != "Yes" || got[1] != "No" {
		t.Fatalf("got %v", got)
	}
}

func TestDecodeStringListFromEncodedJSONString(t *testing.T) {
	got := decodeStringList(`["Yes","No"]`)
	if len(got) != 2 || got[0] != "Yes" || got[1] != "No" {
		t.Fatalf("got %v", got)
	}
}

func TestDecodeDecimalListFromEncodedJSONString(t *testing.T) {
	got := decodeDecimalList(`["0.35", "0.65"]`)
	if len(got) != 2 {
		t.Fatalf("expected 2 decimals, got %v", got)
	}
	if !got[0].Equal(decimal.NewFromFloat(0.35)) || !got[1].Equal(decimal.NewFromFloat(0.65)) {
		t.Fatalf("got %v", got)
	}
}

func TestDecodeDecimalListFromFloatArray(t *testing.T) {
	got := decodeDecimalList([]any{float64(1), float64(0)})
	if len(got) != 2 || !got[0].Equal(decimal.NewFromInt(1)) || !got[1].IsZero() {
		t.Fatalf("got %v", got)
	}
}

func TestInferWinningOutcomePrefersExplicitField(t *testing.T) {
	item := map[string]any{"winningOutcome": "Yes"}
	got := inferWinningOutcome(item, []string{"Yes", "No"}, nil)
	if got != "Yes" {
		t.Fatalf("got %q, want Yes", got)
	}
}

func TestInferWinningOutcomeFallsBackToSinglePriceOfOne(t *testing.T) {
	item := map[string]any{}
	labels := []string{"Yes", "No"}
	prices := []decimal.Decimal{decimal.NewFromInt(1), decimal.Zero}
	got := inferWinningOutcome(item, labels, prices)
	if got != "Yes" {
		t.Fatalf("got %q, want Yes", got)
	}
}

func TestInferWinningOutcomeUndeterminedWhenAmbiguous(t *testing.T) {
	item := map[string]any{}
	labels := []string{"Yes", "No"}
	prices := []decimal.Decimal{decimal.NewFromFloat(0.5), decimal.NewFromFloat(0.5)}
	got := inferWinningOutcome(item, labels, prices)
	if got != "" {
		t.Fatalf("expected undetermined, got %q", got)
	}
}

func TestParseMarketRecordBuildsSettlePricesFromLabelPriceArrays(t *testing.T) {
	item := map[string]any{
		"closed":        true,
		"outcomes":      `["Yes", "No"]`,
		"outcomePrices": `["1", "0"]`,
	}
	meta := parseMarketRecord("m1", item)

	if !meta.Closed {
		t.Error("expected closed market")
	}
	if !meta.SettlePrices["Yes"].Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected Yes settle price 1, got %v", meta.SettlePrices["Yes"])
	}
	if meta.WinningOutcome != "Yes" {
		t.Fatalf("expected WinningOutcome Yes, got %q", meta.WinningOutcome)
	}
}

func TestParseMarketRecordBuildsOutcomesFromParallelClobTokenIdsArray(t *testing.T) {
	item := map[string]any{
		"closed":        true,
		"outcomes":      `["Yes", "No"]`,
		"outcomePrices": `["1", "0"]`,
		"clobTokenIds":  `["tok-yes", "tok-no"]`,
	}
	meta := parseMarketRecord("m1", item)

	if meta.Outcomes["Yes"] != "tok-yes" || meta.Outcomes["No"] != "tok-no" {
		t.Fatalf("unexpected outcomes map: %v", meta.Outcomes)
	}
	if !meta.SettlePrices["Yes"].Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected Yes settle price 1, got %v", meta.SettlePrices["Yes"])
	}
	if meta.WinningOutcome != "Yes" {
		t.Fatalf("expected WinningOutcome Yes, got %q", meta.WinningOutcome)
	}
}

func TestParseMarketRecordBuildsOutcomesFromTokenIdsFallbackKey(t *testing.T) {
	item := map[string]any{
		"outcomes": []any{"Yes", "No"},
		"tokenIds": []any{"tok-yes", "tok-no"},
	}
	meta := parseMarketRecord("m1", item)

	if meta.Outcomes["Yes"] != "tok-yes" || meta.Outcomes["No"] != "tok-no" {
		t.Fatalf("unexpected outcomes map: %v", meta.Outcomes)
	}
}

func TestParseMarketRecordExtractsTokenIdsFromRichOutcomeObjects(t *testing.T) {
	item := map[string]any{
		"outcomes": []any{
			map[string]any{"name": "Yes", "tokenId": "tok-yes"},
			map[string]any{"name": "No", "tokenId": "tok-no"},
		},
	}
	meta := parseMarketRecord("m1", item)

	if meta.Outcomes["Yes"] != "tok-yes" || meta.Outcomes["No"] != "tok-no" {
		t.Fatalf("unexpected outcomes map: %v", meta.Outcomes)
	}
}
