// Package intake contains the two concurrent producers that observe the
// watched wallet's trades — a polled REST activity feed and a websocket
// trade stream — and the field-alias normalization shared by both.
package intake

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/coinbot/internal/model"
)

func firstString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
			return asString(v)
		}
	}
	return ""
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

func toDecimal(raw map[string]any, keys ...string) (decimal.Decimal, bool) {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if t == "" {
				continue
			}
			if d, err := decimal.NewFromString(t); err == nil {
				return d, true
			}
		case float64:
			return decimal.NewFromFloat(t), true
		}
	}
	return decimal.Zero, false
}

func parseTimestamp(v any) time.Time {
	switch t := v.(type) {
	case float64:
		return unixToTime(t)
	case string:
		if t == "" {
			break
		}
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return unixToTime(f)
		}
		if ts, err := time.Parse(time.RFC3339, strings.Replace(t, "Z", "+00:00", 1)); err == nil {
			return ts.UTC()
		}
	}
	return time.Now().UTC()
}

func unixToTime(seconds float64) time.Time {
	// Upstream timestamps are occasionally milliseconds; detect by magnitude.
	if seconds > 1e12 {
		seconds = seconds / 1000
	}
	whole := int64(seconds)
	frac := seconds - float64(whole)
	return time.Unix(whole, int64(frac*1e9)).UTC()
}

func normalizeSide(raw map[string]any, keys ...string) model.Side {
	s := strings.ToUpper(firstString(raw, keys...))
	switch s {
	case "BUY", "BID":
		return model.Buy
	default:
		return model.Sell
	}
}
