// Package marketcache is a TTL-refreshed cache of per-market metadata
// (token ids, tick size, settlement state) used to resolve order parameters
// and settle positions.
package marketcache

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type Metadata struct {
	MarketID        string
	Active          bool
	Closed          bool
	TickSize        string
	Outcomes        map[string]string // outcome label -> token id
	SettlePrices    map[string]decimal.Decimal // outcome label -> settlement price, when known
	WinningOutcome  string                     // "" when undetermined
}

type Cache struct {
	gammaAPIURL string
	ttl         time.Duration
	client      *http.Client

	mu    sync.Mutex
	items map[string]cacheEntry
}

type cacheEntry struct {
	fetchedAt time.Time
	meta      Metadata
}

func New(gammaAPIURL string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Cache{
		gammaAPIURL: gammaAPIURL,
		ttl:         ttl,
		client:      &http.Client{Timeout: 4 * time.Second},
		items:       make(map[string]cacheEntry),
	}
}

// Warm preloads metadata for every key, logging but not failing on
// individual fetch errors.
func (c *Cache) Warm(marketIDs []string) {
	for _, id := range marketIDs {
		if _, err := c.Get(id); err != nil {
			log.Warn().Err(err).Str("market", id).Msg("market_cache_warm_failed")
		}
	}
}

// Get returns cached metadata, refreshing on TTL miss.
func (c *Cache) Get(marketID string) (Metadata, error) {
	c.mu.Lock()
	entry, ok := c.items[marketID]
	c.mu.Unlock()

	if ok && time.Since(entry.fetchedAt) < c.ttl {
		return entry.meta, nil
	}

	meta, err := c.fetch(marketID)
	if err != nil {
		if ok {
			return entry.meta, nil // serve stale on transient fetch error
		}
		return Metadata{}, err
	}

	c.mu.Lock()
	c.items[marketID] = cacheEntry{fetchedAt: time.Now(), meta: meta}
	c.mu.Unlock()
	return meta, nil
}

func (c *Cache) fetch(marketID string) (Metadata, error) {
	query := url.Values{"id": {marketID}}.Encode()
	candidates := []string{
		fmt.Sprintf("%s/markets?%s", c.gammaAPIURL, query),
		fmt.Sprintf("%s/markets/%s", c.gammaAPIURL, marketID),
	}

	var lastErr error
	for _, u := range candidates {
		item, err := c.fetchOne(u)
		if err != nil {
			lastErr = err
			continue
		}
		if item == nil {
			continue
		}
		return parseMarketRecord(marketID, item), nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no market record found for %s", marketID)
	}
	return Metadata{}, lastErr
}

func (c *Cache) fetchOne(u string) (map[string]any, error) {
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	item := firstMarketItem(body)
	if item != nil && !looksLikeMarketRecord(item) {
		return nil, nil
	}
	return item, nil
}

func firstMarketItem(body []byte) map[string]any {
	var asList []map[string]any
	if err := json.Unmarshal(body, &asList); err == nil {
		if len(asList) == 0 {
			return nil
		}
		return asList[0]
	}

	var asObj map[string]any
	if err := json.Unmarshal(body, &asObj); err == nil {
		if data, ok := asObj["data"].([]any); ok && len(data) > 0 {
			if first, ok := data[0].(map[string]any); ok {
				return first
			}
			return nil
		}
		return asObj
	}
	return nil
}

func looksLikeMarketRecord(item map[string]any) bool {
	for _, key := range []string{"conditionId", "slug", "outcomes", "outcomePrices"} {
		if _, ok := item[key]; ok {
			return true
		}
	}
	return false
}

func parseMarketRecord(marketID string, item map[string]any) Metadata {
	meta := Metadata{
		MarketID:     marketID,
		Active:       boolOr(item["active"], true),
		Closed:       boolOr(item["closed"], false),
		TickSize:     stringOr(item["minimumTickSize"], stringOr(item["tickSize"], "0.01")),
		Outcomes:     map[string]string{},
		SettlePrices: map[string]decimal.Decimal{},
	}

	labels := decodeStringList(item["outcomes"])
	prices := decodeDecimalList(item["outcomePrices"])
	tokenIDs := decodeStringList(item["clobTokenIds"])
	if len(tokenIDs) == 0 {
		tokenIDs = decodeStringList(item["tokenIds"])
	}

	for i, label := range labels {
		if label == "" {
			continue
		}
		if i < len(prices) {
			meta.SettlePrices[label] = prices[i]
		}
		if i < len(tokenIDs) && tokenIDs[i] != "" {
			meta.Outcomes[label] = tokenIDs[i]
		}
	}

	// Rich per-outcome objects (label/tokenId pairs), when present, override
	// the parallel clobTokenIds/tokenIds array above.
	if rawOutcomes, ok := item["outcomes"].([]any); ok {
		for _, entry := range rawOutcomes {
			obj, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			label := stringOr(obj["name"], stringOr(obj["outcome"], ""))
			tokenID := stringOr(obj["tokenId"], stringOr(obj["token_id"], ""))
			if label != "" && tokenID != "" {
				meta.Outcomes[label] = tokenID
			}
		}
	}

	meta.WinningOutcome = inferWinningOutcome(item, labels, prices)
	return meta
}

// inferWinningOutcome prefers an explicit field, falling back to detecting
// "exactly one outcome priced at 1.0".
func inferWinningOutcome(item map[string]any, labels []string, prices []decimal.Decimal) string {
	for _, key := range []string{"winningOutcome", "winning_outcome", "resolvedOutcome", "winner", "result"} {
		if w := stringOr(item[key], ""); w != "" {
			return w
		}
	}

	one := decimal.NewFromInt(1)
	var winner string
	count := 0
	for i, price := range prices {
		if price.Equal(one) {
			count++
			if i < len(labels) {
				winner = labels[i]
			}
		}
	}
	if count == 1 {
		return winner
	}
	return ""
}

func decodeStringList(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		// Polymarket sometimes encodes arrays as a JSON string.
		var out []string
		if err := json.Unmarshal([]byte(t), &out); err == nil {
			return out
		}
	}
	return nil
}

func decodeDecimalList(v any) []decimal.Decimal {
	raw := v
	if s, ok := v.(string); ok {
		var decoded []any
		if err := json.Unmarshal([]byte(s), &decoded); err == nil {
			raw = decoded
		}
	}
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]decimal.Decimal, 0, len(list))
	for _, item := range list {
		switch t := item.(type) {
		case string:
			if d, err := decimal.NewFromString(t); err == nil {
				out = append(out, d)
				continue
			}
		case float64:
			out = append(out, decimal.NewFromFloat(t))
			continue
		}
		out = append(out, decimal.Zero)
	}
	return out
}

func boolOr(v any, fallback bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return fallback
}

func stringOr(v any, fallback string) string {
	switch t := v.(type) {
	case string:
		if t != "" {
			return t
		}
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return fallback
}
