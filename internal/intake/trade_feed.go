package intake

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/coinbot/internal/model"
	"github.com/web3guy0/coinbot/internal/state"
)

var walletFields = []string{
	"owner", "user", "trader", "address", "wallet", "wallet_address",
	"user_address", "owner_address", "proxy_wallet", "maker", "taker",
	"maker_address", "taker_address",
}

var walletOrderContainers = []string{"maker_orders", "taker_orders", "orders"}

// TradeFeedWatcherConfig configures SourceWalletTradeFeedWatcher.
type TradeFeedWatcherConfig struct {
	WSURL        string
	DataAPIURL   string
	SourceWallet string
}

// SourceWalletTradeFeedWatcher subscribes to the Polymarket market websocket
// channel for every asset the watched wallet has recently traded, and emits
// a TradeEvent for each row whose wallet field matches.
type SourceWalletTradeFeedWatcher struct {
	cfg    TradeFeedWatcherConfig
	store  *state.Store
	client *http.Client
	onEvent func(model.TradeEvent)
}

func NewSourceWalletTradeFeedWatcher(cfg TradeFeedWatcherConfig, store *state.Store, onEvent func(model.TradeEvent)) *SourceWalletTradeFeedWatcher {
	cfg.SourceWallet = strings.ToLower(cfg.SourceWallet)
	return &SourceWalletTradeFeedWatcher{
		cfg:     cfg,
		store:   store,
		client:  &http.Client{Timeout: 4 * time.Second},
		onEvent: onEvent,
	}
}

func (w *SourceWalletTradeFeedWatcher) Run(stop <-chan struct{}) {
	wsURL := marketWSURL(w.cfg.WSURL)
	assetIDs := w.discoverAssetIDs()
	log.Info().Int("count", len(assetIDs)).Msg("ws_seed_assets")

	subscribe := []map[string]any{
		{
			"type":                    "market",
			"assets_ids":              assetIDs,
			"custom_feature_enabled":  true,
		},
	}

	client := newReconnectingWSClient(wsURL, subscribe, w.handleMessage)
	client.runForever(stop)
}

func marketWSURL(raw string) string {
	u := strings.TrimRight(raw, "/")
	if strings.HasSuffix(u, "/market") {
		return u
	}
	if strings.HasSuffix(u, "/ws") {
		return u + "/market"
	}
	return u + "/market"
}

func (w *SourceWalletTradeFeedWatcher) discoverAssetIDs() []string {
	query := url.Values{
		"user":  {w.cfg.SourceWallet},
		"type":  {"TRADE"},
		"limit": {"400"},
	}.Encode()

	candidates := []string{
		fmt.Sprintf("%s/activity?%s", w.cfg.DataAPIURL, query),
		fmt.Sprintf("%s/api/activity?%s", w.cfg.DataAPIURL, query),
	}

	seen := map[string]struct{}{}
	for _, u := range candidates {
		rows, err := w.fetchRows(u)
		if err != nil {
			log.Warn().Err(err).Str("url", u).Msg("ws_seed_fetch_error")
			continue
		}
		for _, row := range rows {
			token := firstString(row, "asset", "asset_id", "token_id")
			if token != "" {
				seen[token] = struct{}{}
			}
		}
		if len(seen) > 0 {
			break
		}
	}

	if len(seen) == 0 {
		log.Warn().Msg("ws_seed_assets_empty")
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (w *SourceWalletTradeFeedWatcher) fetchRows(u string) ([]map[string]any, error) {
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "replica-pipeline/1.0")
	req.Header.Set("Connection", "keep-alive")

	resp, err := w.client.Do(req)
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
	return activityItems(body)
}

func (w *SourceWalletTradeFeedWatcher) handleMessage(message map[string]any) {
	rows := extractTradeRows(message)
	for _, row := range rows {
		if !walletMatches(row, w.cfg.SourceWallet) {
			continue
		}
		event := w.normalize(row)
		if event == nil {
			continue
		}

		inserted, err := w.store.DedupeMarkSeen(dedupeKeyFor(*event, row))
		if err != nil {
			log.Warn().Err(err).Msg("ws_dedupe_error")
			continue
		}
		if inserted {
			w.onEvent(*event)
		}
	}
}

func (w *SourceWalletTradeFeedWatcher) normalize(raw map[string]any) *model.TradeEvent {
	marketID := firstString(raw, "market", "market_id", "condition_id", "asset_id", "token_id")
	if marketID == "" {
		return nil
	}
	eventID := rawEventID(raw)
	if eventID == "" {
		return nil
	}

	price, _ := toDecimal(raw, "price")
	shares, _ := toDecimal(raw, "size", "shares")
	notional, ok := toDecimal(raw, "usdcSize", "notional", "amount")
	if !ok {
		notional = shares.Mul(price)
	}

	executedTS := parseTimestamp(raw["timestamp"])
	nowUTC := time.Now().UTC()

	event := &model.TradeEvent{
		EventID:      eventID,
		SourceWallet: w.cfg.SourceWallet,
		MarketID:     marketID,
		MarketSlug:   firstString(raw, "market_slug", "slug"),
		Outcome:      firstString(raw, "outcome"),
		Side:         normalizeSide(raw, "side", "direction"),
		Price:        price,
		Shares:       shares,
		NotionalUSD:  notional,
		ExecutedTS:   executedTS,
		ReceivedTS:   nowUTC,
		SourcePath:   model.SourceClobWS,

		SourceExecToFetchMs: msSince(executedTS, nowUTC),
		SourceFetchToEmitMs: 0,
		SourcePollCycleMs:   0,
	}
	if title := firstString(raw, "market_title", "title"); title != "" {
		if win, err := model.ParseMarketWindow(title, nowUTC); err == nil {
			event.Window = win
		}
	}
	return event
}

func extractTradeRows(message map[string]any) []map[string]any {
	var out []map[string]any
	if looksLikeTrade(message) {
		out = append(out, message)
	}

	switch data := message["data"].(type) {
	case map[string]any:
		if looksLikeTrade(data) {
			out = append(out, data)
		} else if nested, ok := data["trade"].(map[string]any); ok && looksLikeTrade(nested) {
			out = append(out, nested)
		}
	case []any:
		for _, item := range data {
			if m, ok := item.(map[string]any); ok && looksLikeTrade(m) {
				out = append(out, m)
			}
		}
	}

	if events, ok := message["events"].([]any); ok {
		for _, item := range events {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if looksLikeTrade(m) {
				out = append(out, m)
			}
			if nested, ok := m["trade"].(map[string]any); ok && looksLikeTrade(nested) {
				out = append(out, nested)
			}
			if nested, ok := m["event"].(map[string]any); ok && looksLikeTrade(nested) {
				out = append(out, nested)
			}
		}
	}

	if trade, ok := message["trade"].(map[string]any); ok && looksLikeTrade(trade) {
		out = append(out, trade)
	}
	return out
}

func looksLikeTrade(payload map[string]any) bool {
	has := func(keys ...string) bool {
		for _, k := range keys {
			if _, ok := payload[k]; ok {
				return true
			}
		}
		return false
	}
	if has("price", "size") || has("usdcSize", "usdcsize", "notional") || has("trade_id") {
		return true
	}
	if et, ok := payload["event_type"].(string); ok {
		return et == "trade" || et == "fill"
	}
	return false
}

func walletMatches(payload map[string]any, walletLower string) bool {
	for _, key := range walletFields {
		if v, ok := payload[key].(string); ok && strings.ToLower(v) == walletLower {
			return true
		}
	}
	for _, containerKey := range walletOrderContainers {
		container, ok := payload[containerKey].([]any)
		if !ok {
			continue
		}
		for _, item := range container {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			for _, key := range []string{"owner", "maker_address", "taker_address", "address", "user"} {
				if v, ok := m[key].(string); ok && strings.ToLower(v) == walletLower {
					return true
				}
			}
		}
	}
	return false
}
