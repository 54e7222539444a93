package intake

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/coinbot/internal/model"
	"github.com/web3guy0/coinbot/internal/state"
)

// ActivityPollerConfig configures SourceWalletActivityPoller.
type ActivityPollerConfig struct {
	DataAPIURL   string
	SourceWallet string
	PollInterval time.Duration
	Limit        int
	StreamName   string
}

func DefaultActivityPollerConfig(dataAPIURL, wallet string) ActivityPollerConfig {
	return ActivityPollerConfig{
		DataAPIURL:   dataAPIURL,
		SourceWallet: wallet,
		PollInterval: 700 * time.Millisecond,
		Limit:        200,
		StreamName:   "source_activity",
	}
}

// SourceWalletActivityPoller periodically fetches recent trades for the
// watched wallet, de-dupes and checkpoints them, and dispatches new fills.
type SourceWalletActivityPoller struct {
	cfg    ActivityPollerConfig
	store  *state.Store
	client *http.Client
	onEvent func(model.TradeEvent)
}

func NewSourceWalletActivityPoller(cfg ActivityPollerConfig, store *state.Store, onEvent func(model.TradeEvent)) *SourceWalletActivityPoller {
	return &SourceWalletActivityPoller{
		cfg:     cfg,
		store:   store,
		client:  &http.Client{Timeout: 4 * time.Second},
		onEvent: onEvent,
	}
}

// Run blocks, polling until ctx-equivalent stop channel is closed.
func (p *SourceWalletActivityPoller) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		cycleStart := time.Now()
		if err := p.tick(); err != nil {
			log.Warn().Err(err).Msg("activity_poll_error")
			sleepOrStop(stop, minDuration(2*p.cfg.PollInterval, 5*time.Second))
			continue
		}
		elapsed := time.Since(cycleStart)
		remaining := p.cfg.PollInterval - elapsed
		if remaining > 0 {
			sleepOrStop(stop, remaining)
		}
	}
}

func (p *SourceWalletActivityPoller) tick() error {
	pollStart := time.Now()
	rows, err := p.fetchActivity()
	if err != nil {
		return err
	}

	checkpoint, err := p.store.CheckpointGet(p.cfg.StreamName)
	if err != nil {
		return fmt.Errorf("checkpoint_get: %w", err)
	}

	if checkpoint == "" {
		newest := newestEventID(rows)
		if newest == "" {
			return nil
		}
		if err := p.store.CheckpointSet(p.cfg.StreamName, newest); err != nil {
			return fmt.Errorf("checkpoint_set anchor: %w", err)
		}
		log.Info().Str("anchor", newest).Msg("activity_poller_anchored")
		return nil
	}

	// Newest-first scan to collect candidates above the checkpoint.
	var candidates []map[string]any
	for _, row := range rows {
		id := rawEventID(row)
		if id == checkpoint {
			break
		}
		candidates = append(candidates, row)
	}

	// Dispatch oldest-first so checkpoints advance monotonically.
	for i := len(candidates) - 1; i >= 0; i-- {
		raw := candidates[i]
		fetchTS := time.Now().UTC()
		event := p.normalize(raw, fetchTS, pollStart)

		inserted, err := p.store.DedupeMarkSeen(dedupeKeyFor(event, raw))
		if err != nil {
			return fmt.Errorf("dedupe_mark_seen: %w", err)
		}
		if inserted {
			p.onEvent(event)
		}
		if err := p.store.CheckpointSet(p.cfg.StreamName, rawEventID(raw)); err != nil {
			return fmt.Errorf("checkpoint_set: %w", err)
		}
	}
	return nil
}

func (p *SourceWalletActivityPoller) normalize(raw map[string]any, fetchTS, pollStart time.Time) model.TradeEvent {
	marketID := firstString(raw, "market", "marketId", "conditionId", "asset")
	eventID := firstString(raw, "id", "activityId")
	price, _ := toDecimal(raw, "price")
	shares, _ := toDecimal(raw, "size", "shares")
	notional, ok := toDecimal(raw, "amount", "usdcSize")
	if !ok {
		notional = shares.Mul(price)
	}
	executedTS := parseTimestamp(raw["timestamp"])
	emitTS := time.Now().UTC()

	event := model.TradeEvent{
		EventID:      eventID,
		SourceWallet: p.cfg.SourceWallet,
		MarketID:     marketID,
		MarketSlug:   firstString(raw, "market_slug", "slug"),
		Outcome:      firstString(raw, "outcome"),
		Side:         normalizeSide(raw, "side", "direction"),
		Price:        price,
		Shares:       shares,
		NotionalUSD:  notional,
		ExecutedTS:   executedTS,
		ReceivedTS:   emitTS,
		SourcePath:   model.SourceActivityAPI,

		SourceExecToFetchMs: msSince(executedTS, fetchTS),
		SourceFetchToEmitMs: msSince(fetchTS, emitTS),
		SourcePollCycleMs:   msSince(pollStart, emitTS),
	}
	if title := firstString(raw, "market_title", "title"); title != "" {
		if win, err := model.ParseMarketWindow(title, emitTS); err == nil {
			event.Window = win
		}
	}
	return event
}

func dedupeKeyFor(event model.TradeEvent, raw map[string]any) model.DedupeKey {
	return model.DedupeKey{
		EventID:    event.EventID,
		TxHash:     firstString(raw, "transaction_hash", "transactionHash"),
		Sequence:   firstString(raw, "sequence"),
		MarketID:   event.MarketID,
		SeenAtUnix: time.Now().Unix(),
	}
}

// rawEventID derives a stable id for a raw event row. "trade_id" ranks
// alongside "id"/"activityId" since the ws trade feed's rows (see
// looksLikeTrade in trade_feed.go) use it as their primary stable id.
func rawEventID(raw map[string]any) string {
	if id := firstString(raw, "id", "activityId", "trade_id"); id != "" {
		return id
	}
	return eventIDFallback(
		firstString(raw, "transaction_hash", "transactionHash"),
		firstString(raw, "market", "marketId", "conditionId", "asset"),
		firstString(raw, "timestamp"),
		firstString(raw, "size", "shares"),
	)
}

func newestEventID(rows []map[string]any) string {
	if len(rows) == 0 {
		return ""
	}
	return rawEventID(rows[0])
}

func (p *SourceWalletActivityPoller) fetchActivity() ([]map[string]any, error) {
	query := url.Values{
		"user":  {p.cfg.SourceWallet},
		"type":  {"TRADE"},
		"limit": {fmt.Sprintf("%d", p.cfg.Limit)},
	}.Encode()

	candidates := []string{
		fmt.Sprintf("%s/activity?%s", p.cfg.DataAPIURL, query),
		fmt.Sprintf("%s/api/activity?%s", p.cfg.DataAPIURL, query),
	}

	var lastErr error
	for _, u := range candidates {
		rows, err := p.fetchOne(u)
		if err == nil {
			return rows, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (p *SourceWalletActivityPoller) fetchOne(u string) ([]map[string]any, error) {
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "replica-pipeline/1.0")
	req.Header.Set("Connection", "keep-alive")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	return activityItems(body)
}

func activityItems(body []byte) ([]map[string]any, error) {
	var asList []map[string]any
	if err := json.Unmarshal(body, &asList); err == nil {
		return asList, nil
	}
	var asEnvelope struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(body, &asEnvelope); err == nil {
		return asEnvelope.Data, nil
	}
	return nil, fmt.Errorf("unrecognized activity payload shape")
}

func msSince(from, to time.Time) float64 {
	d := to.Sub(from).Seconds() * 1000
	if d < 0 {
		return 0
	}
	return d
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func sleepOrStop(stop <-chan struct{}, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stop:
	case <-t.C:
	}
}

// eventIDFallback builds the composite fallback id used when the upstream
// payload omits a stable id field.
func eventIDFallback(txHash, marketID, ts, size string) string {
	digest := sha256.Sum256([]byte(txHash + ":" + marketID + ":" + ts + ":" + size))
	return hex.EncodeToString(digest[:])[:16]
}
