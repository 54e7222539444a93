// Package orchestrator drives the single-threaded core of the replica
// pipeline: draining the bounded ingress queue, handing flushed coalesce
// buckets through kill-switch/policy/risk/submission, and running the
// periodic settlement-reconciliation and telemetry-snapshot cycle.
package orchestrator

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/coinbot/internal/coalescer"
	"github.com/web3guy0/coinbot/internal/execclient"
	"github.com/web3guy0/coinbot/internal/killswitch"
	"github.com/web3guy0/coinbot/internal/marketcache"
	"github.com/web3guy0/coinbot/internal/metrics"
	"github.com/web3guy0/coinbot/internal/model"
	"github.com/web3guy0/coinbot/internal/notify"
	"github.com/web3guy0/coinbot/internal/pnl"
	"github.com/web3guy0/coinbot/internal/policy"
	"github.com/web3guy0/coinbot/internal/risktracker"
	"github.com/web3guy0/coinbot/internal/telemetry"
)

// ingressDepth is the bounded ingress queue's max depth. Producers submit
// with a 1s timeout and drop the event, with a warning, if still full.
const ingressDepth = 5000

const ingressSubmitTimeout = 1 * time.Second

type Config struct {
	SnapshotInterval time.Duration
}

// Orchestrator owns every mutable piece of pipeline state (coalesce buckets
// via Coalescer, risk counters, PnL, metrics). Coalesce buckets are flushed
// on the Coalescer's own timer goroutines under its mutex; the other
// components are driven from Run and each also guards itself with a lock.
type Orchestrator struct {
	cfg Config

	coalescerInst *coalescer.Coalescer
	policyInst    *policy.Policy
	riskTracker   *risktracker.Tracker
	execClient    *execclient.Client
	lifecycle     *execclient.LifecycleStore
	marketCache   *marketcache.Cache
	pnlTracker    *pnl.Tracker
	killSwitch    *killswitch.KillSwitch
	autoGuard     *killswitch.AutoKillGuard
	metricsColl   *metrics.Collector
	auditLogger   *telemetry.CopyAuditLogger
	shadowLogger  *telemetry.ShadowDecisionLogger
	snapshotter   *telemetry.SnapshotWriter
	alertEval     *telemetry.AlertEvaluator
	notifier      notify.Notifier

	ingress       chan model.TradeEvent
	lastWSEventAt time.Time
}

func New(
	cfg Config,
	coalescerInst *coalescer.Coalescer,
	policyInst *policy.Policy,
	riskTracker *risktracker.Tracker,
	execClient *execclient.Client,
	lifecycle *execclient.LifecycleStore,
	marketCache *marketcache.Cache,
	pnlTracker *pnl.Tracker,
	killSwitch *killswitch.KillSwitch,
	autoGuard *killswitch.AutoKillGuard,
	metricsColl *metrics.Collector,
	auditLogger *telemetry.CopyAuditLogger,
	shadowLogger *telemetry.ShadowDecisionLogger,
	snapshotter *telemetry.SnapshotWriter,
	alertEval *telemetry.AlertEvaluator,
	notifier notify.Notifier,
) *Orchestrator {
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = 30 * time.Second
	}
	return &Orchestrator{
		cfg:           cfg,
		coalescerInst: coalescerInst,
		policyInst:    policyInst,
		riskTracker:   riskTracker,
		execClient:    execClient,
		lifecycle:     lifecycle,
		marketCache:   marketCache,
		pnlTracker:    pnlTracker,
		killSwitch:    killSwitch,
		autoGuard:     autoGuard,
		metricsColl:   metricsColl,
		auditLogger:   auditLogger,
		shadowLogger:  shadowLogger,
		snapshotter:   snapshotter,
		alertEval:     alertEval,
		notifier:      notifier,
		ingress:       make(chan model.TradeEvent, ingressDepth),
		lastWSEventAt: time.Now().UTC(),
	}
}

// SubmitEvent is the callback wired into both intake producers. It blocks
// up to ingressSubmitTimeout, then drops the event with a warning if the
// queue is still full.
func (o *Orchestrator) SubmitEvent(event model.TradeEvent) {
	select {
	case o.ingress <- event:
	case <-time.After(ingressSubmitTimeout):
		log.Warn().Str("event_id", event.EventID).Str("market", event.MarketID).
			Msg("ingress_queue_full_event_dropped")
	}
}

// Run blocks, driving the pipeline until stop is closed. On shutdown it
// emits one final telemetry snapshot before returning.
func (o *Orchestrator) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(o.cfg.SnapshotInterval)
	defer ticker.Stop()

	log.Info().Dur("snapshot_interval", o.cfg.SnapshotInterval).Msg("orchestrator_started")

	for {
		select {
		case <-stop:
			o.runSnapshotCycle()
			log.Info().Msg("orchestrator_stopped")
			return
		case event := <-o.ingress:
			o.handleEvent(event)
		case flushed := <-o.coalescerInst.Intents():
			o.handleIntent(flushed)
		case <-ticker.C:
			o.runSnapshotCycle()
		}
	}
}

func (o *Orchestrator) handleEvent(event model.TradeEvent) {
	nowMs := time.Now().UTC().UnixMilli()
	o.metricsColl.RecordEventReceive(event.EventID, nowMs)
	o.pnlTracker.SetMark(event.MarketID, event.Outcome, event.Price)
	if event.SourcePath == model.SourceClobWS {
		o.lastWSEventAt = time.Now().UTC()
	}
	o.coalescerInst.Push(event)
}

// handleIntent runs one flushed bucket through kill switch, policy, risk,
// and submission, recording metrics/PnL/audit at each stage.
func (o *Orchestrator) handleIntent(flushed coalescer.Flushed) {
	intent := flushed.Intent
	correlationID := intent.IntentID
	if len(intent.CoalescedEventIDs) > 0 {
		correlationID = intent.CoalescedEventIDs[0]
	}
	o.metricsColl.RecordDecision(correlationID, time.Now().UTC().UnixMilli())

	if ks := o.killSwitch.Check(); ks.Active {
		o.writeAudit(intent, flushed.SourceEvents, "blocked", ks.Reason, nil, nil)
		o.writeShadow(intent, ks.Reason)
		return
	}

	decision := o.policyInst.Apply(intent, flushed.SourceEvents, time.Now().UTC())
	if decision.Blocked() {
		o.writeAudit(intent, flushed.SourceEvents, "blocked", decision.BlockedReason, nil, nil)
		o.writeShadow(intent, decision.BlockedReason)
		return
	}
	sized := *decision.Intent

	risk := o.riskTracker.CheckAndApply(sized, time.Now().UTC())
	if risk.Blocked {
		o.writeAudit(sized, flushed.SourceEvents, "blocked", risk.BlockedReason, &risk, nil)
		o.writeShadow(sized, risk.BlockedReason)
		return
	}

	meta, err := o.marketCache.Get(sized.MarketID)
	if err != nil {
		o.writeAudit(sized, flushed.SourceEvents, "blocked", "market_metadata_unavailable", &risk, nil)
		o.writeShadow(sized, "market_metadata_unavailable")
		return
	}
	tokenID, ok := meta.Outcomes[sized.Outcome]
	if !ok {
		o.writeAudit(sized, flushed.SourceEvents, "blocked", "unknown_outcome_token", &risk, nil)
		o.writeShadow(sized, "unknown_outcome_token")
		return
	}

	price, size := limitPriceAndSize(sized, flushed.SourceEvents)
	marketSlug := ""
	if len(flushed.SourceEvents) > 0 {
		marketSlug = flushed.SourceEvents[len(flushed.SourceEvents)-1].MarketSlug
	}

	o.metricsColl.RecordOrderSubmit(correlationID, time.Now().UTC().UnixMilli())
	submission := o.execClient.SubmitMarketableLimit(sized, tokenID, price, size, marketSlug)
	o.lifecycle.RecordSubmission(submission)
	o.metricsColl.RecordAck(correlationID, time.Now().UTC().UnixMilli(), submission.Accepted, submission.ErrorCode)

	if submission.Accepted {
		o.pnlTracker.ApplyFill(sized.MarketID, sized.Outcome, sized.Side, size, price)
	}

	status := "reject"
	if submission.Accepted {
		status = "submit_success"
	}
	o.writeAudit(sized, flushed.SourceEvents, status, "", &risk, &submission)
}

// limitPriceAndSize derives a marketable-limit price from the most recent
// contributing fill, padded by the intent's slippage allowance in the
// direction that favors a fill, and the resulting size at that price.
func limitPriceAndSize(intent model.ExecutionIntent, sourceEvents []model.TradeEvent) (decimal.Decimal, decimal.Decimal) {
	price := decimal.NewFromFloat(0.5)
	if len(sourceEvents) > 0 {
		price = sourceEvents[len(sourceEvents)-1].Price
	}

	slippage := decimal.NewFromInt(int64(intent.MaxSlippageBps)).Div(decimal.NewFromInt(10_000))
	if intent.Side == model.Buy {
		price = price.Mul(decimal.NewFromInt(1).Add(slippage))
	} else {
		price = price.Mul(decimal.NewFromInt(1).Sub(slippage))
	}
	if !price.IsPositive() {
		price = decimal.NewFromFloat(0.01)
	}

	size := intent.TargetNotionalUSD.Div(price)
	return price, size
}

func (o *Orchestrator) writeAudit(intent model.ExecutionIntent, sourceEvents []model.TradeEvent, status, blockedReason string, risk *model.RiskSnapshot, submission *model.OrderSubmission) {
	netNotional := decimal.Zero
	for _, e := range sourceEvents {
		direction := decimal.NewFromInt(1)
		if e.Side == model.Sell {
			direction = decimal.NewFromInt(-1)
		}
		netNotional = netNotional.Add(direction.Mul(e.NotionalUSD))
	}

	row := map[string]any{
		"intent_id":            intent.IntentID,
		"market_id":            intent.MarketID,
		"outcome":              intent.Outcome,
		"side":                 string(intent.Side),
		"window_id":            intent.WindowID,
		"coalesced_event_ids":  intent.CoalescedEventIDs,
		"source_notional_net":  netNotional,
		"source_notional_abs":  netNotional.Abs(),
		"target_notional_usd":  intent.TargetNotionalUSD,
		"status":               status,
		"blocked_reason":       blockedReason,
	}
	if risk != nil {
		row["risk_total_today_usd"] = risk.TotalNotionalTodayUSD
		row["risk_window_15m_usd"] = risk.TotalNotionalCurrent15mUSD
	}
	if submission != nil {
		row["client_order_id"] = submission.ClientOrderID
		row["submit_status"] = submission.Status
		row["submit_error_code"] = submission.ErrorCode
		row["submit_error"] = submission.Error
	}

	if err := o.auditLogger.Write(row); err != nil {
		log.Warn().Err(err).Msg("copy_audit_write_failed")
	}
}

func (o *Orchestrator) writeShadow(intent model.ExecutionIntent, reason string) {
	row := map[string]any{
		"intent_id":      intent.IntentID,
		"market_id":      intent.MarketID,
		"outcome":        intent.Outcome,
		"side":           string(intent.Side),
		"blocked_reason": reason,
	}
	if err := o.shadowLogger.Write(row); err != nil {
		log.Warn().Err(err).Msg("shadow_decision_write_failed")
	}
}

// runSnapshotCycle reconciles settlements for any market with an open
// position, computes the telemetry snapshot, evaluates alerts, runs the
// auto kill guard, and persists the result.
func (o *Orchestrator) runSnapshotCycle() {
	o.reconcileSettlements()

	snap := o.metricsColl.SnapshotWindow()
	wsDisconnectS := int(time.Since(o.lastWSEventAt).Seconds())
	alerts := o.alertEval.Evaluate(snap, wsDisconnectS)
	wasActive := o.killSwitch.Check().Active
	ksState := o.autoGuard.Evaluate(snap.RejectRate, snap.CopyDelayMs.P95)
	if ksState.Active != wasActive {
		o.notifier.Notify(fmt.Sprintf("kill_switch active=%v reason=%s", ksState.Active, ksState.Reason))
	}
	pnlSnap := o.pnlTracker.Snapshot()

	row := telemetry.SnapshotRow{Metrics: snap, Alerts: alerts, KillSwitch: ksState, PnL: pnlSnap}
	if err := o.snapshotter.Write(row); err != nil {
		log.Warn().Err(err).Msg("snapshot_write_failed")
	}

	if alerts.WebsocketDisconnectBreach || alerts.RejectSpikeBreach || alerts.P95LatencyBreach {
		o.notifier.Notify(fmt.Sprintf(
			"alert ws_disconnect=%v reject_spike=%v p95_latency=%v kill_switch_active=%v",
			alerts.WebsocketDisconnectBreach, alerts.RejectSpikeBreach, alerts.P95LatencyBreach, ksState.Active))
	}
}

func (o *Orchestrator) reconcileSettlements() {
	for _, marketID := range o.pnlTracker.OpenMarkets() {
		meta, err := o.marketCache.Get(marketID)
		if err != nil {
			continue // treat any fetch failure, including 404, as not-yet-settled
		}
		if !meta.Closed || meta.WinningOutcome == "" {
			continue
		}
		if settled := o.pnlTracker.SettleMarket(marketID, meta.WinningOutcome, meta.SettlePrices); settled > 0 {
			log.Info().Str("market", marketID).Int("positions_settled", settled).Msg("market_settled")
		}
	}
}
