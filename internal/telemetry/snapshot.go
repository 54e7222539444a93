package telemetry

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/web3guy0/coinbot/internal/killswitch"
	"github.com/web3guy0/coinbot/internal/metrics"
	"github.com/web3guy0/coinbot/internal/pnl"
)

var csvHeader = []string{
	"ts", "copy_delay_p50_ms", "copy_delay_p95_ms", "copy_delay_p99_ms",
	"source_fills", "destination_orders", "coalescing_efficiency", "reject_rate",
	"alert_ws_disconnect", "alert_reject_spike", "alert_p95_latency",
	"kill_switch_active", "kill_switch_reason",
	"realized_pnl_usd", "realized_settled_pnl_usd", "unrealized_pnl_usd", "fees_usd", "net_pnl_usd",
}

// SnapshotRow is one row written to snapshots.csv/snapshots.jsonl.
type SnapshotRow struct {
	Metrics    metrics.Snapshot
	Alerts     AlertState
	KillSwitch killswitch.State
	PnL        pnl.Snapshot
}

// SnapshotWriter appends periodic orchestrator snapshots to both a
// fixed-header CSV and a JSONL file with the same fields.
type SnapshotWriter struct {
	mu        sync.Mutex
	csvPath   string
	jsonl     *JSONLWriter
	wroteHead bool
}

func NewSnapshotWriter(outDir string) (*SnapshotWriter, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", outDir, err)
	}
	jsonl, err := NewJSONLWriter(outDir, "snapshots.jsonl")
	if err != nil {
		return nil, err
	}

	csvPath := filepath.Join(outDir, "snapshots.csv")
	wroteHead := false
	if info, err := os.Stat(csvPath); err == nil && info.Size() > 0 {
		wroteHead = true
	}

	return &SnapshotWriter{csvPath: csvPath, jsonl: jsonl, wroteHead: wroteHead}, nil
}

func (w *SnapshotWriter) Write(row SnapshotRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339Nano)

	f, err := os.OpenFile(w.csvPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if !w.wroteHead {
		if err := cw.Write(csvHeader); err != nil {
			return err
		}
		w.wroteHead = true
	}

	record := []string{
		now,
		fmtFloat(row.Metrics.CopyDelayMs.P50),
		fmtFloat(row.Metrics.CopyDelayMs.P95),
		fmtFloat(row.Metrics.CopyDelayMs.P99),
		fmt.Sprintf("%d", row.Metrics.SourceFills),
		fmt.Sprintf("%d", row.Metrics.DestinationOrders),
		fmtFloat(row.Metrics.CoalescingEfficiency),
		fmtFloat(row.Metrics.RejectRate),
		fmt.Sprintf("%t", row.Alerts.WebsocketDisconnectBreach),
		fmt.Sprintf("%t", row.Alerts.RejectSpikeBreach),
		fmt.Sprintf("%t", row.Alerts.P95LatencyBreach),
		fmt.Sprintf("%t", row.KillSwitch.Active),
		row.KillSwitch.Reason,
		row.PnL.RealizedTradingUSD.String(),
		row.PnL.RealizedSettledUSD.String(),
		row.PnL.UnrealizedUSD.String(),
		row.PnL.FeesUSD.String(),
		row.PnL.NetUSD.String(),
	}
	if err := cw.Write(record); err != nil {
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}

	return w.jsonl.Write(map[string]any{
		"copy_delay_p50_ms":        row.Metrics.CopyDelayMs.P50,
		"copy_delay_p95_ms":        row.Metrics.CopyDelayMs.P95,
		"copy_delay_p99_ms":        row.Metrics.CopyDelayMs.P99,
		"source_fills":             row.Metrics.SourceFills,
		"destination_orders":       row.Metrics.DestinationOrders,
		"coalescing_efficiency":    row.Metrics.CoalescingEfficiency,
		"reject_rate":              row.Metrics.RejectRate,
		"alert_ws_disconnect":      row.Alerts.WebsocketDisconnectBreach,
		"alert_reject_spike":       row.Alerts.RejectSpikeBreach,
		"alert_p95_latency":        row.Alerts.P95LatencyBreach,
		"kill_switch_active":       row.KillSwitch.Active,
		"kill_switch_reason":       row.KillSwitch.Reason,
		"realized_pnl_usd":         row.PnL.RealizedTradingUSD.String(),
		"realized_settled_pnl_usd": row.PnL.RealizedSettledUSD.String(),
		"unrealized_pnl_usd":       row.PnL.UnrealizedUSD.String(),
		"fees_usd":                 row.PnL.FeesUSD.String(),
		"net_pnl_usd":              row.PnL.NetUSD.String(),
	})
}

func fmtFloat(v float64) string {
	return fmt.Sprintf("%.4f", v)
}

type AlertThresholds struct {
	P95CopyDelayMs   float64
	MaxRejectRate    float64
	MaxWSDisconnectS int
}

type AlertState struct {
	WebsocketDisconnectBreach bool
	RejectSpikeBreach         bool
	P95LatencyBreach          bool
}

type AlertEvaluator struct {
	thresholds AlertThresholds
}

func NewAlertEvaluator(thresholds AlertThresholds) *AlertEvaluator {
	return &AlertEvaluator{thresholds: thresholds}
}

func (e *AlertEvaluator) Evaluate(snap metrics.Snapshot, wsDisconnectS int) AlertState {
	return AlertState{
		WebsocketDisconnectBreach: wsDisconnectS > e.thresholds.MaxWSDisconnectS,
		RejectSpikeBreach:         snap.RejectRate > e.thresholds.MaxRejectRate,
		P95LatencyBreach:          snap.CopyDelayMs.P95 > e.thresholds.P95CopyDelayMs,
	}
}
