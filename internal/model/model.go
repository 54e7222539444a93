// Package model holds the data shapes shared across the replica pipeline:
// trade events observed on the watched wallet, the coalesced intents derived
// from them, and the bookkeeping records (risk snapshots, order submissions
// and lifecycles, positions) produced while executing those intents.
package model

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a fill or order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// SourcePath identifies which intake producer observed a TradeEvent.
type SourcePath string

const (
	SourceActivityAPI SourcePath = "activity_api"
	SourceClobWS      SourcePath = "clob_ws"
)

// MarketWindow is a time-bucketed "up or down" market parsed from its title.
type MarketWindow struct {
	Asset           string
	StartTS         time.Time
	EndTS           time.Time
	DurationSeconds int64
	WindowID        string
}

// TradeEvent is one observed fill on the watched wallet. Immutable after
// emission by either intake producer.
type TradeEvent struct {
	EventID     string
	SourceWallet string
	MarketID    string
	MarketSlug  string
	Outcome     string
	Side        Side
	Price       decimal.Decimal
	Shares      decimal.Decimal
	NotionalUSD decimal.Decimal
	ExecutedTS  time.Time
	ReceivedTS  time.Time
	Window      *MarketWindow
	SourcePath  SourcePath

	// Stage timing annotations, all milliseconds.
	SourceExecToFetchMs float64
	SourceFetchToEmitMs float64
	SourcePollCycleMs   float64
}

// WindowID returns the event's window id, or "na" if it has none.
func (e TradeEvent) WindowID() string {
	if e.Window == nil {
		return "na"
	}
	return e.Window.WindowID
}

// ExecutionIntent is the coalesced, signed decision to place one order.
type ExecutionIntent struct {
	IntentID           string
	MarketID           string
	Outcome            string
	Side               Side
	TargetNotionalUSD  decimal.Decimal
	MaxSlippageBps     int
	CoalescedEventIDs  []string
	WindowID           string
	CreatedTS          time.Time
}

// RiskSnapshot is the outcome of a pre-trade risk check.
type RiskSnapshot struct {
	TotalNotionalTodayUSD        decimal.Decimal
	TotalNotionalCurrent15mUSD   decimal.Decimal
	MarketExposureUSD            map[string]decimal.Decimal
	Blocked                      bool
	BlockedReason                string
}

// Submission status values.
const (
	StatusAcknowledged        = "acknowledged"
	StatusDryRunAcknowledged  = "dry_run_acknowledged"
	StatusRejected            = "rejected"
)

// Error code taxonomy for OrderSubmission.ErrorCode.
const (
	ErrorCodeNone    = ""
	ErrorCodeMinSize = "min_size"
)

// OrderSubmission is the result of attempting to submit an order.
type OrderSubmission struct {
	ClientOrderID string
	Endpoint      string
	Payload       map[string]any
	Accepted      bool
	Status        string
	Response      map[string]any
	Error         string
	ErrorCode     string
}

// OrderLifecycle status values. Forward-only: created -> {acknowledged,
// rejected}; acknowledged -> partial_fill* -> filled.
const (
	LifecycleCreated      = "created"
	LifecycleAcknowledged = "acknowledged"
	LifecycleRejected     = "rejected"
	LifecyclePartialFill  = "partial_fill"
	LifecycleFilled       = "filled"
)

// OrderLifecycle is the mutable state of a submitted order.
type OrderLifecycle struct {
	ClientOrderID     string
	Status            string
	FilledNotionalUSD decimal.Decimal
	UpdateTS          time.Time
}

// Position is the open exposure for one (market, outcome) pair.
type Position struct {
	Qty      decimal.Decimal // signed: positive long, negative short
	AvgPrice decimal.Decimal
}

// DedupeKey is the priority-ordered fingerprint used to de-duplicate trade
// events across both intake sources. The intake producers build one per
// observed row.
type DedupeKey struct {
	EventID    string
	TxHash     string
	Sequence   string
	MarketID   string
	SeenAtUnix int64
}

// Fingerprint returns the priority-ordered dedupe string for k, following
// id > txseq > tx > fallback.
func (k DedupeKey) Fingerprint() string {
	switch {
	case k.EventID != "":
		return "id:" + k.EventID
	case k.TxHash != "" && k.Sequence != "":
		return "txseq:" + k.TxHash + ":" + k.Sequence
	case k.TxHash != "" && k.MarketID != "":
		return "tx:" + k.TxHash + ":" + k.MarketID
	default:
		return "fallback:" + k.MarketID + ":" + strconv.FormatInt(k.SeenAtUnix, 10)
	}
}
