// Package policy sizes a coalesced intent and screens it against
// expiry/staleness/minimum-size guards before it reaches the risk tracker.
package policy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/coinbot/internal/model"
)

type SizingMode string

const (
	SizingFixed              SizingMode = "fixed"
	SizingProportional       SizingMode = "proportional"
	SizingCappedProportional SizingMode = "capped_proportional"
)

type Config struct {
	SizingMode              SizingMode
	FixedOrderNotionalUSD   decimal.Decimal
	SizeMultiplier          decimal.Decimal
	MinOrderNotionalUSD     decimal.Decimal
	MaxNotionalPerOrderUSD  decimal.Decimal
	MaxSlippageBps          int
	NearExpiryCutoffSeconds int
	MaxSourceStalenessMs    int64
}

// Decision is the output of Policy.Apply: either a sized intent ready for
// the risk tracker, or a block reason.
type Decision struct {
	Intent        *model.ExecutionIntent
	BlockedReason string
}

func (d Decision) Blocked() bool { return d.Intent == nil }

type Policy struct {
	cfg Config
}

func New(cfg Config) *Policy {
	return &Policy{cfg: cfg}
}

// Apply sizes intent and runs it through the ordered guards. sourceEvents
// is the coalesced bucket's contributing events, used for the expiry and
// staleness checks (most recent event wins).
func (p *Policy) Apply(intent model.ExecutionIntent, sourceEvents []model.TradeEvent, now time.Time) Decision {
	if p.nearExpiry(sourceEvents, now) {
		return Decision{BlockedReason: "near_expiry_cutoff"}
	}
	if p.sourceStale(sourceEvents, now) {
		return Decision{BlockedReason: "source_stale"}
	}

	sized := p.sizeNotional(intent.TargetNotionalUSD)
	if sized.LessThan(p.cfg.MinOrderNotionalUSD) {
		return Decision{BlockedReason: "below_min_order_notional"}
	}

	out := intent
	out.TargetNotionalUSD = sized
	out.MaxSlippageBps = p.cfg.MaxSlippageBps
	return Decision{Intent: &out}
}

func (p *Policy) sizeNotional(sourceNotional decimal.Decimal) decimal.Decimal {
	var sized decimal.Decimal
	switch p.cfg.SizingMode {
	case SizingFixed:
		sized = p.cfg.FixedOrderNotionalUSD
	case SizingProportional:
		sized = sourceNotional.Mul(p.cfg.SizeMultiplier)
	default: // capped_proportional
		sized = sourceNotional.Mul(p.cfg.SizeMultiplier)
		if sized.GreaterThan(p.cfg.MaxNotionalPerOrderUSD) {
			sized = p.cfg.MaxNotionalPerOrderUSD
		}
	}
	if sized.GreaterThan(p.cfg.MaxNotionalPerOrderUSD) {
		sized = p.cfg.MaxNotionalPerOrderUSD
	}
	return sized
}

func (p *Policy) nearExpiry(sourceEvents []model.TradeEvent, now time.Time) bool {
	if len(sourceEvents) == 0 {
		return false
	}
	event := sourceEvents[len(sourceEvents)-1]
	if event.Window == nil {
		return false
	}
	remaining := event.Window.EndTS.Sub(now).Seconds()
	return remaining <= float64(p.cfg.NearExpiryCutoffSeconds)
}

func (p *Policy) sourceStale(sourceEvents []model.TradeEvent, now time.Time) bool {
	if len(sourceEvents) == 0 {
		return false
	}
	last := sourceEvents[len(sourceEvents)-1]
	ageMs := now.Sub(last.ExecutedTS).Milliseconds()
	return ageMs > p.cfg.MaxSourceStalenessMs
}
