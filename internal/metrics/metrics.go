// Package metrics tracks per-correlation-id pipeline stage timestamps and
// derives the rolling latency/throughput figures surfaced in telemetry
// snapshots.
package metrics

import (
	"math"
	"sort"
	"sync"

	"github.com/web3guy0/coinbot/internal/model"
)

type stageTimes struct {
	eventReceiveMs int64
	decisionMs     int64
	orderSubmitMs  int64
	ackMs          int64
	hasReceive     bool
	hasSubmit      bool
}

type PercentileSummary struct {
	P50, P95, P99 float64
	HasData       bool
}

type Snapshot struct {
	CopyDelayMs           PercentileSummary
	DecisionDelayMs       PercentileSummary
	SubmitToAckMs         PercentileSummary
	SourceFills           int
	DestinationOrders     int
	CoalescingEfficiency  float64
	HasCoalescingEfficiency bool
	RejectRate            float64
}

// Collector accumulates stage timings. Safe for concurrent use.
type Collector struct {
	mu sync.Mutex

	byCorrelation map[string]*stageTimes

	copyDelays        []float64
	decisionDelays    []float64
	submitToAckDelays []float64

	sourceFills       int
	destinationOrders int
	submissions       int
	rejections        int // excludes min_size rejections
}

func New() *Collector {
	return &Collector{byCorrelation: make(map[string]*stageTimes)}
}

func (c *Collector) stage(correlationID string) *stageTimes {
	st, ok := c.byCorrelation[correlationID]
	if !ok {
		st = &stageTimes{}
		c.byCorrelation[correlationID] = st
	}
	return st
}

func (c *Collector) RecordEventReceive(correlationID string, tsMs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.stage(correlationID)
	st.eventReceiveMs = tsMs
	st.hasReceive = true
	c.sourceFills++
}

func (c *Collector) RecordDecision(correlationID string, tsMs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.stage(correlationID)
	st.decisionMs = tsMs
	if st.hasReceive {
		c.decisionDelays = append(c.decisionDelays, float64(tsMs-st.eventReceiveMs))
	}
}

func (c *Collector) RecordOrderSubmit(correlationID string, tsMs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.stage(correlationID)
	st.orderSubmitMs = tsMs
	st.hasSubmit = true
	c.destinationOrders++
	c.submissions++
	if st.hasReceive {
		c.copyDelays = append(c.copyDelays, float64(tsMs-st.eventReceiveMs))
	}
}

// RecordAck records the ack stage. errorCode excludes model.ErrorCodeMinSize
// rejections from reject-rate accounting so benign below-minimum rejections
// never trip the auto kill switch.
func (c *Collector) RecordAck(correlationID string, tsMs int64, accepted bool, errorCode string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.stage(correlationID)
	st.ackMs = tsMs
	if st.hasSubmit {
		c.submitToAckDelays = append(c.submitToAckDelays, float64(tsMs-st.orderSubmitMs))
	}
	if !accepted && errorCode != model.ErrorCodeMinSize {
		c.rejections++
	}
}

// Snapshot returns cumulative figures accumulated since the Collector was
// created or last reset.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// SnapshotWindow returns the same figures as Snapshot but then clears the
// rolling delay/count accumulators, so the next snapshot reflects only the
// interval since this call. Per-correlation stage timestamps persist so
// late-arriving stages for in-flight correlations still resolve.
func (c *Collector) SnapshotWindow() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.snapshotLocked()

	c.copyDelays = nil
	c.decisionDelays = nil
	c.submitToAckDelays = nil
	c.sourceFills = 0
	c.destinationOrders = 0
	c.submissions = 0
	c.rejections = 0
	return snap
}

func (c *Collector) snapshotLocked() Snapshot {
	snap := Snapshot{
		CopyDelayMs:       summarize(c.copyDelays),
		DecisionDelayMs:   summarize(c.decisionDelays),
		SubmitToAckMs:     summarize(c.submitToAckDelays),
		SourceFills:       c.sourceFills,
		DestinationOrders: c.destinationOrders,
	}
	if c.destinationOrders > 0 {
		snap.CoalescingEfficiency = float64(c.sourceFills) / float64(c.destinationOrders)
		snap.HasCoalescingEfficiency = true
	}
	if c.submissions > 0 {
		snap.RejectRate = float64(c.rejections) / float64(c.submissions)
	}
	return snap
}

func summarize(values []float64) PercentileSummary {
	if len(values) == 0 {
		return PercentileSummary{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return PercentileSummary{
		P50:     percentile(sorted, 50),
		P95:     percentile(sorted, 95),
		P99:     percentile(sorted, 99),
		HasData: true,
	}
}

func percentile(sortedValues []float64, p float64) float64 {
	n := len(sortedValues)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sortedValues[0]
	}
	index := int(math.Round(p / 100 * float64(n-1)))
	if index < 0 {
		index = 0
	}
	if index > n-1 {
		index = n - 1
	}
	return sortedValues[index]
}
