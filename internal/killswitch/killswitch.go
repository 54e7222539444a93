// Package killswitch holds the manual/automatic trading halt and the
// hysteresis-based guard that flips it from telemetry snapshots.
package killswitch

import "sync"

type State struct {
	Active bool
	Reason string
}

// KillSwitch is safe for concurrent use; the orchestrator checks it before
// every submission while AutoKillGuard flips it from the metrics loop.
type KillSwitch struct {
	mu    sync.RWMutex
	state State
}

func New() *KillSwitch {
	return &KillSwitch{}
}

func (k *KillSwitch) Activate(reason string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.state = State{Active: true, Reason: reason}
}

func (k *KillSwitch) Deactivate() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.state = State{}
}

func (k *KillSwitch) Check() State {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.state
}

type Thresholds struct {
	MaxErrorRate                 float64
	MaxP95LatencyMs               float64
	RecoverMaxErrorRate          float64
	RecoverMaxP95LatencyMs       float64
	RecoveryConsecutiveSnapshots int
}

// AutoKillGuard evaluates each telemetry snapshot and flips the kill switch.
// Recovery requires RecoveryConsecutiveSnapshots consecutive healthy
// readings; any unhealthy reading resets the streak.
type AutoKillGuard struct {
	killSwitch    *KillSwitch
	thresholds    Thresholds
	healthyStreak int
}

func NewAutoKillGuard(ks *KillSwitch, thresholds Thresholds) *AutoKillGuard {
	return &AutoKillGuard{killSwitch: ks, thresholds: thresholds}
}

func (g *AutoKillGuard) Evaluate(errorRate, p95LatencyMs float64) State {
	if errorRate > g.thresholds.MaxErrorRate {
		g.killSwitch.Activate("auto_error_rate_threshold")
		g.healthyStreak = 0
		return g.killSwitch.Check()
	}
	if p95LatencyMs > g.thresholds.MaxP95LatencyMs {
		g.killSwitch.Activate("auto_latency_threshold")
		g.healthyStreak = 0
		return g.killSwitch.Check()
	}

	if g.killSwitch.Check().Active {
		healthy := errorRate <= g.thresholds.RecoverMaxErrorRate &&
			p95LatencyMs <= g.thresholds.RecoverMaxP95LatencyMs
		if healthy {
			g.healthyStreak++
			if g.healthyStreak >= g.thresholds.RecoveryConsecutiveSnapshots {
				g.killSwitch.Deactivate()
				g.healthyStreak = 0
			}
		} else {
			g.healthyStreak = 0
		}
	}
	return g.killSwitch.Check()
}
