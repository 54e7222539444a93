// Package telemetry writes the append-only audit trail (copy decisions,
// shadow/blocked decisions, periodic snapshots) and evaluates alert
// thresholds against the metrics collector's output.
package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// JSONLWriter appends one JSON object per line to a file. NewJSONLWriter
// creates the output directory.
type JSONLWriter struct {
	mu   sync.Mutex
	path string
}

func NewJSONLWriter(outDir, filename string) (*JSONLWriter, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", outDir, err)
	}
	return &JSONLWriter{path: filepath.Join(outDir, filename)}, nil
}

// Write appends row with a "ts" field stamped to the current UTC time.
func (w *JSONLWriter) Write(row map[string]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	payload := map[string]any{"ts": time.Now().UTC().Format(time.RFC3339Nano)}
	for k, v := range row {
		payload[k] = coerce(v)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(append(body, '\n'))
	return err
}

// coerce stringifies fmt.Stringer-like values (decimal.Decimal, time.Time)
// so the JSON encoding matches what the caller intends, not Go's default
// struct/float rendering.
func coerce(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return t.String()
	default:
		return v
	}
}

// CopyAuditLogger records one row per coalesced-intent decision, from
// source events through risk/policy outcome to order submission.
type CopyAuditLogger struct {
	writer *JSONLWriter
}

func NewCopyAuditLogger(outDir string) (*CopyAuditLogger, error) {
	w, err := NewJSONLWriter(outDir, "copy_audit.jsonl")
	if err != nil {
		return nil, err
	}
	return &CopyAuditLogger{writer: w}, nil
}

func (l *CopyAuditLogger) Write(row map[string]any) error {
	return l.writer.Write(row)
}

// ShadowDecisionLogger records decisions that were blocked before
// submission (near-expiry, stale source, below-minimum, risk caps), giving
// a trail of what would have been copied had the guard not fired.
type ShadowDecisionLogger struct {
	writer *JSONLWriter
}

func NewShadowDecisionLogger(outDir string) (*ShadowDecisionLogger, error) {
	w, err := NewJSONLWriter(outDir, "shadow_decisions.jsonl")
	if err != nil {
		return nil, err
	}
	return &ShadowDecisionLogger{writer: w}, nil
}

func (l *ShadowDecisionLogger) Write(row map[string]any) error {
	return l.writer.Write(row)
}
