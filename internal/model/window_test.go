package model

import (
	"testing"
	"time"
)

func TestParseMarketWindowParsesTitle(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	w, err := ParseMarketWindow("Bitcoin Up or Down - July 31, 2:00PM-2:15PM ET", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w == nil {
		t.Fatal("expected a parsed window")
	}
	if w.Asset != "Bitcoin" {
		t.Errorf("expected asset Bitcoin, got %q", w.Asset)
	}
	if w.DurationSeconds != 15*60 {
		t.Errorf("expected 900s duration, got %d", w.DurationSeconds)
	}
	if !w.EndTS.After(w.StartTS) {
		t.Error("expected end after start")
	}
	if w.WindowID == "" {
		t.Error("expected a non-empty window id")
	}
}

func TestParseMarketWindowReturnsNilForNonMatchingTitle(t *testing.T) {
	w, err := ParseMarketWindow("Will the Fed cut rates in September?", time.Now().UTC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w != nil {
		t.Fatalf("expected nil for non-window title, got %+v", w)
	}
}

func TestParseMarketWindowHandlesMidnightRollover(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	w, err := ParseMarketWindow("Ethereum Up or Down - July 31, 11:45PM-12:00AM ET", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w == nil {
		t.Fatal("expected a parsed window")
	}
	if !w.EndTS.After(w.StartTS) {
		t.Fatalf("expected end after start across midnight, got start=%v end=%v", w.StartTS, w.EndTS)
	}
}
