package state

import (
	"testing"

	"github.com/web3guy0/coinbot/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	return s
}

func TestCheckpointGetSetRoundTrip(t *testing.T) {
	s := openTestStore(t)

	got, err := s.CheckpointGet("activity_api")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty checkpoint before set, got %q", got)
	}

	if err := s.CheckpointSet("activity_api", "cursor-1"); err != nil {
		t.Fatalf("unexpected error setting checkpoint: %v", err)
	}
	got, err = s.CheckpointGet("activity_api")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "cursor-1" {
		t.Fatalf("expected cursor-1, got %q", got)
	}

	if err := s.CheckpointSet("activity_api", "cursor-2"); err != nil {
		t.Fatalf("unexpected error upserting checkpoint: %v", err)
	}
	got, _ = s.CheckpointGet("activity_api")
	if got != "cursor-2" {
		t.Fatalf("expected upsert to cursor-2, got %q", got)
	}
}

func TestDedupeMarkSeenInsertsOnlyOnce(t *testing.T) {
	s := openTestStore(t)
	key := model.DedupeKey{EventID: "evt-1", MarketID: "m1"}

	inserted, err := s.DedupeMarkSeen(key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !inserted {
		t.Fatal("expected first mark to insert")
	}

	inserted, err = s.DedupeMarkSeen(key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inserted {
		t.Fatal("expected second mark to be a no-op")
	}

	seen, err := s.DedupeAlreadySeen(key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !seen {
		t.Fatal("expected key to be marked as seen")
	}
}

func TestDedupeAlreadySeenFalseForUnknownKey(t *testing.T) {
	s := openTestStore(t)
	seen, err := s.DedupeAlreadySeen(model.DedupeKey{EventID: "never-seen"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen {
		t.Fatal("expected unknown key to be unseen")
	}
}
