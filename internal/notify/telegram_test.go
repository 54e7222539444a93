package notify

import "testing"

func TestNewTelegramReturnsNoopWhenTokenEmpty(t *testing.T) {
	n, err := NewTelegram("", 123)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := n.(noop); !ok {
		t.Fatalf("expected noop notifier, got %T", n)
	}
}

func TestNoopNotifyIsSafeToCall(t *testing.T) {
	n := NewNoop()
	n.Notify("anything") // must not panic
}
