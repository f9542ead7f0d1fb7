package authkit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStateStoreIssueAndConsume(t *testing.T) {
	t.Parallel()
	store := NewMemoryStateStore(2 * time.Minute).(*memoryStateStore)
	store.now = func() time.Time { return time.Unix(1000, 0) }

	state, err := store.Issue(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("issue state: %v", err)
	}
	if state == "" {
		t.Fatalf("expected state value")
	}

	if err := store.Consume(context.Background(), "session-1", state); err != nil {
		t.Fatalf("consume state: %v", err)
	}

	if err := store.Consume(context.Background(), "session-1", state); err != ErrStateNotFound {
		t.Fatalf("expected ErrStateNotFound on second consume, got %v", err)
	}
}

func TestMemoryStateStoreMismatch(t *testing.T) {
	t.Parallel()
	store := NewMemoryStateStore(2 * time.Minute).(*memoryStateStore)
	store.now = func() time.Time { return time.Unix(1000, 0) }

	state, err := store.Issue(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("issue state: %v", err)
	}

	if err := store.Consume(context.Background(), "session-1", "forged-"+state); err != ErrStateMismatch {
		t.Fatalf("expected ErrStateMismatch, got %v", err)
	}

	// A failed comparison still discards the entry.
	if err := store.Consume(context.Background(), "session-1", state); err != ErrStateNotFound {
		t.Fatalf("expected ErrStateNotFound after discarded entry, got %v", err)
	}
}

func TestMemoryStateStoreExpiry(t *testing.T) {
	t.Parallel()
	store := NewMemoryStateStore(time.Minute).(*memoryStateStore)
	current := time.Unix(1000, 0)
	store.now = func() time.Time { return current }

	state, err := store.Issue(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("issue state: %v", err)
	}

	current = current.Add(2 * time.Minute)

	if err := store.Consume(context.Background(), "session-1", state); err != ErrStateExpired {
		t.Fatalf("expected ErrStateExpired, got %v", err)
	}
}

func TestMemoryStateStoreIssueReplacesPrevious(t *testing.T) {
	t.Parallel()
	store := NewMemoryStateStore(2 * time.Minute).(*memoryStateStore)
	store.now = func() time.Time { return time.Unix(1000, 0) }

	first, err := store.Issue(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("issue first state: %v", err)
	}
	second, err := store.Issue(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("issue second state: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct state values")
	}

	if err := store.Consume(context.Background(), "session-1", first); err != ErrStateMismatch {
		t.Fatalf("expected superseded state to mismatch, got %v", err)
	}
}
