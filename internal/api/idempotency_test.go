package api

import (
	"errors"
	"fmt"
	"testing"
)

func TestIdempotencyCache_ReplaysCompletedResponse(t *testing.T) {
	c := NewIdempotencyCache(0)

	rec, err := c.Begin("u1", "k1", "hash-a")
	if err != nil || rec != nil {
		t.Fatalf("first begin must reserve, got rec=%v err=%v", rec, err)
	}
	c.Complete("u1", "k1", 200, []byte(`{"ok":true}`))

	rec, err = c.Begin("u1", "k1", "hash-a")
	if err != nil {
		t.Fatalf("replay begin failed: %v", err)
	}
	if rec == nil || rec.status != 200 || string(rec.body) != `{"ok":true}` {
		t.Fatalf("expected stored response back, got %+v", rec)
	}
}

func TestIdempotencyCache_RejectsMismatchAndInProgress(t *testing.T) {
	c := NewIdempotencyCache(0)

	if _, err := c.Begin("u1", "k1", "hash-a"); err != nil {
		t.Fatalf("begin failed: %v", err)
	}

	if _, err := c.Begin("u1", "k1", "hash-b"); !errors.Is(err, errIdempotencyMismatch) {
		t.Fatalf("expected mismatch error, got %v", err)
	}
	if _, err := c.Begin("u1", "k1", "hash-a"); !errors.Is(err, errIdempotencyInProgress) {
		t.Fatalf("expected in-progress error, got %v", err)
	}

	// Keys are scoped per user.
	if rec, err := c.Begin("u2", "k1", "hash-b"); err != nil || rec != nil {
		t.Fatalf("another user's key must be independent, got rec=%v err=%v", rec, err)
	}
}

func TestIdempotencyCache_ReleaseAllowsRetry(t *testing.T) {
	c := NewIdempotencyCache(0)

	if _, err := c.Begin("u1", "k1", "hash-a"); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	c.Release("u1", "k1")

	rec, err := c.Begin("u1", "k1", "hash-a")
	if err != nil || rec != nil {
		t.Fatalf("released key must reserve fresh, got rec=%v err=%v", rec, err)
	}
}

func TestIdempotencyCache_CapDropsOldestCompleted(t *testing.T) {
	c := NewIdempotencyCache(2)

	for i := 1; i <= 3; i++ {
		key := fmt.Sprintf("k%d", i)
		if _, err := c.Begin("u1", key, "hash"); err != nil {
			t.Fatalf("begin %s failed: %v", key, err)
		}
		c.Complete("u1", key, 200, []byte("{}"))
	}

	// k1 was evicted, so the key reserves fresh instead of replaying.
	rec, err := c.Begin("u1", "k1", "hash")
	if err != nil || rec != nil {
		t.Fatalf("evicted key must reserve fresh, got rec=%v err=%v", rec, err)
	}

	// The newest completed record survives.
	rec, err = c.Begin("u1", "k3", "hash")
	if err != nil || rec == nil {
		t.Fatalf("expected k3 replay to survive eviction, got rec=%v err=%v", rec, err)
	}
}

func TestIdempotencyCache_NeverEvictsInProgress(t *testing.T) {
	c := NewIdempotencyCache(1)

	if _, err := c.Begin("u1", "pending", "hash"); err != nil {
		t.Fatalf("begin failed: %v", err)
	}

	if _, err := c.Begin("u1", "done", "hash"); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	c.Complete("u1", "done", 200, []byte("{}"))

	// The in-flight reservation still blocks its key.
	if _, err := c.Begin("u1", "pending", "hash"); !errors.Is(err, errIdempotencyInProgress) {
		t.Fatalf("in-flight reservation must not be evicted, got %v", err)
	}
}
