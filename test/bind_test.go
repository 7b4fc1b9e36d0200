package test

import (
	"testing"

	"github.com/Reddan/checkpointer"
)

// Counter is the receiver type bound-method caching is exercised against.
type Counter struct{ N int }

func (c *Counter) Calc(x int) (int, error) { return c.N + x, nil }

// TestBindIsReceiverSensitiveAndShared exercises method-bound handle
// duplication (spec.md §4.8 "Method binding", invariant I6): every Bind
// call returns a lightweight duplicate sharing the base's Identity and
// storage, but the receiver contributes to the call hash so distinct
// instances land in distinct cache entries.
func TestBindIsReceiverSensitiveAndShared(t *testing.T) {
	c1 := &Counter{N: 1}
	c2 := &Counter{N: 2}

	base, err := checkpointer.Configure(checkpointer.CachedFunc[int, int](c1.Calc), &checkpointer.Config{Storage: "memory"})
	if err != nil {
		t.Fatalf("configure: %v", err)
	}

	bound1 := base.Bind(c1)
	bound2 := base.Bind(c2)

	hash1, err := bound1.GetCallHash(5)
	if err != nil {
		t.Fatalf("GetCallHash(bound1, 5): %v", err)
	}
	hash2, err := bound2.GetCallHash(5)
	if err != nil {
		t.Fatalf("GetCallHash(bound2, 5): %v", err)
	}
	if hash1 == hash2 {
		t.Fatalf("different receivers must produce different call hashes for the same argument; both were %s", hash1)
	}

	// Re-binding the same receiver must reproduce the same call hash
	// (determinism) and must see entries set through the earlier binding
	// (shared storage/identity, not a fresh cache per Bind call).
	if err := bound1.Set(5, 42); err != nil {
		t.Fatalf("Set via bound1: %v", err)
	}

	rebound1 := base.Bind(c1)
	rehash1, err := rebound1.GetCallHash(5)
	if err != nil {
		t.Fatalf("GetCallHash(rebound1, 5): %v", err)
	}
	if rehash1 != hash1 {
		t.Fatalf("re-binding the same receiver produced a different call hash: %s vs %s", rehash1, hash1)
	}
	if v, err := rebound1.Get(5); err != nil || v != 42 {
		t.Fatalf("rebound1.Get(5) = (%d, %v); want (42, nil) since it shares storage with bound1", v, err)
	}

	// bound2 (a different receiver) must not see the entry set through
	// bound1.
	if exists, err := bound2.Exists(5); err != nil || exists {
		t.Fatalf("bound2.Exists(5) = (%v, %v); want (false, nil): distinct receivers must not share entries", exists, err)
	}
}
