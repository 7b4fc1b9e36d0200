package test

import (
	"sync"
	"testing"

	"github.com/Reddan/checkpointer"
)

// There is no capacity/eviction concept in the content-addressable store:
// every distinct call_hash gets its own entry, and entries are only removed
// by explicit Delete/Clear or by expiry. This test exercises that lifecycle
// surface instead (Exists, Delete, Set, GetOr, Clear).
func TestCacheLifecycleOperations(t *testing.T) {
	var mu sync.Mutex
	calls := 0

	fn := func(key int) (int, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return key, nil
	}

	cache, err := checkpointer.Configure(fn, &checkpointer.Config{Storage: "memory"})
	if err != nil {
		t.Fatalf("configure: %v", err)
	}

	if exists, err := cache.Exists(1); err != nil || exists {
		t.Fatalf("Exists(1) before any call = (%v, %v); want (false, nil)", exists, err)
	}

	if v, err := cache.Call(1); err != nil || v != 1 {
		t.Fatalf("Call(1) = (%d, %v); want (1, nil)", v, err)
	}
	if v, err := cache.Call(2); err != nil || v != 2 {
		t.Fatalf("Call(2) = (%d, %v); want (2, nil)", v, err)
	}

	if exists, err := cache.Exists(1); err != nil || !exists {
		t.Fatalf("Exists(1) after Call(1) = (%v, %v); want (true, nil)", exists, err)
	}

	// Delete(1) forces the next Call(1) to recompute.
	if err := cache.Delete(1); err != nil {
		t.Fatalf("Delete(1): %v", err)
	}
	if exists, err := cache.Exists(1); err != nil || exists {
		t.Fatalf("Exists(1) after Delete(1) = (%v, %v); want (false, nil)", exists, err)
	}

	// Set(3, 99) seeds a value without ever invoking fn for that call.
	if err := cache.Set(3, 99); err != nil {
		t.Fatalf("Set(3, 99): %v", err)
	}
	if v, err := cache.Call(3); err != nil || v != 99 {
		t.Fatalf("Call(3) after Set = (%d, %v); want (99, nil)", v, err)
	}

	// GetOr falls back without invoking fn for an absent key.
	if v := cache.GetOr(4, -1); v != -1 {
		t.Fatalf("GetOr(4, -1) = %d; want -1 (no entry present)", v)
	}

	mu.Lock()
	calledBeforeClear := calls
	mu.Unlock()

	if err := cache.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if exists, err := cache.Exists(2); err != nil || exists {
		t.Fatalf("Exists(2) after Clear = (%v, %v); want (false, nil)", exists, err)
	}

	// Call(1) recomputes: Delete(1) removed its entry earlier and Clear
	// wiped every remaining entry, so the underlying function runs again.
	if v, err := cache.Call(1); err != nil || v != 1 {
		t.Fatalf("Call(1) after Clear = (%d, %v); want (1, nil)", v, err)
	}

	mu.Lock()
	if calls <= calledBeforeClear {
		t.Errorf("expected at least one additional underlying call after Clear, got %d (was %d)", calls, calledBeforeClear)
	}
	mu.Unlock()
}
