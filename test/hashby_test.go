package test

import (
	"sync"
	"testing"

	"github.com/Reddan/checkpointer"
)

// bigRequest carries a field that should never affect the call hash
// (requestID, e.g. a trace id unique per call) alongside a field that
// should (amount).
type bigRequest struct {
	RequestID string
	Amount    int
}

// TestHashByArgIgnoresAnnotatedField exercises Config.HashByArg (spec.md
// §4.5/§6 HashBy/NoHash): two calls with different RequestID but the same
// Amount must collapse onto the same call_hash and therefore the same
// cached result, while a different Amount must not.
func TestHashByArgIgnoresAnnotatedField(t *testing.T) {
	var mu sync.Mutex
	calls := 0

	fn := func(req bigRequest) (int, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return req.Amount * 10, nil
	}

	cache, err := checkpointer.Configure(fn, &checkpointer.Config{
		Storage: "memory",
		HashByArg: func(value interface{}) interface{} {
			req := value.(bigRequest)
			return req.Amount
		},
	})
	if err != nil {
		t.Fatalf("configure: %v", err)
	}

	v1, err := cache.Call(bigRequest{RequestID: "req-a", Amount: 7})
	if err != nil || v1 != 70 {
		t.Fatalf("first call = (%d, %v); want (70, nil)", v1, err)
	}

	// Same Amount, different RequestID: must hit the cache.
	v2, err := cache.Call(bigRequest{RequestID: "req-b", Amount: 7})
	if err != nil || v2 != 70 {
		t.Fatalf("second call (different id, same amount) = (%d, %v); want (70, nil)", v2, err)
	}

	mu.Lock()
	if calls != 1 {
		t.Errorf("underlying function called %d times; want 1 (RequestID must not affect the call hash)", calls)
	}
	mu.Unlock()

	// Different Amount: must miss.
	v3, err := cache.Call(bigRequest{RequestID: "req-c", Amount: 9})
	if err != nil || v3 != 90 {
		t.Fatalf("third call (different amount) = (%d, %v); want (90, nil)", v3, err)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Errorf("underlying function called %d times; want 2 (a different Amount must miss the cache)", calls)
	}
}

// TestNoHashCollapsesEveryCallOntoOneEntry exercises the NoHash shorthand:
// every call shares one entry regardless of argument.
func TestNoHashCollapsesEveryCallOntoOneEntry(t *testing.T) {
	var mu sync.Mutex
	calls := 0

	fn := func(x int) (int, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return x, nil
	}

	cache, err := checkpointer.Configure(fn, &checkpointer.Config{
		Storage:   "memory",
		HashByArg: checkpointer.NoHash,
	})
	if err != nil {
		t.Fatalf("configure: %v", err)
	}

	v1, err := cache.Call(1)
	if err != nil || v1 != 1 {
		t.Fatalf("Call(1) = (%d, %v); want (1, nil)", v1, err)
	}
	// A distinct argument still resolves to the one NoHash'd entry.
	v2, err := cache.Call(2)
	if err != nil || v2 != 1 {
		t.Fatalf("Call(2) = (%d, %v); want (1, nil) since HashByArg=NoHash collapses all calls", v2, err)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("underlying function called %d times; want 1", calls)
	}
}
