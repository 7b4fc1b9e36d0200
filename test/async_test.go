package test

import (
	"sync"
	"testing"
	"time"

	"github.com/Reddan/checkpointer"
)

// asyncAdd is the CachedFunc identity CallAwaitable is configured over; its
// body is never executed by CallAwaitable (which always runs the asyncFn
// passed alongside it instead), only its source fingerprint matters.
func asyncAdd(x int) (int, error) { return x, nil }

// runAsync builds a pending Future, resolves it on another goroutine after
// a short delay (standing in for real asynchronous work), and returns it
// immediately — the shape CallAwaitable's asyncFn parameter expects.
func runAsync(compute func() (int, error)) *checkpointer.Future[int] {
	fut := checkpointer.NewPending[int]()
	go func() {
		time.Sleep(time.Millisecond)
		val, err := compute()
		fut.Resolve(val, err)
	}()
	return fut
}

// TestCallAwaitableCachesResolvedValue exercises the async/CallAwaitable
// path (spec.md §4.6/§5): the wrapped computation is shaped as
// func(K) (*Future[V], error) instead of a plain synchronous CachedFunc.
// The engine awaits it once on a refresh and stores the resolved value;
// a subsequent CallAwaitable for the same argument must not re-invoke the
// async function, and must still hand back an already-resolved Future.
func TestCallAwaitableCachesResolvedValue(t *testing.T) {
	var mu sync.Mutex
	calls := 0

	asyncFn := func(x int) (*checkpointer.Future[int], error) {
		return runAsync(func() (int, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			return x * 100, nil
		}), nil
	}

	cache, err := checkpointer.Configure(checkpointer.CachedFunc[int, int](asyncAdd), &checkpointer.Config{Storage: "memory"})
	if err != nil {
		t.Fatalf("configure: %v", err)
	}

	fut1 := checkpointer.CallAwaitable(cache, 3, asyncFn)
	v1, err := fut1.Await()
	if err != nil || v1 != 300 {
		t.Fatalf("first CallAwaitable = (%d, %v); want (300, nil)", v1, err)
	}

	fut2 := checkpointer.CallAwaitable(cache, 3, asyncFn)
	v2, err := fut2.Await()
	if err != nil || v2 != 300 {
		t.Fatalf("second CallAwaitable = (%d, %v); want (300, nil)", v2, err)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("async function called %d times; want 1 (second call should hit the cache)", calls)
	}
}

// TestRerunAwaitableForcesReexecution exercises RerunAwaitable, the
// rerun-forced counterpart to CallAwaitable.
func TestRerunAwaitableForcesReexecution(t *testing.T) {
	var mu sync.Mutex
	calls := 0

	asyncFn := func(x int) (*checkpointer.Future[int], error) {
		return runAsync(func() (int, error) {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			return x + n, nil
		}), nil
	}

	cache, err := checkpointer.Configure(checkpointer.CachedFunc[int, int](asyncAdd), &checkpointer.Config{Storage: "memory"})
	if err != nil {
		t.Fatalf("configure: %v", err)
	}

	fut1 := checkpointer.CallAwaitable(cache, 10, asyncFn)
	v1, _ := fut1.Await()

	fut2 := checkpointer.RerunAwaitable(cache, 10, asyncFn)
	v2, _ := fut2.Await()

	if v1 == v2 {
		t.Fatalf("RerunAwaitable should force a fresh value; got the same result %d twice", v1)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Errorf("async function called %d times; want 2 (Rerun must bypass the cache)", calls)
	}
}

// TestSetAwaitableWritesWithoutExecuting exercises SetAwaitable: it writes a
// resolved future's value directly, never invoking any async function.
func TestSetAwaitableWritesWithoutExecuting(t *testing.T) {
	cache, err := checkpointer.Configure(checkpointer.CachedFunc[int, int](asyncAdd), &checkpointer.Config{Storage: "memory"})
	if err != nil {
		t.Fatalf("configure: %v", err)
	}

	seed := checkpointer.NewPending[int]()
	seed.Resolve(999, nil)
	if err := checkpointer.SetAwaitable(cache, 1, seed); err != nil {
		t.Fatalf("SetAwaitable: %v", err)
	}

	asyncFn := func(x int) (*checkpointer.Future[int], error) {
		t.Fatal("asyncFn should never run after SetAwaitable seeded the entry")
		return nil, nil
	}
	got := checkpointer.CallAwaitable(cache, 1, asyncFn)
	v, err := got.Await()
	if err != nil || v != 999 {
		t.Fatalf("CallAwaitable after SetAwaitable = (%d, %v); want (999, nil)", v, err)
	}
}
