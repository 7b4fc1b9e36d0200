// Package checkpointer is a persistent, content-addressable function
// memoization engine. A user wraps a computation with a cache handle;
// subsequent invocations with equivalent inputs return previously stored
// results from a pluggable backend, skipping re-execution.
//
// # Overview
//
// The distinguishing property is automatic cache invalidation driven by
// source-level fingerprinting: the cache key is derived from a structural
// hash of the function's body and the bodies of every user-defined function
// it transitively calls, a hash of any module-level values it captures (via
// [capture.Register]/[capture.RegisterOnce] or Config.Capture), and a hash
// of the call argument (with an optional hash-by override).
//
// # Usage
//
//	fetch := func(id int) (string, error) { return slowLookup(id) }
//	cached, err := checkpointer.Configure(fetch, nil)
//	result, err := cached.Call(42)
//
// See package documentation and the test suite for more detail.
package checkpointer

import (
	"github.com/Reddan/checkpointer/internal/core"
	"github.com/Reddan/checkpointer/internal/lib/capture"
	"github.com/Reddan/checkpointer/internal/lib/future"
	"github.com/Reddan/checkpointer/internal/lib/hooks"
	"github.com/Reddan/checkpointer/internal/lib/storage"
)

// CachedFunc is a function eligible for wrapping: K is its argument type, V
// its result type. Go has no keyword arguments, so a function needing
// several logical parameters takes a struct for K.
type CachedFunc[K any, V any] = core.CachedFunc[K, V]

// AsyncFunc is the awaitable-returning shape of a cached function, the
// asynchronous counterpart to CachedFunc (see CallAwaitable).
type AsyncFunc[K any, V any] func(K) (*future.Future[V], error)

// Config configures a CachedFunction's storage, logging, and fingerprinting
// behavior. See the field docs on core.Config for the full option set;
// pass nil to take every default.
type Config = core.Config

// Hooks exposes the teacher's lifecycle-hook extension point plus
// verbosity-gated state logging. Attach via Config.Hooks.
type Hooks = hooks.Hooks

// Expiry selects when a stored entry is considered stale. Attach via
// Config.Expiry.
type Expiry = storage.Expiry

// CachedFunction is the handle returned by Configure: call, get, set,
// inspect, or invalidate cached results through it.
type CachedFunction[K any, V any] = core.CachedFunction[K, V]

// Future is the awaitable handle produced by CallAwaitable/RerunAwaitable.
type Future[V any] = future.Future[V]

// NewPending returns a Future that is not yet resolved: an asynchronous
// CachedFunc builds one, launches its real work on another goroutine, and
// calls Resolve on it once that work completes.
func NewPending[V any]() *Future[V] {
	return future.NewPending[V]()
}

// Configure wraps fn with the full identity and cache-protocol stack,
// producing a CachedFunction handle (spec.md §4.8, §6 `configure(fn, opts)`).
func Configure[K any, V any](fn CachedFunc[K, V], cfg *Config) (*CachedFunction[K, V], error) {
	return core.NewCachedFunction(fn, cfg)
}

// CallAwaitable wraps and immediately calls an asynchronous-style function
// (one returning a *Future[V]): on a refresh it awaits asyncFn's result
// before storing; on a hit it returns an already-resolved Future over the
// loaded value, so every caller path can uniformly .Await() (spec.md §4.6,
// §5 "Suspension points").
func CallAwaitable[K any, V any](cf *CachedFunction[K, V], arg K, asyncFn AsyncFunc[K, V]) *Future[V] {
	return core.CallAwaitable(cf, arg, asyncFn)
}

// RerunAwaitable is CallAwaitable with execution forced regardless of any
// existing entry.
func RerunAwaitable[K any, V any](cf *CachedFunction[K, V], arg K, asyncFn AsyncFunc[K, V]) *Future[V] {
	return core.RerunAwaitable(cf, arg, asyncFn)
}

// SetAwaitable writes a resolved future's value directly, bypassing
// execution (spec.md §4.8 `set_awaitable`).
func SetAwaitable[K any, V any](cf *CachedFunction[K, V], arg K, value *Future[V]) error {
	return core.SetAwaitable(cf, arg, value)
}

// HashBy preprocesses a value before it enters the hash stream, the engine
// substitute for an f(value) parameter annotation (spec.md §6 `HashBy[f]`).
type HashBy = capture.HashBy

// NoHash omits a parameter or capturable from the call/fingerprint hash
// entirely (spec.md §6 `NoHash`, shorthand for `HashBy[_ -> null]`).
var NoHash = capture.NoHash
