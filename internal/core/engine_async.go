package core

import "github.com/Reddan/checkpointer/internal/lib/future"

// CallAwaitable implements the "result is an awaitable value" branch of
// spec.md §4.6 for a callable whose natural return shape is a
// *future.Future[V] rather than a synchronous V: cf stores and looks up the
// *resolved* V (so the on-disk entry is identical to a plain cached
// function's), while this wrapper awaits on EXECUTE and re-wraps the loaded
// value in an already-resolved Future on every path, matching "the engine
// yields a resolved awaitable carrying the loaded value" on cache hits.
func CallAwaitable[K any, V any](cf *CachedFunction[K, V], arg K, asyncFn func(K) (*future.Future[V], error)) *future.Future[V] {
	val, err := cf.executeCall(arg, false, func(a K) (V, error) {
		fut, ferr := asyncFn(a)
		if ferr != nil {
			var zero V
			return zero, ferr
		}
		return fut.Await()
	})
	return future.Resolved(val, err)
}

// RerunAwaitable is CallAwaitable with rerun forced (spec.md §4.8 `rerun`).
func RerunAwaitable[K any, V any](cf *CachedFunction[K, V], arg K, asyncFn func(K) (*future.Future[V], error)) *future.Future[V] {
	val, err := cf.executeCall(arg, true, func(a K) (V, error) {
		fut, ferr := asyncFn(a)
		if ferr != nil {
			var zero V
			return zero, ferr
		}
		return fut.Await()
	})
	return future.Resolved(val, err)
}

// SetAwaitable writes a resolved future's value directly (spec.md §4.8
// `set_awaitable`).
func SetAwaitable[K any, V any](cf *CachedFunction[K, V], arg K, value *future.Future[V]) error {
	val, err := value.Await()
	if err != nil {
		return err
	}
	return cf.Set(arg, val)
}
