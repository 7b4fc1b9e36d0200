package checkpointer

import "github.com/Reddan/checkpointer/internal/lib/capture"

// Accessor resolves a registered global's current value for hashing.
type Accessor = capture.Accessor

// CaptureMe marks a module-level global as participating in the
// fingerprint of any cached function that references it, the Go substitute
// for the host-language CaptureMe annotation (spec.md §6): Go has no
// reflection path from an identifier name back to its package-level
// storage, so the binding is made explicit via accessor instead. Call this
// once, typically from an init function, before any function referencing
// the global is configured.
func CaptureMe(key string, accessor Accessor) {
	capture.Register(key, accessor)
}

// CaptureMeOnce is CaptureMe, except the captured hash is frozen the first
// time a dependent function's identity realizes it; later mutations of the
// underlying value are invisible to the cache (spec.md §6 `CaptureMeOnce`).
func CaptureMeOnce(key string, accessor Accessor) {
	capture.RegisterOnce(key, accessor)
}
