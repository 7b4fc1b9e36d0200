// Package capture implements Capturable values: module-level names that
// participate in a function's fingerprint, either because the enclosing
// Config opted every global in (Config.Capture) or because the global was
// explicitly marked with Register/RegisterOnce (the Go analogue of
// CaptureMe/CaptureMeOnce, since Go has no reflection path from an
// identifier name to its package-level storage — see SPEC_FULL.md §2).
package capture

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Reddan/checkpointer/internal/lib/hash"
)

// HashBy preprocesses a value before it enters the hash stream. NoHash is
// the degenerate HashBy that drops the value from the hash entirely.
type HashBy func(value interface{}) interface{}

// NoHash omits a parameter or capturable from the call/fingerprint hash.
func NoHash(interface{}) interface{} { return nil }

// Accessor resolves a registered global's current value. Registered once,
// reused by every Capturable built against the same key.
type Accessor func() (interface{}, error)

// Capturable is a reference to a module-level name that should participate
// in cache identity. Key has the shape "<source-file-basename>/<name>", the
// form the source analyzer builds for a referenced package-level var or
// const.
type Capturable struct {
	Key     string
	resolve Accessor
	hashBy  HashBy
	once    bool

	mu       sync.Mutex
	realized bool
	frozen   interface{}
}

var (
	registryMu sync.RWMutex
	registry   = map[string]*registryEntry{}
)

type registryEntry struct {
	resolve Accessor
	once    bool
}

// Register marks a module-level global as a capturable, the Go equivalent
// of a module-level CaptureMe annotation: every cached function whose
// dependency closure references the key includes it, whether or not that
// function's Config sets Capture. Callers opt a name in by calling Register
// once at package init.
func Register(key string, accessor Accessor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[key] = &registryEntry{resolve: accessor}
}

// RegisterOnce marks a global as CaptureMeOnce: its hash is frozen the
// first time a Capturable built against it is realized, and mutations to
// the underlying value afterward are invisible to the cache.
func RegisterOnce(key string, accessor Accessor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[key] = &registryEntry{resolve: accessor, once: true}
}

// Lookup builds a Capturable for a previously registered key, returning ok
// = false if nothing was ever registered for it (the key still
// participates in the dependency *shape*, per SPEC_FULL.md §2, but its
// value resolves through the tolerant "error:capture-unbound" path).
func Lookup(key string, hashBy HashBy) (*Capturable, bool) {
	registryMu.RLock()
	entry, ok := registry[key]
	registryMu.RUnlock()
	if !ok {
		return &Capturable{Key: key, hashBy: hashBy}, false
	}
	return &Capturable{Key: key, resolve: entry.resolve, once: entry.once, hashBy: hashBy}, true
}

// ErrUnbound is the placeholder kind emitted when a capturable key has no
// registered accessor.
var ErrUnbound = fmt.Errorf("capture: no accessor registered for key")

// Resolve runs the registered accessor, reporting ErrUnbound when the key
// was never Register'd/RegisterOnce'd.
func (c *Capturable) Resolve() (interface{}, error) {
	if c.resolve == nil {
		return nil, ErrUnbound
	}
	return c.resolve()
}

// Capture returns (key, value-or-hash) as required by §3/§4.3. CaptureOnce
// variants snapshot at first realization; later calls reuse the frozen
// value without re-resolving.
func (c *Capturable) Capture() (string, interface{}) {
	if c.once {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.realized {
			return c.Key, c.frozen
		}
	}

	var value interface{}
	if v, err := c.Resolve(); err != nil {
		if err == ErrUnbound {
			value = capturedError{kind: "capture-unbound"}
		} else {
			value = capturedError{kind: "capture-error"}
		}
	} else {
		value = v
	}
	if c.hashBy != nil {
		value = c.hashBy(value)
	}

	if c.once {
		c.realized = true
		c.frozen = value
	}
	return c.Key, value
}

// capturedError is hashed via the tolerant "error:<kind>" marker instead of
// propagating, matching §4.1's error-tolerant mode.
type capturedError struct{ kind string }

// HashInto writes this capturable's (key, value) pair into a tolerant
// hasher, in the canonical "error:<kind>" form when the value is a
// capturedError marker.
func (c *Capturable) HashInto(hh *hash.Hasher) error {
	key, value := c.Capture()
	hh.Header("capturable", key)
	if ce, ok := value.(capturedError); ok {
		hh.Header("error", ce.kind)
		return nil
	}
	return hh.Update(value)
}

// Set is a sorted set of Capturable keyed by Key, matching the "sorted set
// (by key) of Capturable across the whole dependency closure" of §3.
type Set struct {
	byKey map[string]*Capturable
}

// NewSet returns an empty capturable set.
func NewSet() *Set { return &Set{byKey: map[string]*Capturable{}} }

// Add inserts c, keeping the first Capturable seen for a given key (the
// walker visits the target function before its dependencies, matching the
// "this function first" ordering of §4.3).
func (s *Set) Add(c *Capturable) {
	if _, ok := s.byKey[c.Key]; !ok {
		s.byKey[c.Key] = c
	}
}

// Union merges another set into this one.
func (s *Set) Union(other *Set) {
	for _, c := range other.Sorted() {
		s.Add(c)
	}
}

// Sorted returns the capturables ordered by Key.
func (s *Set) Sorted() []*Capturable {
	out := make([]*Capturable, 0, len(s.byKey))
	for _, c := range s.byKey {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
