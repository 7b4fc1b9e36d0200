package core

import (
	"sync"

	"github.com/Reddan/checkpointer/internal/lib/capture"
	"github.com/Reddan/checkpointer/internal/lib/hash"
)

// Identity is the C4 FunctionIdent: a wrapped callable's lazily realized,
// memoized raw fingerprint, from which the deep fingerprint (including
// dependency fingerprints) and the deep capturable set are derived on each
// access. It is shared between a
// CachedFunction and every method-bound duplicate of it (spec.md I6),
// which is why Reset/Reinit mutate *this* instance rather than a copy.
type Identity struct {
	fn         interface{}
	qualName   string
	fnHashFrom interface{} // static override (Config.FnHashFrom), nil if unset
	capture    bool        // Config.Capture

	mu          sync.Mutex
	realized    bool
	raw         *rawIdent
	fnHash      string
	capturables *capture.Set
}

// newIdentity builds (but does not yet realize) the identity for fn.
func newIdentity(fn interface{}, qualName string, fnHashFrom interface{}, captureAll bool) *Identity {
	return &Identity{fn: fn, qualName: qualName, fnHashFrom: fnHashFrom, capture: captureAll}
}

// realize drives C2 -> C3 -> C1 exactly once, memoizing raw_ident.
func (id *Identity) realize() error {
	id.mu.Lock()
	defer id.mu.Unlock()
	if id.realized {
		return nil
	}
	raw, err := buildRawIdent(id.fn, id.capture)
	if err != nil {
		return err
	}
	id.raw = raw
	id.realized = true
	return nil
}

// isStatic reports whether this identity uses a static fn_hash_from
// override, halting dependency traversal at this node (spec.md §3, I2).
func (id *Identity) isStatic() bool { return id.fnHashFrom != nil }

// FnHash returns the deep fn_hash (spec.md §4.4): for a static identity,
// the hash of the override object; otherwise the hash of this function's
// own (already dependency-inlined) raw fingerprint composed with the
// fn_hash of every cached callable reachable through it.
func (id *Identity) FnHash() (string, error) {
	return id.deepFnHash(map[*Identity]bool{})
}

// deepFnHash is the cycle-safe recursive core of FnHash. When the same
// identity is encountered twice on one path (mutual recursion between
// cached callables), the second visit contributes only its raw body hash
// instead of recursing again, matching spec.md §9's "each node contributes
// its own raw body hash exactly once" guidance.
func (id *Identity) deepFnHash(visiting map[*Identity]bool) (string, error) {
	if id.isStatic() {
		return staticHash(id.fnHashFrom)
	}
	if err := id.realize(); err != nil {
		return "", err
	}
	if visiting[id] {
		hh, err := hash.New(hash.Size16)
		if err != nil {
			return "", err
		}
		hh.WriteBytes(id.raw.fnHash)
		return hh.HexSum(), nil
	}
	visiting[id] = true
	defer delete(visiting, id)

	hh, err := hash.New(hash.Size16)
	if err != nil {
		return "", err
	}
	hh.WriteBytes(id.raw.fnHash)
	for _, dep := range id.raw.depends {
		if dep.cached == nil {
			continue
		}
		depHash, err := dep.cached.deepFnHash(visiting)
		if err != nil {
			return "", err
		}
		hh.WriteBytes([]byte(depHash))
	}
	return hh.HexSum(), nil
}

// staticHash hashes a user-supplied fn_hash_from override object down to a
// 16-byte hex digest (spec.md §3, §4.4).
func staticHash(v interface{}) (string, error) {
	hh, err := hash.New(hash.Size16)
	if err != nil {
		return "", err
	}
	hh.Header("static")
	if err := hh.Update(v); err != nil {
		return "", err
	}
	return hh.HexSum(), nil
}

// Capturables returns the union of this identity's capturable set with
// every cached dependency's own set, sorted by key (spec.md §4.4).
func (id *Identity) Capturables() (*capture.Set, error) {
	return id.deepCapturables(map[*Identity]bool{})
}

func (id *Identity) deepCapturables(visiting map[*Identity]bool) (*capture.Set, error) {
	if visiting[id] {
		return capture.NewSet(), nil
	}
	visiting[id] = true
	defer delete(visiting, id)

	if err := id.realize(); err != nil {
		return nil, err
	}
	out := capture.NewSet()
	out.Union(id.raw.capturables)
	for _, dep := range id.raw.depends {
		if dep.cached == nil {
			continue
		}
		sub, err := dep.cached.deepCapturables(visiting)
		if err != nil {
			return nil, err
		}
		out.Union(sub)
	}
	return out, nil
}

// Reset discards the memoized raw identity so the next access recomputes
// it from current source (spec.md §3 "Lifecycles").
func (id *Identity) Reset() {
	id.mu.Lock()
	defer id.mu.Unlock()
	id.realized = false
	id.raw = nil
}

// Reinit resets this identity and, when recursive is true, every cached
// dependency reachable from it (spec.md §4.4, §4.8).
func (id *Identity) Reinit(recursive bool) error {
	id.Reset()
	if !recursive {
		return nil
	}
	if err := id.realize(); err != nil {
		return err
	}
	visited := map[*Identity]bool{id: true}
	return id.reinitDeps(visited)
}

func (id *Identity) reinitDeps(visited map[*Identity]bool) error {
	for _, dep := range id.raw.depends {
		if dep.cached == nil || visited[dep.cached] {
			continue
		}
		visited[dep.cached] = true
		dep.cached.Reset()
		if err := dep.cached.realize(); err != nil {
			return err
		}
		if err := dep.cached.reinitDeps(visited); err != nil {
			return err
		}
	}
	return nil
}
