// Package storage implements the storage contract (C7): the pluggable
// backend behind every CachedFunction, plus the in-memory and on-disk blob
// implementations named in spec.md §4.7.
package storage

import (
	"fmt"
	"time"
)

// Ref identifies the function a Storage instance is scoped to. FnDir is the
// stable "<source-file-basename>/<sanitized-qualified-name>" path (§3);
// FnHash is read lazily since a function's fingerprint is only realized on
// first use and may change after Reinit.
type Ref struct {
	FnDir  string
	FnHash func() (string, error)
}

// Expiry mirrors the Configuration.expiry field of §3: either a fixed
// duration since the checkpoint date, or a predicate over it. A nil Expiry
// means entries never expire.
type Expiry struct {
	Duration  time.Duration
	Predicate func(checkpoint time.Time) bool
}

// Expired evaluates the policy against a stored entry's checkpoint date.
// Per §7, a predicate that panics is conservatively treated as "not
// expired": Expired recovers around the Predicate invocation.
func (e *Expiry) Expired(checkpoint time.Time) (expired bool) {
	if e == nil {
		return false
	}
	defer func() {
		if recover() != nil {
			expired = false
		}
	}()
	if e.Predicate != nil {
		return e.Predicate(checkpoint)
	}
	if e.Duration > 0 {
		return time.Since(checkpoint) > e.Duration
	}
	return false
}

// ErrNotFound is returned by Load when no entry exists for a call hash.
var ErrNotFound = fmt.Errorf("storage: entry not found")

// ErrCorrupt is returned by Load when an entry exists but could not be
// read back (truncated write, decode failure). The cache engine's state
// machine treats this identically to ErrNotFound for recovery purposes,
// but backends should distinguish them in logs where possible.
var ErrCorrupt = fmt.Errorf("storage: entry corrupt")

// Storage is the abstract backend contract of spec.md §4.7. All methods
// must be safe for concurrent use; the engine guarantees at most one Store
// per refresh path but places no upper bound on concurrent Load/Exists
// calls racing a Store (see spec.md §5).
type Storage interface {
	// Store persists data under callHash, overwriting any prior entry, and
	// returns the persisted bytes unchanged (for chaining).
	Store(callHash string, data []byte) ([]byte, error)

	// Exists reports whether a non-corrupt entry is likely present. May be
	// optimistic (a true result is not a guarantee that Load will succeed).
	Exists(callHash string) (bool, error)

	// Load retrieves a stored entry, returning ErrNotFound or ErrCorrupt as
	// appropriate. Reads must be idempotent: Load does not consume the
	// entry.
	Load(callHash string) ([]byte, error)

	// Delete idempotently removes an entry; deleting an absent entry is not
	// an error.
	Delete(callHash string) error

	// CheckpointDate returns the last-stored time for an entry.
	CheckpointDate(callHash string) (time.Time, error)

	// Expired reports whether the configured Expiry matches the entry's
	// checkpoint date; always false when expiry is nil.
	Expired(callHash string, expiry *Expiry) (bool, error)

	// Cleanup sweeps this function's entries: when invalidated is true it
	// removes artifacts left by prior fn_hash versions of the same fn_dir;
	// when expired is true it evicts entries whose checkpoint date
	// satisfies expiry.
	Cleanup(invalidated, expiredSweep bool, expiry *Expiry) error

	// Clear removes every entry for this function across all fn_hash
	// versions.
	Clear() error
}

// Factory builds a Storage instance scoped to ref. Concrete backends
// (memory, blob) and custom implementations all satisfy this shape so the
// Configuration can select one by name.
type Factory func(ref Ref) (Storage, error)
