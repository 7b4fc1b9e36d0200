// Package errs defines the error taxonomy used across checkpointer: a
// user-visible CheckpointError, and two internal kinds (Corruption, HashError)
// that the cache engine and structural hasher use to signal recoverable vs.
// fatal conditions.
package errs

import "fmt"

// CheckpointError is returned to callers of Get/GetOr and wraps any failure
// encountered while resolving a stored entry (missing, corrupt, or a
// storage-layer error that was not itself a recoverable corruption).
type CheckpointError struct {
	Op      string
	CallID  string
	Wrapped error
}

func (e *CheckpointError) Error() string {
	if e.CallID != "" {
		return fmt.Sprintf("[checkpointer] %s: %s: %v", e.Op, e.CallID, e.Wrapped)
	}
	return fmt.Sprintf("[checkpointer] %s: %v", e.Op, e.Wrapped)
}

func (e *CheckpointError) Unwrap() error { return e.Wrapped }

// NewCheckpointError builds a CheckpointError with optional context fields,
// mirroring the teacher's NewError wrapping shape.
func NewCheckpointError(op, callID string, err error) error {
	return &CheckpointError{Op: op, CallID: callID, Wrapped: err}
}

// Corruption marks a storage read that failed in the "entry exists but is
// unreadable" shape (truncated file, EOF mid-decode, not-found after a
// positive exists check). The cache engine treats this as a signal to
// re-execute exactly once; it is never surfaced to the caller directly.
type Corruption struct {
	CallID  string
	Wrapped error
}

func (e *Corruption) Error() string {
	return fmt.Sprintf("[checkpointer] corrupted entry %s: %v", e.CallID, e.Wrapped)
}

func (e *Corruption) Unwrap() error { return e.Wrapped }

// IsCorruption reports whether err indicates a corrupt/missing storage entry
// as opposed to a hard storage failure that should propagate.
func IsCorruption(err error) bool {
	for err != nil {
		if _, ok := err.(*Corruption); ok {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// HashError signals that a value could not be encoded by the structural
// hasher. In strict mode (hashing a function's own identity) this always
// propagates; in tolerant mode (hashing captured values) the caller is
// expected to swallow it and substitute an "error:<kind>" marker instead.
type HashError struct {
	TypeName string
	Wrapped  error
}

func (e *HashError) Error() string {
	return fmt.Sprintf("[checkpointer] cannot hash value of type %s: %v", e.TypeName, e.Wrapped)
}

func (e *HashError) Unwrap() error { return e.Wrapped }

// NewHashError wraps the supplied error with the offending type's name.
func NewHashError(typeName string, err error) error {
	return &HashError{TypeName: typeName, Wrapped: err}
}

// NewError preserves the teacher's free-form key/value wrapping for
// diagnostics that don't fit the three typed kinds above.
func NewError(base error, kv map[string]interface{}) error {
	if len(kv) == 0 {
		return fmt.Errorf("[checkpointer error], [%w]", base)
	}
	var details string
	for k, v := range kv {
		switch val := v.(type) {
		case error:
			details += fmt.Sprintf("%s: %v; ", k, val.Error())
		default:
			details += fmt.Sprintf("%s: %v; ", k, val)
		}
	}
	return fmt.Errorf("[checkpointer error], [%w], details: [%s]", base, details)
}
