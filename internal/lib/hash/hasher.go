// Package hash implements the structural hasher (C1): a deterministic,
// cycle-safe digest of arbitrary Go values, built on a keyed BLAKE2b stream.
// Every value is preceded by a short type header so that distinct shapes
// (a slice vs. a map) never collide, and map entries are written in sorted
// key order so two maps with the same pairs hash identically whatever their
// iteration order.
package hash

import (
	"encoding/hex"
	"fmt"
	"hash"
	"reflect"
	"runtime"
	"sort"
	"strconv"

	"github.com/Reddan/checkpointer/internal/lib/errs"
	"golang.org/x/crypto/blake2b"
)

// Size16 is the width of identity digests (function fingerprints, call
// hashes). Size64 is the default width for general-purpose structural
// hashing when a caller wants extra collision margin.
const (
	Size16 = 16
	Size64 = 64
)

// Hasher accumulates a keyed BLAKE2b digest over a stream of type-headered
// values. Tolerant mode makes Update swallow per-value encoding failures by
// emitting an "error:<kind>" marker instead of propagating (§4.1, §7); it is
// used for captured values, never for a function's own identity.
type Hasher struct {
	h        hash.Hash
	tolerant bool
	seen     map[uintptr]int // identity -> depth, for cycle detection
	depth    int
}

// identityKey keys every digest. It is a fixed constant so that digests
// stay stable across processes and machines.
var identityKey = []byte("checkpointer")

// New returns a Hasher producing a digest of the given size (16 or 64 bytes).
func New(size int) (*Hasher, error) {
	h, err := blake2b.New(size, identityKey)
	if err != nil {
		return nil, err
	}
	return &Hasher{h: h, seen: make(map[uintptr]int)}, nil
}

// NewTolerant returns a Hasher in tolerant mode (see above).
func NewTolerant(size int) (*Hasher, error) {
	hh, err := New(size)
	if err != nil {
		return nil, err
	}
	hh.tolerant = true
	return hh, nil
}

// Sum finalizes and returns the digest bytes.
func (hh *Hasher) Sum() []byte { return hh.h.Sum(nil) }

// HexSum finalizes and returns the digest as a lowercase hex string, the
// form used for fn_hash/call_hash throughout the cache protocol.
func (hh *Hasher) HexSum() string { return hex.EncodeToString(hh.Sum()) }

func (hh *Hasher) write(b []byte) { _, _ = hh.h.Write(b) }

// Header writes a type header — a sequence of NUL-separated tag strings —
// ahead of a value's content, e.g. Header("list", "[]int", "3").
func (hh *Hasher) Header(parts ...string) {
	for _, p := range parts {
		hh.write([]byte(p))
		hh.write([]byte{0})
	}
}

// WriteBytes appends raw content to the stream after a header has been
// written. It is exported so the source analyzer can stream a function's
// canonical body string without going through reflection.
func (hh *Hasher) WriteBytes(b []byte) { hh.write(b) }

// Update hashes an arbitrary value into the stream, recursing through
// containers. In strict mode a value that cannot be encoded aborts the call
// with an error; in tolerant mode the failure is absorbed into the stream.
func (hh *Hasher) Update(v interface{}) error {
	return hh.update(reflect.ValueOf(v))
}

func (hh *Hasher) fail(typeName string, err error) error {
	if hh.tolerant {
		hh.Header("error", typeName)
		return nil
	}
	return errs.NewHashError(typeName, err)
}

func (hh *Hasher) update(rv reflect.Value) error {
	if !rv.IsValid() {
		hh.Header("number", "nil", "nil")
		return nil
	}

	switch rv.Kind() {
	case reflect.Bool:
		hh.Header("number", "bool", strconv.FormatBool(rv.Bool()))
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		hh.Header("number", rv.Type().String(), strconv.FormatInt(rv.Int(), 10))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		hh.Header("number", rv.Type().String(), strconv.FormatUint(rv.Uint(), 10))
		return nil
	case reflect.Float32, reflect.Float64:
		hh.Header("number", rv.Type().String(), strconv.FormatFloat(rv.Float(), 'g', -1, 64))
		return nil
	case reflect.Complex64, reflect.Complex128:
		hh.Header("number", rv.Type().String(), fmt.Sprintf("%v", rv.Complex()))
		return nil
	case reflect.String:
		s := rv.String()
		hh.Header("bytes", "string", strconv.Itoa(len(s)))
		hh.write([]byte(s))
		return nil
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			hh.Header("number", "nil", "nil")
			return nil
		}
		return hh.withCycleGuard(rv, func() error { return hh.update(rv.Elem()) })
	case reflect.Slice, reflect.Array:
		return hh.updateList(rv)
	case reflect.Map:
		return hh.updateMap(rv)
	case reflect.Func:
		return hh.updateFunc(rv)
	case reflect.Struct:
		return hh.withCycleGuard(rv, func() error { return hh.updateStruct(rv) })
	default:
		return hh.fail(rv.Type().String(), fmt.Errorf("unsupported kind %s", rv.Kind()))
	}
}

// withCycleGuard detects self-referential structures via an identity->depth
// map, emitting "circular:<depth>" the second time the same pointer is seen
// on the current path instead of recursing forever.
func (hh *Hasher) withCycleGuard(rv reflect.Value, fn func() error) error {
	var ptr uintptr
	switch rv.Kind() {
	case reflect.Ptr:
		ptr = rv.Pointer()
	default:
		return fn()
	}
	if ptr == 0 {
		return fn()
	}
	if d, ok := hh.seen[ptr]; ok {
		hh.Header("circular", strconv.Itoa(d))
		return nil
	}
	hh.seen[ptr] = hh.depth
	hh.depth++
	defer func() {
		delete(hh.seen, ptr)
		hh.depth--
	}()
	return fn()
}

func (hh *Hasher) updateList(rv reflect.Value) error {
	n := rv.Len()
	hh.Header("list", rv.Type().String(), strconv.Itoa(n))
	for i := 0; i < n; i++ {
		if err := hh.update(rv.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

func (hh *Hasher) updateMap(rv reflect.Value) error {
	keys := rv.MapKeys()
	encKeys := make([]string, len(keys))
	for i, k := range keys {
		kh, err := hh.digestOf(k)
		if err != nil {
			return err
		}
		encKeys[i] = kh
	}
	idx := make([]int, len(keys))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool { return encKeys[idx[i]] < encKeys[idx[j]] })

	hh.Header("dict", rv.Type().String(), strconv.Itoa(len(keys)))
	for _, i := range idx {
		if err := hh.update(keys[i]); err != nil {
			return err
		}
		if err := hh.update(rv.MapIndex(keys[i])); err != nil {
			return err
		}
	}
	return nil
}

// digestOf renders a value into a standalone digest purely to derive a
// stable sort order (e.g. for map keys); it does not touch the parent
// stream.
func (hh *Hasher) digestOf(rv reflect.Value) (string, error) {
	sub, err := New(Size64)
	if err != nil {
		return "", err
	}
	sub.tolerant = hh.tolerant
	if err := sub.update(rv); err != nil {
		return "", err
	}
	return sub.HexSum(), nil
}

func (hh *Hasher) updateStruct(rv reflect.Value) error {
	t := rv.Type()
	hh.Header("struct", t.String(), strconv.Itoa(t.NumField()))
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		hh.Header(f.Name)
		fv := rv.Field(i)
		if !fv.CanInterface() {
			hh.Header("unexported", f.Type.String())
			continue
		}
		if err := hh.update(fv); err != nil {
			return err
		}
	}
	return nil
}

func (hh *Hasher) updateFunc(rv reflect.Value) error {
	if rv.IsNil() {
		hh.Header("number", "nil", "nil")
		return nil
	}
	fn := runtime.FuncForPC(rv.Pointer())
	if fn == nil {
		return hh.fail("func", fmt.Errorf("no runtime info for function pointer"))
	}
	name := fn.Name()
	if IsStdlibFunc(name) {
		hh.Header("function-std", name)
		return nil
	}
	hh.Header("function", name)
	return nil
}

// IsStdlibFunc reports whether a fully-qualified runtime function name
// (e.g. "strings.ToUpper" vs. "github.com/foo/bar.Baz") belongs to the Go
// standard library: stdlib package paths never contain a dot before their
// first path separator, because they carry no module domain component.
func IsStdlibFunc(qualifiedName string) bool {
	sawDot := false
	for i := 0; i < len(qualifiedName); i++ {
		switch qualifiedName[i] {
		case '/':
			// first path separator: a dot before it is a domain component.
			return !sawDot
		case '.':
			sawDot = true
		}
	}
	// single-element package path, e.g. "strings.ToUpper".
	return true
}
