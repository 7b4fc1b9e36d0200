package core

import (
	"sort"

	"github.com/Reddan/checkpointer/internal/lib/capture"
	"github.com/Reddan/checkpointer/internal/lib/hash"
)

// CallSpec describes how a CachedFunction's argument list is shaped, the
// Go-native substitute for spec.md §4.5's positional/keyword split: Go has
// no **kwargs, so every parameter named in ParamNames is "named" by
// position, and a final variadic parameter (if any) supplies pos_tail.
type CallSpec struct {
	ParamNames  []string
	HasVariadic bool
	HashByFixed map[string]capture.HashBy // keyed by ParamNames entry
	HashByTail  capture.HashBy            // applied to each variadic element
}

// computeCallHash implements C5: normalize args (with an optional bound
// receiver prepended, mirroring method-value calls), apply per-parameter
// hash-by overrides, and fold in the owning identity's capturables, each
// in the three labeled regions spec.md §4.5 step 5 specifies.
func computeCallHash(spec CallSpec, receiver interface{}, args []interface{}, capturables *capture.Set) (string, error) {
	full := args
	if receiver != nil {
		full = make([]interface{}, 0, len(args)+1)
		full = append(full, receiver)
		full = append(full, args...)
	}

	n := len(spec.ParamNames)
	if n > len(full) {
		n = len(full)
	}
	named := full[:n]
	tail := full[n:]

	mappedNamed := make([]interface{}, len(named))
	copy(mappedNamed, named)
	for i, name := range spec.ParamNames {
		if i >= len(mappedNamed) {
			break
		}
		if hb, ok := spec.HashByFixed[name]; ok {
			mappedNamed[i] = hb(mappedNamed[i])
		}
	}

	mappedTail := make([]interface{}, len(tail))
	copy(mappedTail, tail)
	if spec.HasVariadic && spec.HashByTail != nil {
		for i, v := range mappedTail {
			mappedTail[i] = spec.HashByTail(v)
		}
	}

	// Tolerant: captured values (and, occasionally, argument values such as
	// live handles) may legitimately fail to encode; spec.md §4.1 absorbs
	// that into an "error:<kind>" marker rather than aborting the call.
	hh, err := hash.NewTolerant(hash.Size16)
	if err != nil {
		return "", err
	}

	type namedPair struct {
		name  string
		value interface{}
	}
	pairs := make([]namedPair, 0, len(mappedNamed))
	for i, v := range mappedNamed {
		name := ""
		if i < len(spec.ParamNames) {
			name = spec.ParamNames[i]
		}
		pairs = append(pairs, namedPair{name: name, value: v})
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].name < pairs[j].name })

	hh.Header("NAMED")
	for _, p := range pairs {
		hh.Header(p.name)
		if err := hh.Update(p.value); err != nil {
			return "", err
		}
	}

	hh.Header("POS")
	for _, v := range mappedTail {
		if err := hh.Update(v); err != nil {
			return "", err
		}
	}

	hh.Header("CAPTURED")
	if capturables != nil {
		for _, c := range capturables.Sorted() {
			if err := c.HashInto(hh); err != nil {
				return "", err
			}
		}
	}

	return hh.HexSum(), nil
}
