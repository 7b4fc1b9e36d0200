package core

import (
	"bytes"
	"encoding/gob"

	"github.com/Reddan/checkpointer/internal/lib/storage"
)

// encodeValue serializes a stored call result with encoding/gob. No library
// in the reference corpus offers schema-free serialization of an arbitrary
// Go value (the pack's protobuf/easyjson dependencies are transitive,
// codegen-oriented, and unsuited to boxing whatever type V happens to be);
// gob is the stdlib mechanism built for exactly this self-describing case,
// the closest Go analogue to the host language's pickle-based blob format
// (spec.md §4.7).
func encodeValue[V any](v V) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeValue deserializes a stored call result, translating a gob failure
// into storage.ErrCorrupt so the engine's corruption-recovery branch fires
// uniformly regardless of which backend produced the bytes.
func decodeValue[V any](data []byte) (V, error) {
	var v V
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return v, storage.ErrCorrupt
	}
	return v, nil
}
