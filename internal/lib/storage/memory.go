package storage

import (
	"sync"
	"time"
)

// memEntry is one stored value plus its checkpoint timestamp.
type memEntry struct {
	data     []byte
	storedAt time.Time
}

// globalMemory is the process-global mapping shared across every in-memory
// backend instance, keyed first by fn_dir and then by fn_hash version, so
// that Cleanup(invalidated=true) can drop sibling fn_hash generations of
// the same function (spec.md §4.7 "In-memory backend").
var globalMemory = struct {
	mu   sync.Mutex
	dirs map[string]map[string]map[string]*memEntry
}{dirs: make(map[string]map[string]map[string]*memEntry)}

// MemoryFactory builds an in-memory Storage for ref.
func MemoryFactory(ref Ref) (Storage, error) {
	return &memoryStorage{ref: ref}, nil
}

type memoryStorage struct {
	ref Ref
}

func (m *memoryStorage) version() (map[string]*memEntry, error) {
	fh, err := m.ref.FnHash()
	if err != nil {
		return nil, err
	}
	globalMemory.mu.Lock()
	defer globalMemory.mu.Unlock()
	versions, ok := globalMemory.dirs[m.ref.FnDir]
	if !ok {
		versions = make(map[string]map[string]*memEntry)
		globalMemory.dirs[m.ref.FnDir] = versions
	}
	entries, ok := versions[fh]
	if !ok {
		entries = make(map[string]*memEntry)
		versions[fh] = entries
	}
	return entries, nil
}

func (m *memoryStorage) Store(callHash string, data []byte) ([]byte, error) {
	entries, err := m.version()
	if err != nil {
		return nil, err
	}
	globalMemory.mu.Lock()
	defer globalMemory.mu.Unlock()
	entries[callHash] = &memEntry{data: data, storedAt: time.Now()}
	return data, nil
}

func (m *memoryStorage) Exists(callHash string) (bool, error) {
	entries, err := m.version()
	if err != nil {
		return false, err
	}
	globalMemory.mu.Lock()
	defer globalMemory.mu.Unlock()
	_, ok := entries[callHash]
	return ok, nil
}

func (m *memoryStorage) Load(callHash string) ([]byte, error) {
	entries, err := m.version()
	if err != nil {
		return nil, err
	}
	globalMemory.mu.Lock()
	defer globalMemory.mu.Unlock()
	e, ok := entries[callHash]
	if !ok {
		return nil, ErrNotFound
	}
	return e.data, nil
}

func (m *memoryStorage) Delete(callHash string) error {
	entries, err := m.version()
	if err != nil {
		return err
	}
	globalMemory.mu.Lock()
	defer globalMemory.mu.Unlock()
	delete(entries, callHash)
	return nil
}

func (m *memoryStorage) CheckpointDate(callHash string) (time.Time, error) {
	entries, err := m.version()
	if err != nil {
		return time.Time{}, err
	}
	globalMemory.mu.Lock()
	defer globalMemory.mu.Unlock()
	e, ok := entries[callHash]
	if !ok {
		return time.Time{}, ErrNotFound
	}
	return e.storedAt, nil
}

func (m *memoryStorage) Expired(callHash string, expiry *Expiry) (bool, error) {
	if expiry == nil {
		return false, nil
	}
	t, err := m.CheckpointDate(callHash)
	if err != nil {
		return false, nil
	}
	return expiry.Expired(t), nil
}

func (m *memoryStorage) Cleanup(invalidated, expiredSweep bool, expiry *Expiry) error {
	fh, err := m.ref.FnHash()
	if err != nil {
		return err
	}
	globalMemory.mu.Lock()
	defer globalMemory.mu.Unlock()
	versions, ok := globalMemory.dirs[m.ref.FnDir]
	if !ok {
		return nil
	}
	if invalidated {
		for v := range versions {
			if v != fh {
				delete(versions, v)
			}
		}
	}
	if expiredSweep && expiry != nil {
		if entries, ok := versions[fh]; ok {
			for k, e := range entries {
				if expiry.Expired(e.storedAt) {
					delete(entries, k)
				}
			}
		}
	}
	return nil
}

func (m *memoryStorage) Clear() error {
	globalMemory.mu.Lock()
	defer globalMemory.mu.Unlock()
	delete(globalMemory.dirs, m.ref.FnDir)
	return nil
}
