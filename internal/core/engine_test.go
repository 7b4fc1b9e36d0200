package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// namedAdd is a package-level function (not a closure) so its qualified
// name is stable across the CachedFunction instances built below.
func namedAdd(x int) (int, error) { return x + 1, nil }

func newMemoryCachedFunction(t *testing.T, fn CachedFunc[int, int]) *CachedFunction[int, int] {
	t.Helper()
	cf, err := NewCachedFunction(fn, &Config{Storage: "memory"})
	require.NoError(t, err)
	return cf
}

func TestCorruptionTriggersExactlyOneRetry(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	fn := func(x int) (int, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return x + 1, nil
	}

	cf := newMemoryCachedFunction(t, fn)

	v, err := cf.Call(41)
	require.NoError(t, err)
	require.Equal(t, 42, v)

	callHash, err := cf.computeCallHash(41)
	require.NoError(t, err)
	st, err := cf.storageFor()
	require.NoError(t, err)

	// Corrupt the stored entry directly: valid call_hash, undecodable bytes.
	_, err = st.Store(callHash, []byte("not a valid gob stream"))
	require.NoError(t, err)

	v, err = cf.Call(41)
	require.NoError(t, err, "a corrupted entry must be recomputed, not surfaced as an error")
	require.Equal(t, 42, v)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 2, calls, "corruption should force exactly one re-execution")
}

func TestGetReportsDecodeFailureAsCheckpointError(t *testing.T) {
	cf := newMemoryCachedFunction(t, namedAdd)

	callHash, err := cf.computeCallHash(5)
	require.NoError(t, err)
	st, err := cf.storageFor()
	require.NoError(t, err)
	_, err = st.Store(callHash, []byte("garbage"))
	require.NoError(t, err)

	_, err = cf.Get(5)
	require.Error(t, err)
}

func TestPanicInWrappedFunctionIsRecovered(t *testing.T) {
	cf := newMemoryCachedFunction(t, func(x int) (int, error) {
		panic("boom")
	})

	v, err := cf.Call(1)
	require.Error(t, err)
	require.Equal(t, 0, v)
	require.Contains(t, err.Error(), "panic")
}
