package capture

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Reddan/checkpointer/internal/lib/hash"
)

func TestRegisterAndLookup(t *testing.T) {
	value := 1
	Register("capture_test/counter", func() (interface{}, error) { return value, nil })

	c, ok := Lookup("capture_test/counter", nil)
	require.True(t, ok)

	_, v1 := c.Capture()
	require.Equal(t, 1, v1)

	value = 2
	_, v2 := c.Capture()
	require.Equal(t, 2, v2, "a plain Register'd capturable re-resolves on every Capture")
}

func TestRegisterOnceFreezesFirstValue(t *testing.T) {
	value := 10
	RegisterOnce("capture_test/once", func() (interface{}, error) { return value, nil })

	c, ok := Lookup("capture_test/once", nil)
	require.True(t, ok)

	_, v1 := c.Capture()
	require.Equal(t, 10, v1)

	value = 20
	_, v2 := c.Capture()
	require.Equal(t, 10, v2, "RegisterOnce must freeze the value at first realization")
}

func TestLookupUnregisteredKeyReportsErrUnbound(t *testing.T) {
	c, ok := Lookup("capture_test/never-registered", nil)
	require.False(t, ok)

	_, err := c.Resolve()
	require.ErrorIs(t, err, ErrUnbound)

	key, value := c.Capture()
	require.Equal(t, "capture_test/never-registered", key)
	ce, ok := value.(capturedError)
	require.True(t, ok)
	require.Equal(t, "capture-unbound", ce.kind)
}

func TestLookupResolverErrorReportsCaptureError(t *testing.T) {
	boom := errors.New("boom")
	Register("capture_test/erroring", func() (interface{}, error) { return nil, boom })

	c, ok := Lookup("capture_test/erroring", nil)
	require.True(t, ok)

	_, err := c.Resolve()
	require.ErrorIs(t, err, boom)

	_, value := c.Capture()
	ce, ok := value.(capturedError)
	require.True(t, ok)
	require.Equal(t, "capture-error", ce.kind)
}

func TestHashByTransformsCapturedValue(t *testing.T) {
	Register("capture_test/hashby", func() (interface{}, error) { return 99, nil })

	c, ok := Lookup("capture_test/hashby", NoHash)
	require.True(t, ok)

	_, value := c.Capture()
	require.Nil(t, value, "NoHash must drop the captured value entirely")
}

func TestSetUnionOrdersByKey(t *testing.T) {
	Register("capture_test/z", func() (interface{}, error) { return "z", nil })
	Register("capture_test/a", func() (interface{}, error) { return "a", nil })

	cz, _ := Lookup("capture_test/z", nil)
	ca, _ := Lookup("capture_test/a", nil)

	s1 := NewSet()
	s1.Add(cz)
	s2 := NewSet()
	s2.Add(ca)
	s1.Union(s2)

	sorted := s1.Sorted()
	require.Len(t, sorted, 2)
	require.Equal(t, "capture_test/a", sorted[0].Key)
	require.Equal(t, "capture_test/z", sorted[1].Key)
}

func TestAddKeepsFirstCapturableForDuplicateKey(t *testing.T) {
	Register("capture_test/dup", func() (interface{}, error) { return "first", nil })
	first, _ := Lookup("capture_test/dup", nil)
	Register("capture_test/dup", func() (interface{}, error) { return "second", nil })
	second, _ := Lookup("capture_test/dup", nil)

	s := NewSet()
	s.Add(first)
	s.Add(second)

	sorted := s.Sorted()
	require.Len(t, sorted, 1)
	_, v := sorted[0].Capture()
	require.Equal(t, "first", v)
}

func TestHashIntoWritesErrorMarkerForUnbound(t *testing.T) {
	key := "capture_test/still-unbound"

	hh, err := hash.NewTolerant(hash.Size16)
	require.NoError(t, err)
	c1, _ := Lookup(key, nil)
	require.NoError(t, c1.HashInto(hh))

	other, err := hash.NewTolerant(hash.Size16)
	require.NoError(t, err)
	c2, _ := Lookup(key, nil)
	require.NoError(t, c2.HashInto(other))

	require.Equal(t, hh.HexSum(), other.HexSum(), "two hashers fed the same unbound capturable must agree")
}
