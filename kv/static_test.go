package kv

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chromatron/catbus/kvmeta"
	"github.com/chromatron/catbus/value"
)

func newTestRegistry(t *testing.T) (*StaticRegistry, []byte, []byte) {
	t.Helper()
	ramA := make([]byte, 1)
	ramB := make([]byte, 4)
	reg, err := NewStaticRegistry([]StaticParamDef{
		{Name: "kv_test_a", Type: value.TypeUint8, RAM: ramA},
		{Name: "kv_test_b", Type: value.TypeUint32, RAM: ramB},
		{Name: "kv_test_ro", Type: value.TypeUint8, RAM: make([]byte, 1), Flags: kvmeta.FlagReadOnly},
	})
	require.NoError(t, err)
	return reg, ramA, ramB
}

func TestStaticRegistryLookupByHashMatchesEveryInsertedName(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	for _, name := range []string{"kv_test_a", "kv_test_b", "kv_test_ro"} {
		h := kvmeta.HashName(name)
		meta, ok := reg.LookupByHash(h)
		require.True(t, ok, name)
		assert.Equal(t, h, meta.Hash)
		got, ok := reg.GetName(h)
		require.True(t, ok)
		assert.Equal(t, name, got)
	}
}

func TestStaticRegistrySearchHashUnknown(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	_, ok := reg.SearchHash(kvmeta.HashName("does_not_exist"))
	assert.False(t, ok)
}

func TestStaticRegistrySearchHashCacheHitReturnsSameIndex(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	h := kvmeta.HashName("kv_test_b")
	i1, ok := reg.SearchHash(h)
	require.True(t, ok)
	i2, ok := reg.SearchHash(h) // second lookup should hit the single-entry cache
	require.True(t, ok)
	assert.Equal(t, i1, i2)
}

func TestStaticRegistrySetCopiesIntoRAM(t *testing.T) {
	reg, ramA, _ := newTestRegistry(t)
	h := kvmeta.HashName("kv_test_a")
	require.NoError(t, reg.Set(h, []byte{42}))
	assert.Equal(t, byte(42), ramA[0])

	out := make([]byte, 1)
	n, err := reg.Get(h, out)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, byte(42), out[0])
}

func TestStaticRegistrySetReadOnlyRejected(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	h := kvmeta.HashName("kv_test_ro")
	err := reg.Set(h, []byte{1})
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestStaticRegistryGetUnknownHashReturnsErrNotFound(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	_, err := reg.Get(kvmeta.HashName("nope"), make([]byte, 4))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStaticRegistryHandlerFiresOnGetAndSet(t *testing.T) {
	var ops []Op
	reg, err := NewStaticRegistry([]StaticParamDef{
		{Name: "kv_test_h", Type: value.TypeUint8, RAM: make([]byte, 1), Handler: func(op Op, hash kvmeta.Hash32, data []byte) error {
			ops = append(ops, op)
			return nil
		}},
	})
	require.NoError(t, err)
	h := kvmeta.HashName("kv_test_h")

	require.NoError(t, reg.Set(h, []byte{7}))
	_, err = reg.Get(h, make([]byte, 1))
	require.NoError(t, err)

	assert.Equal(t, []Op{OpSet, OpGet}, ops)
}

func TestStaticRegistryPersistWriteThroughWithoutRAM(t *testing.T) {
	reg, err := NewStaticRegistry([]StaticParamDef{
		{Name: "kv_test_p", Type: value.TypeUint32, Flags: kvmeta.FlagPersist},
	})
	require.NoError(t, err)

	store, err := OpenPersistStore(filepath.Join(t.TempDir(), "kv.persist"), reg, nil)
	require.NoError(t, err)
	reg.SetPersistStore(store)

	h := kvmeta.HashName("kv_test_p")
	buf := []byte{99, 0, 0, 0}
	require.NoError(t, reg.Set(h, buf))

	out := make([]byte, 4)
	n, err := reg.Get(h, out)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, buf, out)
}

func TestStaticRegistryGetMissingPersistZeroFills(t *testing.T) {
	reg, err := NewStaticRegistry([]StaticParamDef{
		{Name: "kv_test_missing", Type: value.TypeUint32, Flags: kvmeta.FlagPersist},
	})
	require.NoError(t, err)

	store, err := OpenPersistStore(filepath.Join(t.TempDir(), "kv.persist"), reg, nil)
	require.NoError(t, err)
	reg.SetPersistStore(store)

	out := []byte{1, 2, 3, 4}
	n, err := reg.Get(kvmeta.HashName("kv_test_missing"), out)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{0, 0, 0, 0}, out)
}
