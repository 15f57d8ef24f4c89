package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chromatron/catbus/kvmeta"
	"github.com/chromatron/catbus/value"
)

func newTestFacade(t *testing.T) (*Facade, kvmeta.Hash32, kvmeta.Hash32) {
	t.Helper()
	ram := make([]byte, 4)
	reg, err := NewStaticRegistry([]StaticParamDef{
		{Name: "static_u32", Type: value.TypeUint32, RAM: ram},
	})
	require.NoError(t, err)

	dyn := NewDynamicDB(nil)
	require.NoError(t, dyn.Add(kvmeta.HashName("dyn_u32"), value.TypeUint32, 1, make([]byte, 4), "dyn_u32"))

	f := NewFacade(reg, dyn)
	return f, kvmeta.HashName("static_u32"), kvmeta.HashName("dyn_u32")
}

func TestFacadeSetGetRoutesToCorrectTier(t *testing.T) {
	f, staticHash, dynHash := newTestFacade(t)

	require.NoError(t, f.Set(staticHash, value.TypeNone, []byte{1, 0, 0, 0}))
	buf := make([]byte, 4)
	_, err := f.Get(staticHash, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 0, 0}, buf)

	require.NoError(t, f.Set(dynHash, value.TypeNone, []byte{2, 0, 0, 0}))
	_, err = f.Get(dynHash, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 0, 0, 0}, buf)
}

func TestFacadePublishFiresOnChange(t *testing.T) {
	f, staticHash, _ := newTestFacade(t)
	var published []kvmeta.Hash32
	f.SetPublishFunc(func(h kvmeta.Hash32) { published = append(published, h) })

	require.NoError(t, f.Set(staticHash, value.TypeNone, []byte{9, 0, 0, 0}))
	assert.Equal(t, []kvmeta.Hash32{staticHash}, published)
}

func TestFacadeArraySetAlwaysPublishes(t *testing.T) {
	f, _, dynHash := newTestFacade(t)
	fired := 0
	f.SetPublishFunc(func(kvmeta.Hash32) { fired++ })

	require.NoError(t, f.ArraySet(dynHash, 0, value.TypeNone, []byte{0, 0, 0, 0}))
	assert.Equal(t, 1, fired, "ArraySet publishes even when the written value is unchanged")
}

func TestFacadeArraySetAlwaysPublishesStatic(t *testing.T) {
	f, staticHash, _ := newTestFacade(t)
	fired := 0
	f.SetPublishFunc(func(kvmeta.Hash32) { fired++ })

	require.NoError(t, f.ArraySet(staticHash, 0, value.TypeNone, []byte{0, 0, 0, 0}))
	assert.Equal(t, 1, fired, "ArraySet on a static parameter publishes even when the written value is unchanged")
}

func TestFacadeCountAndLookupIndex(t *testing.T) {
	f, staticHash, _ := newTestFacade(t)
	assert.Equal(t, 2, f.Count())

	meta, ok := f.LookupIndex(0)
	require.True(t, ok)
	assert.Equal(t, staticHash, meta.Hash)

	meta, ok = f.LookupIndex(1)
	require.True(t, ok)
	assert.Equal(t, value.TypeUint32, meta.Type)
}

func TestFacadeGetUnknownHash(t *testing.T) {
	f, _, _ := newTestFacade(t)
	_, err := f.Get(kvmeta.HashName("nope"), make([]byte, 4))
	assert.ErrorIs(t, err, ErrNotFound)
}
