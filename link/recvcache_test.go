package link

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chromatron/catbus/kvmeta"
	"github.com/chromatron/catbus/value"
)

type fakeSetter struct {
	calls []struct {
		hash kvmeta.Hash32
		typ  value.Type
		data []byte
	}
}

func (s *fakeSetter) Set(hash kvmeta.Hash32, typ value.Type, data []byte) error {
	s.calls = append(s.calls, struct {
		hash kvmeta.Hash32
		typ  value.Type
		data []byte
	}{hash, typ, data})
	return nil
}

func TestRecvCacheAppliesFirstValueAndNotifies(t *testing.T) {
	var notified []kvmeta.Hash32
	c := NewRecvCache(func(h kvmeta.Hash32) { notified = append(notified, h) })
	setter := &fakeSetter{}
	remote := &net.UDPAddr{Port: 1}

	err := c.Apply(setter, remote, 5, 1, value.TypeUint32, []byte{1, 2, 3, 4})
	require.NoError(t, err)

	require.Len(t, setter.calls, 1)
	assert.Equal(t, kvmeta.Hash32(5), notified[0])
}

func TestRecvCacheDropsDuplicateSequence(t *testing.T) {
	c := NewRecvCache(nil)
	setter := &fakeSetter{}
	remote := &net.UDPAddr{Port: 1}

	require.NoError(t, c.Apply(setter, remote, 5, 1, value.TypeUint32, []byte{1, 0, 0, 0}))
	require.NoError(t, c.Apply(setter, remote, 5, 1, value.TypeUint32, []byte{2, 0, 0, 0}))

	assert.Len(t, setter.calls, 1, "a repeated sequence number must be dropped as a duplicate")
}

func TestRecvCacheAppliesNewSequence(t *testing.T) {
	c := NewRecvCache(nil)
	setter := &fakeSetter{}
	remote := &net.UDPAddr{Port: 1}

	require.NoError(t, c.Apply(setter, remote, 5, 1, value.TypeUint32, []byte{1, 0, 0, 0}))
	require.NoError(t, c.Apply(setter, remote, 5, 2, value.TypeUint32, []byte{2, 0, 0, 0}))

	assert.Len(t, setter.calls, 2)
}

func TestRecvCacheTickExpiresStaleEntries(t *testing.T) {
	c := NewRecvCache(nil)
	setter := &fakeSetter{}
	remote := &net.UDPAddr{Port: 1}
	require.NoError(t, c.Apply(setter, remote, 5, 1, value.TypeUint32, []byte{0, 0, 0, 0}))
	assert.Equal(t, 1, c.Len())

	for i := 0; i < 9; i++ {
		c.Tick()
	}
	assert.Equal(t, 0, c.Len(), "Tick must remove expired entries immediately, unlike the send list")
}

func TestRecvCacheSnapshot(t *testing.T) {
	c := NewRecvCache(nil)
	setter := &fakeSetter{}
	remote := &net.UDPAddr{Port: 1}
	require.NoError(t, c.Apply(setter, remote, 5, 1, value.TypeUint32, []byte{0, 0, 0, 0}))

	snap := c.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, kvmeta.Hash32(5), snap[0].DestHash)
}
