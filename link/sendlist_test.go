package link

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chromatron/catbus/kvmeta"
)

type fakeClock struct {
	t  time.Time
	ok bool
}

func (c fakeClock) Now() (time.Time, bool) { return c.t, c.ok }

func TestSendListTouchInsertsWithFullTTL(t *testing.T) {
	l := NewSendList(nil)
	remote := &net.UDPAddr{IP: net.ParseIP("10.0.0.1"), Port: 7867}

	e := l.Touch(remote, 1, 2)
	assert.Equal(t, sendListInitialTTL, e.TTL)
	assert.Equal(t, 1, l.Len())

	l.Touch(remote, 1, 2)
	assert.Equal(t, 1, l.Len(), "touching the same key again must refresh, not duplicate")
}

func TestSendListPublishStampsAndSignals(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewSendList(fakeClock{t: now, ok: true})
	remote := &net.UDPAddr{IP: net.ParseIP("10.0.0.1"), Port: 7867}
	l.Touch(remote, 1, 2)

	anyDirty := l.Publish(1)
	assert.True(t, anyDirty)

	select {
	case <-l.Signal():
	default:
		t.Fatal("Publish must wake the publish worker")
	}

	dirty := l.DirtyEntries()
	require.Len(t, dirty, 1)
	assert.EqualValues(t, 1, dirty[0].Sequence)
	assert.True(t, dirty[0].HasStamp)
	assert.Equal(t, now, dirty[0].Timestamp)
}

func TestSendListPublishIgnoresOtherSources(t *testing.T) {
	l := NewSendList(nil)
	remote := &net.UDPAddr{Port: 1}
	l.Touch(remote, 1, 2)

	assert.False(t, l.Publish(99))
	assert.Empty(t, l.DirtyEntries())
}

func TestSendListTickDecaysTTLWithoutRemoving(t *testing.T) {
	l := NewSendList(nil)
	remote := &net.UDPAddr{Port: 1}
	l.Touch(remote, 1, 2)

	for i := 0; i < 9; i++ {
		l.Tick()
	}
	assert.Equal(t, 1, l.Len(), "tick must not remove expired entries itself")
}

func TestSendListClearPublishRemovesExpiredEntry(t *testing.T) {
	l := NewSendList(nil)
	remote := &net.UDPAddr{Port: 1}
	e := l.Touch(remote, 1, 2)
	l.Publish(1)

	for i := 0; i < 9; i++ {
		l.Tick()
	}
	require.Less(t, e.TTL, 0)

	for _, d := range l.DirtyEntries() {
		l.ClearPublish(d)
	}
	assert.Equal(t, 0, l.Len())
}

func TestSendListClearPublishKeepsLiveEntry(t *testing.T) {
	l := NewSendList(nil)
	remote := &net.UDPAddr{Port: 1}
	e := l.Touch(remote, 1, 2)
	l.ClearPublish(e)
	assert.Equal(t, 1, l.Len())
	assert.False(t, e.Publish)
}

func TestSendListReapExpiredRemovesUnflaggedEntries(t *testing.T) {
	l := NewSendList(nil)
	remote := &net.UDPAddr{Port: 1}
	l.Touch(remote, 1, 2)
	for i := 0; i < 9; i++ {
		l.Tick()
	}
	l.ReapExpired()
	assert.Equal(t, 0, l.Len())
}

func TestSendListSnapshotIsACopy(t *testing.T) {
	l := NewSendList(nil)
	remote := &net.UDPAddr{Port: 1}
	l.Touch(remote, 1, 2)

	snap := l.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, kvmeta.Hash32(1), snap[0].SourceHash)
}
