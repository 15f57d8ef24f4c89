package engine

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chromatron/catbus/wire"
)

func TestNextIntervalWithoutJitterIsBase(t *testing.T) {
	n := newTestNode(t)
	n.cfg.AnnounceIntervalBase = 50 * time.Millisecond
	n.cfg.AnnounceIntervalJitter = 0
	assert.Equal(t, 50*time.Millisecond, n.nextInterval())
}

func TestNextIntervalWithJitterStaysWithinBounds(t *testing.T) {
	n := newTestNode(t)
	n.cfg.AnnounceIntervalBase = 50 * time.Millisecond
	n.cfg.AnnounceIntervalJitter = 10 * time.Millisecond
	for i := 0; i < 20; i++ {
		d := n.nextInterval()
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.Less(t, d, 60*time.Millisecond)
	}
}

func TestAnnounceTickBroadcastsAndTicksSendList(t *testing.T) {
	n := newTestNode(t)

	recvConn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer recvConn.Close()

	remote := n.conn.LocalAddr()
	n.sendList.Touch(remote, 1, 2)

	n.announceTick(context.Background(), recvConn.LocalAddr())

	buf := make([]byte, 2048)
	require.NoError(t, recvConn.SetReadDeadline(time.Now().Add(time.Second)))
	nr, _, err := recvConn.ReadFrom(buf)
	require.NoError(t, err)

	hdr, _, err := wire.DecodeHeader(buf[:nr])
	require.NoError(t, err)
	assert.Equal(t, wire.MsgAnnounce, hdr.MsgType)

	for _, e := range n.sendList.Snapshot() {
		assert.Less(t, e.TTL, 32, "announceTick must call sendList.Tick")
	}
}
