package engine

import (
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chromatron/catbus/fsession"
	"github.com/chromatron/catbus/kv"
	"github.com/chromatron/catbus/kvmeta"
	"github.com/chromatron/catbus/link"
	"github.com/chromatron/catbus/value"
	"github.com/chromatron/catbus/wire"
)

func newTestNode(t *testing.T) *Node {
	t.Helper()
	ram := make([]byte, 4)
	reg, err := kv.NewStaticRegistry([]kv.StaticParamDef{
		{Name: "counter", Type: value.TypeUint32, RAM: ram},
		{Name: "readonly_flag", Type: value.TypeBool, Flags: kvmeta.FlagReadOnly, RAM: []byte{1}},
	})
	require.NoError(t, err)
	dyn := kv.NewDynamicDB(nil)
	facade := kv.NewFacade(reg, dyn)

	linkStore, err := link.Open(&testFile{})
	require.NoError(t, err)

	fsys, err := fsession.NewOSFS(t.TempDir())
	require.NoError(t, err)
	files := fsession.NewManager(fsys, nil)

	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	n, err := NewNode(DefaultConfig(), conn, 0xabcd, facade, linkStore, files, nil, nil)
	require.NoError(t, err)
	return n
}

// testFile is an in-memory link.FileStore fake for engine tests.
type testFile struct {
	buf []byte
	pos int64
}

func (f *testFile) Read(p []byte) (int, error) {
	if f.pos >= int64(len(f.buf)) {
		return 0, io.EOF
	}
	n := copy(p, f.buf[f.pos:])
	f.pos += int64(n)
	return n, nil
}

func (f *testFile) Write(p []byte) (int, error) {
	end := f.pos + int64(len(p))
	if end > int64(len(f.buf)) {
		grown := make([]byte, end)
		copy(grown, f.buf)
		f.buf = grown
	}
	copy(f.buf[f.pos:end], p)
	f.pos = end
	return len(p), nil
}

func (f *testFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case 0:
		f.pos = offset
	case 1:
		f.pos += offset
	case 2:
		f.pos = int64(len(f.buf)) + offset
	}
	return f.pos, nil
}

func (f *testFile) Truncate(size int64) error {
	if size < int64(len(f.buf)) {
		f.buf = f.buf[:size]
	} else {
		grown := make([]byte, size)
		copy(grown, f.buf)
		f.buf = grown
	}
	return nil
}

func TestHandleDiscoverMatchesEmptyQuery(t *testing.T) {
	n := newTestNode(t)
	req := wire.DiscoverMsg{}
	msgType, body, err := n.handleDiscover(wire.Header{}, req.Encode())
	require.NoError(t, err)
	assert.Equal(t, wire.MsgAnnounce, msgType)
	reply, err := wire.DecodeAnnounce(body)
	require.NoError(t, err)
	assert.Equal(t, uint16(n.LocalPort()), reply.DataPort)
}

func TestHandleDiscoverNoReplyOnMismatchedQuery(t *testing.T) {
	n := newTestNode(t)
	require.NoError(t, n.SetMetaTag(kvmeta.MetaTagsStart, 111))
	req := wire.DiscoverMsg{Query: kvmeta.Query{222}}
	_, body, err := n.handleDiscover(wire.Header{}, req.Encode())
	require.NoError(t, err)
	assert.Nil(t, body)
}

func TestHandleGetKeysReturnsCurrentValue(t *testing.T) {
	n := newTestNode(t)
	hash := kvmeta.HashName("counter")
	require.NoError(t, n.kv.Set(hash, value.TypeNone, []byte{7, 0, 0, 0}))

	req := wire.GetKeysMsg{Hashes: []kvmeta.Hash32{hash}}
	msgType, body, err := n.handleGetKeys(req.Encode())
	require.NoError(t, err)
	assert.Equal(t, wire.MsgKeyData, msgType)

	reply, err := wire.DecodeKeyData(body)
	require.NoError(t, err)
	require.Len(t, reply.Items, 1)
	assert.Equal(t, []byte{7, 0, 0, 0}, reply.Items[0].Data)
}

func TestHandleGetKeysSkipsUnknownHash(t *testing.T) {
	n := newTestNode(t)
	req := wire.GetKeysMsg{Hashes: []kvmeta.Hash32{kvmeta.HashName("nope")}}
	_, body, err := n.handleGetKeys(req.Encode())
	require.NoError(t, err)
	reply, err := wire.DecodeKeyData(body)
	require.NoError(t, err)
	assert.Empty(t, reply.Items)
}

func TestHandleSetKeysRejectsReadOnly(t *testing.T) {
	n := newTestNode(t)
	hash := kvmeta.HashName("readonly_flag")
	req := wire.KeyDataMsg{Items: []wire.KeyValue{{
		Meta: kvmeta.Meta{Hash: hash, Type: value.TypeBool},
		Data: []byte{0},
	}}}
	_, _, err := n.handleSetKeys(req.Encode())
	assert.ErrorIs(t, err, wire.ErrReadOnly)
}

func TestHandleSetKeysRejectsUnknownHash(t *testing.T) {
	n := newTestNode(t)
	req := wire.KeyDataMsg{Items: []wire.KeyValue{{
		Meta: kvmeta.Meta{Hash: kvmeta.HashName("nope"), Type: value.TypeUint32},
		Data: []byte{0, 0, 0, 0},
	}}}
	_, _, err := n.handleSetKeys(req.Encode())
	assert.ErrorIs(t, err, wire.ErrKeyNotFound)
}

func TestHandleSetKeysWritesAndEchoesBack(t *testing.T) {
	n := newTestNode(t)
	hash := kvmeta.HashName("counter")
	req := wire.KeyDataMsg{Items: []wire.KeyValue{{
		Meta: kvmeta.Meta{Hash: hash, Type: value.TypeUint32},
		Data: []byte{5, 0, 0, 0},
	}}}
	_, body, err := n.handleSetKeys(req.Encode())
	require.NoError(t, err)
	reply, err := wire.DecodeKeyData(body)
	require.NoError(t, err)
	assert.Equal(t, []byte{5, 0, 0, 0}, reply.Items[0].Data)
}

func TestHandleLinkSourceAdvertisementRepliesWithDest(t *testing.T) {
	n := newTestNode(t)
	destHash := kvmeta.HashName("counter")
	req := wire.LinkMsg{Flags: wire.LinkFlagSource, Source: 1, Dest: destHash}
	remote := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9999}

	msgType, body, err := n.handleLink(wire.Header{}, remote, req.Encode())
	require.NoError(t, err)
	assert.Equal(t, wire.MsgLink, msgType)
	reply, err := wire.DecodeLink(body)
	require.NoError(t, err)
	assert.True(t, reply.Flags.HasDest())
}

func TestHandleLinkDestNotificationTouchesSendList(t *testing.T) {
	n := newTestNode(t)
	srcHash := kvmeta.HashName("counter")
	req := wire.LinkMsg{Flags: wire.LinkFlagDest, Source: srcHash, Dest: 99}
	remote := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9999}

	_, body, err := n.handleLink(wire.Header{}, remote, req.Encode())
	require.NoError(t, err)
	assert.Nil(t, body)
	assert.Equal(t, 1, n.sendList.Len())
}

func TestHandleLinkDataAppliesThroughRecvCache(t *testing.T) {
	n := newTestNode(t)
	destHash := kvmeta.HashName("counter")
	remote := &net.UDPAddr{Port: 1}

	req := wire.LinkDataMsg{
		Dest: destHash, Sequence: 1,
		Meta: kvmeta.Meta{Hash: destHash, Type: value.TypeUint32},
		Data: []byte{3, 0, 0, 0},
	}
	_, body, err := n.handleLinkData(remote, req.Encode())
	require.NoError(t, err)
	assert.Nil(t, body)

	buf := make([]byte, 4)
	_, err = n.kv.Get(destHash, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 0, 0, 0}, buf)
}

func TestHandleLinkAddThenLinkGetRoundTrips(t *testing.T) {
	n := newTestNode(t)
	addReq := wire.LinkAddMsg{Flags: wire.LinkFlagSource, Source: 10, Dest: 20, Tag: 5}
	msgType, body, err := n.handleLinkAdd(addReq.Encode())
	require.NoError(t, err)
	assert.Equal(t, wire.MsgLinkMeta, msgType)

	added, err := wire.DecodeLinkMeta(body)
	require.NoError(t, err)

	getReq := wire.LinkGetMsg{Index: added.Index}
	_, getBody, err := n.handleLinkGet(getReq.Encode())
	require.NoError(t, err)
	got, err := wire.DecodeLinkMeta(getBody)
	require.NoError(t, err)
	assert.EqualValues(t, 10, got.Source)
	assert.EqualValues(t, 20, got.Dest)
}

func TestHandleLinkDeletePurgesByTag(t *testing.T) {
	n := newTestNode(t)
	addReq := wire.LinkAddMsg{Flags: wire.LinkFlagSource, Source: 10, Dest: 20, Tag: 7}
	_, _, err := n.handleLinkAdd(addReq.Encode())
	require.NoError(t, err)

	delReq := wire.LinkDeleteMsg{Tag: 7}
	_, body, err := n.handleLinkDelete(delReq.Encode())
	require.NoError(t, err)
	assert.Nil(t, body)

	recs, err := n.linkStore.Enumerate()
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestDispatchUnknownMessageTypeErrors(t *testing.T) {
	n := newTestNode(t)
	_, _, err := n.dispatch(wire.Header{MsgType: 0xff}, &net.UDPAddr{}, nil)
	assert.ErrorIs(t, err, wire.ErrUnknownMsg)
}
