package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chromatron/catbus/kvmeta"
	"github.com/chromatron/catbus/value"
)

func TestAnnounceRoundTrip(t *testing.T) {
	m := AnnounceMsg{DataPort: 7867, Query: kvmeta.Query{1, 2, 3}}
	got, err := DecodeAnnounce(m.Encode())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestLookupHashClampsAtMax(t *testing.T) {
	hashes := make([]kvmeta.Hash32, MaxHashLookups+4)
	for i := range hashes {
		hashes[i] = kvmeta.Hash32(i + 1)
	}
	m := LookupHashMsg{Hashes: hashes}
	got, err := DecodeLookupHash(m.Encode())
	require.NoError(t, err)
	assert.Len(t, got.Hashes, MaxHashLookups)
}

func TestKeyDataRoundTrip(t *testing.T) {
	m := KeyDataMsg{Items: []KeyValue{
		{Meta: kvmeta.Meta{Hash: 42, Type: value.TypeUint32, ArrayLen: 0}, Data: []byte{1, 2, 3, 4}},
		{Meta: kvmeta.Meta{Hash: 7, Type: value.TypeBool, ArrayLen: 2}, Data: []byte{1, 0, 1}},
	}}
	got, err := DecodeKeyData(m.Encode())
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, m.Items[0].Meta, got.Items[0].Meta)
	assert.Equal(t, m.Items[0].Data, got.Items[0].Data)
	assert.Equal(t, m.Items[1].Data, got.Items[1].Data)
}

func TestLinkDataRoundTripCarriesType(t *testing.T) {
	m := LinkDataMsg{
		Source: 1, Dest: 2, Sequence: 9, Flags: 0,
		Meta: kvmeta.Meta{Hash: 2, Type: value.TypeFloat32},
		Data: []byte{1, 2, 3, 4},
	}
	got, err := DecodeLinkData(m.Encode())
	require.NoError(t, err)
	assert.Equal(t, value.TypeFloat32, got.Meta.Type)
	assert.Equal(t, m.Data, got.Data)
}

func TestLinkAddRoundTripViaLinkMetaReuse(t *testing.T) {
	m := LinkAddMsg{Flags: LinkFlagSource | LinkFlagValid, Source: 11, Dest: 22, Tag: 99}
	got, err := DecodeLinkAdd(m.Encode())
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestFileListDataNextIndexSentinel(t *testing.T) {
	m := FileListDataMsg{NextIndex: -1, Entries: []FileListEntry{{Size: 10, Filename: "a.txt"}}}
	got, err := DecodeFileListData(m.Encode())
	require.NoError(t, err)
	assert.EqualValues(t, -1, got.NextIndex)
	assert.Equal(t, "a.txt", got.Entries[0].Filename)
}

func TestDecodeShortMessages(t *testing.T) {
	_, err := DecodeAnnounce(nil)
	assert.ErrorIs(t, err, ErrShortMessage)

	_, err = DecodeFileOpen([]byte{0})
	assert.ErrorIs(t, err, ErrShortMessage)
}
