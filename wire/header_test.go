package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := NewHeader(MsgAnnounce, 0xdeadbeef, 0x0102030405060708)
	h.Flags = FlagQueryAll

	buf := h.Encode(nil)
	require.Len(t, buf, HeaderSize)

	got, rest, err := DecodeHeader(buf)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, h, got)
	assert.True(t, got.Valid())
}

func TestHeaderDecodeShort(t *testing.T) {
	_, _, err := DecodeHeader(make([]byte, HeaderSize-1))
	assert.Error(t, err)
}

func TestHeaderValidRejectsWrongMagicOrVersion(t *testing.T) {
	h := NewHeader(MsgAnnounce, 1, 1)
	h.Meow = 0
	assert.False(t, h.Valid())

	h = NewHeader(MsgAnnounce, 1, 1)
	h.Version = Version + 1
	assert.False(t, h.Valid())
}

func TestErrorCodeSuppressed(t *testing.T) {
	assert.True(t, ErrUnknownMsg.Suppressed())
	assert.True(t, ErrFileNotFound.Suppressed())
	assert.False(t, ErrKeyNotFound.Suppressed())
}

func TestErrorCodeIsError(t *testing.T) {
	var err error = ErrKeyNotFound
	assert.ErrorContains(t, err, "KEY_NOT_FOUND")
}
