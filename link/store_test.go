package link

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chromatron/catbus/kvmeta"
	"github.com/chromatron/catbus/wire"
)

// memFile is an in-memory FileStore fake, grounded on kv/persist_test.go's
// fake for the same collaborator shape.
type memFile struct {
	buf []byte
	pos int64
}

func (m *memFile) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func (m *memFile) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		m.pos = offset
	case io.SeekCurrent:
		m.pos += offset
	case io.SeekEnd:
		m.pos = int64(len(m.buf)) + offset
	}
	return m.pos, nil
}

func (m *memFile) Truncate(size int64) error {
	if size < int64(len(m.buf)) {
		m.buf = m.buf[:size]
	} else {
		grown := make([]byte, size)
		copy(grown, m.buf)
		m.buf = grown
	}
	return nil
}

func TestOpenWritesHeaderOnEmptyFile(t *testing.T) {
	f := &memFile{}
	_, err := Open(f)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(f.buf), headerSize)
}

func TestOpenRecreatesOnHeaderMismatch(t *testing.T) {
	f := &memFile{buf: []byte("garbage header, not a link file at all, plus padding")}
	_, err := Open(f)
	require.NoError(t, err)

	s2, err := Open(f)
	require.NoError(t, err)
	recs, err := s2.Enumerate()
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestCreateAppendsNewRecord(t *testing.T) {
	s, err := Open(&memFile{})
	require.NoError(t, err)

	r := Record{Tag: 1, Flags: wire.LinkFlagSource, Source: 10, Dest: 20}
	idx, err := s.Create(r)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	got, ok, err := s.Get(idx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.IsValid())
	assert.Equal(t, kvmeta.Hash32(10), got.Source)
	assert.Equal(t, kvmeta.Hash32(20), got.Dest)
}

func TestCreateDedupesLogicallyEqualRecord(t *testing.T) {
	s, err := Open(&memFile{})
	require.NoError(t, err)

	r := Record{Tag: 1, Flags: wire.LinkFlagSource, Source: 10, Dest: 20}
	idx1, err := s.Create(r)
	require.NoError(t, err)
	idx2, err := s.Create(r)
	require.NoError(t, err)
	assert.Equal(t, idx1, idx2)
}

func TestCreateReusesTombstone(t *testing.T) {
	s, err := Open(&memFile{})
	require.NoError(t, err)

	r1 := Record{Tag: 1, Flags: wire.LinkFlagSource, Source: 10, Dest: 20}
	idx1, err := s.Create(r1)
	require.NoError(t, err)

	n, err := s.Purge(1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	r2 := Record{Tag: 2, Flags: wire.LinkFlagDest, Source: 30, Dest: 40}
	idx2, err := s.Create(r2)
	require.NoError(t, err)
	assert.Equal(t, idx1, idx2, "a tombstoned slot must be reused before appending")
}

func TestEnumerateExcludesTombstones(t *testing.T) {
	s, err := Open(&memFile{})
	require.NoError(t, err)

	_, err = s.Create(Record{Tag: 1, Flags: wire.LinkFlagSource, Source: 1, Dest: 2})
	require.NoError(t, err)
	_, err = s.Create(Record{Tag: 2, Flags: wire.LinkFlagSource, Source: 3, Dest: 4})
	require.NoError(t, err)
	_, err = s.Purge(1)
	require.NoError(t, err)

	recs, err := s.Enumerate()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.EqualValues(t, 2, recs[0].Tag)
}

func TestGetMissingIndexReturnsFalse(t *testing.T) {
	s, err := Open(&memFile{})
	require.NoError(t, err)

	_, ok, err := s.Get(5)
	require.NoError(t, err)
	assert.False(t, ok)
}
