package fsession

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	fsys, err := NewOSFS(dir)
	require.NoError(t, err)
	return NewManager(fsys, nil), dir
}

func TestOpenReadRequiresExistingFile(t *testing.T) {
	m, dir := newTestManager(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))

	s, err := m.Open(1, ModeRead, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, StateOpen, s.State)
}

func TestOpenWhileBusyReturnsErrBusy(t *testing.T) {
	m, dir := newTestManager(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))

	_, err := m.Open(1, ModeRead, "a.txt")
	require.NoError(t, err)

	_, err = m.Open(2, ModeRead, "a.txt")
	assert.ErrorIs(t, err, ErrBusy)
}

func TestReadChunkAdvancesPositionAndTouchesTimeout(t *testing.T) {
	m, dir := newTestManager(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello world"), 0o644))

	_, err := m.Open(1, ModeRead, "a.txt")
	require.NoError(t, err)

	m.timeout = 1
	buf := make([]byte, 5)
	n, err := m.ReadChunk(1, 0, buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf[:n]))

	pos, ok := m.Position(1)
	require.True(t, ok)
	assert.EqualValues(t, 5, pos)
	assert.Equal(t, TimeoutTicks, m.timeout)
}

func TestReadChunkWrongSessionIDFails(t *testing.T) {
	m, dir := newTestManager(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))
	_, err := m.Open(1, ModeRead, "a.txt")
	require.NoError(t, err)

	_, err = m.ReadChunk(99, 0, make([]byte, 1))
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestWriteChunkRequiresSequentialOffset(t *testing.T) {
	m, _ := newTestManager(t)
	s, err := m.Open(1, ModeWrite, "b.txt")
	require.NoError(t, err)
	assert.Equal(t, ModeWrite, s.Mode)

	require.NoError(t, m.WriteChunk(1, 0, []byte("abc")))
	pos, ok := m.Position(1)
	require.True(t, ok)
	assert.EqualValues(t, 3, pos)

	err = m.WriteChunk(1, 0, []byte("xyz"))
	assert.ErrorIs(t, err, ErrInvalidSession, "an out-of-order offset must be rejected")

	require.NoError(t, m.WriteChunk(1, 3, []byte("def")))
	pos, _ = m.Position(1)
	assert.EqualValues(t, 6, pos)
}

func TestCloseReleasesSessionSlot(t *testing.T) {
	m, dir := newTestManager(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))
	_, err := m.Open(1, ModeRead, "a.txt")
	require.NoError(t, err)

	require.NoError(t, m.Close(1))

	_, err = m.Open(2, ModeRead, "a.txt")
	assert.NoError(t, err, "closing must free the single session slot")
}

func TestCloseWrongIDFails(t *testing.T) {
	m, dir := newTestManager(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))
	_, err := m.Open(1, ModeRead, "a.txt")
	require.NoError(t, err)

	assert.ErrorIs(t, m.Close(99), ErrInvalidSession)
}

func TestDeleteRemovesFile(t *testing.T) {
	m, dir := newTestManager(t)
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	require.NoError(t, m.Delete("a.txt"))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestListReturnsEntries(t *testing.T) {
	m, dir := newTestManager(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("hi"), 0o644))

	entries, err := m.List()
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestActiveReportsIDMatch(t *testing.T) {
	m, dir := newTestManager(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))
	_, err := m.Open(7, ModeRead, "a.txt")
	require.NoError(t, err)

	s, match := m.Active(7)
	require.NotNil(t, s)
	assert.True(t, match)

	_, match = m.Active(8)
	assert.False(t, match)
}
