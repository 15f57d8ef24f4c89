// Package fsession implements the Catbus file-transfer session state
// machine: at most one concurrent open/get/data/close session, an
// inactivity timeout, and a FILE_CHECK streaming-hash task that runs
// outside the single-session slot. See SPEC_FULL.md §4.10.
package fsession

import (
	"errors"
	"io"
	"io/fs"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TimeoutTicks and TickInterval give the inactivity timeout: 40 ticks of
// 100ms each, per
// spec.md §4.10 / §5.
const (
	TimeoutTicks = 40
	TickInterval = 100 * time.Millisecond
)

// Mode is the direction a session was opened for.
type Mode uint8

const (
	ModeRead Mode = iota
	ModeWrite
)

// State is the file-session state machine's current state.
type State uint8

const (
	StateIdle State = iota
	StateOpen
	StateGetting
	StatePutting
	StateClosed
)

// ErrBusy is returned by Open when a session is already active.
var ErrBusy = errors.New("fsession: a file session is already active")

// ErrInvalidSession is returned when a request's session id does not
// match the active session.
var ErrInvalidSession = errors.New("fsession: invalid or expired session id")

// FS is the minimal filesystem collaborator a session needs: open for
// read/write, seek, delete, size, list. Modeled on spec.md §6's "fs"
// collaborator, narrowed to what file transfer actually uses.
type FS interface {
	OpenRead(name string) (io.ReadSeekCloser, error)
	OpenWrite(name string) (io.WriteSeeker, error)
	Delete(name string) error
	Size(name string) (int64, error)
	List() ([]Entry, error)
}

// Entry describes one file for FILE_LIST.
type Entry struct {
	Name  string
	Size  int64
	IsDir bool
}

// Session is the single concurrent file-transfer session.
type Session struct {
	ID    uint32
	Mode  Mode
	Name  string
	State State

	readSeeker  io.ReadSeekCloser
	writeSeeker io.WriteSeeker
	pos         int64
}

// Manager owns the at-most-one-session slot. FILE_CHECK hashing
// (Checksum) runs independently of it (SPEC_FULL.md §4.10).
type Manager struct {
	mu      sync.Mutex
	fs      FS
	session *Session
	timeout int // ticks remaining
	log     *zap.Logger
}

// NewManager builds a session manager over fs.
func NewManager(filesystem FS, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{fs: filesystem, log: log}
}

// Open starts a new session if none is active. Returns ErrBusy
// (wire.ErrFilesystemBusy at the protocol layer) otherwise.
func (m *Manager) Open(id uint32, mode Mode, name string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil && m.session.State != StateClosed {
		return nil, ErrBusy
	}

	s := &Session{ID: id, Mode: mode, Name: name, State: StateOpen}
	switch mode {
	case ModeRead:
		rs, err := m.fs.OpenRead(name)
		if err != nil {
			return nil, err
		}
		s.readSeeker = rs
	case ModeWrite:
		ws, err := m.fs.OpenWrite(name)
		if err != nil {
			return nil, err
		}
		s.writeSeeker = ws
	}
	m.session = s
	m.timeout = TimeoutTicks
	return s, nil
}

// Active returns the current session (possibly nil) and whether its id
// matches want.
func (m *Manager) Active(want uint32) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, false
	}
	return m.session, m.session.ID == want
}

// touch resets the inactivity countdown; called by every handled message
// matching the active session.
func (m *Manager) touch() {
	m.timeout = TimeoutTicks
}

// ReadChunk reads up to len(buf) bytes at offset for a GET request.
func (m *Manager) ReadChunk(id uint32, offset int64, buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil || m.session.ID != id {
		return 0, ErrInvalidSession
	}
	s := m.session
	if _, err := s.readSeeker.Seek(offset, io.SeekStart); err != nil {
		return 0, err
	}
	n, err := s.readSeeker.Read(buf)
	if err != nil && err != io.EOF {
		return n, err
	}
	s.pos = offset + int64(n)
	m.touch()
	return n, nil
}

// WriteChunk writes data at offset; the caller (dispatcher) has already
// verified offset == session.pos per SPEC_FULL.md §4.8 FILE_DATA rule.
func (m *Manager) WriteChunk(id uint32, offset int64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil || m.session.ID != id {
		return ErrInvalidSession
	}
	s := m.session
	if s.pos != offset {
		return ErrInvalidSession
	}
	n, err := s.writeSeeker.Write(data)
	if err != nil {
		return err
	}
	s.pos += int64(n)
	m.touch()
	return nil
}

// Position returns the session's current write cursor.
func (m *Manager) Position(id uint32) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil || m.session.ID != id {
		return 0, false
	}
	return m.session.pos, true
}

// Close releases the active session's handles if its id matches.
func (m *Manager) Close(id uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil || m.session.ID != id {
		return ErrInvalidSession
	}
	m.closeLocked()
	return nil
}

func (m *Manager) closeLocked() {
	if m.session == nil {
		return
	}
	if m.session.readSeeker != nil {
		_ = m.session.readSeeker.Close()
	}
	if wc, ok := m.session.writeSeeker.(io.Closer); ok {
		_ = wc.Close()
	}
	m.session.State = StateClosed
	m.session = nil
}

// Delete removes a file outright (FILE_DELETE: open+delete+close,
// per spec.md §4.8).
func (m *Manager) Delete(name string) error {
	err := m.fs.Delete(name)
	if errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return err
}

// List returns the filesystem's directory entries for FILE_LIST paging.
func (m *Manager) List() ([]Entry, error) {
	return m.fs.List()
}

// Filesystem exposes the underlying FS collaborator for callers that
// need read-only access outside the single-session slot, such as the
// FILE_CHECK streaming-hash task.
func (m *Manager) Filesystem() FS { return m.fs }

// RunTimeoutLoop decrements the inactivity timeout every TickInterval
// and closes the active session on expiry. Returns when stop is closed.
func (m *Manager) RunTimeoutLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			if m.session != nil {
				m.timeout--
				if m.timeout <= 0 {
					m.log.Debug("file session idle timeout", zap.Uint32("session_id", m.session.ID))
					m.closeLocked()
				}
			}
			m.mu.Unlock()
		}
	}
}
