package kv

import (
	"context"
	"encoding/binary"
	"io"
	"os"
	"sync"
	"time"

	"github.com/chromatron/catbus/kvmeta"
	"github.com/chromatron/catbus/value"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// PersistMagic and PersistVersion identify the persistence file header.
// See SPEC_FULL.md §3 "Persistence file header".
const (
	PersistMagic   uint32 = 0x4b565031 // "KVP1"
	PersistVersion uint8  = 1
)

const (
	persistHeaderSize = 4 + 1 + 11                              // magic, version, reserved
	persistRecordSize = 4 + 1 + 1 + 4 + value.MaxTypeLen // hash, type, arr_len, reserved, payload
)

// FileStore is the filesystem collaborator persistence needs: a seekable
// read/write handle that can be truncated. *os.File satisfies it
// directly; tests use an in-memory fake. Per spec.md §6 this models the
// "fs" collaborator for the one component where this codebase owns file
// I/O outright rather than treating it as a black box.
type FileStore interface {
	io.ReadWriteSeeker
	Truncate(size int64) error
}

// PersistStore is the append/overwrite block-formatted file of
// (hash,type,arr_len,data) records for PERSIST-flagged static
// parameters. See SPEC_FULL.md §4.4.
type PersistStore struct {
	mu       sync.Mutex
	path     string
	f        FileStore
	registry *StaticRegistry
	failed   bool // "persist_fail" latch, SPEC_FULL.md §7

	dirty   chan struct{}
	limiter *rate.Limiter
	log     *zap.Logger

	onFail func() // optional metrics hook, fired once per latching failure
}

// SetFailHook installs a callback fired each time a write failure
// latches persist_fail, letting callers (the engine's metrics
// collectors) count it without PersistStore depending on the metrics
// package.
func (p *PersistStore) SetFailHook(fn func()) { p.onFail = fn }

// OpenPersistStore opens (creating if necessary) the persistence file at
// path, validates its header, recreating once on mismatch, and restores
// every matching RAM-backed static parameter.
func OpenPersistStore(path string, registry *StaticRegistry, log *zap.Logger) (*PersistStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	p := &PersistStore{
		path:     path,
		registry: registry,
		dirty:    make(chan struct{}, 1),
		limiter:  rate.NewLimiter(rate.Every(2*time.Second), 1),
		log:      log,
	}
	if err := p.openAndValidate(false); err != nil {
		return nil, err
	}
	if err := p.scanAndRestore(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PersistStore) openAndValidate(forceRecreate bool) error {
	if forceRecreate {
		_ = os.Remove(p.path)
	}
	f, err := os.OpenFile(p.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	p.f = f

	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	if size == 0 {
		return p.writeHeader()
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	hdr := make([]byte, persistHeaderSize)
	if _, err := io.ReadFull(f, hdr); err != nil {
		if !forceRecreate {
			p.log.Warn("persistence header unreadable, recreating", zap.Error(err))
			return p.openAndValidate(true)
		}
		return err
	}
	magic := binary.LittleEndian.Uint32(hdr[0:4])
	version := hdr[4]
	if magic != PersistMagic || version != PersistVersion {
		if !forceRecreate {
			p.log.Warn("persistence header mismatch, recreating",
				zap.Uint32("magic", magic), zap.Uint8("version", version))
			return p.openAndValidate(true)
		}
		return os.ErrInvalid
	}
	return nil
}

func (p *PersistStore) writeHeader() error {
	var hdr [persistHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], PersistMagic)
	hdr[4] = PersistVersion
	if _, err := p.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	_, err := p.f.Write(hdr[:])
	return err
}

// scanAndRestore walks every record from the header onward and copies
// matching payloads into RAM-backed static parameters.
func (p *PersistStore) scanAndRestore() error {
	if p.registry == nil {
		return nil
	}
	records, err := p.readAllRecords()
	if err != nil {
		return err
	}
	for _, r := range records {
		p.registry.restoreFromPersist(r.hash, r.typ, r.payload)
	}
	return nil
}

type persistRecord struct {
	hash    kvmeta.Hash32
	typ     value.Type
	arrLen  uint8
	payload []byte
	offset  int64 // byte offset of the record in the file
}

func (p *PersistStore) readAllRecords() ([]persistRecord, error) {
	if _, err := p.f.Seek(persistHeaderSize, io.SeekStart); err != nil {
		return nil, err
	}
	var out []persistRecord
	buf := make([]byte, persistRecordSize)
	offset := int64(persistHeaderSize)
	for {
		n, err := io.ReadFull(p.f, buf)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if n < persistRecordSize {
			break
		}
		hash := kvmeta.Hash32(binary.LittleEndian.Uint32(buf[0:4]))
		typ := value.Type(buf[4])
		arrLen := buf[5]
		payload := make([]byte, value.MaxTypeLen)
		copy(payload, buf[10:10+value.MaxTypeLen])
		out = append(out, persistRecord{hash: hash, typ: typ, arrLen: arrLen, payload: payload, offset: offset})
		offset += int64(persistRecordSize)
	}
	return out, nil
}

// Get returns the stored payload for hash, if any.
func (p *PersistStore) Get(hash kvmeta.Hash32) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failed {
		return nil, false
	}
	records, err := p.readAllRecords()
	if err != nil {
		p.log.Error("persistence read failed", zap.Error(err))
		return nil, false
	}
	for _, r := range records {
		if r.hash == hash {
			return r.payload, true
		}
	}
	return nil, false
}

// Set writes payload for hash: no-op if an identical record already
// exists, overwrite in place if it differs, else append.
// See SPEC_FULL.md §4.4 "persist_set".
func (p *PersistStore) Set(hash kvmeta.Hash32, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failed {
		return nil // persist_fail latch: silently succeed
	}

	typ, arrLen := value.TypeNone, uint8(0)
	if p.registry != nil {
		if t, a, ok := p.registry.TypeAndArrLen(hash); ok {
			typ, arrLen = t, a
		}
	}

	full := make([]byte, value.MaxTypeLen)
	copy(full, payload)

	record := make([]byte, persistRecordSize)
	binary.LittleEndian.PutUint32(record[0:4], uint32(hash))
	record[4] = byte(typ)
	record[5] = arrLen
	copy(record[10:], full)

	records, err := p.readAllRecords()
	if err != nil {
		p.fail(err)
		return nil
	}
	for _, r := range records {
		if r.hash != hash {
			continue
		}
		if bytesEqual(r.payload, full) {
			return nil
		}
		if _, err := p.f.Seek(r.offset, io.SeekStart); err != nil {
			p.fail(err)
			return nil
		}
		if _, err := p.f.Write(record); err != nil {
			p.fail(err)
			return nil
		}
		return nil
	}

	if _, err := p.f.Seek(0, io.SeekEnd); err != nil {
		p.fail(err)
		return nil
	}
	if _, err := p.f.Write(record); err != nil {
		p.fail(err)
		return nil
	}
	return nil
}

func (p *PersistStore) fail(err error) {
	p.failed = true
	p.log.Error("persistence write failed, latching persist_fail", zap.Error(err))
	if p.onFail != nil {
		p.onFail()
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SignalDirty wakes the background persist worker. Non-blocking: a
// worker already scheduled to run absorbs redundant signals, matching
// the firmware's "run_publish"-style latch (SPEC_FULL.md §13 item 3).
func (p *PersistStore) SignalDirty() {
	select {
	case p.dirty <- struct{}{}:
	default:
	}
}

// RunWorker drains dirty signals and, rate-limited to once every 2
// seconds, sweeps the entire static registry flushing every persistent
// RAM-backed parameter. It returns when ctx is cancelled.
// See SPEC_FULL.md §4.4, §13 item 7.
func (p *PersistStore) RunWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.dirty:
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return nil
		}

		err := p.registry.ramBackedPersistent(func(hash kvmeta.Hash32, buf []byte) error {
			if err := p.Set(hash, buf); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Millisecond):
			}
			return nil
		})
		if err != nil && ctx.Err() == nil {
			p.log.Warn("persist worker sweep aborted", zap.Error(err))
		}
	}
}

// Close releases the underlying file handle.
func (p *PersistStore) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if closer, ok := p.f.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
