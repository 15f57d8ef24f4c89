// Package link implements the Catbus link subsystem: the persistent
// link-declaration file (§4.6), the in-memory send list of outbound
// publishers, and the receive cache that deduplicates inbound LINK_DATA
// (§4.7). See SPEC_FULL.md §4.6-§4.7.
package link

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/chromatron/catbus/kvmeta"
	"github.com/chromatron/catbus/wire"
)

// Magic and Version identify the link file header. Both headers (link
// and KV persistence) share the same shape: 4-byte magic, 1-byte
// version, 11 reserved bytes. See SPEC_FULL.md §13 item 2a.
const (
	Magic   uint32 = 0x4b4e494c // "LINK" (reversed for little-endian "LINK")
	Version uint8  = 1
)

const headerSize = 4 + 1 + 11

// Record is one stored link declaration. Flags is a bitset of
// SOURCE(0x01)/DEST(0x04)/VALID(0x80), matching the firmware constants
// exactly (SPEC_FULL.md §13 item 2). A record with VALID=0 is a
// tombstone and reusable by a subsequent Create.
type Record struct {
	Tag    uint32
	Flags  wire.LinkFlags
	Source kvmeta.Hash32
	Dest   kvmeta.Hash32
	Query  kvmeta.Query
}

func (r Record) HasSource() bool { return r.Flags.HasSource() }
func (r Record) HasDest() bool   { return r.Flags.HasDest() }
func (r Record) IsValid() bool   { return r.Flags.IsValid() }

const queryWireLen = kvmeta.QueryLen * 4
const linkRecordSize = 4 + 1 + 4 + 4 + queryWireLen // tag, flags, src, dst, query

// FileStore is the seekable, truncatable file handle collaborator, same
// shape as kv.FileStore (spec.md §6 "fs").
type FileStore interface {
	io.ReadWriteSeeker
	Truncate(size int64) error
}

// Store is the persistent, append/tombstone link declaration file.
// See SPEC_FULL.md §4.6.
type Store struct {
	mu sync.Mutex
	f  FileStore
}

// Open opens (creating and writing the header if empty) the link file.
func Open(f FileStore) (*Store, error) {
	s := &Store{f: f}
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		if err := s.writeHeader(); err != nil {
			return nil, err
		}
		return s, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	hdr := make([]byte, headerSize)
	if _, err := io.ReadFull(f, hdr); err != nil {
		return nil, err
	}
	magic := binary.LittleEndian.Uint32(hdr[0:4])
	version := hdr[4]
	if magic != Magic || version != Version {
		if err := f.Truncate(0); err != nil {
			return nil, err
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		if err := s.writeHeader(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) writeHeader() error {
	var hdr [headerSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], Magic)
	hdr[4] = Version
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	_, err := s.f.Write(hdr[:])
	return err
}

func encodeRecord(r Record) []byte {
	b := make([]byte, linkRecordSize)
	binary.LittleEndian.PutUint32(b[0:4], r.Tag)
	b[4] = byte(r.Flags)
	binary.LittleEndian.PutUint32(b[5:9], uint32(r.Source))
	binary.LittleEndian.PutUint32(b[9:13], uint32(r.Dest))
	for i, h := range r.Query {
		binary.LittleEndian.PutUint32(b[13+i*4:17+i*4], uint32(h))
	}
	return b
}

func decodeRecord(b []byte) Record {
	var q kvmeta.Query
	for i := range q {
		q[i] = kvmeta.Hash32(binary.LittleEndian.Uint32(b[13+i*4 : 17+i*4]))
	}
	return Record{
		Tag:    binary.LittleEndian.Uint32(b[0:4]),
		Flags:  wire.LinkFlags(b[4]),
		Source: kvmeta.Hash32(binary.LittleEndian.Uint32(b[5:9])),
		Dest:   kvmeta.Hash32(binary.LittleEndian.Uint32(b[9:13])),
		Query:  q,
	}
}

// queryEqual reports set-equality over non-zero tags, per kvmeta.Query.Equal.
func queryEqual(a, b kvmeta.Query) bool { return a.Equal(b) }

// Create installs a link record. If a logically-equal VALID record
// already exists (same flags, source, dest, and query set), Create
// returns its index without writing. Otherwise it reuses the first
// tombstone (VALID=0) or appends. See SPEC_FULL.md §4.6.
func (s *Store) Create(r Record) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Flags |= wire.LinkFlagValid

	recs, err := s.readAllLocked()
	if err != nil {
		return 0, err
	}
	tombstone := -1
	for i, existing := range recs {
		if !existing.IsValid() {
			if tombstone == -1 {
				tombstone = i
			}
			continue
		}
		if existing.Flags == r.Flags && existing.Source == r.Source &&
			existing.Dest == r.Dest && queryEqual(existing.Query, r.Query) {
			return i, nil
		}
	}
	idx := tombstone
	if idx == -1 {
		idx = len(recs)
	}
	if err := s.writeAtLocked(idx, r); err != nil {
		return 0, err
	}
	return idx, nil
}

func (s *Store) offsetOf(idx int) int64 {
	return int64(headerSize) + int64(idx)*int64(linkRecordSize)
}

func (s *Store) writeAtLocked(idx int, r Record) error {
	if _, err := s.f.Seek(s.offsetOf(idx), io.SeekStart); err != nil {
		return err
	}
	_, err := s.f.Write(encodeRecord(r))
	return err
}

// Get reads the link record at index.
func (s *Store) Get(index int) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Seek(s.offsetOf(index), io.SeekStart); err != nil {
		return Record{}, false, err
	}
	buf := make([]byte, linkRecordSize)
	n, err := io.ReadFull(s.f, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF || n < linkRecordSize {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return decodeRecord(buf), true, nil
}

// Purge overwrites every record carrying tag with zeroes, tombstoning it.
func (s *Store) Purge(tag uint32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.readAllLocked()
	if err != nil {
		return 0, err
	}
	purged := 0
	for i, r := range recs {
		if r.IsValid() && r.Tag == tag {
			if err := s.writeAtLocked(i, Record{}); err != nil {
				return purged, err
			}
			purged++
		}
	}
	return purged, nil
}

// Enumerate returns every VALID record in the file, used by the
// link-broadcast task (SPEC_FULL.md §4.9 step 5).
func (s *Store) Enumerate() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.readAllLocked()
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(recs))
	for _, r := range recs {
		if r.IsValid() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) readAllLocked() ([]Record, error) {
	if _, err := s.f.Seek(int64(headerSize), io.SeekStart); err != nil {
		return nil, err
	}
	var out []Record
	buf := make([]byte, linkRecordSize)
	for {
		n, err := io.ReadFull(s.f, buf)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if n < linkRecordSize {
			break
		}
		out = append(out, decodeRecord(buf))
	}
	return out, nil
}

// Close releases the underlying file handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.f.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
