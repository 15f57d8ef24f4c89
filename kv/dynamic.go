package kv

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/chromatron/catbus/kvmeta"
	"github.com/chromatron/catbus/value"
)

// NotifierFunc is fired on a dynamic entry's value change.
type NotifierFunc func(hash kvmeta.Hash32)

// dynamicNode is one entry of the dynamic DB's linked list.
// "count" on the wire is array length minus one (SPEC_FULL.md §3).
type dynamicNode struct {
	hash     kvmeta.Hash32
	typ      value.Type
	flags    kvmeta.Flags
	count    uint8 // array length - 1
	tag      uint32
	notifier NotifierFunc
	data     []byte
	name     string
	next     *dynamicNode
}

func (n *dynamicNode) elemSize() int {
	sz, _ := value.SizeOf(n.typ)
	return sz
}

// DynamicDB is the runtime, list-backed map of dynamic parameters added
// after boot. See SPEC_FULL.md §4.3.
type DynamicDB struct {
	mu        sync.Mutex
	head      *dynamicNode
	count     int
	notifySet NotifierFunc // global change callback, fires alongside any per-entry notifier
	names     *NameFile
}

// NewDynamicDB constructs an empty dynamic DB, optionally backed by a
// name-lookup file (see SPEC_FULL.md §4.3 "separate append-only file").
func NewDynamicDB(names *NameFile) *DynamicDB {
	return &DynamicDB{names: names}
}

// SetGlobalNotifier installs the process-wide change callback fired
// alongside any entry-specific notifier.
func (d *DynamicDB) SetGlobalNotifier(fn NotifierFunc) { d.notifySet = fn }

func clampCount(n int) int {
	if n <= 0 {
		return 1
	}
	if n > 256 {
		return 256
	}
	return n
}

func (d *DynamicDB) findLocked(hash kvmeta.Hash32) *dynamicNode {
	for n := d.head; n != nil; n = n.next {
		if n.hash == hash {
			return n
		}
	}
	return nil
}

// Add inserts a new dynamic entry, or updates an existing one with a
// matching type in place. count is the element count (not count-1).
// See SPEC_FULL.md §4.3.
func (d *DynamicDB) Add(hash kvmeta.Hash32, typ value.Type, count int, data []byte, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if existing := d.findLocked(hash); existing != nil && existing.typ == typ {
		n := len(existing.data)
		if len(data) < n {
			n = len(data)
		}
		copy(existing.data[:n], data[:n])
		return nil
	}

	count = clampCount(count)
	sz, err := value.SizeOf(typ)
	if err != nil {
		return err
	}
	node := &dynamicNode{
		hash:  hash,
		typ:   typ,
		flags: kvmeta.FlagDynamic,
		count: uint8(count - 1),
		data:  make([]byte, sz*count),
		name:  name,
	}
	n := copy(node.data, data)
	_ = n

	node.next = d.head
	d.head = node
	d.count++

	if d.names != nil && name != "" {
		_ = d.names.Append(hash, name)
	}
	return nil
}

// Set writes data into an existing entry, converting per-element from
// srcType (TypeNone means "use the entry's native type"). Notifiers fire
// exactly once if any element changed. See SPEC_FULL.md §4.3.
func (d *DynamicDB) Set(hash kvmeta.Hash32, srcType value.Type, data []byte) error {
	d.mu.Lock()
	node := d.findLocked(hash)
	d.mu.Unlock()
	if node == nil {
		return ErrNotFound
	}

	useType := srcType
	if useType == value.TypeNone {
		useType = node.typ
	}
	srcSize, err := value.SizeOf(useType)
	if err != nil {
		return err
	}
	dstSize := node.elemSize()
	count := int(node.count) + 1

	anyChanged := false
	for i := 0; i < count; i++ {
		so := i * srcSize
		do := i * dstSize
		if so+srcSize > len(data) {
			break
		}
		changed, err := value.Convert(node.typ, node.data[do:do+dstSize], useType, data[so:so+srcSize])
		if err != nil {
			return err
		}
		if changed {
			anyChanged = true
		}
	}

	if anyChanged {
		if d.notifySet != nil {
			d.notifySet(hash)
		}
		if node.notifier != nil {
			node.notifier(hash)
		}
	}
	return nil
}

// Get copies the entry's raw bytes into buf.
func (d *DynamicDB) Get(hash kvmeta.Hash32, buf []byte) (int, error) {
	d.mu.Lock()
	node := d.findLocked(hash)
	d.mu.Unlock()
	if node == nil {
		return 0, ErrNotFound
	}
	n := len(node.data)
	if n > len(buf) {
		n = len(buf)
	}
	copy(buf[:n], node.data[:n])
	return n, nil
}

// ArraySet writes a single element at idx, wrapping modulo (count+1).
func (d *DynamicDB) ArraySet(hash kvmeta.Hash32, idx int, srcType value.Type, elem []byte) error {
	d.mu.Lock()
	node := d.findLocked(hash)
	d.mu.Unlock()
	if node == nil {
		return ErrNotFound
	}
	count := int(node.count) + 1
	idx = ((idx % count) + count) % count

	useType := srcType
	if useType == value.TypeNone {
		useType = node.typ
	}
	dstSize := node.elemSize()
	off := idx * dstSize
	changed, err := value.Convert(node.typ, node.data[off:off+dstSize], useType, elem)
	if err != nil {
		return err
	}
	if changed {
		if d.notifySet != nil {
			d.notifySet(hash)
		}
		if node.notifier != nil {
			node.notifier(hash)
		}
	}
	return nil
}

// ArrayGet reads a single element at idx, wrapping modulo (count+1).
func (d *DynamicDB) ArrayGet(hash kvmeta.Hash32, idx int, buf []byte) (int, error) {
	d.mu.Lock()
	node := d.findLocked(hash)
	d.mu.Unlock()
	if node == nil {
		return 0, ErrNotFound
	}
	count := int(node.count) + 1
	idx = ((idx % count) + count) % count
	sz := node.elemSize()
	off := idx * sz
	n := copy(buf, node.data[off:off+sz])
	return n, nil
}

// Delete removes the entry with the given hash.
func (d *DynamicDB) Delete(hash kvmeta.Hash32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var prev *dynamicNode
	for n := d.head; n != nil; n = n.next {
		if n.hash == hash {
			if prev == nil {
				d.head = n.next
			} else {
				prev.next = n.next
			}
			d.count--
			return nil
		}
		prev = n
	}
	return ErrNotFound
}

// DeleteByTag removes every entry with the given tag in one pass.
func (d *DynamicDB) DeleteByTag(tag uint32) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	removed := 0
	var prev *dynamicNode
	n := d.head
	for n != nil {
		if n.tag == tag {
			if prev == nil {
				d.head = n.next
			} else {
				prev.next = n.next
			}
			removed++
			next := n.next
			n = next
			continue
		}
		prev = n
		n = n.next
	}
	d.count -= removed
	return removed
}

// SetTag tags an existing entry.
func (d *DynamicDB) SetTag(hash kvmeta.Hash32, tag uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.findLocked(hash)
	if n == nil {
		return ErrNotFound
	}
	n.tag = tag
	return nil
}

// SetNotifier installs a per-entry change notifier.
func (d *DynamicDB) SetNotifier(hash kvmeta.Hash32, fn NotifierFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.findLocked(hash)
	if n == nil {
		return ErrNotFound
	}
	n.notifier = fn
	return nil
}

// GetMeta returns the uniform metadata view of a dynamic entry.
func (d *DynamicDB) GetMeta(hash kvmeta.Hash32) (kvmeta.Meta, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.findLocked(hash)
	if n == nil {
		return kvmeta.Meta{}, false
	}
	return kvmeta.Meta{Hash: n.hash, Type: n.typ, ArrayLen: n.count, Flags: n.flags}, true
}

// LookupName resolves a hash to its declared name via the name file.
func (d *DynamicDB) LookupName(hash kvmeta.Hash32) (string, bool) {
	d.mu.Lock()
	n := d.findLocked(hash)
	d.mu.Unlock()
	if n != nil && n.name != "" {
		return n.name, true
	}
	if d.names != nil {
		return d.names.Lookup(hash)
	}
	return "", false
}

// IndexOf returns the 0-based position of hash in insertion order — the
// dynamic-half address space used by the KV facade.
func (d *DynamicDB) IndexOf(hash kvmeta.Hash32) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := 0
	for n := d.head; n != nil; n = n.next {
		if n.hash == hash {
			return d.count - 1 - i, true // list is newest-first
		}
		i++
	}
	return 0, false
}

// HashOf returns the hash at insertion-order index i.
func (d *DynamicDB) HashOf(i int) (kvmeta.Hash32, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	j := 0
	for n := d.head; n != nil; n = n.next {
		if j == d.count-1-i { // list is newest-first
			return n.hash, true
		}
		j++
	}
	return 0, false
}

// Count returns the number of dynamic entries.
func (d *DynamicDB) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

const nameRecordSize = 4 + 32 // hash + fixed 32-byte name

// NameFile is the append-only {hash,name[32]} lookup file, truncated at
// process start. See SPEC_FULL.md §4.3, §6.
type NameFile struct {
	mu sync.Mutex
	f  FileStore
}

// OpenNameFile truncates (per spec: "truncated at process start") and
// opens the name-lookup file for appending.
func OpenNameFile(f FileStore) (*NameFile, error) {
	if err := f.Truncate(0); err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return &NameFile{f: f}, nil
}

// Append writes one {hash,name} record at the end of the file.
func (nf *NameFile) Append(hash kvmeta.Hash32, name string) error {
	nf.mu.Lock()
	defer nf.mu.Unlock()
	var rec [nameRecordSize]byte
	binary.LittleEndian.PutUint32(rec[0:4], uint32(hash))
	n := copy(rec[4:], name)
	_ = n
	if _, err := nf.f.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	_, err := nf.f.Write(rec[:])
	return err
}

// Lookup linearly scans the file for hash's name.
func (nf *NameFile) Lookup(hash kvmeta.Hash32) (string, bool) {
	nf.mu.Lock()
	defer nf.mu.Unlock()
	if _, err := nf.f.Seek(0, io.SeekStart); err != nil {
		return "", false
	}
	buf := make([]byte, nameRecordSize)
	for {
		_, err := io.ReadFull(nf.f, buf)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return "", false
		}
		if err != nil {
			return "", false
		}
		h := kvmeta.Hash32(binary.LittleEndian.Uint32(buf[0:4]))
		if h == hash {
			n := 0
			for n < 32 && buf[4+n] != 0 {
				n++
			}
			return string(buf[4 : 4+n]), true
		}
	}
}
