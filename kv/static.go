package kv

import (
	"sort"
	"sync"

	"github.com/chromatron/catbus/kvmeta"
	"github.com/chromatron/catbus/value"
)

// Op identifies which operation invoked a StaticParam's Handler.
type Op uint8

const (
	OpGet Op = iota
	OpSet
	OpPublish
	OpPersist
)

// HandlerFunc virtualizes a static parameter. It is called after a RAM
// copy (if any) has been applied, so a handler backing a RAM-pointer
// parameter is a notification hook; a handler with no RAM pointer is the
// parameter's entire implementation.
type HandlerFunc func(op Op, hash kvmeta.Hash32, data []byte) error

// StaticParamDef declares one entry of the static registry at
// construction time — the Go analog of the firmware's compile-time
// parameter table (SPEC_FULL.md §9 "Binary-search index in flash").
type StaticParamDef struct {
	Name     string
	Type     value.Type
	ArrayLen uint8 // array length minus one
	Flags    kvmeta.Flags
	RAM      []byte // nil if the parameter is entirely virtualized
	Handler  HandlerFunc
}

// staticParam is the runtime entry built from a StaticParamDef.
type staticParam struct {
	hash     kvmeta.Hash32
	name     string
	typ      value.Type
	arrayLen uint8
	flags    kvmeta.Flags
	ram      []byte
	handler  HandlerFunc
	mu       sync.Mutex // per-parameter critical section, SPEC_FULL.md §5
}

func (p *staticParam) size() int {
	sz, _ := value.SizeOf(p.typ)
	return sz * (int(p.arrayLen) + 1)
}

type hashIndexEntry struct {
	hash  kvmeta.Hash32
	index int
}

// StaticRegistry is the compile-time table of parameters, searched by
// name-hash via a sorted hash index. See SPEC_FULL.md §4.2.
type StaticRegistry struct {
	mu      sync.Mutex
	entries []*staticParam
	index   []hashIndexEntry

	// single-entry lookup cache, carried from the original "last_hash ->
	// last_index shortcut" (SPEC_FULL.md §4.2, §9).
	cacheHash  kvmeta.Hash32
	cacheIndex int
	cacheValid bool

	persist *PersistStore
}

// NewStaticRegistry builds a registry from defs, computing each entry's
// name hash and the sorted binary-search index.
func NewStaticRegistry(defs []StaticParamDef) (*StaticRegistry, error) {
	r := &StaticRegistry{entries: make([]*staticParam, 0, len(defs))}
	for _, d := range defs {
		h := kvmeta.HashName(d.Name)
		r.entries = append(r.entries, &staticParam{
			hash:     h,
			name:     d.Name,
			typ:      d.Type,
			arrayLen: d.ArrayLen,
			flags:    d.Flags,
			ram:      d.RAM,
			handler:  d.Handler,
		})
	}
	r.rebuildIndex()
	return r, nil
}

func (r *StaticRegistry) rebuildIndex() {
	idx := make([]hashIndexEntry, len(r.entries))
	for i, e := range r.entries {
		idx[i] = hashIndexEntry{hash: e.hash, index: i}
	}
	sort.Slice(idx, func(i, j int) bool { return idx[i].hash < idx[j].hash })
	r.index = idx
}

// SetPersistStore wires the persistence store used for write-through and
// read-through of PERSIST-flagged parameters with no RAM pointer, and
// signalled after a set of a RAM-backed PERSIST parameter. Boot-time
// restore into RAM is done by OpenPersistStore.
func (r *StaticRegistry) SetPersistStore(p *PersistStore) { r.persist = p }

// Count returns the number of static parameters.
func (r *StaticRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// LookupByIndex returns the metadata of the i'th static parameter.
func (r *StaticRegistry) LookupByIndex(i int) (kvmeta.Meta, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.entries) {
		return kvmeta.Meta{}, false
	}
	return entryMeta(r.entries[i]), true
}

func entryMeta(e *staticParam) kvmeta.Meta {
	return kvmeta.Meta{Hash: e.hash, Type: e.typ, ArrayLen: e.arrayLen, Flags: e.flags}
}

// SearchHash binary-searches the sorted hash index for h, consulting and
// refreshing the single-entry cache first.
func (r *StaticRegistry) SearchHash(h kvmeta.Hash32) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.searchHashLocked(h)
}

func (r *StaticRegistry) searchHashLocked(h kvmeta.Hash32) (int, bool) {
	if r.cacheValid && r.cacheHash == h {
		return r.cacheIndex, true
	}
	idx := sort.Search(len(r.index), func(i int) bool { return r.index[i].hash >= h })
	if idx >= len(r.index) || r.index[idx].hash != h {
		return 0, false
	}
	r.cacheHash = h
	r.cacheIndex = r.index[idx].index
	r.cacheValid = true
	return r.cacheIndex, true
}

// LookupByHash resolves h to its static metadata.
func (r *StaticRegistry) LookupByHash(h kvmeta.Hash32) (kvmeta.Meta, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.searchHashLocked(h)
	if !ok {
		return kvmeta.Meta{}, false
	}
	return entryMeta(r.entries[i]), true
}

// GetName returns the parameter's declared name.
func (r *StaticRegistry) GetName(h kvmeta.Hash32) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.searchHashLocked(h)
	if !ok {
		return "", false
	}
	return r.entries[i].name, true
}

func (r *StaticRegistry) entryLocked(h kvmeta.Hash32) (*staticParam, bool) {
	i, ok := r.searchHashLocked(h)
	if !ok {
		return nil, false
	}
	return r.entries[i], true
}

// Get copies the parameter's current value into buf (up to the
// parameter's size) per SPEC_FULL.md §4.2: RAM pointer if present,
// otherwise persistence-file read-through (missing -> zero-fill),
// finally the handler is invoked with OpGet.
func (r *StaticRegistry) Get(h kvmeta.Hash32, buf []byte) (int, error) {
	r.mu.Lock()
	e, ok := r.entryLocked(h)
	r.mu.Unlock()
	if !ok {
		return 0, ErrNotFound
	}

	e.mu.Lock()
	n := e.size()
	if n > len(buf) {
		n = len(buf)
	}
	switch {
	case e.ram != nil:
		copy(buf[:n], e.ram[:n])
	case e.flags&kvmeta.FlagPersist != 0 && r.persist != nil:
		data, found := r.persist.Get(h)
		if found {
			copy(buf[:n], data[:min(n, len(data))])
		} else {
			for i := 0; i < n; i++ {
				buf[i] = 0
			}
		}
	default:
		for i := 0; i < n; i++ {
			buf[i] = 0
		}
	}
	e.mu.Unlock()

	if e.handler != nil {
		if err := e.handler(OpGet, h, buf[:n]); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Set writes buf into the parameter, routing through RAM/persistence per
// SPEC_FULL.md §4.2.
func (r *StaticRegistry) Set(h kvmeta.Hash32, buf []byte) error {
	r.mu.Lock()
	e, ok := r.entryLocked(h)
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if e.flags&kvmeta.FlagReadOnly != 0 {
		return ErrReadOnly
	}

	e.mu.Lock()
	n := e.size()
	if n > len(buf) {
		n = len(buf)
	}
	if e.ram != nil {
		copy(e.ram[:n], buf[:n])
	}
	needPersistSignal := e.flags&kvmeta.FlagPersist != 0 && e.ram != nil
	needPersistWrite := e.flags&kvmeta.FlagPersist != 0 && e.ram == nil
	e.mu.Unlock()

	if needPersistWrite && r.persist != nil {
		if err := r.persist.Set(h, buf[:n]); err != nil {
			return err
		}
	}
	if needPersistSignal && r.persist != nil {
		r.persist.SignalDirty()
	}
	if e.handler != nil {
		if err := e.handler(OpSet, h, buf[:n]); err != nil {
			return err
		}
	}
	return nil
}

// Publish invokes the parameter's handler (if any) with OpPublish. Static
// parameters have no send-list themselves; this hook lets a handler
// react to the facade marking the parameter published (SPEC_FULL.md §4.5).
func (r *StaticRegistry) Publish(h kvmeta.Hash32) error {
	r.mu.Lock()
	e, ok := r.entryLocked(h)
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if e.handler != nil {
		return e.handler(OpPublish, h, nil)
	}
	return nil
}

// Persist forces an immediate write-through to the persistence store for
// a RAM-backed PERSIST parameter, bypassing the background worker's
// cooldown.
func (r *StaticRegistry) Persist(h kvmeta.Hash32) error {
	r.mu.Lock()
	e, ok := r.entryLocked(h)
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if e.flags&kvmeta.FlagPersist == 0 || r.persist == nil {
		return nil
	}
	e.mu.Lock()
	buf := make([]byte, e.size())
	if e.ram != nil {
		copy(buf, e.ram)
	}
	e.mu.Unlock()
	return r.persist.Set(h, buf)
}

// ramBackedPersistent iterates every RAM-backed, PERSIST-flagged entry,
// used by the persistence background worker's full-registry sweep
// (SPEC_FULL.md §4.4, §13 item 7).
func (r *StaticRegistry) ramBackedPersistent(fn func(hash kvmeta.Hash32, buf []byte) error) error {
	r.mu.Lock()
	entries := make([]*staticParam, len(r.entries))
	copy(entries, r.entries)
	r.mu.Unlock()

	for _, e := range entries {
		if e.flags&kvmeta.FlagPersist == 0 || e.ram == nil {
			continue
		}
		e.mu.Lock()
		buf := make([]byte, e.size())
		copy(buf, e.ram)
		e.mu.Unlock()
		if err := fn(e.hash, buf); err != nil {
			return err
		}
	}
	return nil
}

// TypeAndArrLen returns the declared type and array-length-minus-one of
// a static parameter, used by PersistStore to stamp persistence records.
func (r *StaticRegistry) TypeAndArrLen(hash kvmeta.Hash32) (value.Type, uint8, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entryLocked(hash)
	if !ok {
		return value.TypeNone, 0, false
	}
	return e.typ, e.arrayLen, true
}

// restoreFromPersist copies a persistence record's payload into a
// matching RAM-backed static parameter, per SPEC_FULL.md §4.4 init scan.
func (r *StaticRegistry) restoreFromPersist(hash kvmeta.Hash32, typ value.Type, data []byte) bool {
	r.mu.Lock()
	e, ok := r.entryLocked(hash)
	r.mu.Unlock()
	if !ok || e.typ != typ || e.ram == nil {
		return false
	}
	e.mu.Lock()
	n := e.size()
	if n > len(data) {
		n = len(data)
	}
	copy(e.ram[:n], data[:n])
	e.mu.Unlock()
	return true
}

