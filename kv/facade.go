package kv

import (
	"github.com/chromatron/catbus/kvmeta"
	"github.com/chromatron/catbus/value"
)

// PublishFunc is invoked whenever the facade successfully writes a new
// value for hash, letting the link subsystem mark its send list dirty.
// See SPEC_FULL.md §4.5 ("After every successful array set the facade
// triggers publish(hash)").
type PublishFunc func(hash kvmeta.Hash32)

// Facade merges the static registry and dynamic DB under one address
// space and routes every high-level get/set/array op through whichever
// half owns the hash. See SPEC_FULL.md §4.5.
type Facade struct {
	static  *StaticRegistry
	dynamic *DynamicDB
	publish PublishFunc
}

// NewFacade builds a unified view over static and dynamic.
func NewFacade(static *StaticRegistry, dynamic *DynamicDB) *Facade {
	return &Facade{static: static, dynamic: dynamic}
}

// SetPublishFunc installs the hook fired after a successful write.
func (f *Facade) SetPublishFunc(fn PublishFunc) { f.publish = fn }

// Count is static_count + dynamic_count.
func (f *Facade) Count() int {
	return f.static.Count() + f.dynamic.Count()
}

// LookupIndex returns the uniform metadata for the i'th parameter across
// both halves: [0, static_count) is the static table, the rest maps into
// dynamic insertion order.
func (f *Facade) LookupIndex(i int) (kvmeta.Meta, bool) {
	sc := f.static.Count()
	if i < sc {
		return f.static.LookupByIndex(i)
	}
	hash, ok := f.dynamic.HashOf(i - sc)
	if !ok {
		return kvmeta.Meta{}, false
	}
	return f.dynamic.GetMeta(hash)
}

// LookupHash resolves a hash against the static binary-search index,
// falling through to the dynamic DB's linear index-of lookup.
func (f *Facade) LookupHash(h kvmeta.Hash32) (kvmeta.Meta, bool) {
	if m, ok := f.static.LookupByHash(h); ok {
		return m, true
	}
	return f.dynamic.GetMeta(h)
}

// GetName resolves a hash to its declared name across both halves.
func (f *Facade) GetName(h kvmeta.Hash32) (string, bool) {
	if n, ok := f.static.GetName(h); ok {
		return n, true
	}
	return f.dynamic.LookupName(h)
}

func (f *Facade) isStatic(h kvmeta.Hash32) bool {
	_, ok := f.static.LookupByHash(h)
	return ok
}

// Get copies h's current raw value into buf.
func (f *Facade) Get(h kvmeta.Hash32, buf []byte) (int, error) {
	if f.isStatic(h) {
		return f.static.Get(h, buf)
	}
	return f.dynamic.Get(h, buf)
}

// Set writes buf (of srcType, TypeNone meaning "native") into h.
func (f *Facade) Set(h kvmeta.Hash32, srcType value.Type, buf []byte) error {
	if f.isStatic(h) {
		// A foreign srcType is converted element by element first.
		if meta, ok := f.static.LookupByHash(h); ok && srcType != value.TypeNone && srcType != meta.Type {
			dstSz, _ := value.SizeOf(meta.Type)
			srcSz, _ := value.SizeOf(srcType)
			var conv []byte
			for i := 0; i < meta.Count() && (i+1)*srcSz <= len(buf); i++ {
				elem := make([]byte, dstSz)
				if _, err := value.Convert(meta.Type, elem, srcType, buf[i*srcSz:(i+1)*srcSz]); err != nil {
					return err
				}
				conv = append(conv, elem...)
			}
			buf = conv
		}
		if err := f.static.Set(h, buf); err != nil {
			return err
		}
		f.firePublish(h)
		return nil
	}
	if err := f.dynamic.Set(h, srcType, buf); err != nil {
		return err
	}
	f.firePublish(h)
	return nil
}

// ArraySet writes one element at idx (wrapped modulo array_len+1) and
// always triggers publish on success, per SPEC_FULL.md §4.5.
func (f *Facade) ArraySet(h kvmeta.Hash32, idx int, srcType value.Type, elem []byte) error {
	meta, ok := f.LookupHash(h)
	if !ok {
		return ErrNotFound
	}
	count := meta.Count()
	idx = ((idx % count) + count) % count

	if f.isStatic(h) {
		sz, err := value.SizeOf(meta.Type)
		if err != nil {
			return err
		}
		buf := make([]byte, meta.Count()*sz)
		if _, err := f.static.Get(h, buf); err != nil {
			return err
		}
		useType := srcType
		if useType == value.TypeNone {
			useType = meta.Type
		}
		if _, err := value.Convert(meta.Type, buf[idx*sz:(idx+1)*sz], useType, elem); err != nil {
			return err
		}
		if err := f.static.Set(h, buf); err != nil {
			return err
		}
		f.firePublish(h)
		return nil
	}
	if err := f.dynamic.ArraySet(h, idx, srcType, elem); err != nil {
		return err
	}
	f.firePublish(h)
	return nil
}

// ArrayGet reads one element at idx (wrapped modulo array_len+1).
func (f *Facade) ArrayGet(h kvmeta.Hash32, idx int, buf []byte) (int, error) {
	meta, ok := f.LookupHash(h)
	if !ok {
		return 0, ErrNotFound
	}
	count := meta.Count()
	idx = ((idx % count) + count) % count

	if f.isStatic(h) {
		sz, err := value.SizeOf(meta.Type)
		if err != nil {
			return 0, err
		}
		full := make([]byte, meta.Count()*sz)
		if _, err := f.static.Get(h, full); err != nil {
			return 0, err
		}
		return copy(buf, full[idx*sz:(idx+1)*sz]), nil
	}
	return f.dynamic.ArrayGet(h, idx, buf)
}

// Publish triggers the publish hook for h directly (used by handlers
// that bypass Set, e.g. a handler-virtualized parameter announcing a
// change on its own).
func (f *Facade) Publish(h kvmeta.Hash32) {
	f.firePublish(h)
}

func (f *Facade) firePublish(h kvmeta.Hash32) {
	if f.publish != nil {
		f.publish(h)
	}
	if f.isStatic(h) {
		_ = f.static.Publish(h)
	}
}

// Static and Dynamic expose the underlying halves for callers (the
// protocol dispatcher's GET_KEY_META pagination, persistence init) that
// need tier-specific behavior rather than the unified address space.
func (f *Facade) Static() *StaticRegistry { return f.static }
func (f *Facade) Dynamic() *DynamicDB     { return f.dynamic }
