// Package kvmeta holds the small shared types threaded through the KV,
// link, and engine packages: parameter metadata, hashing, flags, and
// discovery queries. See SPEC_FULL.md §3.
package kvmeta

import (
	"hash/fnv"

	"github.com/chromatron/catbus/value"
)

// Hash32 is a 32-bit name hash: the namespace for every addressable
// parameter and meta-tag.
type Hash32 uint32

// HashName computes the 32-bit name hash of s. The original firmware's
// hash primitive is explicitly out of scope (SPEC_FULL.md §1); this uses
// the standard library's FNV-1a, a stable, collision-resistant 32-bit
// hash suitable for a name-hash namespace.
func HashName(s string) Hash32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return Hash32(h.Sum32())
}

// Flags is the bitset of parameter attributes.
// See SPEC_FULL.md §3 "Parameter entry (static/dynamic)".
type Flags uint8

const (
	FlagReadOnly Flags = 1 << iota
	FlagPersist
	FlagDynamic
)

// Meta is the uniform parameter metadata returned by the KV facade for
// both static and dynamic entries. See SPEC_FULL.md §4.5.
type Meta struct {
	Hash     Hash32
	Type     value.Type
	ArrayLen uint8 // array length minus one, matching the on-wire encoding
	Flags    Flags
}

// Count returns the parameter's element count (ArrayLen+1).
func (m Meta) Count() int { return int(m.ArrayLen) + 1 }

// QueryLen is the maximum number of tag hashes a Query carries.
// "Q" in SPEC_FULL.md §3, typically 8.
const QueryLen = 8

// Query is a bag of up to QueryLen tag hashes. A zero entry means "empty
// slot"; query-match is defined in SPEC_FULL.md §3.
type Query [QueryLen]Hash32

// Matches reports whether every non-zero tag in q appears in tags.
func (q Query) Matches(tags []Hash32) bool {
	for _, want := range q {
		if want == 0 {
			continue
		}
		found := false
		for _, have := range tags {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// IsEmpty reports whether the query carries no non-zero tags — matches
// everyone unconditionally (SPEC_FULL.md §13 item 5).
func (q Query) IsEmpty() bool {
	for _, t := range q {
		if t != 0 {
			return false
		}
	}
	return true
}

// Equal reports set-equality over the non-zero entries of q and other,
// per SPEC_FULL.md §3 "Query equality".
func (q Query) Equal(other Query) bool {
	return q.supersetOf(other) && other.supersetOf(q)
}

func (q Query) supersetOf(other Query) bool {
	for _, want := range other {
		if want == 0 {
			continue
		}
		found := false
		for _, have := range q {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// MetaTagsStart is the first mutable meta-tag slot index; slots before
// it are fixed at startup and rejected by the public tag add/remove API.
// See SPEC_FULL.md §13 item 1.
const MetaTagsStart = 2

// ConfigStore is the black-box typed configuration map collaborator of
// spec.md §6 ("cfg"). It is explicitly out of this codebase's scope
// (spec.md §1) — engine.Node takes it as a collaborator interface rather
// than implementing it.
type ConfigStore interface {
	Get(hash Hash32) ([]byte, bool)
	Set(hash Hash32, data []byte) error
	Erase(hash Hash32) error
}
