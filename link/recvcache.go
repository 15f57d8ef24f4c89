package link

import (
	"net"
	"sync"

	"github.com/chromatron/catbus/kvmeta"
	"github.com/chromatron/catbus/value"
)

const recvCacheInitialTTL = 32
const recvCacheTickDecay = 4

// RecvEntry is one inbound dedup record: the last sequence number
// observed from (Remote, DestHash). See spec.md §3 "Receive-cache entry".
type RecvEntry struct {
	Remote       net.Addr
	DestHash     kvmeta.Hash32
	LastSequence uint32
	TTL          int
}

type recvKey struct {
	remote string
	dest   kvmeta.Hash32
}

// Setter is the collaborator the receive cache applies deduplicated
// values through — the KV facade's Set, parametrized on the wire
// message's carried type rather than a hardcoded type (resolving
// SPEC_FULL.md §14's open question about the LINK_DATA receive path).
type Setter interface {
	Set(hash kvmeta.Hash32, srcType value.Type, data []byte) error
}

// RecvCache deduplicates inbound LINK_DATA by (remote, dest_hash, seq).
// See SPEC_FULL.md §4.7.
type RecvCache struct {
	mu      sync.Mutex
	entries map[recvKey]*RecvEntry
	notify  func(kvmeta.Hash32)
}

// NewRecvCache builds an empty receive cache. notify, if non-nil, fires
// once per applied (non-duplicate) value, mirroring the dynamic DB's
// global notify_set callback.
func NewRecvCache(notify func(kvmeta.Hash32)) *RecvCache {
	return &RecvCache{entries: make(map[recvKey]*RecvEntry), notify: notify}
}

// Apply processes one inbound LINK_DATA: looks up (remote, dest),
// refreshes or inserts the cache entry, and — only if the sequence
// differs from the cached one — writes the value through setter and
// fires notify. Duplicates within the same sequence are silently
// dropped. See SPEC_FULL.md §4.7, §8 scenario 3.
func (c *RecvCache) Apply(setter Setter, remote net.Addr, destHash kvmeta.Hash32, sequence uint32, srcType value.Type, data []byte) error {
	c.mu.Lock()
	k := recvKey{remote: remote.String(), dest: destHash}
	e, existed := c.entries[k]
	var lastSeq uint32
	isDup := false
	if existed {
		lastSeq = e.LastSequence
		isDup = lastSeq == sequence
	} else {
		e = &RecvEntry{Remote: remote, DestHash: destHash}
		c.entries[k] = e
	}
	e.LastSequence = sequence
	e.TTL = recvCacheInitialTTL
	c.mu.Unlock()

	if isDup {
		return nil
	}
	if err := setter.Set(destHash, srcType, data); err != nil {
		return err
	}
	if c.notify != nil {
		c.notify(destHash)
	}
	return nil
}

// Tick decrements every entry's TTL by 4 and removes entries that go
// negative (receive-cache expiry has no deferred-removal requirement,
// unlike the send list, since nothing else reads a stale entry before
// the next Apply recreates it).
func (c *RecvCache) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		e.TTL -= recvCacheTickDecay
		if e.TTL < 0 {
			delete(c.entries, k)
		}
	}
}

// Len returns the current entry count.
func (c *RecvCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Snapshot returns a copy of every current entry, for introspection.
func (c *RecvCache) Snapshot() []RecvEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]RecvEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, *e)
	}
	return out
}
