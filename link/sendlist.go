package link

import (
	"net"
	"sync"
	"time"

	"github.com/chromatron/catbus/kvmeta"
)

// Initial and per-tick TTL deltas. See SPEC_FULL.md §4.7, §3
// "Send-list entry".
const (
	sendListInitialTTL = 32
	sendListTickDecay  = 4
)

// SendEntry is one outbound publisher: a remote receiver that accepted a
// link from SourceHash (local) to DestHash (remote).
type SendEntry struct {
	Remote     net.Addr
	SourceHash kvmeta.Hash32
	DestHash   kvmeta.Hash32
	Sequence   uint32
	TTL        int
	Publish    bool
	Timestamp  time.Time
	HasStamp   bool
}

type sendKey struct {
	remote string
	source kvmeta.Hash32
	dest   kvmeta.Hash32
}

// Clock supplies the optional NTP-derived publish timestamp. Absent
// (nil) means entries carry no timestamp and dedup relies purely on
// sequence number, per spec.md §3 "optional timestamp" and SPEC_FULL.md
// §13 item 4.
type Clock interface {
	Now() (time.Time, bool)
}

// SendList is the in-memory TTL'd table of outbound publishers
// (spec.md §4.7). Entries are added when a remote LINK message matches a
// local source, or a local source's advertisement is accepted.
type SendList struct {
	mu      sync.Mutex
	entries map[sendKey]*SendEntry
	clock   Clock
	dirty   chan struct{}
}

// NewSendList builds an empty send list. clock may be nil.
func NewSendList(clock Clock) *SendList {
	return &SendList{entries: make(map[sendKey]*SendEntry), clock: clock, dirty: make(chan struct{}, 1)}
}

// Signal returns the channel the publish worker waits on. It fires
// (non-blocking, single-slot) whenever Publish marks at least one entry
// dirty, mirroring the firmware's "run_publish" latch rather than
// re-signaling per call (SPEC_FULL.md §13 item 3).
func (l *SendList) Signal() <-chan struct{} { return l.dirty }

func (l *SendList) wake() {
	select {
	case l.dirty <- struct{}{}:
	default:
	}
}

func keyOf(remote net.Addr, source, dest kvmeta.Hash32) sendKey {
	return sendKey{remote: remote.String(), source: source, dest: dest}
}

// Touch inserts or refreshes the entry (remote, source, dest), resetting
// its TTL to 32. Uniqueness per SPEC_FULL.md §3 invariant.
func (l *SendList) Touch(remote net.Addr, source, dest kvmeta.Hash32) *SendEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := keyOf(remote, source, dest)
	e, ok := l.entries[k]
	if !ok {
		e = &SendEntry{Remote: remote, SourceHash: source, DestHash: dest}
		l.entries[k] = e
	}
	e.TTL = sendListInitialTTL
	return e
}

// Publish marks every entry whose SourceHash == hash dirty: stamps the
// timestamp (if a Clock is installed), increments Sequence, and sets the
// Publish flag. See SPEC_FULL.md §4.7 "publish(hash)".
func (l *SendList) Publish(hash kvmeta.Hash32) (anyDirty bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.SourceHash != hash {
			continue
		}
		if l.clock != nil {
			if ts, ok := l.clock.Now(); ok {
				e.Timestamp, e.HasStamp = ts, true
			}
		}
		e.Sequence++
		e.Publish = true
		anyDirty = true
	}
	if anyDirty {
		l.wake()
	}
	return anyDirty
}

// Tick decrements every entry's TTL by 4 (an announce tick). Entries
// whose TTL goes negative are left in place for the publish worker to
// remove (SPEC_FULL.md §4.7 "send list removal is deferred to the
// publish worker").
func (l *SendList) Tick() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		e.TTL -= sendListTickDecay
	}
}

// DirtyEntries returns a snapshot of every entry currently flagged for
// publish, used by the publish worker.
func (l *SendList) DirtyEntries() []*SendEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*SendEntry
	for _, e := range l.entries {
		if e.Publish {
			out = append(out, e)
		}
	}
	return out
}

// ClearPublish clears the Publish flag on e and removes it from the list
// if its TTL has expired.
func (l *SendList) ClearPublish(e *SendEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.Publish = false
	if e.TTL < 0 {
		delete(l.entries, keyOf(e.Remote, e.SourceHash, e.DestHash))
	}
}

// ReapExpired removes every entry with TTL < 0, regardless of Publish
// state — called by the publish worker once per drain cycle so entries
// that never got flagged still expire (SPEC_FULL.md §4.9 step 3-4).
func (l *SendList) ReapExpired() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, e := range l.entries {
		if e.TTL < 0 {
			delete(l.entries, k)
		}
	}
}

// Len returns the current entry count.
func (l *SendList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Snapshot returns a copy of every current entry, for introspection
// (statusapi) and tests.
func (l *SendList) Snapshot() []SendEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]SendEntry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, *e)
	}
	return out
}
