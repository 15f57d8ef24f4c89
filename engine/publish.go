package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/chromatron/catbus/link"
	"github.com/chromatron/catbus/value"
	"github.com/chromatron/catbus/wire"
)

// runPublishWorker drains the send list's dirty signal and, for each
// PUBLISH-flagged entry, reads the source parameter's current value and
// sends a LINK_DATA datagram to the entry's remote address. See
// SPEC_FULL.md §4.7 "Publish worker".
func (n *Node) runPublishWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-n.sendList.Signal():
		}
		n.drainPublish(ctx)
		n.sendList.ReapExpired()
	}
}

func (n *Node) drainPublish(ctx context.Context) {
	for _, e := range n.sendList.DirtyEntries() {
		if ctx.Err() != nil {
			return
		}
		n.publishOne(e)
		n.sendList.ClearPublish(e)
		select {
		case <-ctx.Done():
			return
		case <-time.After(n.cfg.PublishPace):
		}
	}
}

func (n *Node) publishOne(e *link.SendEntry) {
	meta, ok := n.kv.LookupHash(e.SourceHash)
	if !ok {
		return
	}
	sz, err := value.SizeOf(meta.Type)
	if err != nil {
		return
	}
	buf := make([]byte, sz*meta.Count())
	if _, err := n.kv.Get(e.SourceHash, buf); err != nil {
		n.log.Warn("publish read failed", zap.Uint32("hash", uint32(e.SourceHash)), zap.Error(err))
		return
	}
	msg := wire.LinkDataMsg{
		SourceQuery: n.Query(),
		Source:      e.SourceHash,
		Dest:        e.DestHash,
		Sequence:    e.Sequence,
		Meta:        meta,
		Data:        buf,
	}
	n.sendTo(e.Remote, wire.MsgLinkData, 0, msg.Encode())
}
