package engine

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/chromatron/catbus/internal/randid"
	"github.com/chromatron/catbus/wire"
)

// runAnnounce is the periodic broadcast task of SPEC_FULL.md §4.9: every
// 4000 + uniform-random(0..1023) ms it broadcasts ANNOUNCE, ticks every
// send-list/receive-cache entry's TTL, triggers publish for surviving
// send-list entries, and spawns a transient link-broadcast task.
func (n *Node) runAnnounce(ctx context.Context) error {
	broadcastAddr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", n.cfg.BroadcastAddr, n.cfg.DiscoveryPort))
	if err != nil {
		return err
	}

	timer := time.NewTimer(n.nextInterval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			n.announceTick(ctx, broadcastAddr)
			timer.Reset(n.nextInterval())
		}
	}
}

func (n *Node) nextInterval() time.Duration {
	if n.cfg.AnnounceIntervalJitter <= 0 {
		return n.cfg.AnnounceIntervalBase
	}
	return n.cfg.AnnounceIntervalBase + time.Duration(rand.Int63n(int64(n.cfg.AnnounceIntervalJitter)))
}

func (n *Node) announceTick(ctx context.Context, broadcastAddr net.Addr) {
	announce := wire.AnnounceMsg{DataPort: uint16(n.LocalPort()), Query: n.Query()}
	n.sendTo(broadcastAddr, wire.MsgAnnounce, 0, announce.Encode())

	n.sendList.Tick()
	n.recvCache.Tick()

	for _, e := range n.sendList.Snapshot() {
		if e.TTL >= 0 {
			n.sendList.Publish(e.SourceHash)
		}
	}

	if n.met != nil {
		n.met.SendListSize.Set(float64(n.sendList.Len()))
		n.met.RecvCacheSize.Set(float64(n.recvCache.Len()))
		n.met.KVParamCount.Set(float64(n.kv.Count()))
	}

	go n.broadcastLinks(ctx, broadcastAddr)
}

// broadcastLinks streams every VALID link record out as LINK datagrams
// to the broadcast address, pacing n.cfg.LinkBroadcastPace between
// sends. It runs as a transient task, not part of the single-session
// file-transfer slot or the dispatcher. See SPEC_FULL.md §4.9 step 5.
func (n *Node) broadcastLinks(ctx context.Context, broadcastAddr net.Addr) {
	taskID := randid.TaskID()
	records, err := n.linkStore.Enumerate()
	if err != nil {
		n.log.Warn("link broadcast enumerate failed", zap.String("task_id", taskID), zap.Error(err))
		return
	}
	ticker := time.NewTicker(n.cfg.LinkBroadcastPace)
	defer ticker.Stop()
	for _, r := range records {
		msg := wire.LinkMsg{Flags: r.Flags, Source: r.Source, Dest: r.Dest, Query: r.Query, DataPort: uint16(n.LocalPort()), Tag: r.Tag}
		n.sendTo(broadcastAddr, wire.MsgLink, 0, msg.Encode())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
