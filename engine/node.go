package engine

import (
	"context"
	"math/rand"
	"net"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chromatron/catbus/fsession"
	"github.com/chromatron/catbus/kv"
	"github.com/chromatron/catbus/kvmeta"
	"github.com/chromatron/catbus/link"
	"github.com/chromatron/catbus/metrics"
	"github.com/chromatron/catbus/wire"
)

// Rand is the random source collaborator ("rnd" in spec.md §6), used
// for transaction ids and file-session ids. It yields 32-bit values.
type Rand interface {
	Uint32() uint32
}

type defaultRand struct{ mu sync.Mutex }

func (r *defaultRand) Uint32() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return rand.Uint32()
}

// Node is the process-wide engine context threaded through every
// handler: the owned socket, KV facade, link store/send-list/receive-
// cache, file-session manager, and the goroutine set that runs the
// dispatcher, announce loop, and publish worker together.
// See SPEC_FULL.md §9 "Global module-level state ... wrap in a single
// process-wide engine context".
type Node struct {
	cfg      Config
	conn     net.PacketConn
	originID uint64

	kv        *kv.Facade
	linkStore *link.Store
	sendList  *link.SendList
	recvCache *link.RecvCache
	files     *fsession.Manager

	metaTags []kvmeta.Hash32
	tagsMu   sync.RWMutex

	rnd Rand
	log *zap.Logger
	met *metrics.Collectors

	group  *errgroup.Group
	gctx   context.Context
	cancel context.CancelFunc
}

// NewNode constructs a Node. conn must already be bound to
// cfg.DiscoveryPort with broadcast enabled.
func NewNode(cfg Config, conn net.PacketConn, originID uint64, facade *kv.Facade, linkStore *link.Store, files *fsession.Manager, clock link.Clock, log *zap.Logger) (*Node, error) {
	if err := cfg.Valid(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	n := &Node{
		cfg:       cfg,
		conn:      conn,
		originID:  originID,
		kv:        facade,
		linkStore: linkStore,
		files:     files,
		rnd:       &defaultRand{},
		log:       log,
	}
	n.sendList = link.NewSendList(clock)
	n.recvCache = link.NewRecvCache(func(h kvmeta.Hash32) { n.log.Debug("recv-cache applied value", zap.Uint32("hash", uint32(h))) })
	facade.SetPublishFunc(n.sendList.Publish)
	return n, nil
}

// SetMetrics installs the Prometheus collector set the dispatcher and
// publish worker report through. Optional; a nil set disables reporting.
func (n *Node) SetMetrics(m *metrics.Collectors) { n.met = m }

// SetMetaTag sets the node's meta-tag at slot i. Slots below
// kvmeta.MetaTagsStart are fixed and rejected, per SPEC_FULL.md §13
// item 1.
func (n *Node) SetMetaTag(i int, h kvmeta.Hash32) error {
	if i < kvmeta.MetaTagsStart {
		return ErrFixedMetaTag
	}
	n.tagsMu.Lock()
	defer n.tagsMu.Unlock()
	for len(n.metaTags) <= i {
		n.metaTags = append(n.metaTags, 0)
	}
	n.metaTags[i] = h
	return nil
}

// MetaTags returns a snapshot of the node's current meta-tags.
func (n *Node) MetaTags() []kvmeta.Hash32 {
	n.tagsMu.RLock()
	defer n.tagsMu.RUnlock()
	out := make([]kvmeta.Hash32, len(n.metaTags))
	copy(out, n.metaTags)
	return out
}

// Query returns the node's current meta-tags packed as a discovery
// query, used in ANNOUNCE/LINK replies.
func (n *Node) Query() kvmeta.Query {
	var q kvmeta.Query
	tags := n.MetaTags()
	for i := 0; i < len(q) && i < len(tags); i++ {
		q[i] = tags[i]
	}
	return q
}

// KV exposes the facade for handler code outside the package (statusapi).
func (n *Node) KV() *kv.Facade           { return n.kv }
func (n *Node) Links() *link.Store       { return n.linkStore }
func (n *Node) SendList() *link.SendList { return n.sendList }
func (n *Node) RecvCache() *link.RecvCache { return n.recvCache }
func (n *Node) OriginID() uint64         { return n.originID }

// LocalPort returns the bound UDP port, used to populate data_port
// fields in ANNOUNCE/LINK replies.
func (n *Node) LocalPort() int {
	if addr, ok := n.conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.Port
	}
	return n.cfg.DiscoveryPort
}

// Run starts the dispatcher, announce loop, publish worker, and file-
// session timeout loop as one errgroup tied to ctx. It blocks until ctx
// is cancelled or a goroutine returns a non-nil error, mirroring the
// firmware's fixed startup/shutdown order (SPEC_FULL.md §5).
func (n *Node) Run(ctx context.Context) error {
	gctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(gctx)
	n.group, n.gctx, n.cancel = g, gctx, cancel

	stop := make(chan struct{})
	go func() {
		<-gctx.Done()
		close(stop)
	}()

	g.Go(func() error { return n.runDispatcher(gctx) })
	g.Go(func() error { return n.runAnnounce(gctx) })
	g.Go(func() error { return n.runPublishWorker(gctx) })
	g.Go(func() error { n.files.RunTimeoutLoop(stop); return nil })

	err := g.Wait()
	if gctx.Err() != nil && err == gctx.Err() {
		return nil
	}
	return err
}

// Close cancels the Node's goroutine group and closes its socket.
func (n *Node) Close() error {
	if n.cancel != nil {
		n.cancel()
	}
	return n.conn.Close()
}

// nextTransactionID returns a fresh random transaction id for outbound
// requests the node itself originates (as opposed to replies, which
// echo the requester's).
func (n *Node) nextTransactionID() uint32 { return n.rnd.Uint32() }

func (n *Node) newHeader(msgType wire.MsgType, transactionID uint32) wire.Header {
	return wire.NewHeader(msgType, transactionID, n.originID)
}
