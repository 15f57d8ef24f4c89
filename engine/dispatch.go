package engine

import (
	"context"
	"errors"
	"net"

	"go.uber.org/zap"

	"github.com/chromatron/catbus/kvmeta"
	"github.com/chromatron/catbus/value"
	"github.com/chromatron/catbus/wire"
)

const readBufferSize = 2048

// runDispatcher is the single goroutine reading every inbound datagram
// on the node's one UDP socket, decoding the header, and dispatching on
// msg_type. See SPEC_FULL.md §4.8, §5 ("the dispatcher itself is safe
// because it reads then replies before yielding").
func (n *Node) runDispatcher(ctx context.Context) error {
	buf := make([]byte, readBufferSize)
	for {
		if ctx.Err() != nil {
			return nil
		}
		nr, addr, err := n.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return err
		}
		n.handlePacket(addr, append([]byte(nil), buf[:nr]...))
	}
}

// handlePacket decodes one datagram and dispatches it. Errors are
// reported per SPEC_FULL.md §7: every handler sets a local error that,
// on exit, is sent back as an ERROR reply, except UNKNOWN_MSG and
// FILE_NOT_FOUND which are suppressed.
func (n *Node) handlePacket(addr net.Addr, raw []byte) {
	hdr, body, err := wire.DecodeHeader(raw)
	if err != nil {
		return // malformed shorter-than-header datagram: drop silently
	}
	if !hdr.Valid() {
		return // step 1: magic/version mismatch, drop silently
	}
	if hdr.OriginID == n.originID {
		return // step 2: self-loopback suppression
	}

	if n.met != nil {
		n.met.MessagesReceived.WithLabelValues(hdr.MsgType.String()).Inc()
	}

	respType, respBody, handleErr := n.dispatch(hdr, addr, body)

	if handleErr != nil {
		code := errorCodeOf(handleErr)
		if code.Suppressed() {
			return
		}
		if n.met != nil {
			n.met.ErrorsSent.WithLabelValues(code.String()).Inc()
		}
		n.sendTo(addr, wire.MsgError, hdr.TransactionID, wire.ErrorMsg{Code: code}.Encode())
		return
	}
	if respBody != nil {
		n.sendTo(addr, respType, hdr.TransactionID, respBody)
	}
}

func errorCodeOf(err error) wire.ErrorCode {
	var code wire.ErrorCode
	if errors.As(err, &code) {
		return code
	}
	return wire.ErrProtocolError
}

func (n *Node) sendTo(addr net.Addr, msgType wire.MsgType, transactionID uint32, body []byte) {
	hdr := n.newHeader(msgType, transactionID)
	buf := hdr.Encode(make([]byte, 0, wire.HeaderSize+len(body)))
	buf = append(buf, body...)
	if _, err := n.conn.WriteTo(buf, addr); err != nil {
		n.log.Warn("send failed", zap.Stringer("msg_type", msgType), zap.Error(err))
		return
	}
	if n.met != nil {
		n.met.MessagesSent.WithLabelValues(msgType.String()).Inc()
	}
}

// dispatch routes one decoded message to its handler. Returning a
// nil respBody with a nil err means "no reply" (e.g. ANNOUNCE, ERROR).
func (n *Node) dispatch(hdr wire.Header, addr net.Addr, body []byte) (wire.MsgType, []byte, error) {
	switch hdr.MsgType {
	case wire.MsgAnnounce:
		return 0, nil, nil // informational, no-op
	case wire.MsgDiscover:
		return n.handleDiscover(hdr, body)
	case wire.MsgLookupHash:
		return n.handleLookupHash(body)
	case wire.MsgGetKeyMeta:
		return n.handleGetKeyMeta(body)
	case wire.MsgGetKeys:
		return n.handleGetKeys(body)
	case wire.MsgSetKeys:
		return n.handleSetKeys(body)
	case wire.MsgLink:
		return n.handleLink(hdr, addr, body)
	case wire.MsgLinkData:
		return n.handleLinkData(addr, body)
	case wire.MsgLinkGet:
		return n.handleLinkGet(body)
	case wire.MsgLinkAdd:
		return n.handleLinkAdd(body)
	case wire.MsgLinkDelete:
		return n.handleLinkDelete(body)
	case wire.MsgFileOpen:
		return n.handleFileOpen(body)
	case wire.MsgFileGet:
		return n.handleFileGet(body)
	case wire.MsgFileData:
		return n.handleFileData(body)
	case wire.MsgFileClose:
		return n.handleFileClose(body)
	case wire.MsgFileDelete:
		return n.handleFileDelete(body)
	case wire.MsgFileCheck:
		return n.handleFileCheck(hdr, addr, body)
	case wire.MsgFileList:
		return n.handleFileList(body)
	case wire.MsgError:
		return 0, nil, nil // no-op
	default:
		return 0, nil, wire.ErrUnknownMsg
	}
}

func (n *Node) handleDiscover(hdr wire.Header, body []byte) (wire.MsgType, []byte, error) {
	req, err := wire.DecodeDiscover(body)
	if err != nil {
		return 0, nil, wire.ErrProtocolError
	}
	matches := hdr.Flags&wire.FlagQueryAll != 0 || req.Query.IsEmpty() || req.Query.Matches(n.MetaTags())
	if !matches {
		return 0, nil, nil
	}
	reply := wire.AnnounceMsg{DataPort: uint16(n.LocalPort()), Query: n.Query()}
	return wire.MsgAnnounce, reply.Encode(), nil
}

func (n *Node) handleLookupHash(body []byte) (wire.MsgType, []byte, error) {
	req, err := wire.DecodeLookupHash(body)
	if err != nil {
		return 0, nil, wire.ErrProtocolError
	}
	names := make([]string, len(req.Hashes))
	for i, h := range req.Hashes {
		if name, ok := n.kv.GetName(h); ok {
			names[i] = name
		}
	}
	reply := wire.ResolvedHashMsg{Names: names}
	return wire.MsgResolvedHash, reply.Encode(), nil
}

const keyMetaPageSize = 32

func (n *Node) handleGetKeyMeta(body []byte) (wire.MsgType, []byte, error) {
	req, err := wire.DecodeGetKeyMeta(body)
	if err != nil {
		return 0, nil, wire.ErrProtocolError
	}
	total := n.kv.Count()
	pageCount := (total + keyMetaPageSize - 1) / keyMetaPageSize
	if pageCount == 0 {
		pageCount = 1
	}
	start := int(req.Page) * keyMetaPageSize
	end := start + keyMetaPageSize
	if end > total {
		end = total
	}
	var metas []kvmeta.Meta
	for i := start; i < end; i++ {
		if m, ok := n.kv.LookupIndex(i); ok {
			metas = append(metas, m)
		}
	}
	reply := wire.KeyMetaMsg{Page: req.Page, PageCount: uint16(pageCount), ItemCount: uint16(total), Meta: metas}
	return wire.MsgKeyMeta, reply.Encode(), nil
}

func (n *Node) handleGetKeys(body []byte) (wire.MsgType, []byte, error) {
	req, err := wire.DecodeGetKeys(body)
	if err != nil {
		return 0, nil, wire.ErrProtocolError
	}
	var items []wire.KeyValue
	size := 1
	for _, h := range req.Hashes {
		meta, ok := n.kv.LookupHash(h)
		if !ok {
			continue
		}
		sz, err := value.SizeOf(meta.Type)
		if err != nil {
			continue
		}
		dataLen := sz * meta.Count()
		itemSize := wire.MetaWireLen + dataLen
		if size+itemSize > wire.MaxData {
			break
		}
		buf := make([]byte, dataLen)
		if _, err := n.kv.Get(h, buf); err != nil {
			continue
		}
		items = append(items, wire.KeyValue{Meta: meta, Data: buf})
		size += itemSize
	}
	reply := wire.KeyDataMsg{Items: items}
	return wire.MsgKeyData, reply.Encode(), nil
}

func (n *Node) handleSetKeys(body []byte) (wire.MsgType, []byte, error) {
	req, err := wire.DecodeKeyData(body)
	if err != nil {
		return 0, nil, wire.ErrProtocolError
	}
	for i, item := range req.Items {
		meta, ok := n.kv.LookupHash(item.Meta.Hash)
		if !ok {
			return 0, nil, wire.ErrKeyNotFound
		}
		if meta.Type != item.Meta.Type {
			// Type coercion happens on high-level array_set, not on
			// SET_KEYS wire ingress (SPEC_FULL.md §8 scenario 4).
			return 0, nil, wire.ErrInvalidType
		}
		if meta.Flags&kvmeta.FlagReadOnly != 0 {
			return 0, nil, wire.ErrReadOnly
		}
		if err := n.kv.Set(item.Meta.Hash, value.TypeNone, item.Data); err != nil {
			return 0, nil, wire.ErrProtocolError
		}
		readBack := make([]byte, len(item.Data))
		if _, err := n.kv.Get(item.Meta.Hash, readBack); err == nil {
			req.Items[i].Data = readBack
		}
	}
	reply := wire.KeyDataMsg{Items: req.Items}
	return wire.MsgKeyData, reply.Encode(), nil
}

// handleLink implements both halves of SPEC_FULL.md §4.8's LINK row: a
// SOURCE-flagged advertisement (we are the destination: check our query
// match and that we hold the destination key, then reply with a DEST-
// flagged copy) or a DEST-flagged notification (we are the source:
// check we hold the source key, then add the sender to our send list).
// See SPEC_FULL.md §8 scenario 2.
func (n *Node) handleLink(_ wire.Header, addr net.Addr, body []byte) (wire.MsgType, []byte, error) {
	req, err := wire.DecodeLink(body)
	if err != nil {
		return 0, nil, wire.ErrProtocolError
	}
	if req.Flags.HasSource() {
		if !req.Query.IsEmpty() && !req.Query.Matches(n.MetaTags()) {
			return 0, nil, nil
		}
		if _, ok := n.kv.LookupHash(req.Dest); !ok {
			return 0, nil, nil
		}
		reply := wire.LinkMsg{
			Flags: wire.LinkFlagDest, Source: req.Source, Dest: req.Dest,
			DataPort: uint16(n.LocalPort()),
		}
		return wire.MsgLink, reply.Encode(), nil
	}
	if req.Flags.HasDest() {
		if _, ok := n.kv.LookupHash(req.Source); !ok {
			return 0, nil, nil
		}
		n.sendList.Touch(addr, req.Source, req.Dest)
		return 0, nil, nil
	}
	return 0, nil, wire.ErrProtocolError
}

func (n *Node) handleLinkData(addr net.Addr, body []byte) (wire.MsgType, []byte, error) {
	req, err := wire.DecodeLinkData(body)
	if err != nil {
		return 0, nil, wire.ErrProtocolError
	}
	if applyErr := n.recvCache.Apply(n.kv, addr, req.Dest, req.Sequence, req.Meta.Type, req.Data); applyErr != nil {
		return 0, nil, wire.ErrProtocolError
	}
	return 0, nil, nil
}

func (n *Node) handleLinkGet(body []byte) (wire.MsgType, []byte, error) {
	req, err := wire.DecodeLinkGet(body)
	if err != nil {
		return 0, nil, wire.ErrProtocolError
	}
	rec, ok, err := n.linkStore.Get(int(req.Index))
	if err != nil {
		return 0, nil, wire.ErrProtocolError
	}
	if !ok {
		return 0, nil, wire.ErrLinkEOF
	}
	reply := wire.LinkMetaMsg{Index: req.Index, Flags: rec.Flags, Source: rec.Source, Dest: rec.Dest, Query: rec.Query, Tag: rec.Tag}
	return wire.MsgLinkMeta, reply.Encode(), nil
}

func (n *Node) handleLinkAdd(body []byte) (wire.MsgType, []byte, error) {
	req, err := wire.DecodeLinkAdd(body)
	if err != nil {
		return 0, nil, wire.ErrProtocolError
	}
	idx, err := n.linkStore.Create(toRecord(req))
	if err != nil {
		return 0, nil, wire.ErrProtocolError
	}
	reply := wire.LinkMetaMsg{Index: uint32(idx), Flags: req.Flags | wire.LinkFlagValid, Source: req.Source, Dest: req.Dest, Query: req.Query, Tag: req.Tag}
	return wire.MsgLinkMeta, reply.Encode(), nil
}

func (n *Node) handleLinkDelete(body []byte) (wire.MsgType, []byte, error) {
	req, err := wire.DecodeLinkDelete(body)
	if err != nil {
		return 0, nil, wire.ErrProtocolError
	}
	if _, err := n.linkStore.Purge(req.Tag); err != nil {
		return 0, nil, wire.ErrProtocolError
	}
	return 0, nil, nil
}
