package engine

import (
	"errors"
	"net"

	"github.com/chromatron/catbus/fsession"
	"github.com/chromatron/catbus/internal/randid"
	"github.com/chromatron/catbus/wire"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// handleFileOpen implements spec.md §4.8's FILE_OPEN row: open a new
// session if none is active, confirming with a random session id and
// the page size; FILESYSTEM_BUSY if a session is already open.
func (n *Node) handleFileOpen(body []byte) (wire.MsgType, []byte, error) {
	req, err := wire.DecodeFileOpen(body)
	if err != nil {
		return 0, nil, wire.ErrProtocolError
	}
	mode := fsession.ModeRead
	if req.Mode == wire.FileModeWrite {
		mode = fsession.ModeWrite
	}
	id := n.rnd.Uint32()
	if _, err := n.files.Open(id, mode, req.Name); err != nil {
		if errors.Is(err, fsession.ErrBusy) {
			return 0, nil, wire.ErrFilesystemBusy
		}
		return 0, nil, wire.ErrFileNotFound
	}
	reply := wire.FileConfirmMsg{SessionID: id, PageSize: wire.MaxData}
	return wire.MsgFileConfirm, reply.Encode(), nil
}

// handleFileGet implements the server side of a read-mode transfer:
// seek, read up to MAX_DATA, reply FILE_DATA. (During a write-mode
// transfer the node itself sends FILE_GET back to the client as its
// ack-and-request-next-chunk reply; see handleFileData below.)
func (n *Node) handleFileGet(body []byte) (wire.MsgType, []byte, error) {
	req, err := wire.DecodeFileGet(body)
	if err != nil {
		return 0, nil, wire.ErrProtocolError
	}
	length := req.Len
	if length == 0 || length > wire.MaxData {
		length = wire.MaxData
	}
	buf := make([]byte, length)
	nr, err := n.files.ReadChunk(req.SessionID, int64(req.Offset), buf)
	if err != nil {
		if errors.Is(err, fsession.ErrInvalidSession) {
			return 0, nil, wire.ErrInvalidFileSession
		}
		return 0, nil, wire.ErrProtocolError
	}
	reply := wire.FileDataMsg{SessionID: req.SessionID, Offset: req.Offset, Data: buf[:nr]}
	return wire.MsgFileData, reply.Encode(), nil
}

// handleFileData implements a write-mode transfer's data path: if the
// incoming offset matches the session's current write position, ack by
// sending back the next FILE_GET (advertising readiness for the next
// chunk) and write the payload. See SPEC_FULL.md §4.8 FILE_DATA row.
func (n *Node) handleFileData(body []byte) (wire.MsgType, []byte, error) {
	req, err := wire.DecodeFileData(body)
	if err != nil {
		return 0, nil, wire.ErrProtocolError
	}
	pos, ok := n.files.Position(req.SessionID)
	if !ok {
		return 0, nil, wire.ErrInvalidFileSession
	}
	if int64(req.Offset) != pos {
		return 0, nil, wire.ErrProtocolError
	}
	if err := n.files.WriteChunk(req.SessionID, int64(req.Offset), req.Data); err != nil {
		if errors.Is(err, fsession.ErrInvalidSession) {
			return 0, nil, wire.ErrInvalidFileSession
		}
		return 0, nil, wire.ErrProtocolError
	}
	newPos, _ := n.files.Position(req.SessionID)
	ack := wire.FileGetMsg{SessionID: req.SessionID, Offset: uint32(newPos)}
	return wire.MsgFileGet, ack.Encode(), nil
}

func (n *Node) handleFileClose(body []byte) (wire.MsgType, []byte, error) {
	req, err := wire.DecodeFileClose(body)
	if err != nil {
		return 0, nil, wire.ErrProtocolError
	}
	if err := n.files.Close(req.SessionID); err != nil {
		return 0, nil, wire.ErrInvalidFileSession
	}
	reply := wire.FileAckMsg{SessionID: req.SessionID}
	return wire.MsgFileAck, reply.Encode(), nil
}

func (n *Node) handleFileDelete(body []byte) (wire.MsgType, []byte, error) {
	req, err := wire.DecodeFileDelete(body)
	if err != nil {
		return 0, nil, wire.ErrProtocolError
	}
	if err := n.files.Delete(req.Name); err != nil {
		return 0, nil, wire.ErrFileNotFound
	}
	reply := wire.FileAckMsg{}
	return wire.MsgFileAck, reply.Encode(), nil
}

// handleFileCheck starts a background task that streams-hashes the
// named file and sends FILE_CHECK_RESPONSE, outside the single-session
// slot (SPEC_FULL.md §4.10).
func (n *Node) handleFileCheck(hdr wire.Header, addr net.Addr, body []byte) (wire.MsgType, []byte, error) {
	req, err := wire.DecodeFileCheck(body)
	if err != nil {
		return 0, nil, wire.ErrProtocolError
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	transactionID := hdr.TransactionID
	taskID := randid.TaskID()
	go func() {
		sum, length, err := fsession.Checksum(n.filesFS(), req.Name, limiter)
		if err != nil {
			n.log.Debug("file check failed", zap.String("task_id", taskID), zap.String("name", req.Name), zap.Error(err))
			return
		}
		reply := wire.FileCheckResponseMsg{Hash: sum, FileLen: uint32(length)}
		n.sendTo(addr, wire.MsgFileCheckResponse, transactionID, reply.Encode())
	}()
	return 0, nil, nil
}

func (n *Node) handleFileList(body []byte) (wire.MsgType, []byte, error) {
	req, err := wire.DecodeFileList(body)
	if err != nil {
		return 0, nil, wire.ErrProtocolError
	}
	entries, err := n.files.List()
	if err != nil {
		return 0, nil, wire.ErrProtocolError
	}
	start := int(req.Index)
	if start < 0 {
		start = 0
	}
	const pageSize = 16
	end := start + pageSize
	if end > len(entries) {
		end = len(entries)
	}
	next := int32(-1)
	if end < len(entries) {
		next = int32(end)
	}
	out := make([]wire.FileListEntry, 0, end-start)
	for i := start; i < end; i++ {
		var flags wire.FileListFlags
		if entries[i].IsDir {
			flags = wire.FileListFlagDir
		}
		out = append(out, wire.FileListEntry{Size: uint32(entries[i].Size), Flags: flags, Filename: entries[i].Name})
	}
	reply := wire.FileListDataMsg{NextIndex: next, Entries: out}
	return wire.MsgFileListData, reply.Encode(), nil
}

// filesFS exposes the file-session manager's filesystem collaborator for
// the FILE_CHECK task. It is a thin accessor rather than a new
// interface method on *fsession.Manager because only this one call site
// needs it.
func (n *Node) filesFS() fsession.FS { return n.files.Filesystem() }
