package wire

import (
	"encoding/binary"
	"errors"

	"github.com/chromatron/catbus/kvmeta"
	"github.com/chromatron/catbus/value"
)

// ErrShortMessage is returned by Decode* functions when buf is too short
// to hold the fixed portion of the message.
var ErrShortMessage = errors.New("wire: message too short")

// StringLen is the fixed width of a filename/string field on the wire.
// "CATBUS_STRING_LEN" in SPEC_FULL.md §6.
const StringLen = 32

// MaxData caps the data payload of any reply. "CATBUS_MAX_DATA".
const MaxData = 548

// MaxHashLookups caps a single LOOKUP_HASH request's hash count.
const MaxHashLookups = 8

func putString(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

func getString(src []byte) string {
	n := 0
	for n < len(src) && src[n] != 0 {
		n++
	}
	return string(src[:n])
}

func putQuery(dst []byte, q kvmeta.Query) {
	for i, h := range q {
		binary.LittleEndian.PutUint32(dst[i*4:i*4+4], uint32(h))
	}
}

func getQuery(src []byte) kvmeta.Query {
	var q kvmeta.Query
	for i := range q {
		q[i] = kvmeta.Hash32(binary.LittleEndian.Uint32(src[i*4 : i*4+4]))
	}
	return q
}

const queryWireLen = kvmeta.QueryLen * 4

// AnnounceMsg is the ANNOUNCE body: a node's data port and its current
// meta-tag query, carried in both the periodic broadcast and the
// DISCOVER reply. See SPEC_FULL.md §4.9, §8 scenario 1.
type AnnounceMsg struct {
	DataPort uint16
	Query    kvmeta.Query
}

const announceWireLen = 2 + queryWireLen

func (m AnnounceMsg) Encode() []byte {
	b := make([]byte, announceWireLen)
	binary.LittleEndian.PutUint16(b[0:2], m.DataPort)
	putQuery(b[2:], m.Query)
	return b
}

func DecodeAnnounce(b []byte) (AnnounceMsg, error) {
	if len(b) < announceWireLen {
		return AnnounceMsg{}, ErrShortMessage
	}
	return AnnounceMsg{
		DataPort: binary.LittleEndian.Uint16(b[0:2]),
		Query:    getQuery(b[2:]),
	}, nil
}

// DiscoverMsg is the DISCOVER request body: the query the sender wants
// matched against the recipient's meta-tags.
type DiscoverMsg struct {
	Query kvmeta.Query
}

func (m DiscoverMsg) Encode() []byte {
	b := make([]byte, queryWireLen)
	putQuery(b, m.Query)
	return b
}

func DecodeDiscover(b []byte) (DiscoverMsg, error) {
	if len(b) < queryWireLen {
		return DiscoverMsg{}, ErrShortMessage
	}
	return DiscoverMsg{Query: getQuery(b)}, nil
}

// LookupHashMsg requests name resolution for up to MaxHashLookups hashes.
type LookupHashMsg struct {
	Hashes []kvmeta.Hash32
}

func (m LookupHashMsg) Encode() []byte {
	count := len(m.Hashes)
	if count > MaxHashLookups {
		count = MaxHashLookups
	}
	b := make([]byte, 1+count*4)
	b[0] = byte(count)
	for i := 0; i < count; i++ {
		binary.LittleEndian.PutUint32(b[1+i*4:5+i*4], uint32(m.Hashes[i]))
	}
	return b
}

func DecodeLookupHash(b []byte) (LookupHashMsg, error) {
	if len(b) < 1 {
		return LookupHashMsg{}, ErrShortMessage
	}
	count := int(b[0])
	if count > MaxHashLookups {
		count = MaxHashLookups
	}
	if count <= 0 {
		return LookupHashMsg{}, ErrProtocolError
	}
	if len(b) < 1+count*4 {
		return LookupHashMsg{}, ErrShortMessage
	}
	hashes := make([]kvmeta.Hash32, count)
	for i := 0; i < count; i++ {
		hashes[i] = kvmeta.Hash32(binary.LittleEndian.Uint32(b[1+i*4 : 5+i*4]))
	}
	return LookupHashMsg{Hashes: hashes}, nil
}

// ResolvedHashMsg is the LOOKUP_HASH reply: one fixed-width name per
// requested hash, zeroed when unresolved.
type ResolvedHashMsg struct {
	Names []string
}

func (m ResolvedHashMsg) Encode() []byte {
	b := make([]byte, 1+len(m.Names)*StringLen)
	b[0] = byte(len(m.Names))
	for i, n := range m.Names {
		putString(b[1+i*StringLen:1+(i+1)*StringLen], n)
	}
	return b
}

func DecodeResolvedHash(b []byte) (ResolvedHashMsg, error) {
	if len(b) < 1 {
		return ResolvedHashMsg{}, ErrShortMessage
	}
	count := int(b[0])
	if len(b) < 1+count*StringLen {
		return ResolvedHashMsg{}, ErrShortMessage
	}
	names := make([]string, count)
	for i := range names {
		names[i] = getString(b[1+i*StringLen : 1+(i+1)*StringLen])
	}
	return ResolvedHashMsg{Names: names}, nil
}

// MetaWireLen is the encoded size of one kvmeta.Meta.
const MetaWireLen = 4 + 1 + 1 + 1

func putMeta(dst []byte, m kvmeta.Meta) {
	binary.LittleEndian.PutUint32(dst[0:4], uint32(m.Hash))
	dst[4] = byte(m.Type)
	dst[5] = m.ArrayLen
	dst[6] = byte(m.Flags)
}

func getMeta(src []byte) kvmeta.Meta {
	return kvmeta.Meta{
		Hash:     kvmeta.Hash32(binary.LittleEndian.Uint32(src[0:4])),
		Type:     value.Type(src[4]),
		ArrayLen: src[5],
		Flags:    kvmeta.Flags(src[6]),
	}
}

// metaDataSize returns the encoded byte length of a KeyValue's Data
// field for the given metadata (element size x element count).
func metaDataSize(m kvmeta.Meta) (int, error) {
	sz, err := value.SizeOf(m.Type)
	if err != nil {
		return 0, err
	}
	return sz * m.Count(), nil
}

// GetKeyMetaMsg is the GET_KEY_META request body: which page to fetch.
type GetKeyMetaMsg struct {
	Page uint16
}

func (m GetKeyMetaMsg) Encode() []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, m.Page)
	return b
}

func DecodeGetKeyMeta(b []byte) (GetKeyMetaMsg, error) {
	if len(b) < 2 {
		return GetKeyMetaMsg{}, ErrShortMessage
	}
	return GetKeyMetaMsg{Page: binary.LittleEndian.Uint16(b)}, nil
}

// KeyMetaMsg is one page of the paginated GET_KEY_META reply.
type KeyMetaMsg struct {
	Page      uint16
	PageCount uint16
	ItemCount uint16
	Meta      []kvmeta.Meta
}

func (m KeyMetaMsg) Encode() []byte {
	b := make([]byte, 6+len(m.Meta)*MetaWireLen)
	binary.LittleEndian.PutUint16(b[0:2], m.Page)
	binary.LittleEndian.PutUint16(b[2:4], m.PageCount)
	binary.LittleEndian.PutUint16(b[4:6], m.ItemCount)
	for i, meta := range m.Meta {
		putMeta(b[6+i*MetaWireLen:], meta)
	}
	return b
}

func DecodeKeyMeta(b []byte) (KeyMetaMsg, error) {
	if len(b) < 6 {
		return KeyMetaMsg{}, ErrShortMessage
	}
	n := (len(b) - 6) / MetaWireLen
	out := KeyMetaMsg{
		Page:      binary.LittleEndian.Uint16(b[0:2]),
		PageCount: binary.LittleEndian.Uint16(b[2:4]),
		ItemCount: binary.LittleEndian.Uint16(b[4:6]),
		Meta:      make([]kvmeta.Meta, n),
	}
	for i := 0; i < n; i++ {
		out.Meta[i] = getMeta(b[6+i*MetaWireLen:])
	}
	return out, nil
}

// GetKeysMsg is the GET_KEYS request body: the hashes to fetch.
type GetKeysMsg struct {
	Hashes []kvmeta.Hash32
}

func (m GetKeysMsg) Encode() []byte {
	b := make([]byte, 1+len(m.Hashes)*4)
	b[0] = byte(len(m.Hashes))
	for i, h := range m.Hashes {
		binary.LittleEndian.PutUint32(b[1+i*4:5+i*4], uint32(h))
	}
	return b
}

func DecodeGetKeys(b []byte) (GetKeysMsg, error) {
	if len(b) < 1 {
		return GetKeysMsg{}, ErrShortMessage
	}
	count := int(b[0])
	if len(b) < 1+count*4 {
		return GetKeysMsg{}, ErrShortMessage
	}
	hashes := make([]kvmeta.Hash32, count)
	for i := range hashes {
		hashes[i] = kvmeta.Hash32(binary.LittleEndian.Uint32(b[1+i*4 : 5+i*4]))
	}
	return GetKeysMsg{Hashes: hashes}, nil
}

// KeyValue pairs a parameter's metadata with its raw data, the unit of
// exchange for GET_KEYS/SET_KEYS/KEY_DATA bodies.
type KeyValue struct {
	Meta kvmeta.Meta
	Data []byte
}

func (kv KeyValue) wireLen() int { return MetaWireLen + len(kv.Data) }

// KeyDataMsg is the packed {meta,data} reply used by both GET_KEYS and
// SET_KEYS (echoed in place, per SPEC_FULL.md §4.8).
type KeyDataMsg struct {
	Items []KeyValue
}

func (m KeyDataMsg) Encode() []byte {
	total := 1
	for _, it := range m.Items {
		total += it.wireLen()
	}
	b := make([]byte, total)
	b[0] = byte(len(m.Items))
	off := 1
	for _, it := range m.Items {
		putMeta(b[off:], it.Meta)
		copy(b[off+MetaWireLen:], it.Data)
		off += it.wireLen()
	}
	return b
}

func DecodeKeyData(b []byte) (KeyDataMsg, error) {
	if len(b) < 1 {
		return KeyDataMsg{}, ErrShortMessage
	}
	count := int(b[0])
	off := 1
	items := make([]KeyValue, 0, count)
	for i := 0; i < count; i++ {
		if off+MetaWireLen > len(b) {
			return KeyDataMsg{}, ErrShortMessage
		}
		meta := getMeta(b[off:])
		off += MetaWireLen
		size, err := metaDataSize(meta)
		if err != nil {
			return KeyDataMsg{}, err
		}
		if off+size > len(b) {
			return KeyDataMsg{}, ErrShortMessage
		}
		data := make([]byte, size)
		copy(data, b[off:off+size])
		off += size
		items = append(items, KeyValue{Meta: meta, Data: data})
	}
	return KeyDataMsg{Items: items}, nil
}

// LinkFlags is the wire bitset carried in LINK/LINK_ADD/LINK_META
// messages. See SPEC_FULL.md §13 item 2 (SOURCE/DEST/VALID bitset, not a
// plain enum).
type LinkFlags uint8

const (
	LinkFlagSource LinkFlags = 0x01
	LinkFlagDest   LinkFlags = 0x04
	LinkFlagValid  LinkFlags = 0x80
)

func (f LinkFlags) HasSource() bool { return f&LinkFlagSource != 0 }
func (f LinkFlags) HasDest() bool   { return f&LinkFlagDest != 0 }
func (f LinkFlags) IsValid() bool   { return f&LinkFlagValid != 0 }

// LinkMsg is the LINK message body: an advertisement (SOURCE) or a
// notification/acceptance (DEST). See SPEC_FULL.md §4.8, §8 scenario 2.
type LinkMsg struct {
	Flags    LinkFlags
	Source   kvmeta.Hash32
	Dest     kvmeta.Hash32
	Query    kvmeta.Query
	DataPort uint16
	Tag      uint32
}

const linkWireLen = 1 + 4 + 4 + queryWireLen + 2 + 4

func (m LinkMsg) Encode() []byte {
	b := make([]byte, linkWireLen)
	b[0] = byte(m.Flags)
	binary.LittleEndian.PutUint32(b[1:5], uint32(m.Source))
	binary.LittleEndian.PutUint32(b[5:9], uint32(m.Dest))
	putQuery(b[9:9+queryWireLen], m.Query)
	binary.LittleEndian.PutUint16(b[9+queryWireLen:11+queryWireLen], m.DataPort)
	binary.LittleEndian.PutUint32(b[11+queryWireLen:15+queryWireLen], m.Tag)
	return b
}

func DecodeLink(b []byte) (LinkMsg, error) {
	if len(b) < linkWireLen {
		return LinkMsg{}, ErrShortMessage
	}
	return LinkMsg{
		Flags:    LinkFlags(b[0]),
		Source:   kvmeta.Hash32(binary.LittleEndian.Uint32(b[1:5])),
		Dest:     kvmeta.Hash32(binary.LittleEndian.Uint32(b[5:9])),
		Query:    getQuery(b[9 : 9+queryWireLen]),
		DataPort: binary.LittleEndian.Uint16(b[9+queryWireLen : 11+queryWireLen]),
		Tag:      binary.LittleEndian.Uint32(b[11+queryWireLen : 15+queryWireLen]),
	}, nil
}

// LinkDataMsg carries a published parameter value. The receive path
// converts using Meta.Type rather than a hardcoded type, resolving
// SPEC_FULL.md §14's open question.
type LinkDataMsg struct {
	SourceQuery kvmeta.Query
	Source      kvmeta.Hash32
	Dest        kvmeta.Hash32
	Sequence    uint32
	Flags       uint8
	Meta        kvmeta.Meta
	Data        []byte
}

func (m LinkDataMsg) Encode() []byte {
	head := queryWireLen + 4 + 4 + 4 + 1 + MetaWireLen
	b := make([]byte, head+len(m.Data))
	off := 0
	putQuery(b[off:off+queryWireLen], m.SourceQuery)
	off += queryWireLen
	binary.LittleEndian.PutUint32(b[off:off+4], uint32(m.Source))
	off += 4
	binary.LittleEndian.PutUint32(b[off:off+4], uint32(m.Dest))
	off += 4
	binary.LittleEndian.PutUint32(b[off:off+4], m.Sequence)
	off += 4
	b[off] = m.Flags
	off++
	putMeta(b[off:], m.Meta)
	off += MetaWireLen
	copy(b[off:], m.Data)
	return b
}

func DecodeLinkData(b []byte) (LinkDataMsg, error) {
	head := queryWireLen + 4 + 4 + 4 + 1 + MetaWireLen
	if len(b) < head {
		return LinkDataMsg{}, ErrShortMessage
	}
	off := 0
	q := getQuery(b[off : off+queryWireLen])
	off += queryWireLen
	src := kvmeta.Hash32(binary.LittleEndian.Uint32(b[off : off+4]))
	off += 4
	dst := kvmeta.Hash32(binary.LittleEndian.Uint32(b[off : off+4]))
	off += 4
	seq := binary.LittleEndian.Uint32(b[off : off+4])
	off += 4
	flags := b[off]
	off++
	meta := getMeta(b[off:])
	off += MetaWireLen
	return LinkDataMsg{
		SourceQuery: q, Source: src, Dest: dst, Sequence: seq, Flags: flags,
		Meta: meta, Data: append([]byte(nil), b[off:]...),
	}, nil
}

// LinkGetMsg requests the link record at Index.
type LinkGetMsg struct{ Index uint32 }

func (m LinkGetMsg) Encode() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, m.Index)
	return b
}

func DecodeLinkGet(b []byte) (LinkGetMsg, error) {
	if len(b) < 4 {
		return LinkGetMsg{}, ErrShortMessage
	}
	return LinkGetMsg{Index: binary.LittleEndian.Uint32(b)}, nil
}

// LinkMetaMsg is the LINK_GET reply: one stored link record.
type LinkMetaMsg struct {
	Index  uint32
	Flags  LinkFlags
	Source kvmeta.Hash32
	Dest   kvmeta.Hash32
	Query  kvmeta.Query
	Tag    uint32
}

const linkMetaWireLen = 4 + 1 + 4 + 4 + queryWireLen + 4

func (m LinkMetaMsg) Encode() []byte {
	b := make([]byte, linkMetaWireLen)
	binary.LittleEndian.PutUint32(b[0:4], m.Index)
	b[4] = byte(m.Flags)
	binary.LittleEndian.PutUint32(b[5:9], uint32(m.Source))
	binary.LittleEndian.PutUint32(b[9:13], uint32(m.Dest))
	putQuery(b[13:13+queryWireLen], m.Query)
	binary.LittleEndian.PutUint32(b[13+queryWireLen:17+queryWireLen], m.Tag)
	return b
}

func DecodeLinkMeta(b []byte) (LinkMetaMsg, error) {
	if len(b) < linkMetaWireLen {
		return LinkMetaMsg{}, ErrShortMessage
	}
	return LinkMetaMsg{
		Index:  binary.LittleEndian.Uint32(b[0:4]),
		Flags:  LinkFlags(b[4]),
		Source: kvmeta.Hash32(binary.LittleEndian.Uint32(b[5:9])),
		Dest:   kvmeta.Hash32(binary.LittleEndian.Uint32(b[9:13])),
		Query:  getQuery(b[13 : 13+queryWireLen]),
		Tag:    binary.LittleEndian.Uint32(b[13+queryWireLen : 17+queryWireLen]),
	}, nil
}

// LinkAddMsg requests creation of a new link record.
type LinkAddMsg struct {
	Flags  LinkFlags
	Source kvmeta.Hash32
	Dest   kvmeta.Hash32
	Query  kvmeta.Query
	Tag    uint32
}

func (m LinkAddMsg) Encode() []byte {
	return LinkMetaMsg{Flags: m.Flags, Source: m.Source, Dest: m.Dest, Query: m.Query, Tag: m.Tag}.Encode()[4:]
}

func DecodeLinkAdd(b []byte) (LinkAddMsg, error) {
	padded := append([]byte{0, 0, 0, 0}, b...)
	lm, err := DecodeLinkMeta(padded)
	if err != nil {
		return LinkAddMsg{}, err
	}
	return LinkAddMsg{Flags: lm.Flags, Source: lm.Source, Dest: lm.Dest, Query: lm.Query, Tag: lm.Tag}, nil
}

// LinkDeleteMsg requests purge of every link record carrying Tag.
type LinkDeleteMsg struct{ Tag uint32 }

func (m LinkDeleteMsg) Encode() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, m.Tag)
	return b
}

func DecodeLinkDelete(b []byte) (LinkDeleteMsg, error) {
	if len(b) < 4 {
		return LinkDeleteMsg{}, ErrShortMessage
	}
	return LinkDeleteMsg{Tag: binary.LittleEndian.Uint32(b)}, nil
}

// File transfer modes, carried in FileOpenMsg.Mode.
const (
	FileModeRead  uint8 = 0
	FileModeWrite uint8 = 1
)

// FileOpenMsg requests a file session.
type FileOpenMsg struct {
	Mode uint8
	Name string
}

func (m FileOpenMsg) Encode() []byte {
	b := make([]byte, 1+StringLen)
	b[0] = m.Mode
	putString(b[1:], m.Name)
	return b
}

func DecodeFileOpen(b []byte) (FileOpenMsg, error) {
	if len(b) < 1+StringLen {
		return FileOpenMsg{}, ErrShortMessage
	}
	return FileOpenMsg{Mode: b[0], Name: getString(b[1 : 1+StringLen])}, nil
}

// FileConfirmMsg is the FILE_OPEN reply.
type FileConfirmMsg struct {
	SessionID uint32
	PageSize  uint32
}

func (m FileConfirmMsg) Encode() []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:4], m.SessionID)
	binary.LittleEndian.PutUint32(b[4:8], m.PageSize)
	return b
}

func DecodeFileConfirm(b []byte) (FileConfirmMsg, error) {
	if len(b) < 8 {
		return FileConfirmMsg{}, ErrShortMessage
	}
	return FileConfirmMsg{
		SessionID: binary.LittleEndian.Uint32(b[0:4]),
		PageSize:  binary.LittleEndian.Uint32(b[4:8]),
	}, nil
}

// FileGetMsg requests (or, as a FILE_DATA ack, announces) the next chunk.
type FileGetMsg struct {
	SessionID uint32
	Offset    uint32
	Len       uint32
}

func (m FileGetMsg) Encode() []byte {
	b := make([]byte, 12)
	binary.LittleEndian.PutUint32(b[0:4], m.SessionID)
	binary.LittleEndian.PutUint32(b[4:8], m.Offset)
	binary.LittleEndian.PutUint32(b[8:12], m.Len)
	return b
}

func DecodeFileGet(b []byte) (FileGetMsg, error) {
	if len(b) < 12 {
		return FileGetMsg{}, ErrShortMessage
	}
	return FileGetMsg{
		SessionID: binary.LittleEndian.Uint32(b[0:4]),
		Offset:    binary.LittleEndian.Uint32(b[4:8]),
		Len:       binary.LittleEndian.Uint32(b[8:12]),
	}, nil
}

// FileDataMsg carries one chunk of file payload.
type FileDataMsg struct {
	SessionID uint32
	Offset    uint32
	Data      []byte
}

func (m FileDataMsg) Encode() []byte {
	b := make([]byte, 8+len(m.Data))
	binary.LittleEndian.PutUint32(b[0:4], m.SessionID)
	binary.LittleEndian.PutUint32(b[4:8], m.Offset)
	copy(b[8:], m.Data)
	return b
}

func DecodeFileData(b []byte) (FileDataMsg, error) {
	if len(b) < 8 {
		return FileDataMsg{}, ErrShortMessage
	}
	return FileDataMsg{
		SessionID: binary.LittleEndian.Uint32(b[0:4]),
		Offset:    binary.LittleEndian.Uint32(b[4:8]),
		Data:      append([]byte(nil), b[8:]...),
	}, nil
}

// FileCloseMsg requests closing the session SessionID.
type FileCloseMsg struct{ SessionID uint32 }

func (m FileCloseMsg) Encode() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, m.SessionID)
	return b
}

func DecodeFileClose(b []byte) (FileCloseMsg, error) {
	if len(b) < 4 {
		return FileCloseMsg{}, ErrShortMessage
	}
	return FileCloseMsg{SessionID: binary.LittleEndian.Uint32(b)}, nil
}

// FileAckMsg is the generic FILE_CLOSE/FILE_DELETE reply.
type FileAckMsg struct{ SessionID uint32 }

func (m FileAckMsg) Encode() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, m.SessionID)
	return b
}

func DecodeFileAck(b []byte) (FileAckMsg, error) {
	if len(b) < 4 {
		return FileAckMsg{}, ErrShortMessage
	}
	return FileAckMsg{SessionID: binary.LittleEndian.Uint32(b)}, nil
}

// FileDeleteMsg requests deletion of a named file.
type FileDeleteMsg struct{ Name string }

func (m FileDeleteMsg) Encode() []byte {
	b := make([]byte, StringLen)
	putString(b, m.Name)
	return b
}

func DecodeFileDelete(b []byte) (FileDeleteMsg, error) {
	if len(b) < StringLen {
		return FileDeleteMsg{}, ErrShortMessage
	}
	return FileDeleteMsg{Name: getString(b[:StringLen])}, nil
}

// FileCheckMsg requests a streaming checksum of a named file.
type FileCheckMsg struct{ Name string }

func (m FileCheckMsg) Encode() []byte {
	b := make([]byte, StringLen)
	putString(b, m.Name)
	return b
}

func DecodeFileCheck(b []byte) (FileCheckMsg, error) {
	if len(b) < StringLen {
		return FileCheckMsg{}, ErrShortMessage
	}
	return FileCheckMsg{Name: getString(b[:StringLen])}, nil
}

// FileCheckResponseMsg is the FILE_CHECK reply.
type FileCheckResponseMsg struct {
	Hash    uint32
	FileLen uint32
}

func (m FileCheckResponseMsg) Encode() []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:4], m.Hash)
	binary.LittleEndian.PutUint32(b[4:8], m.FileLen)
	return b
}

func DecodeFileCheckResponse(b []byte) (FileCheckResponseMsg, error) {
	if len(b) < 8 {
		return FileCheckResponseMsg{}, ErrShortMessage
	}
	return FileCheckResponseMsg{
		Hash:    binary.LittleEndian.Uint32(b[0:4]),
		FileLen: binary.LittleEndian.Uint32(b[4:8]),
	}, nil
}

// FileListMsg requests a directory page starting at Index.
type FileListMsg struct{ Index int32 }

func (m FileListMsg) Encode() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(m.Index))
	return b
}

func DecodeFileList(b []byte) (FileListMsg, error) {
	if len(b) < 4 {
		return FileListMsg{}, ErrShortMessage
	}
	return FileListMsg{Index: int32(binary.LittleEndian.Uint32(b))}, nil
}

// FileListFlags bitset for FileListEntry.
type FileListFlags uint8

const FileListFlagDir FileListFlags = 0x01

// FileListEntry describes one file in a FILE_LIST_DATA page.
type FileListEntry struct {
	Size     uint32
	Flags    FileListFlags
	Filename string
}

const fileListEntryWireLen = 4 + 1 + StringLen

// FileListDataMsg is the FILE_LIST reply. NextIndex is -1 when the
// listing is exhausted (SPEC_FULL.md §13 item 6).
type FileListDataMsg struct {
	NextIndex int32
	Entries   []FileListEntry
}

func (m FileListDataMsg) Encode() []byte {
	b := make([]byte, 4+1+len(m.Entries)*fileListEntryWireLen)
	binary.LittleEndian.PutUint32(b[0:4], uint32(m.NextIndex))
	b[4] = byte(len(m.Entries))
	off := 5
	for _, e := range m.Entries {
		binary.LittleEndian.PutUint32(b[off:off+4], e.Size)
		b[off+4] = byte(e.Flags)
		putString(b[off+5:off+5+StringLen], e.Filename)
		off += fileListEntryWireLen
	}
	return b
}

func DecodeFileListData(b []byte) (FileListDataMsg, error) {
	if len(b) < 5 {
		return FileListDataMsg{}, ErrShortMessage
	}
	count := int(b[4])
	out := FileListDataMsg{NextIndex: int32(binary.LittleEndian.Uint32(b[0:4])), Entries: make([]FileListEntry, count)}
	off := 5
	for i := 0; i < count; i++ {
		if off+fileListEntryWireLen > len(b) {
			return FileListDataMsg{}, ErrShortMessage
		}
		out.Entries[i] = FileListEntry{
			Size:     binary.LittleEndian.Uint32(b[off : off+4]),
			Flags:    FileListFlags(b[off+4]),
			Filename: getString(b[off+5 : off+5+StringLen]),
		}
		off += fileListEntryWireLen
	}
	return out, nil
}

// ErrorMsg is the ERROR reply body.
type ErrorMsg struct{ Code ErrorCode }

func (m ErrorMsg) Encode() []byte { return []byte{byte(m.Code)} }

func DecodeError(b []byte) (ErrorMsg, error) {
	if len(b) < 1 {
		return ErrorMsg{}, ErrShortMessage
	}
	return ErrorMsg{Code: ErrorCode(b[0])}, nil
}
