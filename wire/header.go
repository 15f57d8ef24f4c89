// Package wire implements the Catbus datagram header, message envelope,
// message type codes, and error codes of the protocol described in
// SPEC_FULL.md §4.8 and §6-7.
package wire

import (
	"encoding/binary"
	"fmt"
)

// Magic is the fixed 'MEOW' magic that prefaces every Catbus datagram.
const Magic uint32 = 0x4d454f57 // "MEOW" little-endian on the wire

// Version is the wire protocol version this package implements.
const Version uint8 = 2

// HeaderSize is the encoded byte length of Header.
const HeaderSize = 4 + 1 + 1 + 1 + 1 + 4 + 2 + 8

// Header flag bits.
const (
	FlagQueryAll byte = 1 << iota // DISCOVER: match every node regardless of query
)

// Header is the fixed envelope that prefaces every Catbus message.
// See SPEC_FULL.md §6 "Wire header".
type Header struct {
	Meow          uint32
	Version       uint8
	Flags         uint8
	Reserved      uint8
	MsgType       MsgType
	TransactionID uint32
	Universe      uint16
	OriginID      uint64
}

// NewHeader builds a header with Meow/Version/Universe pre-filled.
func NewHeader(msgType MsgType, transactionID uint32, originID uint64) Header {
	return Header{
		Meow:          Magic,
		Version:       Version,
		MsgType:       msgType,
		TransactionID: transactionID,
		Universe:      0,
		OriginID:      originID,
	}
}

// Valid reports whether the magic and version match this implementation.
// A mismatch means "drop silently" per SPEC_FULL.md §4.8 step 1.
func (h Header) Valid() bool {
	return h.Meow == Magic && h.Version == Version
}

// Encode appends the header's wire representation to dst and returns the
// extended slice.
func (h Header) Encode(dst []byte) []byte {
	var b [HeaderSize]byte
	binary.LittleEndian.PutUint32(b[0:4], h.Meow)
	b[4] = h.Version
	b[5] = h.Flags
	b[6] = h.Reserved
	b[7] = byte(h.MsgType)
	binary.LittleEndian.PutUint32(b[8:12], h.TransactionID)
	binary.LittleEndian.PutUint16(b[12:14], h.Universe)
	binary.LittleEndian.PutUint64(b[14:22], h.OriginID)
	return append(dst, b[:]...)
}

// DecodeHeader parses a Header from the front of buf, returning the
// remaining bytes.
func DecodeHeader(buf []byte) (Header, []byte, error) {
	if len(buf) < HeaderSize {
		return Header{}, nil, fmt.Errorf("wire: short header, have %d want %d", len(buf), HeaderSize)
	}
	h := Header{
		Meow:          binary.LittleEndian.Uint32(buf[0:4]),
		Version:       buf[4],
		Flags:         buf[5],
		Reserved:      buf[6],
		MsgType:       MsgType(buf[7]),
		TransactionID: binary.LittleEndian.Uint32(buf[8:12]),
		Universe:      binary.LittleEndian.Uint16(buf[12:14]),
		OriginID:      binary.LittleEndian.Uint64(buf[14:22]),
	}
	return h, buf[HeaderSize:], nil
}
