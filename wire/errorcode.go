package wire

// ErrorCode is the error code carried in an ERROR message body.
// See SPEC_FULL.md §7.
type ErrorCode uint8

const (
	ErrOK ErrorCode = iota
	ErrUnknownMsg
	ErrProtocolError
	ErrAllocFail
	ErrKeyNotFound
	ErrInvalidType
	ErrReadOnly
	ErrFilesystemBusy
	ErrFileNotFound
	ErrInvalidFileSession
	ErrLinkEOF
)

var errorCodeNames = [...]string{
	"OK",
	"UNKNOWN_MSG",
	"PROTOCOL_ERROR",
	"ALLOC_FAIL",
	"KEY_NOT_FOUND",
	"INVALID_TYPE",
	"READ_ONLY",
	"FILESYSTEM_BUSY",
	"FILE_NOT_FOUND",
	"INVALID_FILE_SESSION",
	"LINK_EOF",
}

// String returns the canonical name of the error code.
func (e ErrorCode) String() string {
	if int(e) < len(errorCodeNames) {
		return errorCodeNames[e]
	}
	return "ERR<unknown>"
}

// Suppressed reports whether a dispatch error of this code should NOT be
// sent back as an ERROR reply, per SPEC_FULL.md §4.8/§7 ("UNKNOWN_MSG and
// FILE_NOT_FOUND are suppressed to avoid chatter").
func (e ErrorCode) Suppressed() bool {
	return e == ErrUnknownMsg || e == ErrFileNotFound
}

// Error implements the error interface so ErrorCode can be returned
// directly from dispatch handlers and matched with errors.As.
func (e ErrorCode) Error() string {
	return "catbus: " + e.String()
}
