package value

import "errors"

// Sentinel errors for the typed-value codec, following the teacher's
// package-level Err* convention (asdu.ErrParam, asdu.ErrCmdCause, ...).
var (
	// ErrUnknownType is returned by SizeOf/Convert for a Type with no
	// entry in the size table.
	ErrUnknownType = errors.New("value: unknown type")
	// ErrBufferTooShort is returned when a source or destination buffer
	// is smaller than the type it is declared to hold.
	ErrBufferTooShort = errors.New("value: buffer too short for type")
)
