// Package kv implements the two-tier Catbus KV layer: a static,
// name-hashed registry backed by RAM pointers/handlers (SPEC_FULL.md
// §4.2), a dynamic linked-list database (§4.3), a block-formatted
// persistence store (§4.4), and the facade that merges both under one
// address space (§4.5).
package kv

import "errors"

var (
	ErrNotFound    = errors.New("kv: parameter not found")
	ErrReadOnly    = errors.New("kv: parameter is read-only")
	ErrTypeMismatch = errors.New("kv: type mismatch")
	ErrArrayFull   = errors.New("kv: dynamic entry array length out of range")
	ErrPersistFail = errors.New("kv: persistence operation failed")
)
