package engine

import "errors"

// ErrFixedMetaTag is returned by Node.SetMetaTag for an index below
// kvmeta.MetaTagsStart. See SPEC_FULL.md §13 item 1.
var ErrFixedMetaTag = errors.New("engine: meta-tag slot is fixed at startup")
