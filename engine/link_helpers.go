package engine

import (
	"github.com/chromatron/catbus/link"
	"github.com/chromatron/catbus/wire"
)

func toRecord(m wire.LinkAddMsg) link.Record {
	return link.Record{Tag: m.Tag, Flags: m.Flags, Source: m.Source, Dest: m.Dest, Query: m.Query}
}
