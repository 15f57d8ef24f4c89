// Package statusapi exposes a read-only introspection HTTP API over the
// engine's live state: healthz, the KV parameter listing, stored link
// records, and the current send-list and receive-cache snapshots. Grounded on
// caddyserver-caddy's use of github.com/go-chi/chi/v5. See
// SPEC_FULL.md §10.
package statusapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chromatron/catbus/kv"
	"github.com/chromatron/catbus/link"
)

// Node is the subset of engine.Node's read surface this API needs. A
// narrow interface keeps statusapi decoupled from the engine package's
// goroutine-lifecycle concerns.
type Node interface {
	KV() *kv.Facade
	Links() *link.Store
	SendList() *link.SendList
	RecvCache() *link.RecvCache
}

// NewRouter builds a chi.Router exposing /healthz, /kv, /links,
// /sendlist, and /recvcache against n.
func NewRouter(n Node) chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/kv", func(w http.ResponseWriter, r *http.Request) {
		facade := n.KV()
		count := facade.Count()
		type entry struct {
			Hash     uint32 `json:"hash"`
			Name     string `json:"name"`
			Type     string `json:"type"`
			ArrayLen uint8  `json:"array_len"`
			Flags    uint8  `json:"flags"`
		}
		out := make([]entry, 0, count)
		for i := 0; i < count; i++ {
			meta, ok := facade.LookupIndex(i)
			if !ok {
				continue
			}
			name, _ := facade.GetName(meta.Hash)
			out = append(out, entry{
				Hash: uint32(meta.Hash), Name: name, Type: meta.Type.String(),
				ArrayLen: meta.ArrayLen, Flags: uint8(meta.Flags),
			})
		}
		writeJSON(w, out)
	})
	r.Get("/links", func(w http.ResponseWriter, r *http.Request) {
		recs, err := n.Links().Enumerate()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, recs)
	})
	r.Get("/sendlist", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, n.SendList().Snapshot())
	})
	r.Get("/recvcache", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, n.RecvCache().Snapshot())
	})
	return r
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
