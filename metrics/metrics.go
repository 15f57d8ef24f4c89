// Package metrics exposes Prometheus collectors for the engine, KV, and
// link subsystems, grounded on caddyserver-caddy's use of
// github.com/prometheus/client_golang. See SPEC_FULL.md §12.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors bundles the gauges/counters a Node updates during dispatch
// and announce, plus PersistFailures, fed by the persist store's fail hook.
type Collectors struct {
	MessagesReceived *prometheus.CounterVec
	MessagesSent     *prometheus.CounterVec
	ErrorsSent       *prometheus.CounterVec
	SendListSize     prometheus.Gauge
	RecvCacheSize    prometheus.Gauge
	KVParamCount     prometheus.Gauge
	PersistFailures  prometheus.Counter
}

// NewCollectors builds and registers a Collectors set against reg.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catbus", Name: "messages_received_total",
			Help: "Count of inbound datagrams by message type.",
		}, []string{"msg_type"}),
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catbus", Name: "messages_sent_total",
			Help: "Count of outbound datagrams by message type.",
		}, []string{"msg_type"}),
		ErrorsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catbus", Name: "errors_sent_total",
			Help: "Count of ERROR replies by error code.",
		}, []string{"code"}),
		SendListSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "catbus", Name: "send_list_size",
			Help: "Current number of outbound publisher entries.",
		}),
		RecvCacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "catbus", Name: "recv_cache_size",
			Help: "Current number of receive-cache dedup entries.",
		}),
		KVParamCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "catbus", Name: "kv_param_count",
			Help: "Total addressable parameter count (static + dynamic).",
		}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "catbus", Name: "persist_failures_total",
			Help: "Count of persistence write failures latching persist_fail.",
		}),
	}
	reg.MustRegister(c.MessagesReceived, c.MessagesSent, c.ErrorsSent,
		c.SendListSize, c.RecvCacheSize, c.KVParamCount, c.PersistFailures)
	return c
}
