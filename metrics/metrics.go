// Package metrics wires Prometheus collectors into the networking core's hot
// path. This is ambient observability the original spec is silent on, not a
// feature its Non-goals exclude (SPEC_FULL.md §2).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every collector the core touches, keyed so a caller can
// register them all against its own *prometheus.Registry (or the default
// one) in one call.
type Registry struct {
	BatchesSent     *prometheus.CounterVec
	BatchesReceived *prometheus.CounterVec
	BytesSent       *prometheus.CounterVec
	BytesReceived   *prometheus.CounterVec
	TurnNumber      prometheus.Gauge
	TurnLag         *prometheus.GaugeVec
	StallEvents     *prometheus.CounterVec
}

// NewRegistry constructs and registers the core's collectors against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		BatchesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "actornet_batches_sent_total",
			Help: "Batches flushed to a peer connection.",
		}, []string{"peer"}),
		BatchesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "actornet_batches_received_total",
			Help: "Batches decoded from a peer connection.",
		}, []string{"peer"}),
		BytesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "actornet_bytes_sent_total",
			Help: "Bytes flushed to a peer connection.",
		}, []string{"peer"}),
		BytesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "actornet_bytes_received_total",
			Help: "Bytes decoded from a peer connection.",
		}, []string{"peer"}),
		TurnNumber: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "actornet_turn_number",
			Help: "This machine's current local turn number.",
		}),
		TurnLag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "actornet_turn_lag",
			Help: "Observed turn number lag behind this machine's n_turns, per peer.",
		}, []string{"peer"}),
		StallEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "actornet_receive_stall_total",
			Help: "Times a peer's inbound turn-marker stream tripped the 10-turn stall.",
		}, []string{"peer"}),
	}

	reg.MustRegister(r.BatchesSent, r.BatchesReceived, r.BytesSent, r.BytesReceived,
		r.TurnNumber, r.TurnLag, r.StallEvents)
	return r
}

// PeerMetrics narrows Registry to the label value of a single peer, so
// internal/peer doesn't repeat the peer label on every call.
type PeerMetrics struct {
	peer string
	reg  *Registry
}

// ForPeer returns a PeerMetrics bound to peer's label value.
func (r *Registry) ForPeer(peer string) *PeerMetrics {
	return &PeerMetrics{peer: peer, reg: r}
}

func (m *PeerMetrics) BatchSent(bytes int) {
	m.reg.BatchesSent.WithLabelValues(m.peer).Inc()
	m.reg.BytesSent.WithLabelValues(m.peer).Add(float64(bytes))
}

func (m *PeerMetrics) BatchReceived(bytes int) {
	m.reg.BatchesReceived.WithLabelValues(m.peer).Inc()
	m.reg.BytesReceived.WithLabelValues(m.peer).Add(float64(bytes))
}

func (m *PeerMetrics) SetLag(lag int64) {
	m.reg.TurnLag.WithLabelValues(m.peer).Set(float64(lag))
}

func (m *PeerMetrics) Stall() {
	m.reg.StallEvents.WithLabelValues(m.peer).Inc()
}
