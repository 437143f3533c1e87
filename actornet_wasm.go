//go:build js && wasm

package actornet

import (
	"github.com/nodeware/actornet/inbox"
	"github.com/nodeware/actornet/internal/actorid"
	"github.com/nodeware/actornet/internal/peer"
	"github.com/nodeware/actornet/internal/transport"
	"github.com/nodeware/actornet/internal/turnsync"
	"github.com/nodeware/actornet/log"
	"github.com/nodeware/actornet/metrics"
)

// NewBrowser constructs a Facade for the browser Transport Backend
// (spec.md §4.3): every peer, including ids below self, is dialed, since the
// browser topology never accepts (spec.md §4.4). There is no listener to
// bind, so unlike New this cannot fail at construction time.
func NewBrowser(cfg Config, logger *log.Logger, reg *metrics.Registry) *Facade {
	return &Facade{
		cfg:     cfg,
		log:     logger,
		metrics: reg,
		peers:   make([]*peer.Connection, len(cfg.PeerAddresses)),
	}
}

// ConnectBrowser dials every non-self peer without an existing connection
// and prepends the local machine id as that connection's first outbound
// entry (spec.md §4.4). It is idempotent, like Connect.
func (f *Facade) ConnectBrowser() {
	self := int(f.cfg.SelfMachineID)
	for i, addr := range f.cfg.PeerAddresses {
		if i == self || f.peers[i] != nil {
			continue
		}
		t := transport.DialBrowser(addr)

		var peerMetrics *metrics.PeerMetrics
		if f.metrics != nil {
			peerMetrics = f.metrics.ForPeer(addr)
		}
		conn := peer.New(actorid.MachineID(i), t, f.cfg.BatchMessageBytes, f.log, peerMetrics)
		conn.PrependHandshakeFrame(uint8(self))

		f.peers[i] = conn
		f.log.Info("peer dialed", map[string]interface{}{"peer": i})
	}
}

// SendAndReceiveBrowser is SendAndReceive's browser-backend counterpart: it
// calls ConnectBrowser instead of Connect, and additionally applies the
// browser-only clock catch-up once every peer has been drained, so a
// previously paused tab can jump forward instead of emitting up to
// turnsync.WasmClockCatchUpThreshold empty turns' worth of markers
// (spec.md §4.5).
func (f *Facade) SendAndReceiveBrowser(inboxes inbox.Table) error {
	f.ConnectBrowser()

	for i, p := range f.peers {
		if p == nil {
			continue
		}

		err := p.TrySendPending()
		if err == nil {
			err = p.TryReceive(inboxes)
		}
		if err != nil {
			f.log.Info("closing connection", map[string]interface{}{"peer": i, "error": err.Error()})
			p.Close()
			f.peers[i] = nil
		}
	}

	conns := make([]turnsync.Connection, len(f.peers))
	for i, p := range f.peers {
		if p != nil {
			conns[i] = p
		}
	}
	turnsync.ApplyWasmClockCatchUp(conns, &f.nTurns)

	return nil
}
