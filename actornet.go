// Package actornet is the NetworkingFacade (spec.md §4.6): the public
// surface of the networking core of a distributed actor system — peer
// connection bring-up over WebSocket, batching and framing of outbound
// actor messages, receive-side decode and dispatch, and the turn-
// synchronization / backpressure protocol described in spec.md.
package actornet

import (
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/nodeware/actornet/inbox"
	"github.com/nodeware/actornet/internal/actorid"
	"github.com/nodeware/actornet/internal/compact"
	"github.com/nodeware/actornet/internal/peer"
	"github.com/nodeware/actornet/internal/transport"
	"github.com/nodeware/actornet/internal/turnsync"
	"github.com/nodeware/actornet/log"
	"github.com/nodeware/actornet/metrics"
)

// Config is the facade's construction-time configuration (spec.md §6).
type Config struct {
	SelfMachineID          actorid.MachineID
	PeerAddresses          []string // indexed by machine id, including self
	BatchMessageBytes      int
	AcceptableTurnDistance uint32
	TurnSleepDistanceRatio uint32

	// DialTimeout and AcceptTimeout bound the handshake, not steady-state
	// traffic; the core itself never blocks past connection bring-up
	// (spec.md §5).
	DialTimeout   time.Duration
	AcceptTimeout time.Duration
}

const (
	defaultDialTimeout   = 5 * time.Second
	defaultAcceptTimeout = 5 * time.Second
)

// Facade is the networking core's single owned object, constructed at
// startup and destroyed at shutdown (spec.md §9).
type Facade struct {
	cfg     Config
	log     *log.Logger
	metrics *metrics.Registry

	listener *net.TCPListener
	peers    []*peer.Connection // length len(cfg.PeerAddresses); nil = empty slot
	nTurns   uint32
}

// New binds the local listening socket and constructs the facade. A bind
// failure is fatal at startup (spec.md §7, ErrListenerBind).
func New(cfg Config, logger *log.Logger, reg *metrics.Registry) (*Facade, error) {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.AcceptTimeout == 0 {
		cfg.AcceptTimeout = defaultAcceptTimeout
	}

	addr := cfg.PeerAddresses[cfg.SelfMachineID]
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(transport.ErrListenerBind, "listen %s: %v", addr, err)
	}

	return &Facade{
		cfg:      cfg,
		log:      logger,
		metrics:  reg,
		listener: ln.(*net.TCPListener),
		peers:    make([]*peer.Connection, len(cfg.PeerAddresses)),
	}, nil
}

// Connect is idempotent and performs at most one accept and zero-or-more
// client dials per invocation (spec.md §4.4). It is called at the top of
// every SendAndReceive.
func (f *Facade) Connect() error {
	self := int(f.cfg.SelfMachineID)

	higherSlotEmpty := false
	for i := self + 1; i < len(f.peers); i++ {
		if f.peers[i] == nil {
			higherSlotEmpty = true
			break
		}
	}
	if higherSlotEmpty {
		srv, dialerID, ok, err := transport.Accept(f.listener, f.cfg.AcceptTimeout)
		if err != nil {
			f.log.Info("accept poll failed", map[string]interface{}{"error": err.Error()})
		} else if ok {
			f.installPeer(actorid.MachineID(dialerID), srv)
		}
	}

	for i := 0; i < self; i++ {
		if f.peers[i] != nil {
			continue
		}
		conn, err := transport.Dial(f.cfg.PeerAddresses[i], uint8(self), f.cfg.DialTimeout)
		if err != nil {
			f.log.Info("dial failed, will retry", map[string]interface{}{"peer": i, "error": err.Error()})
			continue
		}
		f.installPeer(actorid.MachineID(i), conn)
	}

	return nil
}

func (f *Facade) installPeer(id actorid.MachineID, t transport.Transport) {
	var peerMetrics *metrics.PeerMetrics
	if f.metrics != nil {
		peerMetrics = f.metrics.ForPeer(f.cfg.PeerAddresses[id])
	}
	conn := peer.New(id, t, f.cfg.BatchMessageBytes, f.log, peerMetrics)
	f.peers[id] = conn
	f.log.Info("peer connected", map[string]interface{}{"peer": id})
}

// Enqueue serializes pkt into the outbound batch of recipient's peer
// connection (or, for a broadcast recipient, every connected peer's),
// short-circuiting to nothing on a single-node network (spec.md §4.6).
func (f *Facade) Enqueue(typeID actorid.ShortTypeID, pkt compact.Encodable) {
	if len(f.peers) == 1 {
		return
	}

	recipient := pkt.Recipient()
	size := pkt.EncodedSize()

	if recipient.MachineID == actorid.BroadcastMachineID {
		for i := range f.peers {
			f.enqueueTo(i, typeID, size, pkt)
		}
		return
	}
	f.enqueueTo(int(recipient.MachineID), typeID, size, pkt)
}

func (f *Facade) enqueueTo(idx int, typeID actorid.ShortTypeID, size int, pkt compact.Encodable) {
	if idx < 0 || idx >= len(f.peers) || f.peers[idx] == nil {
		return
	}
	dst := f.peers[idx].EnqueueRaw(typeID, size)
	pkt.EncodeInto(dst)
}

// SendAndReceive calls Connect, then for every connected peer attempts
// TrySendPending followed by TryReceive; a hard error clears that peer's
// slot and is logged (spec.md §4.6, §7).
func (f *Facade) SendAndReceive(inboxes inbox.Table) error {
	if err := f.Connect(); err != nil {
		return err
	}

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

	return nil
}

// FinishTurn computes a sleep hint across every connected peer, advances
// n_turns, and enqueues a turn-marker to every peer (spec.md §4.5).
func (f *Facade) FinishTurn() (time.Duration, bool) {
	conns := make([]turnsync.Connection, len(f.peers))
	for i, p := range f.peers {
		if p != nil {
			conns[i] = p
		}
	}
	hint, lagging := turnsync.FinishTurn(conns, &f.nTurns, f.cfg.AcceptableTurnDistance, f.cfg.TurnSleepDistanceRatio)
	if f.metrics != nil {
		f.metrics.TurnNumber.Set(float64(f.nTurns))
	}
	return hint, lagging
}

// DebugAllNTurns lists one line per peer slot: "i: t" where t is the peer's
// observed turn number, n_turns for the self slot, and -1 for a disconnected
// slot (spec.md §6).
func (f *Facade) DebugAllNTurns() string {
	var sb []byte
	for i, p := range f.peers {
		if i > 0 {
			sb = append(sb, ",\n"...)
		}
		var t int64
		switch {
		case i == int(f.cfg.SelfMachineID):
			t = int64(f.nTurns)
		case p != nil:
			t = int64(p.ObservedTurns())
		default:
			t = -1
		}
		sb = strconv.AppendInt(sb, int64(i), 10)
		sb = append(sb, ": "...)
		sb = strconv.AppendInt(sb, t, 10)
	}
	return string(sb)
}
