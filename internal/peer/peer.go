// Package peer implements PeerConnection (spec.md §4.2): one bidirectional
// link to a single peer, its outbound batch buffers, and its observed turn
// counter.
package peer

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nodeware/actornet/inbox"
	"github.com/nodeware/actornet/internal/actorid"
	"github.com/nodeware/actornet/internal/frame"
	"github.com/nodeware/actornet/internal/transport"
	"github.com/nodeware/actornet/log"
	"github.com/nodeware/actornet/metrics"
)

// Connection holds one PeerConnection: its transport, outbound batch queue,
// and the turn-tracking state TurnSynchronizer reads and resets.
type Connection struct {
	MachineID actorid.MachineID
	SessionID uuid.UUID

	transport transport.Transport
	log       *log.Logger
	metrics   *metrics.PeerMetrics

	batchCap int

	// outbound batches awaiting send, FIFO order; the last element is the
	// current append target (spec.md §3).
	outBatches [][]byte
	// batch whose transport.SendBinary returned ErrWouldBlock; it is popped
	// from outBatches at that point and retried unchanged, ahead of
	// outBatches, until it fully sends.
	sending []byte

	observedTurns     uint32
	turnsSinceOwnTurn int
}

// New wraps an already-handshaken transport for machineID. The Connection
// gets its own logger tagged with a fresh session id (WithConn) so every line
// it emits is attributable to this connection without mutating the caller's
// logger, which stays shared across every peer and every reconnect.
func New(machineID actorid.MachineID, t transport.Transport, batchCap int, logger *log.Logger, m *metrics.PeerMetrics) *Connection {
	sessionID := uuid.New()
	connLog := logger
	if logger != nil {
		connLog = logger.WithConn(sessionID)
	}
	return &Connection{
		MachineID:  machineID,
		SessionID:  sessionID,
		transport:  t,
		log:        connLog,
		metrics:    m,
		batchCap:   batchCap,
		outBatches: [][]byte{make([]byte, 0, batchCap)},
	}
}

// PrependHandshakeFrame inserts a standalone one-byte batch ahead of
// whatever is already queued, so the next TrySendPending flushes it as its
// own WebSocket frame before any real traffic. The browser backend uses this
// to inject its own machine id as the first outbound entry of a freshly
// dialed connection (spec.md §4.2, §4.4); New already leaves outBatches with
// exactly one empty tail batch, so this only ever runs right after New.
func (c *Connection) PrependHandshakeFrame(b byte) {
	c.outBatches = append([][]byte{{b}}, c.outBatches...)
}

// ObservedTurns returns the largest turn number this peer has reported.
func (c *Connection) ObservedTurns() uint32 { return c.observedTurns }

// TurnsSinceOwnTurn returns the number of inbound turn-markers seen from this
// peer since the last local turn was finalized.
func (c *Connection) TurnsSinceOwnTurn() int { return c.turnsSinceOwnTurn }

// ResetTurnsSinceOwn zeroes TurnsSinceOwnTurn; called by TurnSynchronizer's
// finish_turn for every connected peer (spec.md §4.5).
func (c *Connection) ResetTurnsSinceOwn() { c.turnsSinceOwnTurn = 0 }

// EnqueueRaw reserves room for one message of the given ShortTypeID and
// payload length in the tail outbound batch, starting a fresh batch first if
// the tail lacks headroom (spec.md §4.2's exact batch append rule), and
// returns the payload region for the caller to fill.
func (c *Connection) EnqueueRaw(typeID actorid.ShortTypeID, payloadLen int) []byte {
	messageSize := frame.HeaderSize + payloadLen
	tail := c.outBatches[len(c.outBatches)-1]
	if len(tail) >= c.batchCap-messageSize {
		tail = make([]byte, 0, c.batchCap)
		c.outBatches = append(c.outBatches, tail)
	}

	next, payload := frame.Append(tail, typeID, payloadLen)
	c.outBatches[len(c.outBatches)-1] = next
	return payload
}

// EnqueueTurnMarker appends a turn-marker message to the tail batch and
// resets TurnsSinceOwnTurn, mirroring EnqueueRaw for the fixed-shape
// turn-marker message (spec.md §4.5).
func (c *Connection) EnqueueTurnMarker(turnNumber uint32) {
	tail := c.outBatches[len(c.outBatches)-1]
	messageSize := frame.HeaderSize + 4
	if len(tail) >= c.batchCap-messageSize {
		tail = make([]byte, 0, c.batchCap)
		c.outBatches = append(c.outBatches, tail)
	}
	c.outBatches[len(c.outBatches)-1] = frame.AppendTurnMarker(tail, turnNumber)
	c.ResetTurnsSinceOwn()
}

// TrySendPending drains outBatches to the transport as one binary frame
// each, then starts a fresh empty tail buffer. A WouldBlock outcome is
// absorbed as success for this call — the partially sent batch moves out of
// outBatches into c.sending and is retried, unchanged, on the next call before
// anything still queued (spec.md §4.2).
func (c *Connection) TrySendPending() error {
	// finish a batch that blocked mid-send on a previous call before
	// touching outBatches, whose tail EnqueueRaw may have grown meanwhile —
	// c.sending must stay exactly the slice wireproto.Conn last saw.
	if c.sending != nil {
		err := c.transport.SendBinary(c.sending)
		if err == transport.ErrWouldBlock {
			return nil
		}
		if err != nil {
			return err
		}
		if c.metrics != nil {
			c.metrics.BatchSent(len(c.sending))
		}
		c.sending = nil
	}

	for len(c.outBatches) > 0 {
		batch := c.outBatches[0]
		if len(batch) == 0 {
			c.outBatches = c.outBatches[1:]
			continue
		}

		err := c.transport.SendBinary(batch)
		if err == transport.ErrWouldBlock {
			c.sending = batch
			c.outBatches = c.outBatches[1:]
			if len(c.outBatches) == 0 {
				c.outBatches = append(c.outBatches, make([]byte, 0, c.batchCap))
			}
			return nil
		}
		if err != nil {
			return err
		}
		if c.metrics != nil {
			c.metrics.BatchSent(len(batch))
		}
		c.outBatches = c.outBatches[1:]
	}

	c.outBatches = append(c.outBatches, make([]byte, 0, c.batchCap))
	return nil
}

// dispatcher adapts a Connection plus the caller's inbox table to
// frame.Dispatcher.
type dispatcher struct {
	conn    *Connection
	inboxes inbox.Table
}

func (d dispatcher) DispatchTurnMarker(turnNumber uint32) bool {
	d.conn.observedTurns = turnNumber
	d.conn.turnsSinceOwnTurn++
	stall := d.conn.turnsSinceOwnTurn >= stallAfterTurns
	if stall && d.conn.metrics != nil {
		d.conn.metrics.Stall()
	}
	return stall
}

// DispatchPacket recovers the recipient's local type id from the RawID
// header encoded 2 bytes into message, past the ShortTypeID (spec.md §4.1,
// §9 "Raw-pointer recipient peek"), and routes the *whole* message — typeid
// included — there, matching the original's `inbox.put_raw(&data)` call on
// the full message slice (spec.md §8 S1). A nil inbox slot is UnknownInbox: a
// program invariant violation, fatal (spec.md §7).
func (d dispatcher) DispatchPacket(_ actorid.ShortTypeID, message []byte) error {
	rid, err := actorid.Peek(message[actorid.HeaderOffset:])
	if err != nil {
		return err
	}

	idx := int(rid.TypeID)
	if idx >= len(d.inboxes) || d.inboxes[idx] == nil {
		panic(fmt.Sprintf("actornet: no inbox for type %d (coming from network)", idx))
	}
	d.inboxes[idx].PutRaw(message)
	return nil
}

// stallAfterTurns is the design constant from spec.md §4.5: a peer whose
// turns have advanced by at least this many beyond our last local turn is
// allowed to queue but not force us to process its future further.
const stallAfterTurns = 10

// TryReceive pulls binary frames from the transport until it would block,
// decoding each into messages for inboxes, until a message requests a stall
// (spec.md §4.2, §4.5). Any transport error other than WouldBlock is
// returned; MalformedBatch is reported to the caller as a transport.ErrClosed
// equivalent (spec.md §7).
func (c *Connection) TryReceive(inboxes inbox.Table) error {
	d := dispatcher{conn: c, inboxes: inboxes}
	for {
		batch, err := c.transport.RecvBinary()
		if err == transport.ErrWouldBlock {
			return nil
		}
		if err != nil {
			return err
		}
		if c.metrics != nil {
			c.metrics.BatchReceived(len(batch))
		}

		stall, derr := frame.DecodeBatch(batch, d)
		if derr != nil {
			c.log.Error("malformed batch", map[string]interface{}{"peer": c.MachineID})
			return transport.ErrClosed
		}
		if stall {
			return nil
		}
	}
}

// Close releases the underlying transport.
func (c *Connection) Close() error { return c.transport.Close() }

// SleepCandidate returns the millisecond sleep duration this peer's lag would
// demand given selfTurns/acceptableLag/sleepRatio, or false if this peer is
// not lagging (spec.md §4.5).
func (c *Connection) SleepCandidate(selfTurns uint32, acceptableLag uint32, sleepRatio uint32) (time.Duration, bool) {
	if c.observedTurns+acceptableLag >= selfTurns {
		return 0, false
	}
	excess := selfTurns - acceptableLag - c.observedTurns
	if c.metrics != nil {
		c.metrics.SetLag(int64(excess))
	}
	return time.Duration(excess/sleepRatio) * time.Millisecond, true
}
