package actornet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodeware/actornet/inbox"
	"github.com/nodeware/actornet/internal/actorid"
	"github.com/nodeware/actornet/internal/compact"
	"github.com/nodeware/actornet/internal/frame"
	"github.com/nodeware/actornet/internal/peer"
	"github.com/nodeware/actornet/internal/transport"
	"github.com/nodeware/actornet/log"
)

// linkTransport is an in-memory Transport double for two facades wired
// directly to each other, bypassing real sockets and the WebSocket
// handshake entirely: Send and Recv are the two ends of one shared queue.
type linkTransport struct {
	Send *[][]byte
	Recv *[][]byte
	open bool
}

// newLinkedTransports returns a connected pair: whatever a sends, b receives,
// and vice versa.
func newLinkedTransports() (a, b *linkTransport) {
	var ab, ba [][]byte
	a = &linkTransport{Send: &ab, Recv: &ba, open: true}
	b = &linkTransport{Send: &ba, Recv: &ab, open: true}
	return a, b
}

func (l *linkTransport) SendBinary(batch []byte) error {
	if !l.open {
		return transport.ErrClosed
	}
	cp := make([]byte, len(batch))
	copy(cp, batch)
	*l.Send = append(*l.Send, cp)
	return nil
}

func (l *linkTransport) RecvBinary() ([]byte, error) {
	if len(*l.Recv) == 0 {
		return nil, transport.ErrWouldBlock
	}
	next := (*l.Recv)[0]
	*l.Recv = (*l.Recv)[1:]
	return next, nil
}

func (l *linkTransport) IsOpen() bool { return l.open }
func (l *linkTransport) Close() error { l.open = false; return nil }

// newTestFacade builds a Facade for n machines without binding a real
// listener, so facade-level tests can wire peer.Connections directly over
// linkTransport instead of driving Connect's accept/dial loop.
func newTestFacade(selfID actorid.MachineID, n int) *Facade {
	return &Facade{
		cfg: Config{
			SelfMachineID:          selfID,
			PeerAddresses:          make([]string, n),
			BatchMessageBytes:      256,
			AcceptableTurnDistance: 30,
			TurnSleepDistanceRatio: 5,
		},
		log:   log.New(uint8(selfID)),
		peers: make([]*peer.Connection, n),
	}
}

// wireFacades installs a peer.Connection on facade a for machine b.self and
// on facade b for machine a.self, linked by a shared in-memory transport.
func wireFacades(a, b *Facade) {
	ta, tb := newLinkedTransports()
	a.peers[b.cfg.SelfMachineID] = peer.New(b.cfg.SelfMachineID, ta, a.cfg.BatchMessageBytes, a.log, nil)
	b.peers[a.cfg.SelfMachineID] = peer.New(a.cfg.SelfMachineID, tb, b.cfg.BatchMessageBytes, b.log, nil)
}

// TestSelfLoopSkip covers property 5 (spec.md §8): Enqueue on a single-node
// network never touches a peer slot, since there are no peers to write to.
func TestSelfLoopSkip(t *testing.T) {
	f := newTestFacade(0, 1)

	pkt := compact.GobPacket{
		RecipientID: actorid.RawID{MachineID: actorid.BroadcastMachineID, TypeID: 1},
		Body:        []byte("hello"),
	}
	assert.NotPanics(t, func() { f.Enqueue(1, pkt) })
	assert.Nil(t, f.peers[0], "a single-node network's only slot is the self slot, which stays empty")
}

// TestRoundTrip covers property 1 and scenario S1 (spec.md §8): a unicast
// packet enqueued by one machine arrives at the recipient's inbox with the
// ShortTypeID intact as the first two bytes of the delivered message, in
// enqueue order, after both sides call SendAndReceive.
func TestRoundTrip(t *testing.T) {
	f0 := newTestFacade(0, 2)
	f1 := newTestFacade(1, 2)
	wireFacades(f0, f1)

	recipient := actorid.RawID{MachineID: 1, TypeID: 3}
	for i := 0; i < 3; i++ {
		f0.Enqueue(7, compact.GobPacket{RecipientID: recipient, Body: []byte{byte(i)}})
	}

	require.NoError(t, f0.SendAndReceive(nil))

	target := &recordingInbox{}
	inboxes := make(inbox.Table, 4)
	inboxes[3] = target
	require.NoError(t, f1.SendAndReceive(inboxes))

	require.Len(t, target.payloads, 3)
	for i, payload := range target.payloads {
		require.GreaterOrEqual(t, len(payload), 2)
		assert.Equal(t, []byte{7, 0}, payload[:2], "delivered message keeps its ShortTypeID header (spec.md §8 S1)")
		rid, err := actorid.Peek(payload[actorid.HeaderOffset:])
		require.NoError(t, err)
		assert.Equal(t, recipient, rid)

		body, err := compact.DecodeGobBody(payload[actorid.HeaderOffset+actorid.Size:])
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(i)}, body, "delivery order matches enqueue order")
	}
}

// TestBroadcastFanout covers property 4 and scenario S2 (spec.md §8): a
// broadcast recipient fans a packet out to every connected peer but never
// loops it back to the sender itself.
func TestBroadcastFanout(t *testing.T) {
	f0 := newTestFacade(0, 3)
	f1 := newTestFacade(1, 3)
	f2 := newTestFacade(2, 3)
	wireFacades(f0, f1)
	wireFacades(f0, f2)
	wireFacades(f1, f2)

	f0.Enqueue(5, compact.GobPacket{
		RecipientID: actorid.RawID{MachineID: actorid.BroadcastMachineID, TypeID: 2},
		Body:        []byte("all"),
	})

	require.NoError(t, f0.SendAndReceive(nil))

	target1 := &recordingInbox{}
	inboxes1 := make(inbox.Table, 3)
	inboxes1[2] = target1
	require.NoError(t, f1.SendAndReceive(inboxes1))

	target2 := &recordingInbox{}
	inboxes2 := make(inbox.Table, 3)
	inboxes2[2] = target2
	require.NoError(t, f2.SendAndReceive(inboxes2))

	assert.Len(t, target1.payloads, 1)
	assert.Len(t, target2.payloads, 1)
}

// TestTurnMarkerFraming covers scenario S3 (spec.md §8): finish_turn enqueues
// exactly the fixed 10-byte turn-marker message carrying the new n_turns.
func TestTurnMarkerFraming(t *testing.T) {
	f0 := newTestFacade(0, 2)
	f1 := newTestFacade(1, 2)
	ta, tb := newLinkedTransports()
	f0.peers[1] = peer.New(1, ta, f0.cfg.BatchMessageBytes, f0.log, nil)
	f1.peers[0] = peer.New(0, tb, f1.cfg.BatchMessageBytes, f1.log, nil)
	f0.nTurns = 4

	hint, lagging := f0.FinishTurn()
	assert.False(t, lagging)
	assert.Zero(t, hint)
	assert.EqualValues(t, 5, f0.nTurns)

	require.NoError(t, f0.peers[1].TrySendPending())
	require.Len(t, *ta.Send, 1)
	// spec.md S3: 06 00 00 00 | 00 00 | 05 00 00 00
	assert.Equal(t, []byte{6, 0, 0, 0, 0, 0, 5, 0, 0, 0}, (*ta.Send)[0])

	require.NoError(t, f1.peers[0].TryReceive(make(inbox.Table, 0)))
	assert.EqualValues(t, 5, f1.peers[0].ObservedTurns())
}

// TestMonotoneTurns covers property 2 (spec.md §8): n_turns only ever
// increases, one per FinishTurn call, regardless of peer state.
func TestMonotoneTurns(t *testing.T) {
	f := newTestFacade(0, 1)
	var prev uint32
	for i := 0; i < 5; i++ {
		f.FinishTurn()
		assert.Greater(t, f.nTurns, prev)
		prev = f.nTurns
	}
	assert.EqualValues(t, 5, f.nTurns)
}

// TestBatchCap covers property 3 (spec.md §8): EnqueueRaw starts a fresh
// batch once the tail lacks headroom for the next message, so a small cap
// with many enqueued messages produces more than one outbound batch, none of
// which exceeds the cap by more than the one message that triggered rollover.
func TestBatchCap(t *testing.T) {
	const batchCap = 32
	f0 := newTestFacade(0, 2)
	f0.cfg.BatchMessageBytes = batchCap
	ta, _ := newLinkedTransports()
	f0.peers[1] = peer.New(1, ta, batchCap, f0.log, nil)

	recipient := actorid.RawID{MachineID: 1, TypeID: 0}
	for i := 0; i < 20; i++ {
		f0.Enqueue(9, compact.GobPacket{RecipientID: recipient, Body: []byte("0123456789")})
	}

	require.NoError(t, f0.peers[1].TrySendPending())
	require.Greater(t, len(*ta.Send), 1, "20 messages in a 32-byte-cap batch must roll over more than once")
	for _, batch := range *ta.Send {
		assert.LessOrEqual(t, len(batch), batchCap+frame.HeaderSize+actorid.Size+32,
			"a batch overshoots its cap by at most the one message that triggered rollover")
	}
}

type recordingInbox struct {
	payloads [][]byte
}

func (r *recordingInbox) PutRaw(payload []byte) {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	r.payloads = append(r.payloads, cp)
}
