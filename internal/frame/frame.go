// Package frame encodes and decodes the two-layer wire format a batch
// carries: a concatenation of length-prefixed messages, each either a turn
// marker or an actor packet (spec.md §4.1).
package frame

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/nodeware/actornet/internal/actorid"
)

// HeaderSize is the u32-LE message length prefix plus the u16-LE ShortTypeID
// that begins every message payload.
const HeaderSize = 4 + 2

// TurnMarkerSize is the fixed message_size of a turn-marker message: a u16-LE
// zero ShortTypeID followed by a u32-LE turn number.
const TurnMarkerSize = 2 + 4

// ErrMalformedBatch means decode_batch ran off the end of the buffer
// mid-message; the caller treats this the same as a closed transport
// (spec.md §7).
var ErrMalformedBatch = errors.New("frame: malformed batch")

// Append reserves HeaderSize+payloadLen bytes at the end of batch, writes the
// u32-LE message length and u16-LE ShortTypeID, and returns the exact region
// the caller must fill with payloadLen bytes of payload. Reservation is
// exact; fill is the caller's responsibility (spec.md §4.1).
func Append(batch []byte, typeID actorid.ShortTypeID, payloadLen int) (next []byte, payload []byte) {
	messageSize := uint32(2 + payloadLen)
	start := len(batch)
	batch = append(batch, make([]byte, HeaderSize+payloadLen)...)
	binary.LittleEndian.PutUint32(batch[start:start+4], messageSize)
	binary.LittleEndian.PutUint16(batch[start+4:start+6], uint16(typeID))
	return batch, batch[start+6 : start+6+payloadLen]
}

// AppendTurnMarker appends a turn-marker message carrying turnNumber.
func AppendTurnMarker(batch []byte, turnNumber uint32) []byte {
	next, payload := Append(batch, 0, 4)
	binary.LittleEndian.PutUint32(payload, turnNumber)
	return next
}

// Dispatcher receives one decoded message at a time. A turn marker (typeID 0)
// goes to DispatchTurnMarker, which is handed only its decoded u32 turn
// number. An actor packet goes to DispatchPacket, whose message is the *entire*
// message including its leading 2-byte ShortTypeID — not just the payload
// after it — matching the original's `inbox.put_raw(&data)` call on the full
// message slice (original_source/src/networking.rs): the recipient RawID is
// read at offset 2 within it, not offset 0 (spec.md §8 S1: the delivered
// bytes' "first two bytes are `07 00`", i.e. the ShortTypeID). wantStall
// requests that the caller stop pulling further frames from this peer this
// cycle (spec.md §4.5).
type Dispatcher interface {
	DispatchTurnMarker(turnNumber uint32) (wantStall bool)
	DispatchPacket(typeID actorid.ShortTypeID, message []byte) error
}

// DecodeBatch walks data advancing a cursor: read u32-LE length, hand the
// following length bytes — the full message, ShortTypeID included — to the
// dispatcher, advance. It returns ErrMalformedBatch if the cursor runs off
// the end mid-message. The return value is the logical OR of every message's
// wantStall (turn markers only; actor packets never request a stall).
func DecodeBatch(data []byte, d Dispatcher) (wantStall bool, err error) {
	pos := 0
	for pos < len(data) {
		if pos+4 > len(data) {
			return wantStall, ErrMalformedBatch
		}
		messageSize := int(binary.LittleEndian.Uint32(data[pos : pos+4]))
		pos += 4

		if messageSize < 2 || pos+messageSize > len(data) {
			return wantStall, ErrMalformedBatch
		}
		message := data[pos : pos+messageSize]
		typeID := actorid.ShortTypeID(binary.LittleEndian.Uint16(message[:2]))
		pos += messageSize

		if typeID == 0 {
			if messageSize != TurnMarkerSize {
				return wantStall, ErrMalformedBatch
			}
			turnNumber := binary.LittleEndian.Uint32(message[2:6])
			if d.DispatchTurnMarker(turnNumber) {
				wantStall = true
			}
		} else if err := d.DispatchPacket(typeID, message); err != nil {
			return wantStall, err
		}
	}
	return wantStall, nil
}
