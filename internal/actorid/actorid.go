// Package actorid decodes the two fields this networking core reads out of
// an actor runtime's raw actor id: the machine id that routes a packet to a
// peer, and the short type id that selects a local inbox.
//
// The actor runtime that owns RawID's real layout is out of scope (spec.md
// §1); this package only defines the fixed-layout slice this core is allowed
// to assume, mirroring the original's raw-pointer reinterpretation of the
// first bytes following a message's ShortTypeId (see networking.rs, the
// `*const RawID` cast).
package actorid

import (
	"encoding/binary"
	"errors"
)

// ErrShortRawID means a message payload ended before a full RawID could be
// read out of it.
var ErrShortRawID = errors.New("actorid: payload too short for a RawID")

// BroadcastMachineID is the reserved MachineID value that fans a message out
// to every connected peer.
const BroadcastMachineID MachineID = 0xff

// MachineID identifies one peer in the fixed network.
type MachineID uint8

// ShortTypeID selects a local inbox; zero is reserved for turn markers.
type ShortTypeID uint16

// Size is the fixed, 8-byte wire layout of a RawID.
const Size = 8

// HeaderOffset is the width of the ShortTypeID a decoded message carries
// ahead of its RawID (spec.md §4.1): within a full message, the RawID begins
// at this offset, not at 0.
const HeaderOffset = 2

// RawID is the fixed-layout recipient id this core reads out of a packet's
// encoded bytes. The 3 leading and 2 trailing bytes keep parity with the
// original's 128-bit conceptual id without this core ever needing to know
// what the actor runtime actually stores there.
type RawID struct {
	_         [3]byte
	MachineID MachineID
	TypeID    ShortTypeID
	_         [2]byte
}

// Peek reads a RawID out of the first Size bytes of buf without allocating.
// buf is the encoded recipient id that begins a non-turn-marker message
// payload, immediately after its ShortTypeID (spec.md §4.1).
func Peek(buf []byte) (RawID, error) {
	if len(buf) < Size {
		return RawID{}, ErrShortRawID
	}
	return RawID{
		MachineID: MachineID(buf[3]),
		TypeID:    ShortTypeID(binary.LittleEndian.Uint16(buf[4:6])),
	}, nil
}

// Put encodes id into the first Size bytes of dst, the inverse of Peek. It
// exists so tests and internal/compact's reference codec can construct
// well-formed packets without depending on the actor runtime.
func Put(dst []byte, id RawID) {
	dst[0], dst[1], dst[2] = 0, 0, 0
	dst[3] = byte(id.MachineID)
	binary.LittleEndian.PutUint16(dst[4:6], uint16(id.TypeID))
	dst[6], dst[7] = 0, 0
}
