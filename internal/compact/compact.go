// Package compact defines the black-box boundary to the in-memory message
// compaction encoding the core treats as an external collaborator
// (spec.md §1, §9): a function that reports its encoded size and then writes
// itself into a caller-reserved region.
//
// The original source used an in-place "flatten-behind" relocation read
// later by reinterpreting a raw pointer. This package restates that as two
// plain methods and ships one concrete, swappable implementation
// (GobPacket) so the facade and its tests have something to drive; any
// value satisfying Encodable works in its place.
package compact

import (
	"bytes"
	"encoding/gob"

	"github.com/nodeware/actornet/internal/actorid"
)

// Encodable is the black-box collaborator this core calls without knowing
// its representation. EncodedSize must return exactly the number of bytes
// EncodeInto writes. Recipient returns the RawID the networking core uses to
// route the message; it is not part of the encoded bytes unless the
// implementation chooses to put it there (GobPacket does, at a fixed offset,
// so internal/actorid.Peek can read it back).
type Encodable interface {
	Recipient() actorid.RawID
	EncodedSize() int
	EncodeInto(dst []byte)
}

// GobPacket is a reference Encodable backed by encoding/gob. It is not
// zero-copy — gob always allocates — but it is self-contained and correct,
// and exercises the same Recipient/EncodedSize/EncodeInto boundary a
// zero-copy implementation would.
type GobPacket struct {
	RecipientID actorid.RawID
	Body        []byte
}

// Recipient implements Encodable.
func (p GobPacket) Recipient() actorid.RawID { return p.RecipientID }

// EncodedSize implements Encodable. The recipient id is written at a fixed
// offset ahead of the gob-encoded body so Peek can read it without decoding
// the body.
func (p GobPacket) EncodedSize() int {
	return actorid.Size + gobSize(p.Body)
}

// EncodeInto implements Encodable.
func (p GobPacket) EncodeInto(dst []byte) {
	actorid.Put(dst, p.RecipientID)

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p.Body); err != nil {
		panic(err) // Body is a []byte; gob cannot fail to encode it
	}
	copy(dst[actorid.Size:], buf.Bytes())
}

// DecodeGobBody reads back the body encoded by GobPacket.EncodeInto, given
// the bytes following the RawID header (as read by actorid.Peek's caller).
func DecodeGobBody(encoded []byte) ([]byte, error) {
	var body []byte
	err := gob.NewDecoder(bytes.NewReader(encoded)).Decode(&body)
	return body, err
}

func gobSize(body []byte) int {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(body); err != nil {
		panic(err)
	}
	return buf.Len()
}
