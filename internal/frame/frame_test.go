package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodeware/actornet/internal/actorid"
)

type recordingDispatcher struct {
	turns    []uint32
	stallAt  int
	packets  [][]byte
	typeIDs  []actorid.ShortTypeID
	callseen int
}

func (d *recordingDispatcher) DispatchTurnMarker(turnNumber uint32) bool {
	d.turns = append(d.turns, turnNumber)
	d.callseen++
	return d.stallAt > 0 && d.callseen >= d.stallAt
}

func (d *recordingDispatcher) DispatchPacket(typeID actorid.ShortTypeID, message []byte) error {
	d.typeIDs = append(d.typeIDs, typeID)
	cp := make([]byte, len(message))
	copy(cp, message)
	d.packets = append(d.packets, cp)
	return nil
}

func TestAppendAndDecodeTurnMarker(t *testing.T) {
	var batch []byte
	batch = AppendTurnMarker(batch, 5)

	// spec.md S3: 06 00 00 00 | 00 00 | 05 00 00 00
	want := []byte{6, 0, 0, 0, 0, 0, 5, 0, 0, 0}
	require.Equal(t, want, batch)

	d := &recordingDispatcher{}
	stall, err := DecodeBatch(batch, d)
	require.NoError(t, err)
	assert.False(t, stall)
	assert.Equal(t, []uint32{5}, d.turns)
}

func TestAppendAndDecodePacket(t *testing.T) {
	var batch []byte
	next, payload := Append(batch, 7, 4)
	copy(payload, []byte{1, 2, 3, 4})
	batch = next

	d := &recordingDispatcher{}
	_, err := DecodeBatch(batch, d)
	require.NoError(t, err)
	assert.Equal(t, []actorid.ShortTypeID{7}, d.typeIDs)
	require.Len(t, d.packets, 1)
	// spec.md §8 S1: the dispatched message is the full message, ShortTypeID
	// included, not just the payload after it.
	assert.Equal(t, "\x07\x00\x01\x02\x03\x04", string(d.packets[0]))
}

func TestDecodeBatchMalformed(t *testing.T) {
	batch := []byte{10, 0, 0, 0, 0, 0, 1, 2} // claims 10 bytes, only has 4
	d := &recordingDispatcher{}
	_, err := DecodeBatch(batch, d)
	assert.ErrorIs(t, err, ErrMalformedBatch)
}

func TestDecodeBatchStall(t *testing.T) {
	var batch []byte
	for i := uint32(1); i <= 10; i++ {
		batch = AppendTurnMarker(batch, i)
	}

	d := &recordingDispatcher{stallAt: 10}
	stall, err := DecodeBatch(batch, d)
	require.NoError(t, err)
	assert.True(t, stall, "want stall after 10th turn marker")
}
