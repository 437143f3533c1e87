// Package turnsync implements TurnSynchronizer (spec.md §4.5): the sender
// side's sleep-hint computation and turn-marker emission, and the
// browser-only clock catch-up applied at the end of send_and_receive.
package turnsync

import "time"

// Connection is the minimal slice of peer.Connection's surface this package
// needs; *peer.Connection satisfies it without turnsync importing peer.
type Connection interface {
	ObservedTurns() uint32
	SleepCandidate(selfTurns, acceptableLag, sleepRatio uint32) (time.Duration, bool)
	EnqueueTurnMarker(turnNumber uint32)
}

// FinishTurn computes the sleep hint across every connected peer, then
// increments selfTurns and enqueues a turn-marker carrying the new value to
// each peer (spec.md §4.5's exact two-step order: hint computed against the
// OLD n_turns, before the increment).
//
// The hint is a max-reduction across peers, not the source's overwrite —
// spec.md's Open Question resolution: "slow down to accommodate the slowest
// peer" is the only self-consistent reading of the loop's intent.
func FinishTurn(peers []Connection, selfTurns *uint32, acceptableLag, sleepRatio uint32) (time.Duration, bool) {
	var hint time.Duration
	var anyLag bool
	for _, c := range peers {
		if c == nil {
			continue
		}
		candidate, lagging := c.SleepCandidate(*selfTurns, acceptableLag, sleepRatio)
		if lagging && candidate > hint {
			hint = candidate
		}
		anyLag = anyLag || lagging
	}

	*selfTurns++

	for _, c := range peers {
		if c == nil {
			continue
		}
		c.EnqueueTurnMarker(*selfTurns)
	}

	return hint, anyLag
}

// WasmClockCatchUpThreshold is the design constant from spec.md §4.5: how far
// a browser tab's peers may run ahead of its own n_turns before it jumps
// forward instead of emitting that many empty turns' worth of markers.
const WasmClockCatchUpThreshold = 1000

// ApplyWasmClockCatchUp implements the browser-only clock catch-up: if the
// largest observed_turns across peers exceeds selfTurns by more than
// WasmClockCatchUpThreshold, selfTurns jumps straight to it. The server
// backend never calls this (spec.md §4.5).
func ApplyWasmClockCatchUp(peers []Connection, selfTurns *uint32) {
	var maxObserved uint32
	for _, c := range peers {
		if c == nil {
			continue
		}
		if c.ObservedTurns() > maxObserved {
			maxObserved = c.ObservedTurns()
		}
	}
	if maxObserved > *selfTurns+WasmClockCatchUpThreshold {
		*selfTurns = maxObserved
	}
}
