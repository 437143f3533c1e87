// Package inbox defines the delivery capability the networking core hands
// received actor packets to. The inbox table itself — allocation, local
// routing by type id — is an external collaborator (spec.md §1); this
// package only states the interface the core calls.
package inbox

// Inbox receives raw framed message bytes for one local actor type. PutRaw
// is handed the full message exactly as it arrived on the wire — leading
// 2-byte ShortTypeID included, RawID header starting at offset 2 — matching
// the original's inbox.put_raw(&data) call on the whole message slice
// (spec.md §8 S1); the inbox owns decoding from there.
type Inbox interface {
	PutRaw(payload []byte)
}

// Table is a slice of inboxes indexed by the TypeID field of a packet's
// recipient RawID (not by the message's leading ShortTypeID), one slot per
// local actor type. A nil slot means "no inbox registered for this
// type" — routing a packet there is the UnknownInbox fatal condition
// described in spec.md §7.
type Table []Inbox
