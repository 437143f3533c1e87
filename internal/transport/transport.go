// Package transport implements the Transport Backend contract (spec.md §4.3)
// and the asymmetric connection establishment policy (spec.md §4.4): two
// variants — a non-blocking TCP/WebSocket server backend (server.go) and a
// syscall/js browser backend (wasm.go, build-tagged js,wasm) — behind one
// logical interface.
package transport

import "github.com/pkg/errors"

// ErrWouldBlock is not an error; it is absorbed internally by every caller
// that polls a Transport from a cooperative loop.
var ErrWouldBlock = errors.New("transport: would block")

// ErrClosed means the peer's transport is gone; the caller clears that
// peer's slot and may redial or re-accept on a later Connect.
var ErrClosed = errors.New("transport: closed")

// ErrNonBinaryFrame is a hard programmer error on the server backend: a
// WebSocket frame arrived that was not a binary batch.
var ErrNonBinaryFrame = errors.New("transport: non-binary frame")

// ErrListenerBind is fatal at startup: the server backend could not bind its
// listening socket.
var ErrListenerBind = errors.New("transport: listener bind failed")

// ErrOutboundDial means a client dial to a peer address failed; recoverable,
// Connect retries it on a later cycle.
var ErrOutboundDial = errors.New("transport: outbound dial failed")

// Transport is the logical operation set both backends expose
// (spec.md §4.3). SendBinary sends one complete WebSocket binary frame (one
// batch); RecvBinary returns one complete inbound binary frame (one batch).
type Transport interface {
	SendBinary(batch []byte) error
	RecvBinary() (batch []byte, err error)
	IsOpen() bool
	Close() error
}
