//go:build js && wasm

package transport

import (
	"sync"
	"syscall/js"
)

// readyStateOpen is WebSocket.OPEN per the WHATWG spec; IsOpen compares
// against it directly rather than importing a browser binding library.
const readyStateOpen = 1

// Browser is the event-driven WebSocket Transport Backend (spec.md §4.3),
// compiled into a js/wasm binary. Unlike Server, it never polls: a message
// event callback installed at Dial time pushes complete frame payloads into
// inboundQueue, and RecvBinary only ever drains what's already arrived.
//
// inboundQueue is the one piece of state this package's single cooperative
// thread shares with an asynchronous producer (the JS runtime invoking the
// message callback). It is guarded by a sync.Mutex. The JS callbacks take it
// with Lock; the consumer, RecvBinary, only ever uses TryLock: it skips a
// contended queue and picks the frames up next cycle rather than ever
// blocking (spec.md §5's "try-borrow and skip").
type Browser struct {
	ws js.Value

	mu            sync.Mutex
	inboundQueue  [][]byte
	handshakeDone bool

	onMessage js.Func
	onClose   js.Func
	closed    bool
}

// DialBrowser opens ws://addr, sets binaryType to arraybuffer (spec.md §4.3),
// and installs the message listener that discards this connection's first
// inbound binary frame (spec.md §4.2's handshake-frame consumption: a
// browser machine is always the dialer, so its peer never sends it one, but
// the slot is discarded unconditionally to keep the state machine uniform
// with the server backend's handshake).
func DialBrowser(addr string) *Browser {
	ws := js.Global().Get("WebSocket").New("ws://" + addr)
	ws.Set("binaryType", "arraybuffer")

	b := &Browser{ws: ws}

	b.onMessage = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		data := args[0].Get("data")
		buf := make([]byte, data.Get("byteLength").Int())
		js.CopyBytesToGo(buf, js.Global().Get("Uint8Array").New(data))

		b.mu.Lock()
		if !b.handshakeDone {
			b.handshakeDone = true
		} else {
			b.inboundQueue = append(b.inboundQueue, buf)
		}
		b.mu.Unlock()
		return nil
	})
	ws.Call("addEventListener", "message", b.onMessage)

	b.onClose = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
		return nil
	})
	ws.Call("addEventListener", "close", b.onClose)
	ws.Call("addEventListener", "error", b.onClose)

	return b
}

// SendBinary implements Transport. The browser socket buffers internally, so
// a call either goes through immediately or the socket isn't Open yet, in
// which case this is a no-op reported as ErrWouldBlock so the caller's
// try_send_pending retries it unchanged next cycle (spec.md §4.2).
func (b *Browser) SendBinary(batch []byte) error {
	if !b.IsOpen() {
		return ErrWouldBlock
	}
	array := js.Global().Get("Uint8Array").New(len(batch))
	js.CopyBytesToJS(array, batch)
	b.ws.Call("send", array.Get("buffer"))
	return nil
}

// RecvBinary implements Transport, draining one frame already queued by the
// message event handler. It never blocks and never itself performs I/O.
func (b *Browser) RecvBinary() ([]byte, error) {
	if !b.mu.TryLock() {
		return nil, ErrWouldBlock
	}
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	if len(b.inboundQueue) == 0 {
		return nil, ErrWouldBlock
	}
	next := b.inboundQueue[0]
	b.inboundQueue = b.inboundQueue[1:]
	return next, nil
}

// IsOpen implements Transport.
func (b *Browser) IsOpen() bool {
	return !b.closed && b.ws.Get("readyState").Int() == readyStateOpen
}

// Close implements Transport.
func (b *Browser) Close() error {
	b.closed = true
	b.ws.Call("close")
	b.onMessage.Release()
	b.onClose.Release()
	return nil
}
