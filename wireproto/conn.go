package wireproto

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"net"
	"sync"
	"sync/atomic"
)

// first (frame) byte layout
const (
	opcodeBits   = 0x0f
	reservedBits = 0x70
	finalFlag    = 0x80
)

// second (frame) byte layout
const maskFlag = 0x80

// errRetry rejects a write. See method documentation!
var errRetry = errors.New("wireproto: retry after error with different payload size")

// Conn is a low-level, write-side network abstraction conform the net.Conn
// interface; a PeerConnection pairs one Conn (for sending) with a Reader (for
// receiving, see read.go) over the same underlying net.Conn.
//
// The original (pascaldekloe/websocket) only ever played the server role: it
// never masked outgoing frames, per RFC 6455 subsection 5.1. This network's
// topology is asymmetric by construction (lower-id machines dial, higher-id
// machines accept — see transport.Dial/transport.Accept), so Conn grew a
// Client flag that masks outgoing frames for the dialing half of a
// connection.
type Conn struct {
	net.Conn
	wMux sync.Mutex

	// Client marks this Conn as the dialing side of a connection: outgoing
	// frames are masked per RFC 6455. Zero value behaves as the
	// accepting/server side, which must not mask.
	Client bool

	// pending number of bytes
	wPayloadN int
	// first byte of next frame written
	writeHead uint32

	// set once a close frame is sent or received.
	statusCode uint32

	// Pending number of bytes in buffer.
	wBufN int
	// Write buffer fits a compact frame: 2B header + 4B mask + 125B payload.
	wBuf [131]byte
}

// WriteClose sends a best-effort close notification and marks the connection
// closed; further Writes fail with ClosedError(statusCode).
func (c *Conn) WriteClose(statusCode uint, reason string) error {
	if !atomic.CompareAndSwapUint32(&c.statusCode, 0, uint32(statusCode)) {
		// already closed
		return c.closeError()
	}

	// The payload of control frames is limited to 125 bytes
	// and the status code takes 2.
	if len(reason) > 123 {
		reason = reason[:123]
	}

	go func() {
		c.wMux.Lock()
		defer c.wMux.Unlock()

		// best effort close notification; no pending errors
		if c.wBufN <= 0 && c.wPayloadN <= 0 {
			c.wBuf[0] = Close | finalFlag
			if statusCode == NoStatusCode {
				c.wBuf[1] = 0
				c.Conn.Write(c.wBuf[:2])
			} else {
				c.wBuf[1] = byte(len(reason) + 2)
				c.wBuf[2] = byte(statusCode >> 8)
				c.wBuf[3] = byte(statusCode)
				copy(c.wBuf[4:], reason)
				c.Conn.Write(c.wBuf[:4+len(reason)])
			}
		}

		// Both *tls.Conn and *net.TCPConn offer CloseWrite.
		type CloseWriter interface {
			CloseWrite() error
		}
		if cc, ok := c.Conn.(CloseWriter); ok {
			cc.CloseWrite()
		}
	}()

	return ClosedError(statusCode)
}

// closeError returns an error if c is closed.
func (c *Conn) closeError() error {
	statusCode := atomic.LoadUint32(&c.statusCode)
	if statusCode != 0 {
		return ClosedError(statusCode)
	}
	return nil
}

// WriteFinal sets a Write mode in which each call sends a message of the given
// content type. The opcode must be in range [1, 15] like Text, Binary or Ping.
//
//	// send a batch frame
//	c.WriteFinal(wireproto.Binary)
//	c.Write(batch)
func (c *Conn) WriteFinal(opcode uint) {
	head := opcode&opcodeBits | finalFlag
	atomic.StoreUint32(&c.writeHead, uint32(head))
}

// Write sends p in one frame conform the io.Writer interface. Error retries
// must continue with the same p(ayload), minus the n(umber) of bytes done.
// Zero payload causes an empty frame.
//
// When c.Client, the frame is masked in place with a fresh key per call, per
// RFC 6455 subsection 5.1 ("a client MUST mask all frames"); p is mutated as
// a result for payloads of 126 bytes or more. Retries pass back the very same
// (already masked) backing array, so they must not be re-masked — and are
// not, since the masking only happens on the first pass below.
func (c *Conn) Write(p []byte) (n int, err error) {
	c.wMux.Lock()
	defer c.wMux.Unlock()

	if err := c.closeError(); err != nil {
		return 0, err
	}

	// pending state/frame
	if c.wBufN > 0 || c.wPayloadN > 0 {
		// inconsistent payload length breaks frame
		if c.wPayloadN != len(p) {
			return 0, errRetry
		}

		// write frame header
		if c.wBufN > 0 {
			n, err := c.Conn.Write(c.wBuf[:c.wBufN])
			c.wBufN -= n
			if err != nil {
				// shift out written bytes
				copy(c.wBuf[:c.wBufN], c.wBuf[n:])
				return 0, err
			}
		}

		// write payload; already masked on the first pass if c.Client
		if c.wPayloadN > 0 {
			n, err = c.Conn.Write(p)
			c.wPayloadN -= n
		}
		return
	}

	// load buffer with header
	head := atomic.LoadUint32(&c.writeHead)
	c.wBuf[0] = byte(head)

	var maskKey [4]byte
	if c.Client {
		rand.Read(maskKey[:])
	}

	switch {
	case len(p) < 126:
		// frame fits buffer; send one packet
		if c.Client {
			c.wBuf[1] = byte(len(p)) | maskFlag
			copy(c.wBuf[2:6], maskKey[:])
			copied := copy(c.wBuf[6:], p)
			xorWith(c.wBuf[6:6+copied], &maskKey)
			c.wBufN = 6 + copied
		} else {
			c.wBuf[1] = byte(len(p))
			c.wBufN = 2 + copy(c.wBuf[2:], p)
		}
		c.wPayloadN = 0

	case len(p) < 1<<16:
		// encode 16-bit payload length
		if c.Client {
			c.wBuf[1] = 126 | maskFlag
			binary.BigEndian.PutUint16(c.wBuf[2:4], uint16(len(p)))
			copy(c.wBuf[4:8], maskKey[:])
			c.wBufN = 8
			xorWith(p, &maskKey)
		} else {
			c.wBuf[1] = 126
			binary.BigEndian.PutUint16(c.wBuf[2:4], uint16(len(p)))
			c.wBufN = 4
		}
		c.wPayloadN = len(p)

	default:
		// encode 64-bit payload length
		if c.Client {
			c.wBuf[1] = 127 | maskFlag
			binary.BigEndian.PutUint64(c.wBuf[2:10], uint64(len(p)))
			copy(c.wBuf[10:14], maskKey[:])
			c.wBufN = 14
			xorWith(p, &maskKey)
		} else {
			c.wBuf[1] = 127
			binary.BigEndian.PutUint64(c.wBuf[2:10], uint64(len(p)))
			c.wBufN = 10
		}
		c.wPayloadN = len(p)
	}

	// send TCP packet
	n, err = c.Conn.Write(c.wBuf[:c.wBufN])
	c.wBufN -= n
	if err != nil {
		// shift out written bytes
		copy(c.wBuf[:c.wBufN], c.wBuf[n:])
		// undo payload in first TCP package
		c.wBufN -= len(p) - c.wPayloadN
		if c.wBufN >= 0 {
			return 0, err
		}
		return -c.wBufN, err
	}

	// send payload remainder if wBuf size exceeded
	if c.wPayloadN <= 0 {
		return len(p), nil
	}
	n, err = c.Conn.Write(p[len(p)-c.wPayloadN:])
	c.wPayloadN -= n
	return len(p) - c.wPayloadN, err
}
