package transport

import (
	"bufio"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/nodeware/actornet/wireproto"
	"github.com/nodeware/actornet/wireproto/httpws"
)

// pollBufSize is large enough to hold a full soft-capped batch plus one
// message's worth of overshoot (spec.md §3 invariant); callers configure
// batch_message_bytes well under this in practice.
const pollBufSize = 1 << 20

// pollWindow is how long one non-blocking poll may wait on the socket.
const pollWindow = time.Millisecond

// Server is the non-blocking TCP/WebSocket Transport Backend (spec.md §4.3).
// Non-blocking behavior is emulated the way a net.Conn without a raw
// non-blocking mode has to: every poll sets a read or write deadline
// pollWindow ahead before touching the socket, so a would-block condition
// surfaces promptly as a timeout instead of parking the single cooperative
// thread. (A deadline of exactly time.Now() would fail every call, even with
// data waiting.)
type Server struct {
	raw    net.Conn
	out    *wireproto.Conn
	reader *wireproto.Reader
	closed bool
}

// SendBinary implements Transport. batch must be passed back unchanged on a
// retry following ErrWouldBlock; *wireproto.Conn tracks how many bytes of
// the current frame it already wrote and resumes from there (see
// wireproto.Conn.Write's doc comment).
func (s *Server) SendBinary(batch []byte) error {
	if s.closed {
		return ErrClosed
	}
	s.raw.SetWriteDeadline(time.Now().Add(pollWindow))
	_, err := s.out.Write(batch)
	return s.classifyErr(err)
}

// RecvBinary implements Transport, performing at most one underlying Read.
func (s *Server) RecvBinary() ([]byte, error) {
	if s.closed {
		return nil, ErrClosed
	}
	s.raw.SetReadDeadline(time.Now().Add(pollWindow))
	payload, opcode, err := s.reader.PollMessage(s.raw)
	if err != nil {
		return nil, s.classifyErr(err)
	}
	if opcode != wireproto.Binary {
		return nil, ErrNonBinaryFrame
	}
	return payload, nil
}

func (s *Server) classifyErr(err error) error {
	if err == nil {
		return nil
	}
	if err == wireproto.ErrUnderflow {
		return ErrWouldBlock
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return ErrWouldBlock
	}
	if _, ok := err.(wireproto.ClosedError); ok {
		s.closed = true
		return ErrClosed
	}
	s.closed = true
	return ErrClosed
}

// IsOpen implements Transport.
func (s *Server) IsOpen() bool { return !s.closed }

// Close implements Transport.
func (s *Server) Close() error {
	s.closed = true
	return s.raw.Close()
}

// Accept polls ln once for a pending inbound connection, without blocking: ln
// must already be a non-blocking-capable listener (its Accept deadline is set
// here). On success it performs the server side of the WebSocket upgrade and
// reads the dialer's one-byte machine-id handshake frame (spec.md §4.2, §6).
// ok is false when there was no pending connection this poll.
func Accept(ln *net.TCPListener, timeout time.Duration) (t *Server, dialerMachineID uint8, ok bool, err error) {
	ln.SetDeadline(time.Now().Add(1 * time.Millisecond))
	raw, err := ln.Accept()
	if err != nil {
		if ne, isNet := err.(net.Error); isNet && ne.Timeout() {
			return nil, 0, false, nil
		}
		return nil, 0, false, errors.Wrap(err, "transport: accept")
	}

	raw.SetDeadline(time.Now().Add(timeout))
	br := bufio.NewReader(raw)
	r, rerr := http.ReadRequest(br)
	if rerr != nil {
		raw.Close()
		return nil, 0, false, errors.Wrap(rerr, "transport: read upgrade request")
	}

	hw := &hijackWriter{conn: raw, br: br, header: make(http.Header)}
	wsConn, uerr := httpws.Upgrade(hw, r, nil, timeout)
	if uerr != nil {
		raw.Close()
		return nil, 0, false, errors.Wrap(uerr, "transport: websocket upgrade")
	}

	if tcp, ok := raw.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}
	wsConn.WriteFinal(wireproto.Binary)
	s := &Server{raw: raw, out: wsConn, reader: wireproto.NewReader(make([]byte, pollBufSize))}

	raw.SetReadDeadline(time.Now().Add(timeout))
	var id uint8
	for {
		if rerr := s.reader.ReadSome(raw); rerr != nil {
			raw.Close()
			return nil, 0, false, errors.Wrap(rerr, "transport: read handshake frame")
		}
		payload, nerr := s.reader.NextFrame()
		if nerr == wireproto.ErrUnderflow {
			continue
		}
		if nerr != nil {
			raw.Close()
			return nil, 0, false, errors.Wrap(nerr, "transport: decode handshake frame")
		}
		if len(payload) != 1 {
			raw.Close()
			return nil, 0, false, ErrNonBinaryFrame
		}
		id = payload[0]
		break
	}
	raw.SetReadDeadline(time.Time{})

	return s, id, true, nil
}

// hijackWriter adapts a raw net.Conn plus the *bufio.Reader http.ReadRequest
// already consumed it with into the http.ResponseWriter/http.Hijacker pair
// httpws.Upgrade expects, since this backend speaks HTTP itself instead of
// running inside an http.Server handler.
type hijackWriter struct {
	conn   net.Conn
	br     *bufio.Reader
	header http.Header
	status int
}

func (h *hijackWriter) Header() http.Header { return h.header }

func (h *hijackWriter) Write(p []byte) (int, error) { return h.conn.Write(p) }

func (h *hijackWriter) WriteHeader(status int) { h.status = status }

func (h *hijackWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return h.conn, bufio.NewReadWriter(h.br, bufio.NewWriter(h.conn)), nil
}

// Dial opens a TCP connection to addr, performs the client side of the
// WebSocket upgrade, and sends the one-byte machine-id handshake frame
// (spec.md §4.4, §6).
func Dial(addr string, selfMachineID uint8, timeout time.Duration) (*Server, error) {
	raw, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, errors.Wrapf(ErrOutboundDial, "dial %s: %v", addr, err)
	}

	u := &url.URL{Scheme: "ws", Host: addr, Path: "/"}
	wsConn, err := httpws.Dial(raw, u, make(http.Header), timeout)
	if err != nil {
		raw.Close()
		return nil, errors.Wrap(err, "transport: websocket dial")
	}

	if tcp, ok := raw.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}
	wsConn.WriteFinal(wireproto.Binary)
	s := &Server{raw: raw, out: wsConn, reader: wireproto.NewReader(make([]byte, pollBufSize))}

	s.raw.SetWriteDeadline(time.Now().Add(timeout))
	if _, err := s.out.Write([]byte{selfMachineID}); err != nil {
		raw.Close()
		return nil, errors.Wrap(err, "transport: send handshake frame")
	}
	s.raw.SetWriteDeadline(time.Time{})
	return s, nil
}
