package httpws

import (
	"bufio"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/nodeware/actornet/wireproto"
)

// ErrDial means the server's handshake response didn't satisfy RFC 6455.
var ErrDial = errors.New("websocket: handshake rejected by server")

// Dial performs the client side of the HTTP Upgrade handshake described in
// "The WebSocket Protocol" RFC 6455, section 4.1, over an already-established
// TCP connection, and returns a wireproto.Conn with Client set so that
// outgoing frames get masked as required of the dialing peer.
//
// requestHeader may carry additional request headers, such as
// Sec-WebSocket-Protocol. u is used for the request-line path and Host header
// only; conn must already be connected to u's host.
func Dial(conn net.Conn, u *url.URL, requestHeader http.Header, timeout time.Duration) (*wireproto.Conn, error) {
	conn.SetDeadline(time.Now().Add(timeout))
	defer conn.SetDeadline(time.Time{})

	var rawKey [16]byte
	rand.Read(rawKey[:])
	challengeKey := base64.StdEncoding.EncodeToString(rawKey[:])

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}

	bw := bufio.NewWriter(conn)
	bw.WriteString("GET " + path + " HTTP/1.1\r\n")
	bw.WriteString("Host: " + u.Host + "\r\n")
	bw.WriteString("Upgrade: websocket\r\n")
	bw.WriteString("Connection: Upgrade\r\n")
	bw.WriteString("Sec-WebSocket-Key: " + challengeKey + "\r\n")
	bw.WriteString("Sec-WebSocket-Version: 13\r\n")
	if err := requestHeader.Write(bw); err != nil {
		return nil, err
	}
	bw.WriteString("\r\n")
	if err := bw.Flush(); err != nil {
		return nil, err
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusSwitchingProtocols {
		return nil, ErrDial
	}
	if !isConnectionUpgrade(&http.Request{Header: resp.Header}) || !isUpgradeWebSocket(&http.Request{Header: resp.Header}) {
		return nil, ErrDial
	}

	digest := sha1.New()
	digest.Write([]byte(challengeKey))
	digest.Write(keyGUID)
	var want [28]byte
	base64.StdEncoding.Encode(want[:], digest.Sum(nil))
	if resp.Header.Get("Sec-WebSocket-Accept") != string(want[:]) {
		return nil, ErrDial
	}

	if br.Buffered() > 0 {
		conn.Close()
		return nil, errors.New("websocket: data before upgrade completed")
	}

	return &wireproto.Conn{Conn: conn, Client: true}, nil
}
