package wireproto

import (
	"net"
	"testing"
)

// serverConn writes unmasked frames, as required of the accepting side of a
// connection. clientConn writes masked frames, as required of the dialing
// side. Both write sides are read back with the same Reader, since NextFrame
// auto-detects mask presence per frame.

func TestWriteUnmasked(t *testing.T) {
	local, remote := net.Pipe()
	defer local.Close()
	defer remote.Close()

	c := &Conn{Conn: local}
	c.WriteFinal(Binary)

	done := make(chan error, 1)
	go func() {
		_, err := c.Write([]byte("hello"))
		done <- err
	}()

	r := NewReader(make([]byte, 256))
	if err := r.ReadSome(remote); err != nil {
		t.Fatal("ReadSome error:", err)
	}
	payload, err := r.NextFrame()
	if err != nil {
		t.Fatal("NextFrame error:", err)
	}
	if string(payload) != "hello" {
		t.Errorf("got payload %q, want %q", payload, "hello")
	}
	if code := r.Opcode(); code != Binary {
		t.Errorf("got opcode %d, want Binary", code)
	}
	if !r.IsFinal() {
		t.Error("want final frame")
	}

	if err := <-done; err != nil {
		t.Fatal("Write error:", err)
	}
}

func TestWriteMasked(t *testing.T) {
	local, remote := net.Pipe()
	defer local.Close()
	defer remote.Close()

	c := &Conn{Conn: local, Client: true}
	c.WriteFinal(Text)

	payload := []byte("masked payload")
	done := make(chan error, 1)
	go func() {
		_, err := c.Write(payload)
		done <- err
	}()

	r := NewReader(make([]byte, 256))
	if err := r.ReadSome(remote); err != nil {
		t.Fatal("ReadSome error:", err)
	}
	got, err := r.NextFrame()
	if err != nil {
		t.Fatal("NextFrame error:", err)
	}
	if string(got) != "masked payload" {
		t.Errorf("got payload %q, want %q", got, "masked payload")
	}

	if err := <-done; err != nil {
		t.Fatal("Write error:", err)
	}
}

func TestWriteLargePayload(t *testing.T) {
	local, remote := net.Pipe()
	defer local.Close()
	defer remote.Close()

	c := &Conn{Conn: local, Client: true}
	c.WriteFinal(Binary)

	payload := make([]byte, 70000)
	for i := range payload {
		payload[i] = byte(i)
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.Write(payload)
		done <- err
	}()

	buf := make([]byte, len(payload)+32)
	r := NewReader(buf)
	var got []byte
	for {
		if err := r.ReadSome(remote); err != nil {
			t.Fatal("ReadSome error:", err)
		}
		payload, err := r.NextFrame()
		if err == ErrUnderflow {
			continue
		}
		if err != nil {
			t.Fatal("NextFrame error:", err)
		}
		got = payload
		break
	}
	if len(got) != len(payload) {
		t.Fatalf("got %d bytes, want %d", len(got), len(payload))
	}
	for i := range got {
		if got[i] != byte(i) {
			t.Fatalf("payload mismatch at byte %d", i)
		}
	}

	if err := <-done; err != nil {
		t.Fatal("Write error:", err)
	}
}

func TestWriteCloseRejectsFurtherWrites(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	c := &Conn{Conn: local}
	c.WriteFinal(Binary)

	go func() {
		buf := make([]byte, 512)
		for {
			if _, err := remote.Read(buf); err != nil {
				return
			}
		}
	}()

	err := c.WriteClose(NormalClose, "bye")
	if _, ok := err.(ClosedError); !ok {
		t.Fatalf("WriteClose returned %v, want ClosedError", err)
	}

	if _, err := c.Write([]byte("too late")); err == nil {
		t.Fatal("Write after WriteClose succeeded, want ClosedError")
	}
}
