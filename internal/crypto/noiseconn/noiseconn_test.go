package noiseconn

import (
	"bytes"
	"net"
	"testing"
)

func TestHandshakeAndFrames(t *testing.T) {
	cKey, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	sKey, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	client, server := net.Pipe()

	type result struct {
		hs  *HandshakeResult
		err error
	}
	srvCh := make(chan result, 1)
	go func() {
		hs, err := Handshake(server, false, sKey, []byte("server-payload"))
		srvCh <- result{hs, err}
	}()

	cli, err := Handshake(client, true, cKey, []byte("client-payload"))
	if err != nil {
		t.Fatalf("client handshake: %v", err)
	}
	srv := <-srvCh
	if srv.err != nil {
		t.Fatalf("server handshake: %v", srv.err)
	}

	if string(cli.RemotePayload) != "server-payload" {
		t.Errorf("client saw payload %q", cli.RemotePayload)
	}
	if string(srv.hs.RemotePayload) != "client-payload" {
		t.Errorf("server saw payload %q", srv.hs.RemotePayload)
	}
	if !bytes.Equal(cli.RemoteStatic, sKey.Public) {
		t.Errorf("client learned wrong static key")
	}
	if !bytes.Equal(srv.hs.RemoteStatic, cKey.Public) {
		t.Errorf("server learned wrong static key")
	}

	// One frame each way.
	msg := []byte("hello over noise")
	done := make(chan error, 1)
	go func() {
		_, err := cli.Conn.Write(msg)
		done <- err
	}()

	buf := make([]byte, 64)
	n, err := srv.hs.Conn.Read(buf)
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	if !bytes.Equal(buf[:n], msg) {
		t.Fatalf("server read %q", buf[:n])
	}
	if err := <-done; err != nil {
		t.Fatalf("client write: %v", err)
	}

	// Short destination buffer keeps the remainder for the next Read.
	go func() {
		_, err := srv.hs.Conn.Write([]byte("0123456789"))
		done <- err
	}()
	small := make([]byte, 4)
	n, err = cli.Conn.Read(small)
	if err != nil || n != 4 || string(small) != "0123" {
		t.Fatalf("short read: n=%d err=%v buf=%q", n, err, small)
	}
	n, err = cli.Conn.Read(buf)
	if err != nil || string(buf[:n]) != "456789" {
		t.Fatalf("leftover read: n=%d err=%v buf=%q", n, err, buf[:n])
	}
	if err := <-done; err != nil {
		t.Fatalf("server write: %v", err)
	}
}
