package swarm

import (
	"testing"
	"time"

	"github.com/adzialocha/toy-hypercore/internal/netx"
)

func newTestNode(t *testing.T, token string) *Node {
	t.Helper()
	n, err := NewNode(Config{
		Network:  netx.NewTCPNetwork(),
		BindAddr: "127.0.0.1:0",
		Token:    token,
		Protocol: "toy-hypercore/0.1.0",
		Debug:    true,
	})
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = n.Stop() })
	return n
}

func waitForPeer(t *testing.T, n *Node, token string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if n.HasPeer(token) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("node %s never saw peer %s", shortToken(n.Token()), shortToken(token))
}

func TestConnectEstablishesSession(t *testing.T) {
	a := newTestNode(t, "tok-A")
	b := newTestNode(t, "tok-B")

	if err := a.ConnectTo(b.ListenAddr()); err != nil {
		t.Fatalf("ConnectTo: %v", err)
	}

	waitForPeer(t, a, "tok-B")
	waitForPeer(t, b, "tok-A")

	if got := a.PeerCount(); got != 1 {
		t.Fatalf("a.PeerCount() = %d, want 1", got)
	}

	snaps := b.SnapshotPeers()
	if len(snaps) != 1 || snaps[0].Token != "tok-A" {
		t.Fatalf("b peers = %+v", snaps)
	}
	// The dialer advertised its own listen address in the hello.
	if snaps[0].Addr != string(a.ListenAddr()) {
		t.Fatalf("advertised addr = %q, want %q", snaps[0].Addr, a.ListenAddr())
	}
}

func TestDuplicateSessionRejected(t *testing.T) {
	a := newTestNode(t, "tok-A")
	b := newTestNode(t, "tok-B")

	if err := a.ConnectTo(b.ListenAddr()); err != nil {
		t.Fatalf("ConnectTo: %v", err)
	}
	waitForPeer(t, a, "tok-B")

	// Second dial to the same peer must not produce a second session.
	if err := a.ConnectTo(b.ListenAddr()); err != nil {
		t.Fatalf("ConnectTo: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	if got := a.PeerCount(); got != 1 {
		t.Fatalf("a.PeerCount() = %d after duplicate dial, want 1", got)
	}
	if got := b.PeerCount(); got != 1 {
		t.Fatalf("b.PeerCount() = %d after duplicate dial, want 1", got)
	}
}

func TestSelfConnectDropped(t *testing.T) {
	a := newTestNode(t, "tok-A")

	// A stale peer store entry can point back at ourselves.
	if err := a.ConnectTo(a.ListenAddr()); err != nil {
		t.Fatalf("ConnectTo: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	if got := a.PeerCount(); got != 0 {
		t.Fatalf("a.PeerCount() = %d after self dial, want 0", got)
	}
}

func TestPeerConnectedEvent(t *testing.T) {
	a := newTestNode(t, "tok-A")
	b := newTestNode(t, "tok-B")

	if err := a.ConnectTo(b.ListenAddr()); err != nil {
		t.Fatalf("ConnectTo: %v", err)
	}

	select {
	case ev := <-a.Events():
		if ev.Type != EventPeerConnected || ev.Token != "tok-B" {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no connect event")
	}
}
