package swarm

import (
	"fmt"

	"github.com/adzialocha/toy-hypercore/internal/proto"
)

// PeerSnapshot is a read-only view of a connected peer.
type PeerSnapshot struct {
	Token        string
	Addr         string // advertised listen address
	ObservedAddr string // what we saw on the wire
}

func (n *Node) addPeer(p *peer) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.peers[p.token]; exists || p.token == n.cfg.Token {
		return false
	}
	n.peers[p.token] = p
	n.emit(Event{Type: EventPeerConnected, Token: p.token, Addr: string(p.addr)})
	return true
}

func (n *Node) removePeer(token string) {
	n.mu.Lock()
	p := n.peers[token]
	if p != nil {
		delete(n.peers, token)
	}
	n.mu.Unlock()

	if p == nil {
		return
	}

	// Make removal idempotent
	p.once.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		_ = p.conn.Close()
		n.emit(Event{Type: EventPeerDisconnected, Token: p.token, Addr: string(p.addr)})
	})
}

// HasPeer reports whether a session with this token is already live.
func (n *Node) HasPeer(token string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.peers[token]
	return ok
}

// PeerCount returns the current number of live sessions.
func (n *Node) PeerCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.peers)
}

// SnapshotPeers lists the current sessions.
func (n *Node) SnapshotPeers() []PeerSnapshot {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]PeerSnapshot, 0, len(n.peers))
	for _, p := range n.peers {
		out = append(out, PeerSnapshot{
			Token:        p.token,
			Addr:         string(p.addr),
			ObservedAddr: string(p.observedAddr),
		})
	}
	return out
}

// SendToPeer queues an envelope for a peer by token.
func (n *Node) SendToPeer(token string, env proto.Envelope) error {
	n.mu.RLock()
	p, ok := n.peers[token]
	n.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown peer %q", shortToken(token))
	}
	n.sendAsync(p, env)
	return nil
}

func (n *Node) sendAsync(p *peer, env proto.Envelope) {
	select {
	case p.sendCh <- env:
		// queued
	default:
		n.Logf("swarm: peer %s send buffer full, dropping session", shortToken(p.token))
		go n.removePeer(p.token)
	}
}
