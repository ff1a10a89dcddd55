// Package swarm owns the stream side of the node: the TCP listener whose
// port discovery advertises, and outbound connects to discovered peers. Each
// connection is secured with a Noise XX handshake that carries the peer's
// token, then sessions are kept unique per token.
package swarm

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"

	"github.com/flynn/noise"

	"github.com/adzialocha/toy-hypercore/internal/crypto/noiseconn"
	"github.com/adzialocha/toy-hypercore/internal/netx"
	"github.com/adzialocha/toy-hypercore/internal/proto"
	"github.com/adzialocha/toy-hypercore/internal/telemetry"
)

type Config struct {
	Network  netx.Network // transport implementation
	BindAddr string       // e.g. ":0" to choose a random port
	Token    string       // this process's discovery token
	Protocol string       // protocol version string
	Logger   telemetry.Logger
	Debug    bool
}

type Node struct {
	cfg    Config
	static noise.DHKey
	addr   netx.Addr

	mu    sync.RWMutex
	peers map[string]*peer // keyed by token

	ctx    context.Context
	cancel context.CancelFunc

	incoming chan proto.Envelope
	events   chan Event
}

func NewNode(cfg Config) (*Node, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("swarm: empty token")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	static, err := noiseconn.GenerateKeypair()
	if err != nil {
		return nil, fmt.Errorf("swarm: generate static key: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Node{
		cfg:      cfg,
		static:   static,
		peers:    make(map[string]*peer),
		ctx:      ctx,
		cancel:   cancel,
		incoming: make(chan proto.Envelope, 128),
		events:   make(chan Event, 128),
	}, nil
}

// Token returns this node's discovery token.
func (n *Node) Token() string { return n.cfg.Token }

// ListenAddr returns where this node is listening.
func (n *Node) ListenAddr() netx.Addr { return n.addr }

// Port returns the bound listener port, the number discovery advertises.
func (n *Node) Port() (uint16, error) {
	_, portStr, err := net.SplitHostPort(string(n.addr))
	if err != nil {
		return 0, fmt.Errorf("swarm: listen addr %q: %w", n.addr, err)
	}
	p, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("swarm: listen port %q: %w", portStr, err)
	}
	return uint16(p), nil
}

// Incoming returns the channel of received envelopes.
func (n *Node) Incoming() <-chan proto.Envelope { return n.incoming }

// Events returns the channel of connect/disconnect events.
func (n *Node) Events() <-chan Event { return n.events }

// Start brings the listener online.
func (n *Node) Start() error {
	addr, err := n.cfg.Network.Listen(n.cfg.BindAddr)
	if err != nil {
		return fmt.Errorf("swarm: listen: %w", err)
	}
	n.addr = addr
	n.Logf("swarm: listening on %s token=%s", n.addr, shortToken(n.cfg.Token))

	go n.acceptLoop()
	return nil
}

// Stop shuts the node down and closes every session.
func (n *Node) Stop() error {
	n.cancel()
	err := n.cfg.Network.Close()

	n.mu.Lock()
	peers := make([]*peer, 0, len(n.peers))
	for _, p := range n.peers {
		peers = append(peers, p)
	}
	n.mu.Unlock()
	for _, p := range peers {
		n.removePeer(p.token)
	}
	return err
}

func (n *Node) acceptLoop() {
	for {
		select {
		case <-n.ctx.Done():
			return
		default:
		}

		conn, err := n.cfg.Network.Accept()
		if err != nil {
			select {
			case <-n.ctx.Done():
			default:
				n.Logf("swarm: accept error: %v", err)
			}
			return
		}
		go n.handleConn(conn, true)
	}
}

// ConnectTo dials a discovered peer. Duplicate and self connections are
// rejected after the handshake, when the remote token is known.
func (n *Node) ConnectTo(addr netx.Addr) error {
	conn, err := n.cfg.Network.Dial(addr)
	if err != nil {
		return fmt.Errorf("swarm: dial %s: %w", addr, err)
	}
	go n.handleConn(conn, false)
	return nil
}

func (n *Node) Logf(format string, args ...any) {
	if !n.cfg.Debug {
		return
	}
	if n.cfg.Logger != nil {
		n.cfg.Logger.Printf(format, args...)
	}
}

func shortToken(tok string) string {
	if len(tok) > 8 {
		return tok[:8]
	}
	return tok
}
