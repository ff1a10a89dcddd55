package swarm

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/adzialocha/toy-hypercore/internal/crypto/noiseconn"
	"github.com/adzialocha/toy-hypercore/internal/netx"
	"github.com/adzialocha/toy-hypercore/internal/proto"
)

const helloTimeout = 5 * time.Second

type peer struct {
	token        string
	addr         netx.Addr // advertised listen address
	observedAddr netx.Addr
	conn         io.ReadWriteCloser
	reader       *json.Decoder
	writer       *json.Encoder

	sendCh chan proto.Envelope

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

type deadlineConn interface {
	SetReadDeadline(t time.Time) error
}

func (n *Node) handleConn(rawConn netx.Conn, inbound bool) {
	p, err := n.establishPeer(rawConn, inbound)
	if err != nil {
		n.Logf("swarm: session setup failed (inbound=%v): %v", inbound, err)
		_ = rawConn.Close()
		return
	}
	if p == nil {
		// self connection or already-known token
		_ = rawConn.Close()
		return
	}
	defer n.removePeer(p.token)

	n.Logf("swarm: session with token=%s addr=%s inbound=%v",
		shortToken(p.token), p.addr, inbound)

	n.runPeerReadLoop(p)
}

func (n *Node) establishPeer(rawConn netx.Conn, inbound bool) (*peer, error) {
	payload := proto.MustMarshal(proto.HandshakePayload{Token: n.cfg.Token})

	hs, err := noiseconn.Handshake(rawConn, !inbound, n.static, payload)
	if err != nil {
		return nil, err
	}
	secure := hs.Conn

	var hp proto.HandshakePayload
	if err := json.Unmarshal(hs.RemotePayload, &hp); err != nil {
		_ = secure.Close()
		return nil, err
	}
	if hp.Token == "" {
		_ = secure.Close()
		return nil, errors.New("handshake without token")
	}
	if hp.Token == n.cfg.Token {
		// Dialed ourselves; discovery should have filtered this, but a
		// stale peer store entry can still point home.
		_ = secure.Close()
		return nil, nil
	}

	dec := json.NewDecoder(bufio.NewReader(secure))
	enc := json.NewEncoder(secure)

	if err := n.sendHello(enc); err != nil {
		_ = secure.Close()
		return nil, err
	}

	env, err := n.readEnvelopeWithTimeout(rawConn, dec, helloTimeout)
	if err != nil {
		_ = secure.Close()
		return nil, err
	}
	if env.Type != proto.MsgHello {
		_ = secure.Close()
		return nil, errors.New("expected hello")
	}
	var hello proto.Hello
	if err := json.Unmarshal(env.Payload, &hello); err != nil {
		_ = secure.Close()
		return nil, err
	}
	if hello.Token != hp.Token {
		_ = secure.Close()
		return nil, errors.New("hello token does not match handshake")
	}

	pctx, cancel := context.WithCancel(n.ctx)
	p := &peer{
		token:        hp.Token,
		addr:         netx.Addr(hello.Listen),
		observedAddr: rawConn.RemoteAddr(),
		conn:         secure,
		reader:       dec,
		writer:       enc,
		sendCh:       make(chan proto.Envelope, 128),
		ctx:          pctx,
		cancel:       cancel,
	}

	if !n.addPeer(p) {
		cancel()
		_ = secure.Close()
		return nil, nil
	}

	go p.writeLoop(n)
	return p, nil
}

func (n *Node) sendHello(enc *json.Encoder) error {
	h := proto.Hello{
		Token:    n.cfg.Token,
		Listen:   string(n.addr),
		Protocol: n.cfg.Protocol,
	}
	env := proto.Envelope{
		Type:      proto.MsgHello,
		FromToken: n.cfg.Token,
		Payload:   proto.MustMarshal(h),
	}
	return enc.Encode(env)
}

func (n *Node) readEnvelopeWithTimeout(rawConn netx.Conn, dec *json.Decoder, timeout time.Duration) (proto.Envelope, error) {
	if dc, ok := rawConn.(deadlineConn); ok {
		_ = dc.SetReadDeadline(time.Now().Add(timeout))
		defer func() { _ = dc.SetReadDeadline(time.Time{}) }()

		var env proto.Envelope
		err := dec.Decode(&env)
		return env, err
	}

	type result struct {
		env proto.Envelope
		err error
	}
	ch := make(chan result, 1)
	go func() {
		var env proto.Envelope
		err := dec.Decode(&env)
		ch <- result{env: env, err: err}
	}()

	select {
	case r := <-ch:
		return r.env, r.err
	case <-time.After(timeout):
		_ = rawConn.Close() // unblocks the decode goroutine
		return proto.Envelope{}, errors.New("hello timeout")
	}
}

func (n *Node) runPeerReadLoop(p *peer) {
	// Reuse the handshake-time decoder: it may have buffered bytes past
	// the hello already.
	dec := p.reader

	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}
		var env proto.Envelope
		if err := dec.Decode(&env); err != nil {
			n.Logf("swarm: read from %s failed: %v", shortToken(p.token), err)
			return
		}
		select {
		case n.incoming <- env:
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *peer) writeLoop(n *Node) {
	for {
		select {
		case <-p.ctx.Done():
			return
		case env, ok := <-p.sendCh:
			if !ok {
				return
			}
			if err := p.writer.Encode(env); err != nil {
				n.Logf("swarm: write to %s failed: %v", shortToken(p.token), err)
				go n.removePeer(p.token)
				return
			}
		}
	}
}
