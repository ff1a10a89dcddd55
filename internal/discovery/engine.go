// Package discovery finds peers interested in the same feed on the local
// network. Processes sharing a discovery key derive the same rendezvous name,
// broadcast mDNS TXT queries for it, answer each other's queries with their
// token and port, and surface everyone else's answers as a stream of
// PeerRecords. There is no central registry; the periodic broadcast is the
// whole protocol.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"

	"github.com/adzialocha/toy-hypercore/internal/telemetry"
)

// DefaultInterval is how often the engine re-broadcasts its query.
const DefaultInterval = 60 * time.Second

// peerBufferSize bounds the discovered-peer channel. A slow consumer stalls
// the classifier rather than growing an unbounded backlog.
const peerBufferSize = 16

// Config carries everything the engine needs. Port is the TCP port our
// replication listener is bound to; the engine does not own that listener.
type Config struct {
	DiscoveryKey []byte // 32-byte hash shared by interested peers
	Port         uint16 // advertised replication port
	Token        string // this process's identity, from hypercore.RandomToken

	Interval  time.Duration    // broadcast period; DefaultInterval if zero
	Transport Transport        // nil means the real mDNS multicast socket
	Logger    telemetry.Logger // optional
	Debug     bool             // per-sighting chatter
}

// Engine runs the rendezvous loop: a periodic broadcaster and an inbound
// classifier sharing one multicast transport. The rendezvous name and the two
// message templates are computed once in NewEngine and only read afterwards,
// so both loops share them without locking.
type Engine struct {
	cfg   Config
	name  string
	local PeerRecord

	question []byte // packed query template
	answer   []byte // packed response template

	tr    Transport
	peers chan PeerRecord

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewEngine derives the rendezvous name and message templates. Errors here
// mean broken inputs and should abort startup.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Token == "" {
		return nil, errors.New("discovery: empty token")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	name, err := rendezvousName(cfg.DiscoveryKey)
	if err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}

	local := PeerRecord{
		Addr:  net.IPv4zero.To4(), // others fill in what they observe
		Port:  cfg.Port,
		Token: cfg.Token,
	}

	question, err := buildQuestion(name).Pack()
	if err != nil {
		return nil, fmt.Errorf("discovery: pack question: %w", err)
	}
	answer, err := buildAnswer(name, local).Pack()
	if err != nil {
		return nil, fmt.Errorf("discovery: pack answer: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:      cfg,
		name:     name,
		local:    local,
		question: question,
		answer:   answer,
		tr:       cfg.Transport,
		peers:    make(chan PeerRecord, peerBufferSize),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Name returns the rendezvous name this engine queries and answers under.
func (e *Engine) Name() string { return e.name }

// Peers returns the stream of discovered peers. The same peer reappears once
// per sighting; that repetition is the only liveness signal there is, so
// dedup-by-token belongs to the consumer.
func (e *Engine) Peers() <-chan PeerRecord { return e.peers }

// Start joins the multicast group and launches the broadcaster and the
// classifier. An error here is fatal; everything after is best-effort.
func (e *Engine) Start() error {
	if e.tr == nil {
		tr, err := openMulticast()
		if err != nil {
			return fmt.Errorf("discovery: %w", err)
		}
		e.tr = tr
	}

	e.Logf("discovery: rendezvous %s every %s", e.name, e.cfg.Interval)

	e.wg.Add(2)
	go e.broadcastLoop()
	go e.classifyLoop()
	return nil
}

// Stop halts both loops, leaves the multicast group and closes the peer
// stream. In-flight sends are lost; that is fine on a best-effort channel.
func (e *Engine) Stop() error {
	var err error
	e.stopOnce.Do(func() {
		e.cancel()
		if e.tr != nil {
			err = e.tr.Close()
		}
		e.wg.Wait()
		close(e.peers)
	})
	return err
}

func (e *Engine) broadcastLoop() {
	defer e.wg.Done()

	// First probe right away; the ticker covers every round after.
	e.broadcast()

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.broadcast()
		}
	}
}

// broadcast sends the question template to the group. Failure is operational
// noise, not an invariant violation: log it and let the next tick retry.
func (e *Engine) broadcast() {
	if err := e.tr.Send(e.question, e.tr.Group()); err != nil {
		e.Logf("discovery: broadcast failed, retrying next tick: %v", err)
	}
}

func (e *Engine) classifyLoop() {
	defer e.wg.Done()

	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := e.tr.Recv(buf)
		if err != nil {
			select {
			case <-e.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		e.classify(buf[:n], from)
	}
}

// classify runs one inbound datagram through the pipeline: parse, match the
// rendezvous name, answer queries, decode and emit responses. Datagrams are
// handled one at a time, to completion. Foreign or corrupt traffic is
// expected on a shared channel and dropped without comment.
func (e *Engine) classify(pkt []byte, from *net.UDPAddr) {
	var msg dns.Msg
	if err := msg.Unpack(pkt); err != nil {
		return
	}

	if !e.matchesName(&msg) {
		return
	}

	if !msg.Response {
		// A peer is asking; reply toward them. Queries never become
		// discovered peers themselves.
		if err := e.tr.Send(e.answer, from); err != nil {
			e.Logf("discovery: answer to %v failed: %v", from, err)
		}
		return
	}

	rec, ok := decodeResponse(&msg)
	if !ok {
		return
	}
	if rec.Token == e.local.Token {
		// Echo of our own broadcast.
		return
	}

	// The sender advertised an unspecified address because it cannot know
	// its externally visible one; what we observed on the wire is it.
	if rec.Addr == nil || rec.Addr.IsUnspecified() {
		if from != nil {
			if ip4 := from.IP.To4(); ip4 != nil {
				rec.Addr = ip4
			}
		}
	}

	if e.cfg.Debug {
		e.Logf("discovery: sighted %s", rec)
	}

	select {
	case e.peers <- rec:
	case <-e.ctx.Done():
	}
}

// matchesName reports whether any question in msg is for our rendezvous name.
// Everything else on the multicast channel is someone else's traffic.
func (e *Engine) matchesName(msg *dns.Msg) bool {
	for _, q := range msg.Question {
		if equalName(q.Name, e.name) {
			return true
		}
	}
	return false
}

// decodeResponse pulls the first decodable peer payload out of a response's
// TXT answers.
func decodeResponse(msg *dns.Msg) (PeerRecord, bool) {
	for _, rr := range msg.Answer {
		txt, ok := rr.(*dns.TXT)
		if !ok {
			continue
		}
		rec, err := decodeTXTFields(txt.Txt)
		if err != nil {
			continue
		}
		return rec, true
	}
	return PeerRecord{}, false
}

func (e *Engine) Logf(format string, args ...any) {
	if e.cfg.Logger != nil {
		e.cfg.Logger.Printf(format, args...)
	}
}
