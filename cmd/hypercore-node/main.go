package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/adzialocha/toy-hypercore/internal/bootstrap"
	"github.com/adzialocha/toy-hypercore/internal/discovery"
	"github.com/adzialocha/toy-hypercore/internal/hypercore"
	"github.com/adzialocha/toy-hypercore/internal/netx"
	"github.com/adzialocha/toy-hypercore/internal/paths"
	"github.com/adzialocha/toy-hypercore/internal/storage/peerbolt"
	"github.com/adzialocha/toy-hypercore/internal/swarm"
)

func main() {
	cloneURL := flag.String("clone", "", "clone data from this URL (dat://<hex key>)")
	bind := flag.String("bind", ":0", "bind address for the replication listener (e.g. :0 for random port)")
	peerStr := flag.String("peer", "", "comma-separated static peer addresses host:port")
	dataDir := flag.String("data", paths.DefaultDataDir(), "directory for persisted node state")
	interval := flag.Duration("interval", discovery.DefaultInterval, "announce interval")
	debug := flag.Bool("debug", false, "verbose per-datagram logging")
	flag.Parse()

	logger := log.New(os.Stdout, "", log.LstdFlags)

	// Create or clone a feed depending on given arguments.
	var publicKey []byte
	if *cloneURL != "" {
		key, err := parseDatURL(*cloneURL)
		if err != nil {
			log.Fatalf("bad clone URL: %v", err)
		}
		publicKey = key
	} else {
		pub, _, err := hypercore.Keypair()
		if err != nil {
			log.Fatalf("generate keypair: %v", err)
		}
		publicKey = pub
	}

	fmt.Println(datURL(publicKey))

	discoveryKey, err := hypercore.DiscoveryKey(publicKey)
	if err != nil {
		log.Fatalf("derive discovery key: %v", err)
	}
	token, err := hypercore.RandomToken()
	if err != nil {
		log.Fatalf("generate token: %v", err)
	}

	dir, err := paths.EnsureDir(*dataDir)
	if err != nil {
		log.Fatalf("data dir: %v", err)
	}
	store, err := peerbolt.Open(filepath.Join(dir, "peers.db"))
	if err != nil {
		log.Fatalf("open peer store: %v", err)
	}
	defer store.Close()

	node, err := swarm.NewNode(swarm.Config{
		Network:  netx.NewTCPNetwork(),
		BindAddr: *bind,
		Token:    token,
		Protocol: "toy-hypercore/0.1.0",
		Logger:   logger,
		Debug:    *debug,
	})
	if err != nil {
		log.Fatalf("create node: %v", err)
	}
	if err := node.Start(); err != nil {
		log.Fatalf("start node: %v", err)
	}
	defer node.Stop()

	port, err := node.Port()
	if err != nil {
		log.Fatalf("listen port: %v", err)
	}
	logger.Printf("listening on %s (token %s)", node.ListenAddr(), shortToken(token))

	engine, err := discovery.NewEngine(discovery.Config{
		DiscoveryKey: discoveryKey,
		Port:         port,
		Token:        token,
		Interval:     *interval,
		Logger:       logger,
		Debug:        *debug,
	})
	if err != nil {
		log.Fatalf("create discovery: %v", err)
	}
	if err := engine.Start(); err != nil {
		log.Fatalf("start discovery: %v", err)
	}
	defer engine.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Dial peers we already know about before multicast finds anyone.
	go bootstrap.RunOnce(ctx, node, bootstrap.Config{Logger: logger},
		bootstrap.StaticSource{Addrs: splitHostList(*peerStr)},
		bootstrap.PeerStoreSource{Store: store, MaxFailures: 3, Limit: 16},
	)

	go drainEvents(node, store, logger)
	go drainIncoming(node, logger, *debug)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	// Consumer loop: first sighting of a token wins, later sightings with
	// the same token are silently ignored.
	known := make(map[string]discovery.PeerRecord)
	for {
		select {
		case <-sig:
			logger.Printf("shutting down")
			return
		case rec, ok := <-engine.Peers():
			if !ok {
				return
			}
			if _, seen := known[rec.Token]; seen {
				continue
			}
			known[rec.Token] = rec

			fmt.Printf("New peer: %s, %d, %s\n", rec.Addr, rec.Port, colorToken(rec.Token))

			addr := net.JoinHostPort(rec.Addr.String(), strconv.Itoa(int(rec.Port)))
			if err := store.Note(rec.Token, rec.Addr.String(), rec.Port); err != nil {
				logger.Printf("store peer %s: %v", shortToken(rec.Token), err)
			}
			if node.HasPeer(rec.Token) {
				continue
			}
			go dialPeer(node, store, logger, rec.Token, addr)
		}
	}
}

func dialPeer(node *swarm.Node, store *peerbolt.Store, logger *log.Logger, token, addr string) {
	if err := node.ConnectTo(netx.Addr(addr)); err != nil {
		logger.Printf("dial %s: %v", addr, err)
		_ = store.NoteFailure(token)
		return
	}
	_ = store.NoteSuccess(token)
}

func drainEvents(node *swarm.Node, store *peerbolt.Store, logger *log.Logger) {
	for ev := range node.Events() {
		switch ev.Type {
		case swarm.EventPeerConnected:
			logger.Printf("session up: %s (%s)", colorToken(ev.Token), ev.Addr)
			_ = store.NoteSuccess(ev.Token)
		case swarm.EventPeerDisconnected:
			logger.Printf("session down: %s", colorToken(ev.Token))
		}
	}
}

func drainIncoming(node *swarm.Node, logger *log.Logger, debug bool) {
	for env := range node.Incoming() {
		// Replication messages would be handled here; for now only log them.
		if debug {
			logger.Printf("message type=%s from=%s", env.Type, shortToken(env.FromToken))
		}
	}
}

func splitHostList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
