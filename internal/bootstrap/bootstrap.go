package bootstrap

import (
	"context"
	"math/rand"
	"time"

	"github.com/adzialocha/toy-hypercore/internal/netx"
	"github.com/adzialocha/toy-hypercore/internal/telemetry"
)

// Dialer is the slice of the swarm node that bootstrap needs.
type Dialer interface {
	ConnectTo(addr netx.Addr) error
	HasPeer(token string) bool
}

type Config struct {
	MaxConnectPerRound int
	Logger             telemetry.Logger
}

func DefaultConfig() Config {
	return Config{
		MaxConnectPerRound: 12,
	}
}

// RunOnce gathers candidates from sources and attempts connections.
// Dial failures are reported per source but never abort the round.
func RunOnce(ctx context.Context, d Dialer, cfg Config, sources ...PeerSource) int {
	if cfg.MaxConnectPerRound <= 0 {
		cfg.MaxConnectPerRound = DefaultConfig().MaxConnectPerRound
	}

	cands := make([]Candidate, 0, 64)
	for _, s := range sources {
		addrs, err := s.Discover(ctx)
		if err != nil {
			logf(cfg, "[bootstrap] %s discover error: %v", s.Name(), err)
			continue
		}
		cands = append(cands, addrs...)
	}

	// Shuffle to avoid everyone hitting the same bootstrap in the same order.
	rand.Shuffle(len(cands), func(i, j int) { cands[i], cands[j] = cands[j], cands[i] })

	seen := make(map[string]struct{}, len(cands))
	attempted := 0

	for _, c := range cands {
		if attempted >= cfg.MaxConnectPerRound {
			break
		}
		if ctx.Err() != nil {
			break
		}
		if _, ok := seen[c.Addr]; ok {
			continue
		}
		seen[c.Addr] = struct{}{}

		if c.Token != "" && d.HasPeer(c.Token) {
			continue
		}

		if err := d.ConnectTo(netx.Addr(c.Addr)); err != nil {
			logf(cfg, "[bootstrap] dial %s: %v", c.Addr, err)
			continue
		}
		attempted++
	}
	return attempted
}

// Run repeats RunOnce on the given interval until ctx is cancelled.
func Run(ctx context.Context, d Dialer, cfg Config, interval time.Duration, sources ...PeerSource) {
	t := time.NewTicker(interval)
	defer t.Stop()

	RunOnce(ctx, d, cfg, sources...)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			RunOnce(ctx, d, cfg, sources...)
		}
	}
}

func logf(cfg Config, format string, args ...any) {
	if cfg.Logger != nil {
		cfg.Logger.Printf(format, args...)
	}
}
