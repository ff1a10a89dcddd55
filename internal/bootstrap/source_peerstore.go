package bootstrap

import (
	"context"
	"net"
	"strconv"

	"github.com/adzialocha/toy-hypercore/internal/storage/peerbolt"
)

type PeerStoreSource struct {
	Store       *peerbolt.Store
	MaxFailures int
	Limit       int
}

func (s PeerStoreSource) Name() string { return "peerstore" }

func (s PeerStoreSource) Discover(ctx context.Context) ([]Candidate, error) {
	limit := s.Limit
	if limit <= 0 {
		limit = 32
	}
	recs, err := s.Store.Candidates(limit, s.MaxFailures)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(recs))
	for _, r := range recs {
		out = append(out, Candidate{
			Token: r.Token,
			Addr:  net.JoinHostPort(r.Addr, strconv.Itoa(int(r.Port))),
		})
	}
	return out, nil
}
