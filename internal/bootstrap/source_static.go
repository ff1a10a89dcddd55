package bootstrap

import "context"

type StaticSource struct {
	Addrs []string
	Label string
}

func (s StaticSource) Name() string {
	if s.Label != "" {
		return s.Label
	}
	return "static"
}

func (s StaticSource) Discover(ctx context.Context) ([]Candidate, error) {
	out := make([]Candidate, 0, len(s.Addrs))
	for _, a := range s.Addrs {
		out = append(out, Candidate{Addr: a})
	}
	return out, nil
}
