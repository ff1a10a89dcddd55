// Package bootstrap dials peers known from outside the multicast path:
// addresses given on the command line and peers remembered from earlier runs.
package bootstrap

import "context"

// Candidate is one dialable peer. Token is empty for static addresses,
// where the remote identity is only learned during the handshake.
type Candidate struct {
	Token string
	Addr  string
}

type PeerSource interface {
	// Discover returns candidate peers to connect to.
	Discover(ctx context.Context) ([]Candidate, error)
	Name() string
}
