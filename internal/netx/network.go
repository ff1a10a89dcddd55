// Package netx abstracts the stream transport the swarm runs over, so the
// session layer and its tests are not welded to TCP.
package netx

import "io"

type Addr string

type Conn interface {
	io.ReadWriteCloser
	RemoteAddr() Addr
}

type Network interface {
	Listen(bindAddr string) (listenAddr Addr, err error)
	Accept() (Conn, error)
	Dial(addr Addr) (Conn, error)
	Close() error
}
