package discovery

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// Well-known mDNS multicast group.
const (
	mdnsAddress = "224.0.0.251"
	mdnsPort    = 5353
)

// maxDatagramSize bounds a single inbound mDNS packet.
const maxDatagramSize = 65536

// Transport sends and receives raw datagrams on the discovery channel. The
// engine treats it as a black box: one outbound sender, one inbound stream.
// Send must be safe to call concurrently (broadcaster and classifier share it).
type Transport interface {
	Send(pkt []byte, to *net.UDPAddr) error
	Recv(buf []byte) (n int, from *net.UDPAddr, err error)
	// Group is the address broadcasts are sent to.
	Group() *net.UDPAddr
	Close() error
}

// multicastTransport is the production Transport: a UDP socket bound to the
// mDNS port, joined to the group for the engine's lifetime.
type multicastTransport struct {
	conn  *net.UDPConn
	pconn *ipv4.PacketConn
	group *net.UDPAddr
}

// openMulticast binds the mDNS port and joins the group on every eligible
// interface. Multicast loopback stays on so same-host processes hear each
// other (and ourselves; the classifier suppresses the echo by token).
func openMulticast() (*multicastTransport, error) {
	group := &net.UDPAddr{IP: net.ParseIP(mdnsAddress), Port: mdnsPort}

	// The mDNS port is shared with any other resolver on the machine.
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				_ = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
				// SO_REUSEPORT is not available everywhere, but it's fine if it fails.
				_ = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
		},
	}

	conn, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", mdnsPort))
	if err != nil {
		return nil, fmt.Errorf("mdns listen: %w", err)
	}
	udpConn, ok := conn.(*net.UDPConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("mdns listen: not a UDPConn")
	}

	pconn := ipv4.NewPacketConn(udpConn)

	joined := 0
	ifaces, _ := net.Interfaces()
	for _, it := range ifaces {
		if it.Flags&net.FlagUp == 0 || it.Flags&net.FlagMulticast == 0 {
			continue
		}
		if err := pconn.JoinGroup(&it, &net.UDPAddr{IP: group.IP}); err == nil {
			joined++
		}
	}
	if joined == 0 {
		udpConn.Close()
		return nil, fmt.Errorf("mdns join %s: no usable multicast interface", group.IP)
	}

	_ = pconn.SetMulticastLoopback(true)

	return &multicastTransport{
		conn:  udpConn,
		pconn: pconn,
		group: group,
	}, nil
}

func (t *multicastTransport) Send(pkt []byte, to *net.UDPAddr) error {
	if to == nil {
		to = t.group
	}
	_, err := t.conn.WriteToUDP(pkt, to)
	return err
}

func (t *multicastTransport) Recv(buf []byte) (int, *net.UDPAddr, error) {
	return t.conn.ReadFromUDP(buf)
}

func (t *multicastTransport) Group() *net.UDPAddr { return t.group }

func (t *multicastTransport) Close() error { return t.conn.Close() }
