package swarm

type EventType string

const (
	EventPeerConnected    EventType = "peer_connected"
	EventPeerDisconnected EventType = "peer_disconnected"
)

type Event struct {
	Type  EventType
	Token string
	Addr  string
}

func (n *Node) emit(e Event) {
	select {
	case n.events <- e:
	default:
		// drop rather than block session setup on a slow listener
	}
}
