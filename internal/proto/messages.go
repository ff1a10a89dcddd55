// Package proto defines the messages exchanged over an established session.
package proto

import "encoding/json"

type MessageType string

const (
	MsgHello MessageType = "hello"
)

type Envelope struct {
	Type      MessageType     `json:"type"`
	FromToken string          `json:"from_token"`
	Payload   json.RawMessage `json:"payload"`
}

// Hello is exchanged once per connection, right after the transport is
// secured.
type Hello struct {
	Token    string `json:"token"`
	Listen   string `json:"listen"`
	Protocol string `json:"protocol"`
}

// HandshakePayload rides inside the Noise handshake itself, so a peer's token
// is bound to its static key before any envelope flows.
type HandshakePayload struct {
	Token string `json:"token"`
}
