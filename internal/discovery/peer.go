package discovery

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrMalformedPayload is returned when TXT fields do not carry a valid peer
// payload. Malformed traffic is expected on a shared multicast channel, so
// callers treat this as "not ours" rather than as a fault.
var ErrMalformedPayload = errors.New("malformed peer payload")

const (
	tokenField = "token"
	peersField = "peers"

	// 4 address octets + big-endian port.
	peersPayloadLen = 6
)

// PeerRecord describes one discoverable peer. The local record is built once
// at startup with an unspecified address (we do not know how others see us);
// remote records are decoded from inbound answers, one per sighting.
type PeerRecord struct {
	Addr  net.IP
	Port  uint16
	Token string
}

func (r PeerRecord) String() string {
	return fmt.Sprintf("%s:%d (%s)", r.Addr, r.Port, r.Token)
}

// txtFields renders the record as the two TXT strings carried in an answer.
func (r PeerRecord) txtFields() []string {
	return []string{
		tokenField + "=" + r.Token,
		peersField + "=" + r.encodePeers(),
	}
}

func (r PeerRecord) encodePeers() string {
	var raw [peersPayloadLen]byte
	if ip4 := r.Addr.To4(); ip4 != nil {
		copy(raw[:4], ip4)
	}
	binary.BigEndian.PutUint16(raw[4:], r.Port)
	return base64.StdEncoding.EncodeToString(raw[:])
}

// decodeTXTFields extracts a PeerRecord from the string values of a TXT
// record. Only "token" and "peers" entries count; anything else is ignored so
// future senders can add fields. Both entries must be present exactly once.
// Input is attacker-controlled: every failure path returns ErrMalformedPayload.
func decodeTXTFields(fields []string) (PeerRecord, error) {
	var token, peers string
	var haveToken, havePeers bool

	for _, f := range fields {
		key, val, ok := strings.Cut(f, "=")
		if !ok {
			continue
		}
		switch key {
		case tokenField:
			if haveToken {
				return PeerRecord{}, ErrMalformedPayload
			}
			token, haveToken = val, true
		case peersField:
			if havePeers {
				return PeerRecord{}, ErrMalformedPayload
			}
			peers, havePeers = val, true
		}
	}

	if !haveToken || !havePeers || token == "" {
		return PeerRecord{}, ErrMalformedPayload
	}

	raw, err := base64.StdEncoding.DecodeString(peers)
	if err != nil || len(raw) != peersPayloadLen {
		return PeerRecord{}, ErrMalformedPayload
	}

	return PeerRecord{
		Addr:  net.IPv4(raw[0], raw[1], raw[2], raw[3]).To4(),
		Port:  binary.BigEndian.Uint16(raw[4:]),
		Token: token,
	}, nil
}
