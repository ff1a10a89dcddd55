package discovery

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

// nameSuffix is the fixed domain all feeds rendezvous under.
const nameSuffix = "dat.local"

// hexNameLen is how much of the hex-encoded discovery key ends up in the
// name: 20 bytes, 40 characters.
const hexNameLen = 40

// rendezvousName derives the deterministic DNS name peers query and answer
// under. A failure here means a broken discovery key, not a runtime
// condition; callers abort startup on it.
func rendezvousName(discoveryKey []byte) (string, error) {
	hexKey := hex.EncodeToString(discoveryKey)
	if len(hexKey) < hexNameLen {
		return "", fmt.Errorf("discovery key too short: %d bytes", len(discoveryKey))
	}

	name := dns.Fqdn(hexKey[:hexNameLen] + "." + nameSuffix)
	if _, ok := dns.IsDomainName(name); !ok {
		return "", fmt.Errorf("invalid rendezvous name %q", name)
	}
	return name, nil
}

// equalName compares DNS names per standard domain-name equality:
// case-insensitive ASCII, no further normalization.
func equalName(a, b string) bool {
	return strings.EqualFold(dns.Fqdn(a), dns.Fqdn(b))
}
