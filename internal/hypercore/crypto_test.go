package hypercore

import (
	"bytes"
	"testing"
)

func TestDiscoveryKeyDeterministic(t *testing.T) {
	pub, _, err := Keypair()
	if err != nil {
		t.Fatalf("Keypair: %v", err)
	}

	a, err := DiscoveryKey(pub)
	if err != nil {
		t.Fatalf("DiscoveryKey: %v", err)
	}
	b, err := DiscoveryKey(pub)
	if err != nil {
		t.Fatalf("DiscoveryKey: %v", err)
	}

	if len(a) != 32 {
		t.Fatalf("expected 32-byte discovery key, got %d", len(a))
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("discovery key not deterministic")
	}
	if bytes.Equal(a, pub) {
		t.Fatalf("discovery key must not equal the public key")
	}
}

func TestDiscoveryKeyDiffersPerFeed(t *testing.T) {
	pubA, _, err := Keypair()
	if err != nil {
		t.Fatalf("Keypair: %v", err)
	}
	pubB, _, err := Keypair()
	if err != nil {
		t.Fatalf("Keypair: %v", err)
	}

	a, err := DiscoveryKey(pubA)
	if err != nil {
		t.Fatalf("DiscoveryKey: %v", err)
	}
	b, err := DiscoveryKey(pubB)
	if err != nil {
		t.Fatalf("DiscoveryKey: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatalf("different feeds derived the same discovery key")
	}
}

func TestRandomToken(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 32; i++ {
		tok, err := RandomToken()
		if err != nil {
			t.Fatalf("RandomToken: %v", err)
		}
		if tok == "" {
			t.Fatalf("empty token")
		}
		if _, dup := seen[tok]; dup {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = struct{}{}
	}
}
