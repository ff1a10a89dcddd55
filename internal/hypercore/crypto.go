// Package hypercore holds the key material helpers for a feed: the ed25519
// keypair behind a dat:// URL, the discovery-key hash peers rendezvous on,
// and the per-process token used to recognize our own broadcasts.
package hypercore

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// discoveryKeyName is the fixed message hashed under the feed's public key.
const discoveryKeyName = "hypercore"

// Keypair generates a fresh feed keypair.
func Keypair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate keypair: %w", err)
	}
	return pub, priv, nil
}

// DiscoveryKey derives the 32-byte rendezvous hash for a public key:
// BLAKE2b-256 keyed with the public key over the string "hypercore".
// Knowing the discovery key does not reveal the public key.
func DiscoveryKey(pub []byte) ([]byte, error) {
	h, err := blake2b.New256(pub)
	if err != nil {
		return nil, fmt.Errorf("derive discovery key: %w", err)
	}
	h.Write([]byte(discoveryKeyName))
	return h.Sum(nil), nil
}

// RandomToken returns an opaque identity string, unique per process with
// overwhelming probability.
func RandomToken() (string, error) {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	sum := sha256.Sum256(seed[:])
	return base64.StdEncoding.EncodeToString(sum[:]), nil
}
