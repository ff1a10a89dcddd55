package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseDatURL(t *testing.T) {
	hexKey := strings.Repeat("ab", 32)

	key, err := parseDatURL("dat://" + hexKey)
	if err != nil {
		t.Fatalf("parseDatURL: %v", err)
	}
	if !bytes.Equal(key, bytes.Repeat([]byte{0xab}, 32)) {
		t.Fatalf("key = %x", key)
	}

	// Bare hex without the scheme is accepted too.
	if _, err := parseDatURL(hexKey); err != nil {
		t.Fatalf("parseDatURL without scheme: %v", err)
	}

	for _, bad := range []string{
		"",
		"dat://",
		"dat://zzzz",
		"dat://" + strings.Repeat("ab", 16),
		"dat://" + strings.Repeat("ab", 33),
	} {
		if _, err := parseDatURL(bad); err == nil {
			t.Errorf("parseDatURL(%q) accepted", bad)
		}
	}
}

func TestDatURLRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	url := datURL(key)
	if !strings.HasPrefix(url, "dat://") {
		t.Fatalf("url = %q", url)
	}
	back, err := parseDatURL(url)
	if err != nil {
		t.Fatalf("parseDatURL: %v", err)
	}
	if !bytes.Equal(back, key) {
		t.Fatalf("round trip: %x", back)
	}
}

func TestPickColorStable(t *testing.T) {
	if pickColor("tok-A") != pickColor("tok-A") {
		t.Fatalf("color not stable")
	}
	if pickColor("") != ansiReset {
		t.Fatalf("empty string should map to reset")
	}
}
