package main

import (
	"encoding/hex"
	"fmt"
	"strings"
)

const datURLProtocol = "dat://"

const ansiReset = "\033[0m"

// Some basic, deterministic colors for peer tokens.
var tokenColors = []string{
	"\033[31m", // red
	"\033[32m", // green
	"\033[33m", // yellow
	"\033[34m", // blue
	"\033[35m", // magenta
	"\033[36m", // cyan
}

// parseDatURL extracts the 32-byte public key from a dat:// URL.
func parseDatURL(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), datURLProtocol)
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key is %d bytes, want 32", len(key))
	}
	return key, nil
}

func datURL(publicKey []byte) string {
	return datURLProtocol + hex.EncodeToString(publicKey)
}

func shortToken(tok string) string {
	if len(tok) > 8 {
		return tok[:8]
	}
	return tok
}

// pickColor returns a color based on a stable hash of the string.
func pickColor(s string) string {
	if s == "" {
		return ansiReset
	}
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*16777619 ^ uint32(s[i]) // FNV-ish
	}
	return tokenColors[h%uint32(len(tokenColors))]
}

func colorToken(tok string) string {
	return pickColor(tok) + shortToken(tok) + ansiReset
}
