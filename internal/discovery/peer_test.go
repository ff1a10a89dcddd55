package discovery

import (
	"encoding/base64"
	"errors"
	"net"
	"testing"
)

func TestPeerFieldsRoundTrip(t *testing.T) {
	orig := PeerRecord{
		Addr:  net.IPv4(192, 168, 1, 23).To4(),
		Port:  40001,
		Token: "tok-roundtrip",
	}

	dec, err := decodeTXTFields(orig.txtFields())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !dec.Addr.Equal(orig.Addr) {
		t.Errorf("addr = %v, want %v", dec.Addr, orig.Addr)
	}
	if dec.Port != orig.Port {
		t.Errorf("port = %d, want %d", dec.Port, orig.Port)
	}
	if dec.Token != orig.Token {
		t.Errorf("token = %q, want %q", dec.Token, orig.Token)
	}
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	local := PeerRecord{Addr: net.IPv4zero.To4(), Port: 7000, Token: "tok-x"}
	fields := append([]string{"version=2", "junk"}, local.txtFields()...)
	fields = append(fields, "color=green")

	dec, err := decodeTXTFields(fields)
	if err != nil {
		t.Fatalf("decode with extra fields: %v", err)
	}
	if dec.Token != "tok-x" || dec.Port != 7000 {
		t.Fatalf("unexpected record %v", dec)
	}
}

func TestDecodeMalformed(t *testing.T) {
	goodPeers := "peers=" + base64.StdEncoding.EncodeToString([]byte{10, 0, 0, 1, 0x1b, 0x58})

	cases := []struct {
		name   string
		fields []string
	}{
		{"empty", nil},
		{"missing token", []string{goodPeers}},
		{"missing peers", []string{"token=abc"}},
		{"unrelated only", []string{"foo=bar", "baz=quux"}},
		{"duplicate token", []string{"token=a", "token=b", goodPeers}},
		{"duplicate peers", []string{"token=a", goodPeers, goodPeers}},
		{"empty token", []string{"token=", goodPeers}},
		{"bad base64", []string{"token=abc", "peers=!!!not-base64!!!"}},
		{"payload too short", []string{"token=abc", "peers=" + base64.StdEncoding.EncodeToString([]byte{1, 2, 3})}},
		{"payload too long", []string{"token=abc", "peers=" + base64.StdEncoding.EncodeToString(make([]byte, 16))}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := decodeTXTFields(tc.fields)
			if !errors.Is(err, ErrMalformedPayload) {
				t.Fatalf("err = %v, want ErrMalformedPayload", err)
			}
		})
	}
}

func TestEncodeUnspecifiedAddr(t *testing.T) {
	// The local record always advertises 0.0.0.0; make sure that survives
	// the codec instead of turning into garbage.
	local := PeerRecord{Addr: net.IPv4zero.To4(), Port: 12345, Token: "me"}
	dec, err := decodeTXTFields(local.txtFields())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !dec.Addr.IsUnspecified() {
		t.Fatalf("addr = %v, want unspecified", dec.Addr)
	}
	if dec.Port != 12345 {
		t.Fatalf("port = %d, want 12345", dec.Port)
	}
}
