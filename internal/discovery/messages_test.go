package discovery

import (
	"net"
	"testing"

	"github.com/miekg/dns"
)

const testName = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa.dat.local."

func TestBuildQuestion(t *testing.T) {
	m := buildQuestion(testName)

	if m.Response {
		t.Fatalf("question marked as response")
	}
	if len(m.Question) != 1 {
		t.Fatalf("question count = %d, want 1", len(m.Question))
	}
	q := m.Question[0]
	if q.Name != testName || q.Qtype != dns.TypeTXT || q.Qclass != dns.ClassINET {
		t.Fatalf("unexpected question %+v", q)
	}
	if len(m.Answer) != 0 {
		t.Fatalf("question carries answers")
	}
}

func TestBuildAnswerRoundTrip(t *testing.T) {
	local := PeerRecord{Addr: net.IPv4zero.To4(), Port: 9091, Token: "tok-answer"}

	packed, err := buildAnswer(testName, local).Pack()
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	var m dns.Msg
	if err := m.Unpack(packed); err != nil {
		t.Fatalf("unpack: %v", err)
	}

	if !m.Response {
		t.Fatalf("answer not marked as response")
	}
	// Responders keep the query section so requesters can match them.
	if len(m.Question) != 1 || !equalName(m.Question[0].Name, testName) {
		t.Fatalf("answer lost its query section: %+v", m.Question)
	}

	rec, ok := decodeResponse(&m)
	if !ok {
		t.Fatalf("answer did not decode")
	}
	if rec.Token != "tok-answer" || rec.Port != 9091 {
		t.Fatalf("decoded %v", rec)
	}
	if !rec.Addr.IsUnspecified() {
		t.Fatalf("advertised addr should be unspecified, got %v", rec.Addr)
	}
}
