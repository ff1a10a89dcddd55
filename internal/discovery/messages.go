package discovery

import "github.com/miekg/dns"

// answerTTL is the TTL advertised on our TXT answer, in seconds. Peers re-hear
// us on every broadcast interval anyway, so the exact value matters little.
const answerTTL = 120

// buildQuestion returns the mDNS query for TXT records under name.
func buildQuestion(name string) *dns.Msg {
	m := new(dns.Msg)
	m.Question = []dns.Question{{
		Name:   name,
		Qtype:  dns.TypeTXT,
		Qclass: dns.ClassINET,
	}}
	return m
}

// buildAnswer returns the mDNS response advertising local under name. It
// carries the same query section as the question so requesters can match it,
// plus one TXT record holding the token and peers fields.
func buildAnswer(name string, local PeerRecord) *dns.Msg {
	m := buildQuestion(name)
	m.Response = true
	m.Answer = []dns.RR{&dns.TXT{
		Hdr: dns.RR_Header{
			Name:   name,
			Rrtype: dns.TypeTXT,
			Class:  dns.ClassINET,
			Ttl:    answerTTL,
		},
		Txt: local.txtFields(),
	}}
	return m
}
