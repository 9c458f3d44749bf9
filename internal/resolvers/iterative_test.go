package resolvers

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/rootwalk/internal/dns"
)

// exchangeCall records one datagram sent through the script exchanger.
type exchangeCall struct {
	Server string
	QName  string
	QType  uint16
	QClass uint16
	RD     bool
}

// scriptExchanger answers exchanges from a table of canned responses,
// keyed on (server, qname). The response's ID and question are fixed up
// to echo the query, the way a real server would.
type scriptExchanger struct {
	mu      sync.Mutex
	calls   []exchangeCall
	respond func(server, qname string) (dns.Packet, error)
}

func (s *scriptExchanger) Exchange(_ context.Context, query []byte, serverAddr string) ([]byte, error) {
	q, err := dns.ParsePacket(query)
	if err != nil {
		return nil, err
	}
	qname := q.Questions[0].Name

	s.mu.Lock()
	s.calls = append(s.calls, exchangeCall{
		Server: serverAddr,
		QName:  qname,
		QType:  q.Questions[0].Type,
		QClass: q.Questions[0].Class,
		RD:     q.Header.Flags.RD,
	})
	s.mu.Unlock()

	resp, err := s.respond(serverAddr, qname)
	if err != nil {
		return nil, err
	}
	resp.Header.ID = q.Header.ID
	resp.Header.Flags.QR = true
	if len(resp.Questions) == 0 {
		resp.Questions = q.Questions
	}
	return resp.Marshal()
}

func (s *scriptExchanger) callList() []exchangeCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]exchangeCall{}, s.calls...)
}

func aRecord(name string, ip net.IP) dns.Record {
	return dns.Record{
		Name: name, Type: uint16(dns.TypeA), Class: uint16(dns.ClassIN), TTL: 60,
		Data: dns.ARData{Addr: ip},
	}
}

func nsRecord(zone, target string) dns.Record {
	return dns.Record{
		Name: zone, Type: uint16(dns.TypeNS), Class: uint16(dns.ClassIN), TTL: 3600,
		Data: dns.NameRData{Target: target},
	}
}

func cnameRecord(name, target string) dns.Record {
	return dns.Record{
		Name: name, Type: uint16(dns.TypeCNAME), Class: uint16(dns.ClassIN), TTL: 60,
		Data: dns.NameRData{Target: target},
	}
}

func newTestResolver(exch Exchanger) *IterativeResolver {
	return NewIterativeResolver(exch, IterativeOptions{
		Roots: []string{"198.41.0.4"},
	})
}

func TestResolveDirectAnswer(t *testing.T) {
	exch := &scriptExchanger{respond: func(_, qname string) (dns.Packet, error) {
		return dns.Packet{
			Answers: []dns.Record{aRecord(qname, net.IPv4(93, 184, 216, 34))},
		}, nil
	}}
	r := newTestResolver(exch)

	set, err := r.Resolve(context.Background(), "www.example.com")
	require.NoError(t, err)
	require.Len(t, set.IPv4, 1)
	assert.Equal(t, "93.184.216.34", set.IPv4[0].String())
	assert.Empty(t, set.CNAMEs)
	assert.Equal(t, uint32(60), set.MinTTL)
}

func TestResolveRootReferralFollowsGlue(t *testing.T) {
	exch := &scriptExchanger{}
	exch.respond = func(server, qname string) (dns.Packet, error) {
		switch server {
		case "198.41.0.4:53":
			return dns.Packet{
				Authorities: []dns.Record{nsRecord("com", "a.gtld-servers.net")},
				Additionals: []dns.Record{aRecord("a.gtld-servers.net", net.IPv4(192, 5, 6, 30))},
			}, nil
		case "192.5.6.30:53":
			return dns.Packet{
				Answers: []dns.Record{aRecord(qname, net.IPv4(93, 184, 216, 34))},
			}, nil
		}
		return dns.Packet{}, errors.New("unexpected server " + server)
	}
	r := newTestResolver(exch)

	set, err := r.Resolve(context.Background(), "www.example.com")
	require.NoError(t, err)
	require.Len(t, set.IPv4, 1)

	calls := exch.callList()
	require.Len(t, calls, 2)
	// The referral sends the original question to the glue address.
	assert.Equal(t, "192.5.6.30:53", calls[1].Server)
	assert.Equal(t, "www.example.com", calls[1].QName)
	assert.Equal(t, uint16(dns.TypeA), calls[1].QType)
	assert.Equal(t, uint16(dns.ClassIN), calls[1].QClass)
	assert.False(t, calls[1].RD)
}

func TestResolveCNAMEChase(t *testing.T) {
	exch := &scriptExchanger{}
	exch.respond = func(server, qname string) (dns.Packet, error) {
		switch qname {
		case "www.example.com":
			return dns.Packet{
				Answers: []dns.Record{cnameRecord(qname, "edge.example.net")},
			}, nil
		case "edge.example.net":
			return dns.Packet{
				Answers: []dns.Record{aRecord(qname, net.IPv4(203, 0, 113, 7))},
			}, nil
		}
		return dns.Packet{}, errors.New("unexpected qname " + qname)
	}
	r := newTestResolver(exch)

	set, err := r.ResolveFrom(context.Background(), "www.example.com", "203.0.113.53", MaxDepth)
	require.NoError(t, err)
	require.Len(t, set.IPv4, 1)
	assert.Equal(t, "203.0.113.7", set.IPv4[0].String())
	assert.Equal(t, []string{"edge.example.net"}, set.CNAMEs)

	// The alias is chased at the same server.
	calls := exch.callList()
	require.Len(t, calls, 2)
	assert.Equal(t, calls[0].Server, calls[1].Server)
}

func TestResolveNSWithoutGlue(t *testing.T) {
	// The referral names a nameserver but carries no glue; the walk must
	// resolve the nameserver from the root first.
	exch := &scriptExchanger{}
	exch.respond = func(server, qname string) (dns.Packet, error) {
		switch {
		case server == "198.41.0.4:53" && qname == "www.example.com":
			return dns.Packet{
				Authorities: []dns.Record{nsRecord("example.com", "ns1.example-dns.org")},
			}, nil
		case server == "198.41.0.4:53" && qname == "ns1.example-dns.org":
			return dns.Packet{
				Answers: []dns.Record{aRecord(qname, net.IPv4(198, 51, 100, 1))},
			}, nil
		case server == "198.51.100.1:53":
			return dns.Packet{
				Answers: []dns.Record{aRecord(qname, net.IPv4(93, 184, 216, 34))},
			}, nil
		}
		return dns.Packet{}, errors.New("unexpected exchange")
	}
	r := newTestResolver(exch)

	set, err := r.Resolve(context.Background(), "www.example.com")
	require.NoError(t, err)
	require.Len(t, set.IPv4, 1)
	assert.Equal(t, "93.184.216.34", set.IPv4[0].String())

	calls := exch.callList()
	require.Len(t, calls, 3)
	assert.Equal(t, "ns1.example-dns.org", calls[1].QName)
	assert.Equal(t, "198.51.100.1:53", calls[2].Server)
}

func TestResolveGlueTriedInWireOrder(t *testing.T) {
	exch := &scriptExchanger{}
	exch.respond = func(server, qname string) (dns.Packet, error) {
		switch server {
		case "198.41.0.4:53":
			return dns.Packet{
				Authorities: []dns.Record{nsRecord("com", "a.gtld-servers.net")},
				Additionals: []dns.Record{
					aRecord("a.gtld-servers.net", net.IPv4(192, 0, 2, 1)),
					aRecord("b.gtld-servers.net", net.IPv4(192, 0, 2, 2)),
				},
			}, nil
		case "192.0.2.1:53":
			// First glue server times out.
			return dns.Packet{}, ErrExchangeTimeout
		case "192.0.2.2:53":
			return dns.Packet{
				Answers: []dns.Record{aRecord(qname, net.IPv4(93, 184, 216, 34))},
			}, nil
		}
		return dns.Packet{}, errors.New("unexpected server " + server)
	}
	r := newTestResolver(exch)

	set, err := r.Resolve(context.Background(), "www.example.com")
	require.NoError(t, err)
	require.Len(t, set.IPv4, 1)

	calls := exch.callList()
	require.Len(t, calls, 3)
	assert.Equal(t, "192.0.2.1:53", calls[1].Server)
	assert.Equal(t, "192.0.2.2:53", calls[2].Server)
}

func TestResolveMalformedResponseFallsThrough(t *testing.T) {
	bad := &scriptExchanger{}
	bad.respond = func(server, qname string) (dns.Packet, error) {
		switch server {
		case "198.41.0.4:53":
			return dns.Packet{
				Authorities: []dns.Record{nsRecord("com", "a.gtld-servers.net")},
				Additionals: []dns.Record{
					aRecord("a.gtld-servers.net", net.IPv4(192, 0, 2, 1)),
					aRecord("b.gtld-servers.net", net.IPv4(192, 0, 2, 2)),
				},
			}, nil
		case "192.0.2.2:53":
			return dns.Packet{
				Answers: []dns.Record{aRecord(qname, net.IPv4(93, 184, 216, 34))},
			}, nil
		}
		return dns.Packet{}, errors.New("unreachable")
	}
	// Wrap so the first glue server returns undecodable garbage.
	garbage := exchangerFunc(func(ctx context.Context, query []byte, server string) ([]byte, error) {
		if server == "192.0.2.1:53" {
			return []byte{0xC0, 0x0C, 0xC0}, nil
		}
		return bad.Exchange(ctx, query, server)
	})
	r := newTestResolver(garbage)

	set, err := r.Resolve(context.Background(), "www.example.com")
	require.NoError(t, err)
	require.Len(t, set.IPv4, 1)
}

// exchangerFunc adapts a function to the Exchanger interface.
type exchangerFunc func(ctx context.Context, query []byte, server string) ([]byte, error)

func (f exchangerFunc) Exchange(ctx context.Context, query []byte, server string) ([]byte, error) {
	return f(ctx, query, server)
}

func TestResolveNonZeroRcodeTreatedAsEmpty(t *testing.T) {
	exch := &scriptExchanger{}
	exch.respond = func(server, qname string) (dns.Packet, error) {
		switch server {
		case "198.41.0.4:53":
			// REFUSED, but the referral sections are still usable.
			return dns.Packet{
				Header:      dns.Header{Flags: dns.Flags{RCode: dns.RCodeRefused}},
				Answers:     []dns.Record{aRecord(qname, net.IPv4(10, 0, 0, 1))},
				Authorities: []dns.Record{nsRecord("com", "a.gtld-servers.net")},
				Additionals: []dns.Record{aRecord("a.gtld-servers.net", net.IPv4(192, 0, 2, 2))},
			}, nil
		case "192.0.2.2:53":
			return dns.Packet{
				Answers: []dns.Record{aRecord(qname, net.IPv4(93, 184, 216, 34))},
			}, nil
		}
		return dns.Packet{}, errors.New("unexpected server " + server)
	}
	r := newTestResolver(exch)

	set, err := r.Resolve(context.Background(), "www.example.com")
	require.NoError(t, err)
	require.Len(t, set.IPv4, 1)
	// The answer embedded in the REFUSED response must not be accepted.
	assert.Equal(t, "93.184.216.34", set.IPv4[0].String())
}

func TestResolveDepthZeroNoNetwork(t *testing.T) {
	exch := &scriptExchanger{respond: func(string, string) (dns.Packet, error) {
		return dns.Packet{}, errors.New("must not be called")
	}}
	r := newTestResolver(exch)

	_, err := r.ResolveFrom(context.Background(), "example.com", "198.41.0.4", 0)
	assert.ErrorIs(t, err, ErrDepthExceeded)
	assert.Empty(t, exch.callList())
}

func TestResolveReferralLoopExhaustsDepth(t *testing.T) {
	// Every server hands back the same glue-less referral whose
	// nameserver itself needs resolving, forever.
	exch := &scriptExchanger{}
	exch.respond = func(server, qname string) (dns.Packet, error) {
		return dns.Packet{
			Authorities: []dns.Record{nsRecord("test", "ns.loop.test")},
		}, nil
	}
	r := newTestResolver(exch)

	_, err := r.Resolve(context.Background(), "www.loop.test")
	assert.ErrorIs(t, err, ErrDepthExceeded)

	calls := exch.callList()
	assert.LessOrEqual(t, len(calls), MaxDepth)
}

func TestResolveEmptyReferralFails(t *testing.T) {
	exch := &scriptExchanger{respond: func(string, string) (dns.Packet, error) {
		return dns.Packet{}, nil
	}}
	r := newTestResolver(exch)

	_, err := r.Resolve(context.Background(), "www.example.com")
	assert.ErrorIs(t, err, ErrNoAnswer)
}

func TestResolveCaseInsensitiveAnswerMatch(t *testing.T) {
	exch := &scriptExchanger{respond: func(_, qname string) (dns.Packet, error) {
		return dns.Packet{
			Answers: []dns.Record{aRecord("WWW.Example.COM", net.IPv4(93, 184, 216, 34))},
		}, nil
	}}
	r := newTestResolver(exch)

	set, err := r.Resolve(context.Background(), "www.example.com")
	require.NoError(t, err)
	require.Len(t, set.IPv4, 1)
}

func TestResolveIgnoresIPv6GlueAsDestination(t *testing.T) {
	exch := &scriptExchanger{}
	exch.respond = func(server, qname string) (dns.Packet, error) {
		switch server {
		case "198.41.0.4:53":
			return dns.Packet{
				Authorities: []dns.Record{nsRecord("com", "a.gtld-servers.net")},
				Additionals: []dns.Record{
					{Name: "a.gtld-servers.net", Type: uint16(dns.TypeAAAA), Class: uint16(dns.ClassIN), TTL: 60,
						Data: dns.AAAARData{Addr: net.ParseIP("2001:db8::35")}},
					aRecord("a.gtld-servers.net", net.IPv4(192, 0, 2, 9)),
				},
			}, nil
		case "192.0.2.9:53":
			return dns.Packet{
				Answers: []dns.Record{aRecord(qname, net.IPv4(93, 184, 216, 34))},
			}, nil
		}
		return dns.Packet{}, errors.New("unexpected server " + server)
	}
	r := newTestResolver(exch)

	set, err := r.Resolve(context.Background(), "www.example.com")
	require.NoError(t, err)
	require.Len(t, set.IPv4, 1)

	for _, c := range exch.callList() {
		assert.NotContains(t, c.Server, "2001:db8::35")
	}
}

func TestResolveCancelledContext(t *testing.T) {
	exch := &scriptExchanger{respond: func(string, string) (dns.Packet, error) {
		return dns.Packet{}, nil
	}}
	r := newTestResolver(exch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Resolve(ctx, "example.com")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, exch.callList())
}
