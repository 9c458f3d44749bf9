package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/rootwalk/internal/dns"
	"github.com/jroosing/rootwalk/internal/resolvers"
)

// startTestServer runs a UDPServer on a loopback socket and returns its
// address.
func startTestServer(t *testing.T, h *QueryHandler) string {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	srv := &UDPServer{Handler: h, WorkersPerSocket: 4}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.RunOnConn(ctx, conn)
	}()
	t.Cleanup(func() {
		cancel()
		_ = conn.Close()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Log("udp server did not stop in time")
		}
	})
	return conn.LocalAddr().String()
}

func queryServer(t *testing.T, addr string, req []byte) []byte {
	t.Helper()
	c, err := net.Dial("udp", addr)
	require.NoError(t, err)
	defer c.Close()

	_ = c.SetDeadline(time.Now().Add(2 * time.Second))
	_, err = c.Write(req)
	require.NoError(t, err)

	buf := make([]byte, 4096)
	n, err := c.Read(buf)
	require.NoError(t, err)
	return buf[:n]
}

func TestUDPServerEndToEnd(t *testing.T) {
	h := &QueryHandler{
		Resolver: &stubResolver{set: resolvers.ResolvedSet{
			IPv4:   []net.IP{net.IPv4(93, 184, 216, 34)},
			MinTTL: 60,
		}},
		Stats: NewDNSStats(),
	}
	addr := startTestServer(t, h)

	respBytes := queryServer(t, addr, buildQuery(t, "www.example.com", uint16(dns.TypeA)))

	resp, err := dns.ParsePacket(respBytes)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), resp.Header.ID)
	assert.True(t, resp.Header.Flags.QR)
	require.Len(t, resp.Answers, 1)
	assert.Equal(t, "93.184.216.34", resp.Answers[0].Data.(dns.ARData).Addr.String())
}

func TestUDPServerServfailEndToEnd(t *testing.T) {
	h := &QueryHandler{Resolver: &stubResolver{err: resolvers.ErrNoAnswer}}
	addr := startTestServer(t, h)

	respBytes := queryServer(t, addr, buildQuery(t, "nx.example.com", uint16(dns.TypeA)))

	resp, err := dns.ParsePacket(respBytes)
	require.NoError(t, err)
	assert.Equal(t, dns.RCodeServFail, resp.Header.Flags.RCode)
}

func TestUDPServerTruncatesWithoutEDNS(t *testing.T) {
	// 60 addresses exceed the classic 512-byte limit; without EDNS in
	// the query the response must come back truncated.
	set := resolvers.ResolvedSet{MinTTL: 60}
	for i := 0; i < 60; i++ {
		set.IPv4 = append(set.IPv4, net.IPv4(192, 0, 2, byte(i)))
	}
	h := &QueryHandler{Resolver: &stubResolver{set: set}}
	addr := startTestServer(t, h)

	respBytes := queryServer(t, addr, buildQuery(t, "big.example.com", uint16(dns.TypeA)))
	require.LessOrEqual(t, len(respBytes), 512)

	resp, err := dns.ParsePacket(respBytes)
	require.NoError(t, err)
	assert.True(t, resp.Header.Flags.TC)
	assert.Empty(t, resp.Answers)
}
