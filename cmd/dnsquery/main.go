// dnsquery is a small diagnostic client: it either sends one DNS query
// to a server over UDP, or runs the iterative walk directly from the
// roots with -iterate.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jroosing/rootwalk/internal/dns"
	"github.com/jroosing/rootwalk/internal/resolvers"
)

func main() {
	var (
		server  = flag.String("server", "127.0.0.1:1053", "DNS server HOST:PORT")
		name    = flag.String("name", "example.com", "Query name")
		qtype   = flag.Int("qtype", 1, "Query type (numeric, A=1)")
		timeout = flag.Duration("timeout", 2*time.Second, "Timeout")
		iterate = flag.Bool("iterate", false, "Resolve iteratively from the roots instead of asking a server")
		quiet   = flag.Bool("quiet", false, "Suppress output (exit status indicates success)")
	)
	flag.Parse()

	if *iterate {
		if err := runIterative(*name, *timeout, *quiet); err != nil {
			if !*quiet {
				fmt.Fprintf(os.Stderr, "dnsquery error: %v\n", err)
			}
			os.Exit(1)
		}
		return
	}

	resp, err := queryUDP(*server, *name, uint16(*qtype), *timeout)
	if err != nil {
		if !*quiet {
			fmt.Fprintf(os.Stderr, "dnsquery error: %v\n", err)
		}
		os.Exit(1)
	}
	if *quiet {
		return
	}

	p, err := dns.ParsePacket(resp)
	if err != nil {
		fmt.Printf("received %d bytes (unparseable)\n", len(resp))
		return
	}

	fmt.Printf("id=%d rcode=%d answers=%d authorities=%d additionals=%d\n",
		p.Header.ID,
		p.Header.Flags.RCode,
		len(p.Answers),
		len(p.Authorities),
		len(p.Additionals),
	)

	rows := make([]string, 0, len(p.Answers))
	for _, rr := range p.Answers {
		rows = append(rows, formatRR(rr))
	}
	sort.Strings(rows)
	for _, s := range rows {
		fmt.Println(s)
	}
}

func runIterative(name string, timeout time.Duration, quiet bool) error {
	r := resolvers.NewIterativeResolver(
		&resolvers.UDPExchanger{Timeout: timeout},
		resolvers.IterativeOptions{},
	)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	set, err := r.Resolve(ctx, name)
	if err != nil {
		return err
	}
	if quiet {
		return nil
	}
	for _, cname := range set.CNAMEs {
		fmt.Printf("CNAME %s\n", cname)
	}
	for _, ip := range set.IPv4 {
		fmt.Printf("A     %s\n", ip)
	}
	for _, ip := range set.IPv6 {
		fmt.Printf("AAAA  %s\n", ip)
	}
	return nil
}

func queryUDP(server, name string, qtype uint16, timeout time.Duration) ([]byte, error) {
	addr, err := net.ResolveUDPAddr("udp", server)
	if err != nil {
		return nil, err
	}
	c, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	reqBytes, err := buildQuery(name, qtype)
	if err != nil {
		return nil, err
	}
	_ = c.SetDeadline(time.Now().Add(timeout))
	if _, err := c.Write(reqBytes); err != nil {
		return nil, err
	}
	buf := make([]byte, dns.MaxIncomingDNSMessageSize)
	n, err := c.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func buildQuery(name string, qtype uint16) ([]byte, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("name required")
	}
	p := dns.Packet{
		Header: dns.Header{
			ID:    uint16(rand.Uint32()),
			Flags: dns.Flags{RD: true},
		},
		Questions: []dns.Question{
			{Name: strings.TrimSuffix(name, "."), Type: qtype, Class: uint16(dns.ClassIN)},
		},
	}
	return p.Marshal()
}

func formatRR(rr dns.Record) string {
	switch data := rr.Data.(type) {
	case dns.ARData:
		return fmt.Sprintf("A     %s %d %s", rr.Name, rr.TTL, data.Addr)
	case dns.AAAARData:
		return fmt.Sprintf("AAAA  %s %d %s", rr.Name, rr.TTL, data.Addr)
	case dns.NameRData:
		return fmt.Sprintf("T%-4d %s %d %s", rr.Type, rr.Name, rr.TTL, data.Target)
	default:
		return fmt.Sprintf("T%-4d %s %d <opaque>", rr.Type, rr.Name, rr.TTL)
	}
}
