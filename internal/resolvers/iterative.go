package resolvers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"strconv"

	"github.com/jroosing/rootwalk/internal/dns"
)

// MaxDepth is the default recursion budget for one resolution. Every
// recursive step (CNAME chase, glue descent, nameserver lookup) spends
// one unit; hitting zero fails with ErrDepthExceeded.
const MaxDepth = 20

// RootServers lists the IPv4 addresses of the 13 well-known root name
// servers (a through m.root-servers.net). A resolution starts at one of
// these, picked uniformly at random.
var RootServers = []string{
	"198.41.0.4",     // a
	"170.247.170.2",  // b
	"192.33.4.12",    // c
	"199.7.91.13",    // d
	"192.203.230.10", // e
	"192.5.5.241",    // f
	"192.112.36.4",   // g
	"198.97.190.53",  // h
	"192.36.148.17",  // i
	"192.58.128.30",  // j
	"193.0.14.129",   // k
	"199.7.83.42",    // l
	"202.12.27.33",   // m
}

// IterativeResolver walks the public DNS hierarchy without recursion
// upstream: it issues non-recursive queries starting at a root server and
// follows referrals (root, TLD, authoritative) until it holds addresses
// for the query name.
//
// For every response the walk proceeds through the same sequence:
//
//  1. Accept A/AAAA answers matching the query name.
//  2. Otherwise chase the first CNAME answer, at the same server.
//  3. Otherwise descend into the referral: try each glue address from the
//     additional section in wire order.
//  4. With glue exhausted, resolve each authority NS name from a root,
//     then retry the query against the addresses obtained.
//  5. All branches dry means ErrNoAnswer for this branch.
//
// Candidate servers are tried sequentially in wire order. A malformed or
// failed exchange only abandons its branch; the walk moves to the next
// candidate. IPv6 glue is decoded but not dialed.
//
// The resolver holds no per-request state and is safe for concurrent use.
type IterativeResolver struct {
	exch     Exchanger
	roots    []string
	maxDepth int
	port     int
	ednsSize uint16
	logger   *slog.Logger
}

// IterativeOptions configures an IterativeResolver. Zero values select
// the defaults noted on each field.
type IterativeOptions struct {
	Roots       []string // Root server IPs (default RootServers)
	MaxDepth    int      // Recursion budget (default MaxDepth)
	Port        int      // Upstream DNS port (default 53)
	EDNSUDPSize uint16   // OPT payload advertised upstream (default 4096)
	Logger      *slog.Logger
}

// NewIterativeResolver creates a resolver that exchanges datagrams
// through exch.
func NewIterativeResolver(exch Exchanger, opts IterativeOptions) *IterativeResolver {
	r := &IterativeResolver{
		exch:     exch,
		roots:    opts.Roots,
		maxDepth: opts.MaxDepth,
		port:     opts.Port,
		ednsSize: opts.EDNSUDPSize,
		logger:   opts.Logger,
	}
	if len(r.roots) == 0 {
		r.roots = RootServers
	}
	if r.maxDepth <= 0 {
		r.maxDepth = MaxDepth
	}
	if r.port <= 0 {
		r.port = 53
	}
	if opts.EDNSUDPSize == 0 {
		r.ednsSize = dns.EDNSMaxUDPPayloadSize
	}
	return r
}

// Resolve walks the hierarchy for qname starting at a random root.
func (r *IterativeResolver) Resolve(ctx context.Context, qname string) (ResolvedSet, error) {
	return r.resolve(ctx, dns.NormalizeName(qname), r.pickRoot(), r.maxDepth)
}

// ResolveFrom walks the hierarchy for qname starting at the given server
// with an explicit recursion budget. A budget of zero fails with
// ErrDepthExceeded before any network activity.
func (r *IterativeResolver) ResolveFrom(ctx context.Context, qname, server string, depth int) (ResolvedSet, error) {
	return r.resolve(ctx, dns.NormalizeName(qname), server, depth)
}

// Close implements Resolver. The iterative walk holds no resources.
func (r *IterativeResolver) Close() error { return nil }

func (r *IterativeResolver) pickRoot() string {
	return r.roots[rand.Intn(len(r.roots))]
}

// resolve is one step of the walk: query server for qname, then dispatch
// on what came back. depth is spent before any network activity so a zero
// budget can never reach the wire.
func (r *IterativeResolver) resolve(ctx context.Context, qname, server string, depth int) (ResolvedSet, error) {
	if depth <= 0 {
		return ResolvedSet{}, ErrDepthExceeded
	}
	if err := ctx.Err(); err != nil {
		return ResolvedSet{}, err
	}
	r.logStep(ctx, qname, server, depth)

	resp, err := r.query(ctx, qname, server)
	if err != nil {
		// Failed or malformed exchange: this branch is dead. The caller
		// moves on to its next candidate server.
		return ResolvedSet{}, err
	}

	answers := resp.Answers
	if resp.Header.Flags.RCode != dns.RCodeNoError {
		// The server answered but refused or errored. Treat its answer
		// section as empty and fall through to referral handling.
		answers = nil
	}

	// AcceptAnswer: addresses for the query name itself.
	if set, ok := acceptAnswers(answers, qname); ok {
		return set, nil
	}

	// FollowCname: same server, new name. Referral handling on the next
	// step covers servers that cannot follow the alias themselves.
	if target, ok := firstCNAME(answers); ok {
		set, err := r.resolve(ctx, dns.NormalizeName(target), server, depth-1)
		if err != nil {
			return ResolvedSet{}, err
		}
		set.CNAMEs = append([]string{dns.NormalizeName(target)}, set.CNAMEs...)
		return set, nil
	}

	nsNames, glue4 := referralCandidates(resp)

	// TryGlue: glue addresses first, in wire order, whether or not they
	// match an authority by name. Cheapest path down the hierarchy.
	for _, ip := range glue4 {
		set, err := r.resolve(ctx, qname, ip.String(), depth-1)
		if err == nil {
			return set, nil
		}
		if stop := branchAbort(ctx, err); stop != nil {
			return ResolvedSet{}, stop
		}
	}

	// ResolveNS: no usable glue. Resolve each authority nameserver from
	// a root, then point the original question at the addresses found.
	for _, ns := range nsNames {
		nsSet, err := r.resolve(ctx, dns.NormalizeName(ns), r.pickRoot(), depth-1)
		if err != nil {
			if stop := branchAbort(ctx, err); stop != nil {
				return ResolvedSet{}, stop
			}
			continue
		}
		for _, ip := range nsSet.IPv4 {
			set, err := r.resolve(ctx, qname, ip.String(), depth-1)
			if err == nil {
				return set, nil
			}
			if stop := branchAbort(ctx, err); stop != nil {
				return ResolvedSet{}, stop
			}
		}
	}

	return ResolvedSet{}, fmt.Errorf("%w: %s", ErrNoAnswer, qname)
}

// branchAbort decides whether a failed candidate ends the whole walk.
// Context cancellation and an exhausted recursion budget are terminal;
// anything else just moves the walk to its next candidate.
func branchAbort(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, ErrDepthExceeded) {
		return err
	}
	return nil
}

// query sends one non-recursive A question for qname to server and
// returns the parsed response. The transaction ID is random; responses
// whose ID or question do not echo the query are rejected as failed
// exchanges.
func (r *IterativeResolver) query(ctx context.Context, qname, server string) (dns.Packet, error) {
	id := uint16(rand.Uint32())
	q := dns.Packet{
		Header: dns.Header{ID: id},
		Questions: []dns.Question{
			{Name: qname, Type: uint16(dns.TypeA), Class: uint16(dns.ClassIN)},
		},
	}
	if r.ednsSize > 0 {
		dns.AddOPT(&q, r.ednsSize)
	}
	queryBytes, err := q.Marshal()
	if err != nil {
		return dns.Packet{}, err
	}

	addr := net.JoinHostPort(server, strconv.Itoa(r.port))
	respBytes, err := r.exch.Exchange(ctx, queryBytes, addr)
	if err != nil {
		return dns.Packet{}, err
	}
	resp, err := dns.ParsePacket(respBytes)
	if err != nil {
		return dns.Packet{}, err
	}
	if resp.Header.ID != id {
		return dns.Packet{}, fmt.Errorf("%w: response id mismatch", ErrRecvFailed)
	}
	if len(resp.Questions) > 0 && !dns.EqualNames(resp.Questions[0].Name, qname) {
		return dns.Packet{}, fmt.Errorf("%w: response question mismatch", ErrRecvFailed)
	}
	return resp, nil
}

// acceptAnswers collects A and AAAA records for qname from the answer
// section. Name comparison is ASCII-case-insensitive.
func acceptAnswers(answers []dns.Record, qname string) (ResolvedSet, bool) {
	var set ResolvedSet
	for _, rr := range answers {
		if !dns.EqualNames(rr.Name, qname) {
			continue
		}
		switch data := rr.Data.(type) {
		case dns.ARData:
			set.IPv4 = append(set.IPv4, data.Addr)
		case dns.AAAARData:
			set.IPv6 = append(set.IPv6, data.Addr)
		default:
			continue
		}
		if set.MinTTL == 0 || rr.TTL < set.MinTTL {
			set.MinTTL = rr.TTL
		}
	}
	return set, len(set.IPv4)+len(set.IPv6) > 0
}

// firstCNAME returns the target of the first CNAME in the answer section.
func firstCNAME(answers []dns.Record) (string, bool) {
	for _, rr := range answers {
		if dns.RecordType(rr.Type) != dns.TypeCNAME {
			continue
		}
		if data, ok := rr.Data.(dns.NameRData); ok {
			return data.Target, true
		}
	}
	return "", false
}

// referralCandidates extracts the delegation from a response: nameserver
// names from the authority section and IPv4 glue from the additional
// section, both in wire order. IPv6 glue is ignored as a destination.
func referralCandidates(resp dns.Packet) (nsNames []string, glue4 []net.IP) {
	for _, rr := range resp.Authorities {
		if dns.RecordType(rr.Type) != dns.TypeNS {
			continue
		}
		if data, ok := rr.Data.(dns.NameRData); ok {
			nsNames = append(nsNames, data.Target)
		}
	}
	for _, rr := range resp.Additionals {
		if dns.RecordType(rr.Type) != dns.TypeA {
			continue
		}
		if data, ok := rr.Data.(dns.ARData); ok {
			glue4 = append(glue4, data.Addr)
		}
	}
	return nsNames, glue4
}

func (r *IterativeResolver) logStep(ctx context.Context, qname, server string, depth int) {
	if r.logger == nil || !r.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	r.logger.DebugContext(ctx, "iterative step", "qname", qname, "server", server, "depth", depth)
}
