// Package server implements the UDP front end of the rootwalk resolver.
//
// Goroutine Model:
//
// The UDP server spawns 1 receiver + N workers per socket, one socket per
// CPU core. All goroutines are coordinated through a shared context:
// cancelled on shutdown signal, checked regularly, exited cleanly.
//
// Error Handling:
//
// Errors are wrapped with context using fmt.Errorf("...: %w", err)
// throughout, preserving error chains while adding operational context.
package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jroosing/rootwalk/internal/dns"
	"github.com/jroosing/rootwalk/internal/resolvers"
)

// DefaultAnswerTTL is used for synthesized answer records when the walk
// did not report a TTL.
const DefaultAnswerTTL = 60

// QueryHandler turns one client datagram into one response datagram:
// parse the query, run the iterative walk, compose the answer.
type QueryHandler struct {
	Logger   *slog.Logger       // Optional logger for debug output
	Resolver resolvers.Resolver // The iterative (or caching) resolver
	Stats    *DNSStats          // Optional statistics collector
	Timeout  time.Duration      // Maximum time for one resolution (default: 8s)
}

// HandleResult contains the outcome of query processing.
type HandleResult struct {
	ResponseBytes []byte     // Serialized DNS response (nil = drop)
	Source        string     // Outcome label (answer, servfail, formerr, ...)
	Parsed        dns.Packet // Parsed request (if ParsedOK is true)
	ParsedOK      bool       // Whether the request was successfully parsed
}

// Handle processes a DNS request and returns a response.
//
// Processing steps:
//  1. Parse the raw request bytes with bounds checking
//  2. Run the resolver under a timeout
//  3. Compose an answer from the resolved set, or an error response
//
// Parse failures yield FORMERR when a header can be salvaged, otherwise
// the datagram is dropped. Resolution failures yield SERVFAIL.
func (h *QueryHandler) Handle(ctx context.Context, src string, reqBytes []byte) HandleResult {
	started := time.Now()
	if h.Stats != nil {
		h.Stats.RecordQuery()
	}

	parsed, err := dns.ParseRequestBounded(reqBytes)
	if err != nil {
		if h.Stats != nil {
			h.Stats.RecordError()
		}
		return h.handleParseError(reqBytes)
	}

	q := parsed.Questions[0]
	set, err := h.resolveWithTimeout(ctx, q.Name)

	var res HandleResult
	if err != nil {
		if h.Stats != nil {
			h.Stats.RecordError()
		}
		res = HandleResult{
			ResponseBytes: mustMarshal(dns.BuildErrorResponse(parsed, dns.RCodeServFail)),
			Source:        "servfail",
			Parsed:        parsed,
			ParsedOK:      true,
		}
	} else {
		if h.Stats != nil {
			h.Stats.RecordAnswered()
		}
		res = HandleResult{
			ResponseBytes: mustMarshal(composeAnswer(parsed, set)),
			Source:        "answer",
			Parsed:        parsed,
			ParsedOK:      true,
		}
	}

	if h.Stats != nil {
		h.Stats.RecordLatency(time.Since(started).Nanoseconds())
	}
	h.logRequest(ctx, src, parsed, len(reqBytes), res.Source)
	return res
}

// handleParseError attempts to build a FORMERR response from a malformed
// request. Returns a nil response (drop) if even the header is unreadable.
func (h *QueryHandler) handleParseError(reqBytes []byte) HandleResult {
	resp := tryBuildErrorFromRaw(reqBytes, dns.RCodeFormErr)
	if resp == nil {
		return HandleResult{Source: "parse-error"}
	}
	return HandleResult{ResponseBytes: resp, Source: "formerr"}
}

// resolveWithTimeout runs the resolver with a timeout.
//
// Design note: the walk runs in its own goroutine so a slow traversal
// cannot pin a server worker past the deadline; the goroutine observes
// the cancelled context at its next exchange and unwinds on its own.
func (h *QueryHandler) resolveWithTimeout(ctx context.Context, qname string) (resolvers.ResolvedSet, error) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)

	type outcome struct {
		set resolvers.ResolvedSet
		err error
	}
	resCh := make(chan outcome, 1)
	go func() {
		defer cancel()
		set, err := h.Resolver.Resolve(ctx, qname)
		resCh <- outcome{set: set, err: err}
	}()

	select {
	case <-ctx.Done():
		return resolvers.ResolvedSet{}, ctx.Err()
	case r := <-resCh:
		return r.set, r.err
	}
}

// composeAnswer builds the client response: question echoed, the CNAME
// chain first, then the address records the client asked for, named after
// the final canonical name. A records are included for A questions, AAAA
// records for AAAA questions; other question types get the chain only.
func composeAnswer(req dns.Packet, set resolvers.ResolvedSet) dns.Packet {
	q := req.Questions[0]
	ttl := set.MinTTL
	if ttl == 0 {
		ttl = DefaultAnswerTTL
	}

	answers := make([]dns.Record, 0, len(set.CNAMEs)+len(set.IPv4)+len(set.IPv6))
	owner := q.Name
	for _, target := range set.CNAMEs {
		answers = append(answers, dns.Record{
			Name:  owner,
			Type:  uint16(dns.TypeCNAME),
			Class: q.Class,
			TTL:   ttl,
			Data:  dns.NameRData{Target: target},
		})
		owner = target
	}

	switch dns.RecordType(q.Type) {
	case dns.TypeA:
		for _, ip := range set.IPv4 {
			answers = append(answers, dns.Record{
				Name:  owner,
				Type:  uint16(dns.TypeA),
				Class: q.Class,
				TTL:   ttl,
				Data:  dns.ARData{Addr: ip},
			})
		}
	case dns.TypeAAAA:
		for _, ip := range set.IPv6 {
			answers = append(answers, dns.Record{
				Name:  owner,
				Type:  uint16(dns.TypeAAAA),
				Class: q.Class,
				TTL:   ttl,
				Data:  dns.AAAARData{Addr: ip},
			})
		}
	}

	return dns.Packet{
		Header: dns.Header{
			ID: req.Header.ID,
			Flags: dns.Flags{
				QR: true,
				RD: req.Header.Flags.RD,
				RA: true,
			},
		},
		Questions: req.Questions,
		Answers:   answers,
	}
}

// logRequest logs DNS request details at debug level with a per-request
// trace id, so interleaved walks can be told apart in the logs.
func (h *QueryHandler) logRequest(ctx context.Context, src string, parsed dns.Packet, reqLen int, source string) {
	if h.Logger == nil || !h.Logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	qname := "<no-question>"
	qtype := -1
	if len(parsed.Questions) > 0 {
		qname = parsed.Questions[0].Name
		qtype = int(parsed.Questions[0].Type)
	}
	h.Logger.DebugContext(
		ctx,
		"dns request",
		"trace", uuid.New().String()[:8],
		"src", src,
		"id", int(parsed.Header.ID),
		"qname", qname,
		"qtype", qtype,
		"bytes", reqLen,
		"source", source,
	)
}

// mustMarshal serializes a DNS packet, returning nil on error.
func mustMarshal(p dns.Packet) []byte {
	b, err := p.Marshal()
	if err != nil {
		return nil
	}
	return b
}

// tryBuildErrorFromRaw attempts to construct an error response from raw
// bytes when full parsing failed, using whatever header and question can
// still be extracted. Returns nil if even the header cannot be parsed.
func tryBuildErrorFromRaw(reqBytes []byte, rcode dns.RCode) []byte {
	b := dns.NewReadBuffer(reqBytes)
	h, err := dns.ParseHeader(b)
	if err != nil {
		return nil
	}

	var questions []dns.Question
	if h.QDCount > 0 {
		if q, err := dns.ParseQuestion(b); err == nil {
			questions = []dns.Question{q}
		}
	}

	p := dns.Packet{Header: dns.Header{ID: h.ID, Flags: h.Flags}, Questions: questions}
	out, _ := dns.BuildErrorResponse(p, rcode).Marshal()
	return out
}
