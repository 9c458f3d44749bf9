// Package resolvers implements iterative DNS resolution for rootwalk.
//
// Architecture:
//
// The resolution pipeline is built from three pieces:
//
//  1. Exchanger - one-shot UDP question/answer against a single server
//  2. IterativeResolver - walks the DNS hierarchy from a root server,
//     following referrals, glue and CNAME chains
//  3. CachingResolver - optional TTL-aware LRU layer above the walk,
//     keyed on (qname, qtype, qclass), with singleflight deduplication
//
// The iterative walk itself is stateless: nothing survives a single call
// to Resolve, so concurrent client requests never contend in the core.
package resolvers

import (
	"context"
	"errors"
	"net"
)

var (
	// ErrDepthExceeded indicates the referral chain outran the recursion
	// budget before producing an address.
	ErrDepthExceeded = errors.New("resolver: max recursion depth reached")

	// ErrNoAnswer indicates every referral branch was exhausted without
	// obtaining an address for the query name.
	ErrNoAnswer = errors.New("resolver: no valid answer found")
)

// ResolvedSet is the outcome of a successful resolution: the addresses
// obtained for the query name and the CNAME chain traversed to get there.
// At least one of IPv4 and IPv6 is non-empty on success.
type ResolvedSet struct {
	IPv4   []net.IP
	IPv6   []net.IP
	CNAMEs []string

	// MinTTL is the smallest TTL among the accepted address records,
	// bounding how long the set may be cached. Zero when unknown.
	MinTTL uint32
}

// QuestionKey uniquely identifies a DNS question for caching purposes.
// QName must be normalized to lowercase, since DNS names compare
// case-insensitively.
type QuestionKey struct {
	QName  string
	QType  uint16
	QClass uint16
}

// Resolver resolves a domain name to addresses.
type Resolver interface {
	// Resolve walks the DNS hierarchy for qname and returns the
	// addresses found. The context bounds the whole walk.
	Resolve(ctx context.Context, qname string) (ResolvedSet, error)

	// Close releases any resources held by the resolver.
	Close() error
}
