package resolvers

import (
	"context"
	"sync"
	"time"

	"github.com/jroosing/rootwalk/internal/dns"
)

// DefaultCacheMaxEntries bounds the answer cache when no size is configured.
const DefaultCacheMaxEntries = 20000

// CachingResolver layers a TTL-aware LRU cache over another resolver,
// keyed on (qname, qtype, qclass). Entries live for the minimum TTL of
// the accepted address records, so stale answers age out with the zone.
//
// Concurrent misses for the same question are coalesced: one walk runs,
// the rest wait for its outcome. Failures are never cached; the next
// request retries the walk.
type CachingResolver struct {
	inner Resolver
	cache *TTLCache[QuestionKey, ResolvedSet]

	inflightMu sync.Mutex
	inflight   map[QuestionKey]*inflightCall
}

// inflightCall tracks an in-progress walk for deduplication.
type inflightCall struct {
	done chan struct{} // closed when the walk completes
	set  ResolvedSet
	err  error
}

// NewCachingResolver wraps inner with a cache of at most maxEntries
// resolved sets.
func NewCachingResolver(inner Resolver, maxEntries int) *CachingResolver {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	return &CachingResolver{
		inner:    inner,
		cache:    NewTTLCache[QuestionKey, ResolvedSet](maxEntries),
		inflight: map[QuestionKey]*inflightCall{},
	}
}

// Resolve returns a cached set when one is live, otherwise runs (or joins)
// a walk for the question.
func (c *CachingResolver) Resolve(ctx context.Context, qname string) (ResolvedSet, error) {
	key := QuestionKey{
		QName:  dns.NormalizeName(qname),
		QType:  uint16(dns.TypeA),
		QClass: uint16(dns.ClassIN),
	}

	if set, ok := c.cache.Get(key); ok {
		return set, nil
	}

	c.inflightMu.Lock()
	if call, ok := c.inflight[key]; ok {
		c.inflightMu.Unlock()
		select {
		case <-call.done:
			return call.set, call.err
		case <-ctx.Done():
			return ResolvedSet{}, ctx.Err()
		}
	}
	call := &inflightCall{done: make(chan struct{})}
	c.inflight[key] = call
	c.inflightMu.Unlock()

	call.set, call.err = c.inner.Resolve(ctx, key.QName)
	if call.err == nil {
		c.cache.SetWithTTL(key, call.set, time.Duration(call.set.MinTTL)*time.Second)
	}

	c.inflightMu.Lock()
	delete(c.inflight, key)
	c.inflightMu.Unlock()
	close(call.done)

	return call.set, call.err
}

// Close closes the wrapped resolver.
func (c *CachingResolver) Close() error {
	return c.inner.Close()
}

// CacheStats exposes the underlying cache counters.
func (c *CachingResolver) CacheStats() CacheStats {
	return c.cache.Stats()
}

// PurgeCache drops every cached answer.
func (c *CachingResolver) PurgeCache() {
	c.cache.Purge()
}
