package server

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/jroosing/rootwalk/internal/config"
	"github.com/jroosing/rootwalk/internal/resolvers"
)

// Runner wires the resolver pipeline to the UDP front end.
//
// Construction is synchronous so the caller can hand the built components
// (stats, cache) to the management API before anything starts serving.
type Runner struct {
	Stats *DNSStats
	Cache *resolvers.CachingResolver // nil when caching is disabled

	logger   *slog.Logger
	resolver resolvers.Resolver
	udp      *UDPServer
	addr     string
}

// NewRunner builds the resolver chain and server components from cfg.
func NewRunner(logger *slog.Logger, cfg *config.Config) (*Runner, error) {
	exchangeTimeout, err := config.ParseDuration(cfg.Resolver.ExchangeTimeout, resolvers.DefaultExchangeTimeout)
	if err != nil {
		return nil, err
	}
	queryTimeout, err := config.ParseDuration(cfg.Resolver.QueryTimeout, 8*time.Second)
	if err != nil {
		return nil, err
	}

	iterative := resolvers.NewIterativeResolver(
		&resolvers.UDPExchanger{Timeout: exchangeTimeout},
		resolvers.IterativeOptions{
			Roots:       cfg.Resolver.Roots,
			MaxDepth:    cfg.Resolver.MaxDepth,
			EDNSUDPSize: uint16(cfg.Resolver.EDNSUDPSize),
			Logger:      logger,
		},
	)

	r := &Runner{
		Stats:    NewDNSStats(),
		logger:   logger,
		resolver: iterative,
		addr:     net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
	}
	if cfg.Resolver.CacheEnabled {
		r.Cache = resolvers.NewCachingResolver(iterative, cfg.Resolver.CacheMaxEntries)
		r.resolver = r.Cache
	}

	handler := &QueryHandler{
		Logger:   logger,
		Resolver: r.resolver,
		Stats:    r.Stats,
		Timeout:  queryTimeout,
	}
	limiter := NewRateLimiter(RateLimitSettings{
		CleanupSeconds:   cfg.RateLimit.CleanupSeconds,
		MaxIPEntries:     cfg.RateLimit.MaxIPEntries,
		MaxPrefixEntries: cfg.RateLimit.MaxPrefixEntries,
		GlobalQPS:        cfg.RateLimit.GlobalQPS,
		GlobalBurst:      cfg.RateLimit.GlobalBurst,
		PrefixQPS:        cfg.RateLimit.PrefixQPS,
		PrefixBurst:      cfg.RateLimit.PrefixBurst,
		IPQPS:            cfg.RateLimit.IPQPS,
		IPBurst:          cfg.RateLimit.IPBurst,
	})
	r.udp = &UDPServer{
		Logger:           logger,
		Handler:          handler,
		Limiter:          limiter,
		WorkersPerSocket: cfg.Server.WorkersPerSocket,
	}
	return r, nil
}

// Run serves DNS over UDP until ctx is cancelled, then shuts down
// gracefully and closes the resolver chain.
func (r *Runner) Run(ctx context.Context) error {
	defer r.resolver.Close()

	if r.logger != nil {
		r.logger.Info("dns server starting", "addr", r.addr, "cache", r.Cache != nil)
	}
	return r.udp.Run(ctx, r.addr)
}
