// Package config provides configuration loading for rootwalk using Viper.
// Configuration is loaded from YAML files with automatic environment
// variable binding.
//
// Environment variables use the ROOTWALK_ prefix and underscore-separated
// keys:
//   - ROOTWALK_SERVER_HOST -> server.host
//   - ROOTWALK_SERVER_PORT -> server.port
//   - ROOTWALK_RESOLVER_ROOTS -> resolver.roots (comma-separated)
//   - ROOTWALK_LOGGING_LEVEL -> logging.level
package config

// ServerConfig contains listener settings.
type ServerConfig struct {
	Host             string `yaml:"host"               mapstructure:"host"`
	Port             int    `yaml:"port"               mapstructure:"port"`
	WorkersPerSocket int    `yaml:"workers_per_socket" mapstructure:"workers_per_socket"`
}

// ResolverConfig contains iterative-walk settings.
type ResolverConfig struct {
	Roots           []string `yaml:"roots"             mapstructure:"roots"`             // Root server IPs (default: the 13 well-known roots)
	MaxDepth        int      `yaml:"max_depth"         mapstructure:"max_depth"`         // Recursion budget per resolution
	ExchangeTimeout string   `yaml:"exchange_timeout"  mapstructure:"exchange_timeout"`  // Per-UDP-exchange timeout (e.g., "3s")
	QueryTimeout    string   `yaml:"query_timeout"     mapstructure:"query_timeout"`     // Wall-clock budget per client query (e.g., "8s")
	EDNSUDPSize     int      `yaml:"edns_udp_size"     mapstructure:"edns_udp_size"`     // OPT payload advertised upstream
	CacheEnabled    bool     `yaml:"cache_enabled"     mapstructure:"cache_enabled"`     // Answer cache above the walk
	CacheMaxEntries int      `yaml:"cache_max_entries" mapstructure:"cache_max_entries"` // Maximum cached answers
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level            string            `yaml:"level"             mapstructure:"level"`
	Structured       bool              `yaml:"structured"        mapstructure:"structured"`
	StructuredFormat string            `yaml:"structured_format" mapstructure:"structured_format"`
	IncludePID       bool              `yaml:"include_pid"       mapstructure:"include_pid"`
	ExtraFields      map[string]string `yaml:"extra_fields"      mapstructure:"extra_fields"`
}

// RateLimitConfig contains admission-control settings. A rate or burst
// of zero disables that level.
type RateLimitConfig struct {
	CleanupSeconds   float64 `yaml:"cleanup_seconds"    mapstructure:"cleanup_seconds"`
	MaxIPEntries     int     `yaml:"max_ip_entries"     mapstructure:"max_ip_entries"`
	MaxPrefixEntries int     `yaml:"max_prefix_entries" mapstructure:"max_prefix_entries"`
	GlobalQPS        float64 `yaml:"global_qps"         mapstructure:"global_qps"`
	GlobalBurst      int     `yaml:"global_burst"       mapstructure:"global_burst"`
	PrefixQPS        float64 `yaml:"prefix_qps"         mapstructure:"prefix_qps"`
	PrefixBurst      int     `yaml:"prefix_burst"       mapstructure:"prefix_burst"`
	IPQPS            float64 `yaml:"ip_qps"             mapstructure:"ip_qps"`
	IPBurst          int     `yaml:"ip_burst"           mapstructure:"ip_burst"`
}

// APIConfig contains management API settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Host    string `yaml:"host"    mapstructure:"host"`
	Port    int    `yaml:"port"    mapstructure:"port"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
}

// Config is the complete rootwalk configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"     mapstructure:"server"`
	Resolver  ResolverConfig  `yaml:"resolver"   mapstructure:"resolver"`
	Logging   LoggingConfig   `yaml:"logging"    mapstructure:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	API       APIConfig       `yaml:"api"        mapstructure:"api"`
}
