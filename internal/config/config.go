package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Load reads configuration with the following priority (highest first):
// command-line overrides (applied by the caller), ROOTWALK_* environment
// variables, the YAML file at configPath (if non-empty), and the
// hardcoded defaults. The result is validated before it is returned.
func Load(configPath string) (*Config, error) {
	v, err := initConfig(configPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// initConfig sets up the config loader with defaults, env binding, and
// config file.
func initConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	// ROOTWALK_SERVER_HOST -> server.host
	v.SetEnvPrefix("ROOTWALK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return v, nil
}

// setDefaults configures all default values.
func setDefaults(v *viper.Viper) {
	// Server defaults. Port 1053 ships as the default so the resolver
	// runs unprivileged; production deployments override to 53.
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 1053)
	v.SetDefault("server.workers_per_socket", 0)

	// Resolver defaults
	v.SetDefault("resolver.roots", []string{})
	v.SetDefault("resolver.max_depth", 20)
	v.SetDefault("resolver.exchange_timeout", "3s")
	v.SetDefault("resolver.query_timeout", "8s")
	v.SetDefault("resolver.edns_udp_size", 4096)
	v.SetDefault("resolver.cache_enabled", true)
	v.SetDefault("resolver.cache_max_entries", 20000)

	// Logging defaults
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.structured", false)
	v.SetDefault("logging.structured_format", "json")
	v.SetDefault("logging.include_pid", false)
	v.SetDefault("logging.extra_fields", map[string]string{})

	// Rate limiting defaults
	v.SetDefault("rate_limit.cleanup_seconds", 60.0)
	v.SetDefault("rate_limit.max_ip_entries", 65536)
	v.SetDefault("rate_limit.max_prefix_entries", 16384)
	v.SetDefault("rate_limit.global_qps", 100000.0)
	v.SetDefault("rate_limit.global_burst", 100000)
	v.SetDefault("rate_limit.prefix_qps", 10000.0)
	v.SetDefault("rate_limit.prefix_burst", 20000)
	v.SetDefault("rate_limit.ip_qps", 5000.0)
	v.SetDefault("rate_limit.ip_burst", 10000)

	// Management API defaults.
	// Default to disabled and bound to localhost for safety.
	v.SetDefault("api.enabled", false)
	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.api_key", "")
}

// Validate checks a loaded configuration for consistency.
func Validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Resolver.MaxDepth <= 0 {
		return fmt.Errorf("invalid resolver max_depth: %d", cfg.Resolver.MaxDepth)
	}
	for _, root := range cfg.Resolver.Roots {
		if net.ParseIP(root) == nil {
			return fmt.Errorf("invalid root server address: %q", root)
		}
	}
	if _, err := ParseDuration(cfg.Resolver.ExchangeTimeout, 0); err != nil {
		return fmt.Errorf("invalid resolver exchange_timeout: %w", err)
	}
	if _, err := ParseDuration(cfg.Resolver.QueryTimeout, 0); err != nil {
		return fmt.Errorf("invalid resolver query_timeout: %w", err)
	}
	if cfg.Resolver.EDNSUDPSize < 0 || cfg.Resolver.EDNSUDPSize > 65535 {
		return fmt.Errorf("invalid resolver edns_udp_size: %d", cfg.Resolver.EDNSUDPSize)
	}
	if cfg.API.Enabled && (cfg.API.Port <= 0 || cfg.API.Port > 65535) {
		return fmt.Errorf("invalid api port: %d", cfg.API.Port)
	}
	return nil
}

// ParseDuration parses a duration string, returning fallback for an
// empty value.
func ParseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return fallback, nil
	}
	return time.ParseDuration(s)
}
