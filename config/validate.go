package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate checks runtime config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.API.Port < 0 || cfg.API.Port > 65535 {
		return fmt.Errorf("api.port must be in range [0, 65535]")
	}
	if cfg.API.RateLimit < 0 {
		return fmt.Errorf("api.ratelimit must not be negative")
	}
	if cfg.API.RateLimit > 0 && cfg.API.Burst < 1 {
		return fmt.Errorf("api.burst must be at least 1 when api.ratelimit is set")
	}
	for i, entry := range cfg.API.AllowedIPs {
		if !validIPEntry(entry) {
			return fmt.Errorf("api.allowed[%d] %q is not an IP or CIDR", i, entry)
		}
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = StoreBadger
	}
	switch cfg.Store.Backend {
	case StoreBadger, StoreMemory:
	case StorePostgres:
		if strings.TrimSpace(cfg.Store.DSN) == "" {
			return fmt.Errorf("store.backend=postgres requires store.dsn")
		}
	default:
		return fmt.Errorf("store.backend must be badger, memory, or postgres")
	}

	if cfg.Chain.Endpoint == "" {
		return fmt.Errorf("chain.endpoint is required")
	}
	if !httpURL(cfg.Chain.Endpoint) {
		return fmt.Errorf("chain.endpoint must be an http(s) URL")
	}
	if cfg.Chain.LookupEndpoint != "" && !httpURL(cfg.Chain.LookupEndpoint) {
		return fmt.Errorf("chain.lookupendpoint must be an http(s) URL")
	}
	if cfg.Chain.Timeout <= 0 {
		return fmt.Errorf("chain.timeout must be positive")
	}
	if cfg.Chain.CacheTTL < 0 {
		return fmt.Errorf("chain.cachettl must not be negative")
	}

	if strings.TrimSpace(cfg.Market.PlatformWallet) == "" {
		return fmt.Errorf("market.wallet is required")
	}
	if cfg.Market.DefaultPrice <= 0 {
		return fmt.Errorf("market.defaultprice must be positive")
	}

	return nil
}

func httpURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func validIPEntry(entry string) bool {
	if _, _, err := net.ParseCIDR(entry); err == nil {
		return true
	}
	return net.ParseIP(entry) != nil
}
