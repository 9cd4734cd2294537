// Package config handles daemon configuration.
//
// Settings are layered: defaults, the market.conf file, the environment
// (optionally seeded from a .env file) and finally command-line flags.
package config

import (
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"
)

// StoreBackend selects the document store implementation.
type StoreBackend string

const (
	StoreBadger   StoreBackend = "badger"
	StoreMemory   StoreBackend = "memory"
	StorePostgres StoreBackend = "postgres"
)

// Config holds the daemon's runtime configuration.
type Config struct {
	DataDir string `conf:"datadir"`

	// HTTP API server
	API APIConfig

	// Document store
	Store StoreConfig

	// Transaction explorer
	Chain ChainConfig

	// Marketplace behaviour
	Market MarketConfig

	// Logging
	Log LogConfig
}

// APIConfig holds HTTP server settings.
type APIConfig struct {
	Addr        string   `conf:"api.addr"`
	Port        int      `conf:"api.port"`
	AllowedIPs  []string `conf:"api.allowed"`   // Empty = allow all.
	CORSOrigins []string `conf:"api.cors"`      // Allowed CORS origins ("*" = all).
	RateLimit   float64  `conf:"api.ratelimit"` // Requests per second per client, 0 = off.
	Burst       int      `conf:"api.burst"`
}

// ListenAddr returns host:port for the listener.
func (c APIConfig) ListenAddr() string {
	return net.JoinHostPort(c.Addr, strconv.Itoa(c.Port))
}

// StoreConfig holds document store settings.
type StoreConfig struct {
	Backend StoreBackend `conf:"store.backend"`
	DSN     string       `conf:"store.dsn"` // postgres only
}

// ChainConfig holds explorer client settings.
type ChainConfig struct {
	// Endpoint serves address history (getTransactions).
	Endpoint string `conf:"chain.endpoint"`
	// LookupEndpoint serves lookups by hash (transactions?hash=).
	// Empty means Endpoint.
	LookupEndpoint string        `conf:"chain.lookupendpoint"`
	APIKey         string        `conf:"chain.apikey"`
	Timeout        time.Duration `conf:"chain.timeout"`
	CacheTTL       time.Duration `conf:"chain.cachettl"`
}

// MarketConfig holds marketplace settings.
type MarketConfig struct {
	// PlatformWallet receives payments for tokens created without an owner.
	PlatformWallet string  `conf:"market.wallet"`
	DefaultPrice   float64 `conf:"market.defaultprice"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.klingnet-market
//	macOS:   ~/Library/Application Support/KlingnetMarket
//	Windows: %APPDATA%\KlingnetMarket
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".klingnet-market"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "KlingnetMarket")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "KlingnetMarket")
		}
		return filepath.Join(home, "AppData", "Roaming", "KlingnetMarket")
	default:
		return filepath.Join(home, ".klingnet-market")
	}
}

// StoreDir returns the badger database directory.
func (c *Config) StoreDir() string {
	return filepath.Join(c.DataDir, "store")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "market.conf")
}

// EnvFile returns the path of the optional .env file.
func (c *Config) EnvFile() string {
	return filepath.Join(c.DataDir, ".env")
}
