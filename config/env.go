package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// EnvOverrides are the settings read from MARKET_* environment variables.
// Zero values mean "not set".
type EnvOverrides struct {
	APIAddr    string  `env:"MARKET_API_ADDR"`
	APIPort    int     `env:"MARKET_API_PORT"`
	APIAllowed string  `env:"MARKET_API_ALLOWED"`
	APICORS    string  `env:"MARKET_API_CORS"`
	RateLimit  float64 `env:"MARKET_API_RATELIMIT"`

	StoreBackend string `env:"MARKET_STORE_BACKEND"`
	StoreDSN     string `env:"MARKET_STORE_DSN"`

	ChainEndpoint       string        `env:"MARKET_CHAIN_ENDPOINT"`
	ChainLookupEndpoint string        `env:"MARKET_CHAIN_LOOKUP_ENDPOINT"`
	ChainAPIKey         string        `env:"MARKET_CHAIN_API_KEY"`
	ChainTimeout        time.Duration `env:"MARKET_CHAIN_TIMEOUT"`

	PlatformWallet string  `env:"MARKET_PLATFORM_WALLET"`
	DefaultPrice   float64 `env:"MARKET_DEFAULT_PRICE"`

	LogLevel string `env:"MARKET_LOG_LEVEL"`
	LogJSON  string `env:"MARKET_LOG_JSON"`
}

// LoadEnvFile loads KEY=value pairs from path into the process
// environment. Variables already set are kept. A missing file is not an
// error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ReadEnv decodes the MARKET_* variables of the current environment.
func ReadEnv() (*EnvOverrides, error) {
	var env EnvOverrides
	if err := envdecode.Decode(&env); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	return &env, nil
}

// ApplyEnv applies the set environment overrides to cfg.
func ApplyEnv(cfg *Config, env *EnvOverrides) {
	if env.APIAddr != "" {
		cfg.API.Addr = env.APIAddr
	}
	if env.APIPort != 0 {
		cfg.API.Port = env.APIPort
	}
	if env.APIAllowed != "" {
		cfg.API.AllowedIPs = parseStringList(env.APIAllowed)
	}
	if env.APICORS != "" {
		cfg.API.CORSOrigins = parseStringList(env.APICORS)
	}
	if env.RateLimit != 0 {
		cfg.API.RateLimit = env.RateLimit
	}

	if env.StoreBackend != "" {
		cfg.Store.Backend = StoreBackend(env.StoreBackend)
	}
	if env.StoreDSN != "" {
		cfg.Store.DSN = env.StoreDSN
	}

	if env.ChainEndpoint != "" {
		cfg.Chain.Endpoint = env.ChainEndpoint
	}
	if env.ChainLookupEndpoint != "" {
		cfg.Chain.LookupEndpoint = env.ChainLookupEndpoint
	}
	if env.ChainAPIKey != "" {
		cfg.Chain.APIKey = env.ChainAPIKey
	}
	if env.ChainTimeout != 0 {
		cfg.Chain.Timeout = env.ChainTimeout
	}

	if env.PlatformWallet != "" {
		cfg.Market.PlatformWallet = env.PlatformWallet
	}
	if env.DefaultPrice != 0 {
		cfg.Market.DefaultPrice = env.DefaultPrice
	}

	if env.LogLevel != "" {
		cfg.Log.Level = env.LogLevel
	}
	if env.LogJSON != "" {
		cfg.Log.JSON = parseBool(env.LogJSON)
	}
}
