package config

import "time"

// Default returns the default daemon configuration.
func Default() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		API: APIConfig{
			Addr:       "127.0.0.1",
			Port:       8080,
			AllowedIPs: []string{},
			RateLimit:  0,
			Burst:      20,
		},
		Store: StoreConfig{
			Backend: StoreBadger,
		},
		Chain: ChainConfig{
			Endpoint:       "https://toncenter.com/api/v2",
			LookupEndpoint: "https://toncenter.com/api/v3",
			Timeout:        10 * time.Second,
			CacheTTL:       10 * time.Minute,
		},
		Market: MarketConfig{
			DefaultPrice: 0.01,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}
