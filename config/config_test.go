package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// validConfig is Default with the settings an operator must supply.
func validConfig() *Config {
	cfg := Default()
	cfg.Market.PlatformWallet = "EQplatform"
	return cfg
}

func TestDefault_RequiresWallet(t *testing.T) {
	if err := Validate(Default()); err == nil {
		t.Fatal("default config without market.wallet should be rejected")
	}
	cfg := validConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("config with wallet invalid: %v", err)
	}
	if got := cfg.API.ListenAddr(); got != "127.0.0.1:8080" {
		t.Errorf("ListenAddr = %q, want 127.0.0.1:8080", got)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "market.conf")
	content := `# comment
api.port = 9090
market.wallet = "EQplatform"

chain.timeout = 3
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	values, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if values["api.port"] != "9090" {
		t.Errorf("api.port = %q", values["api.port"])
	}
	if values["market.wallet"] != "EQplatform" {
		t.Errorf("quotes not stripped: %q", values["market.wallet"])
	}

	cfg := Default()
	if err := ApplyFileConfig(cfg, values); err != nil {
		t.Fatalf("ApplyFileConfig: %v", err)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.API.Port)
	}
	if cfg.Market.PlatformWallet != "EQplatform" {
		t.Errorf("wallet = %q", cfg.Market.PlatformWallet)
	}
	if cfg.Chain.Timeout != 3*time.Second {
		t.Errorf("timeout = %v, want 3s", cfg.Chain.Timeout)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	values, err := LoadFile(filepath.Join(t.TempDir(), "nope.conf"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if len(values) != 0 {
		t.Errorf("expected no values, got %d", len(values))
	}
}

func TestLoadFile_BadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "market.conf")
	if err := os.WriteFile(path, []byte("api.port\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for line without '='")
	}
}

func TestApplyFileConfig_BadValue(t *testing.T) {
	cfg := Default()
	err := ApplyFileConfig(cfg, map[string]string{"api.port": "abc"})
	if err == nil {
		t.Fatal("expected error for non-numeric port")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"10", 10 * time.Second, false},
		{"250ms", 250 * time.Millisecond, false},
		{"5m", 5 * time.Minute, false},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		got, err := parseDuration(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseDuration(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseStringList(t *testing.T) {
	got := parseStringList(" a, ,b ,c")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("parseStringList = %v", got)
	}
	if parseStringList("") != nil {
		t.Error("empty input should give nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.API.Port = 70000 }},
		{"negative ratelimit", func(c *Config) { c.API.RateLimit = -1 }},
		{"ratelimit without burst", func(c *Config) { c.API.RateLimit = 5; c.API.Burst = 0 }},
		{"bad allowed ip", func(c *Config) { c.API.AllowedIPs = []string{"not-an-ip"} }},
		{"unknown backend", func(c *Config) { c.Store.Backend = "mongo" }},
		{"postgres without dsn", func(c *Config) { c.Store.Backend = StorePostgres }},
		{"empty endpoint", func(c *Config) { c.Chain.Endpoint = "" }},
		{"non-http endpoint", func(c *Config) { c.Chain.Endpoint = "ftp://example.com" }},
		{"bad lookup endpoint", func(c *Config) { c.Chain.LookupEndpoint = "toncenter.com/api/v3" }},
		{"empty wallet", func(c *Config) { c.Market.PlatformWallet = "" }},
		{"blank wallet", func(c *Config) { c.Market.PlatformWallet = "  " }},
		{"zero timeout", func(c *Config) { c.Chain.Timeout = 0 }},
		{"negative cache ttl", func(c *Config) { c.Chain.CacheTTL = -time.Second }},
		{"zero default price", func(c *Config) { c.Market.DefaultPrice = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidate_AcceptsCIDRAndDefaultsBackend(t *testing.T) {
	cfg := validConfig()
	cfg.Chain.LookupEndpoint = ""
	cfg.API.AllowedIPs = []string{"127.0.0.1", "10.0.0.0/8"}
	cfg.Store.Backend = ""
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Store.Backend != StoreBadger {
		t.Errorf("backend = %q, want badger", cfg.Store.Backend)
	}
}

func TestReadEnv_ApplyEnv(t *testing.T) {
	t.Setenv("MARKET_API_PORT", "9191")
	t.Setenv("MARKET_CHAIN_API_KEY", "secret")
	t.Setenv("MARKET_CHAIN_TIMEOUT", "2s")
	t.Setenv("MARKET_CHAIN_LOOKUP_ENDPOINT", "http://localhost:8081/api/v3")
	t.Setenv("MARKET_PLATFORM_WALLET", "EQenv")
	t.Setenv("MARKET_LOG_JSON", "yes")

	env, err := ReadEnv()
	if err != nil {
		t.Fatalf("ReadEnv: %v", err)
	}
	cfg := Default()
	ApplyEnv(cfg, env)

	if cfg.API.Port != 9191 {
		t.Errorf("port = %d, want 9191", cfg.API.Port)
	}
	if cfg.Chain.APIKey != "secret" {
		t.Errorf("api key = %q", cfg.Chain.APIKey)
	}
	if cfg.Chain.Timeout != 2*time.Second {
		t.Errorf("timeout = %v", cfg.Chain.Timeout)
	}
	if cfg.Chain.LookupEndpoint != "http://localhost:8081/api/v3" {
		t.Errorf("lookup endpoint = %q", cfg.Chain.LookupEndpoint)
	}
	if cfg.Market.PlatformWallet != "EQenv" {
		t.Errorf("wallet = %q", cfg.Market.PlatformWallet)
	}
	if !cfg.Log.JSON {
		t.Error("log json should be enabled")
	}
	// Unset variables leave defaults alone.
	if cfg.API.Addr != "127.0.0.1" {
		t.Errorf("addr = %q, want default", cfg.API.Addr)
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	if err := LoadEnvFile(filepath.Join(dir, ".env")); err != nil {
		t.Fatalf("missing .env should not error: %v", err)
	}

	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("MARKET_TEST_ENVFILE=from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MARKET_TEST_ENVFILE", "")
	os.Unsetenv("MARKET_TEST_ENVFILE")
	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}
	if got := os.Getenv("MARKET_TEST_ENVFILE"); got != "from-file" {
		t.Errorf("MARKET_TEST_ENVFILE = %q, want from-file", got)
	}
}

func TestParseArgs(t *testing.T) {
	f, err := parseArgs([]string{
		"--api-port=9000",
		"--store=MEMORY",
		"--rate-limit=0",
		"--log-json",
		"--wallet", "EQflag",
	}, io.Discard)
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if !f.SetRateLimit || !f.SetLogJSON {
		t.Error("explicit flags not tracked")
	}

	cfg := Default()
	cfg.API.RateLimit = 5
	ApplyFlags(cfg, f)
	if cfg.API.Port != 9000 {
		t.Errorf("port = %d", cfg.API.Port)
	}
	if cfg.Store.Backend != StoreMemory {
		t.Errorf("backend = %q", cfg.Store.Backend)
	}
	if cfg.API.RateLimit != 0 {
		t.Errorf("explicit --rate-limit=0 not applied, got %v", cfg.API.RateLimit)
	}
	if cfg.Market.PlatformWallet != "EQflag" {
		t.Errorf("wallet = %q", cfg.Market.PlatformWallet)
	}
}

func TestParseArgs_PositionalStopsParsing(t *testing.T) {
	if _, err := parseArgs([]string{"extra", "--api-port=1"}, io.Discard); err == nil {
		t.Fatal("expected error for flag after positional argument")
	}
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	conf := "api.port = 7000\nmarket.wallet = EQfile\nstore.backend = memory\n"
	if err := os.WriteFile(filepath.Join(dir, "market.conf"), []byte(conf), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MARKET_PLATFORM_WALLET", "EQenv")

	f, err := parseArgs([]string{"--datadir", dir, "--api-port=7100"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := load(f)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.Port != 7100 {
		t.Errorf("flag should win, port = %d", cfg.API.Port)
	}
	if cfg.Market.PlatformWallet != "EQenv" {
		t.Errorf("env should beat file, wallet = %q", cfg.Market.PlatformWallet)
	}
	if cfg.Store.Backend != StoreMemory {
		t.Errorf("file value lost, backend = %q", cfg.Store.Backend)
	}
}

func TestEnsureDataDirs(t *testing.T) {
	cfg := Default()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	if err := EnsureDataDirs(cfg); err != nil {
		t.Fatalf("EnsureDataDirs: %v", err)
	}
	for _, p := range []string{cfg.StoreDir(), cfg.LogsDir(), cfg.ConfigFile()} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s not created: %v", p, err)
		}
	}

	// The written default config must load back cleanly.
	values, err := LoadFile(cfg.ConfigFile())
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	fresh := Default()
	if err := ApplyFileConfig(fresh, values); err != nil {
		t.Fatalf("ApplyFileConfig: %v", err)
	}
	if fresh.Chain.LookupEndpoint != "https://toncenter.com/api/v3" {
		t.Errorf("lookup endpoint = %q", fresh.Chain.LookupEndpoint)
	}
	fresh.Market.PlatformWallet = "EQplatform"
	if err := Validate(fresh); err != nil {
		t.Fatalf("default config file invalid: %v", err)
	}
}
