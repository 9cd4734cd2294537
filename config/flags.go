package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// Version is the daemon version reported by --version.
const Version = "0.1.0"

// Flags holds parsed command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	DataDir string
	Config  string
	EnvFile string

	// API
	APIAddr    string
	APIPort    int
	APIAllowed string
	APICORS    string
	RateLimit  float64

	// Store
	Store    string
	StoreDSN string

	// Chain explorer
	ChainEndpoint string
	ChainLookup   string

	// Market
	Wallet string

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args
	Args []string

	// Explicitly-set flags whose zero value is meaningful.
	SetRateLimit bool
	SetLogJSON   bool
}

// ParseFlags parses os.Args, exiting on malformed input.
func ParseFlags() *Flags {
	f, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return f
}

func parseArgs(args []string, output io.Writer) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("marketd", flag.ContinueOnError)
	fs.SetOutput(output)

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	// Core
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")
	fs.StringVar(&f.EnvFile, "env-file", "", "Environment file path")

	// API
	fs.StringVar(&f.APIAddr, "api-addr", "", "API listen address")
	fs.IntVar(&f.APIPort, "api-port", 0, "API listen port")
	fs.StringVar(&f.APIAllowed, "api-allowed", "", "Allowed client IPs/CIDRs (comma-separated)")
	fs.StringVar(&f.APICORS, "api-cors", "", "Allowed CORS origins (comma-separated)")
	fs.Float64Var(&f.RateLimit, "rate-limit", 0, "Requests per second per client IP (0 = off)")

	// Store
	fs.StringVar(&f.Store, "store", "", "Document store: badger, memory or postgres")
	fs.StringVar(&f.StoreDSN, "store-dsn", "", "PostgreSQL connection string")

	// Chain explorer
	fs.StringVar(&f.ChainEndpoint, "chain-endpoint", "", "Transaction explorer base URL")
	fs.StringVar(&f.ChainLookup, "chain-lookup-endpoint", "", "Explorer base URL for lookups by hash")

	// Market
	fs.StringVar(&f.Wallet, "wallet", "", "Platform receiving wallet address")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	fs.Usage = func() {
		printUsage(output)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	f.SetRateLimit = isFlagSet(fs, "rate-limit")
	f.SetLogJSON = isFlagSet(fs, "log-json")
	f.Args = fs.Args()

	// Detect unparsed flags caused by positional arguments stopping the parser.
	for _, arg := range f.Args {
		if strings.HasPrefix(arg, "-") {
			return nil, fmt.Errorf("flag %q was not parsed (positional argument stopped parsing)", arg)
		}
	}

	return f, nil
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	// Core
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	// API
	if f.APIAddr != "" {
		cfg.API.Addr = f.APIAddr
	}
	if f.APIPort != 0 {
		cfg.API.Port = f.APIPort
	}
	if f.APIAllowed != "" {
		cfg.API.AllowedIPs = parseStringList(f.APIAllowed)
	}
	if f.APICORS != "" {
		cfg.API.CORSOrigins = parseStringList(f.APICORS)
	}
	if f.SetRateLimit {
		cfg.API.RateLimit = f.RateLimit
	}

	// Store
	if f.Store != "" {
		cfg.Store.Backend = StoreBackend(strings.ToLower(f.Store))
	}
	if f.StoreDSN != "" {
		cfg.Store.DSN = f.StoreDSN
	}

	// Chain explorer
	if f.ChainEndpoint != "" {
		cfg.Chain.Endpoint = f.ChainEndpoint
	}
	if f.ChainLookup != "" {
		cfg.Chain.LookupEndpoint = f.ChainLookup
	}

	// Market
	if f.Wallet != "" {
		cfg.Market.PlatformWallet = f.Wallet
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func printUsage(w io.Writer) {
	usage := `Klingnet Market - token marketplace daemon

Usage:
  marketd [options]
  marketd --help

Commands:
  --help, -h      Show this help message
  --version, -v   Show version information

Core Options:
  --datadir       Data directory (default: ~/.klingnet-market)
  --config, -c    Config file path (default: <datadir>/market.conf)
  --env-file      Environment file (default: <datadir>/.env)

API Options:
  --api-addr      API listen address (default: 127.0.0.1)
  --api-port      API port (default: 8080)
  --api-allowed   Allowed client IPs/CIDRs (comma-separated)
  --api-cors      Allowed CORS origins (comma-separated)
  --rate-limit    Requests per second per client IP (default: 0, off)

Store Options:
  --store         Document store: badger (default), memory, postgres
  --store-dsn     PostgreSQL connection string (store=postgres)

Chain Options:
  --chain-endpoint         Transaction explorer base URL (address history)
  --chain-lookup-endpoint  Explorer base URL for lookups by hash

Market Options:
  --wallet        Platform receiving wallet address (required)

Logging Options:
  --log-level     Log level: debug, info, warn, error (default: info)
  --log-file      Log file path (default: stdout)
  --log-json      Output logs as JSON

Environment:
  MARKET_CHAIN_API_KEY, MARKET_PLATFORM_WALLET, MARKET_STORE_DSN and the
  other MARKET_* variables override the config file. Flags override both.

Examples:
  # Start with a local badger store
  marketd --wallet=EQ...

  # Start against PostgreSQL
  MARKET_STORE_DSN=postgres://market@localhost/market marketd --store=postgres
`
	fmt.Fprint(w, usage)
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Environment (.env file, then MARKET_* variables)
// 5. Command-line flags
func Load() (*Config, *Flags, error) {
	flags := ParseFlags()

	// Handle help/version
	if flags.Help {
		printUsage(os.Stdout)
		os.Exit(0)
	}
	if flags.Version {
		fmt.Println("marketd version " + Version)
		os.Exit(0)
	}

	cfg, err := load(flags)
	if err != nil {
		return nil, nil, err
	}
	return cfg, flags, nil
}

func load(flags *Flags) (*Config, error) {
	cfg := Default()

	// Override datadir if specified
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	// Auto-create data directories and default config on first start.
	if err := EnsureDataDirs(cfg); err != nil {
		return nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}
	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, fmt.Errorf("applying config file: %w", err)
	}

	envPath := flags.EnvFile
	if envPath == "" {
		envPath = cfg.EnvFile()
	}
	if err := LoadEnvFile(envPath); err != nil {
		return nil, err
	}
	env, err := ReadEnv()
	if err != nil {
		return nil, err
	}
	ApplyEnv(cfg, env)

	// Apply flags (highest precedence)
	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist. This is idempotent and safe to call on
// every startup.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.LogsDir(),
	}
	if cfg.Store.Backend == StoreBadger || cfg.Store.Backend == "" {
		dirs = append(dirs, cfg.StoreDir())
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	// Create default config if it doesn't exist.
	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}

	return nil
}
