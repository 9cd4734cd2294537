// Package app wires the market daemon together so it can be embedded in
// any binary.
package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-market/config"
	"github.com/Klingon-tech/klingnet-market/internal/api"
	"github.com/Klingon-tech/klingnet-market/internal/chainapi"
	"github.com/Klingon-tech/klingnet-market/internal/history"
	"github.com/Klingon-tech/klingnet-market/internal/ledger"
	klog "github.com/Klingon-tech/klingnet-market/internal/log"
	"github.com/Klingon-tech/klingnet-market/internal/sale"
	"github.com/Klingon-tech/klingnet-market/internal/storage"
	"github.com/Klingon-tech/klingnet-market/internal/transfer"
)

// App is a fully-initialized market daemon.
type App struct {
	cfg    *config.Config
	logger zerolog.Logger

	// Core
	repo      storage.Repository
	chain     *chainapi.Client
	ledger    *ledger.Ledger
	history   *history.Log
	sales     *sale.Engine
	transfers *transfer.Handler

	// API
	apiServer *api.Server
}

// New creates and initializes an App. It performs all setup steps
// (logger, store, explorer client, domain services, API) but does not
// bind the listener. Call Start() for that.
func New(cfg *config.Config) (*App, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// ── 1. Init logger ──────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(logsDir, "market.log")
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, expandHome(logFile)); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.WithComponent("app")

	logger.Info().
		Str("datadir", cfg.DataDir).
		Str("store", string(cfg.Store.Backend)).
		Str("explorer", cfg.Chain.Endpoint).
		Msg("Starting Klingnet Market")

	// ── 2. Open store ───────────────────────────────────────────────
	repo, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	// ── 3. Explorer client ──────────────────────────────────────────
	chain := chainapi.New(chainConfig(cfg))
	if cfg.Chain.APIKey == "" {
		logger.Warn().Msg("No explorer API key configured; requests may be throttled")
	}

	// ── 4. Domain services ──────────────────────────────────────────
	l := ledger.New(repo, ledger.Options{
		PlatformWallet: cfg.Market.PlatformWallet,
		DefaultPrice:   cfg.Market.DefaultPrice,
	})
	h := history.New(repo)
	sales := sale.New(repo, l, h, chain)
	sales.SetChainTimeout(cfg.Chain.Timeout)
	transfers := transfer.New(l, h)

	// ── 5. API server ───────────────────────────────────────────────
	apiServer := api.New(cfg.API, api.Services{
		Ledger:    l,
		Sales:     sales,
		Transfers: transfers,
		History:   h,
	})

	return &App{
		cfg:       cfg,
		logger:    logger,
		repo:      repo,
		chain:     chain,
		ledger:    l,
		history:   h,
		sales:     sales,
		transfers: transfers,
		apiServer: apiServer,
	}, nil
}

// Start binds the API listener and begins serving.
func (a *App) Start() error {
	if err := a.apiServer.Start(); err != nil {
		return err
	}
	a.logger.Info().
		Str("api", a.apiServer.Addr()).
		Str("wallet", a.cfg.Market.PlatformWallet).
		Msg("Market started successfully")
	return nil
}

// Stop performs graceful shutdown in reverse order.
func (a *App) Stop() {
	if a.apiServer != nil {
		if err := a.apiServer.Stop(); err != nil {
			a.logger.Warn().Err(err).Msg("API shutdown")
		}
	}
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Closing store")
		}
	}

	a.logger.Info().Msg("Goodbye!")
}

// APIAddr returns the address the API server is listening on.
func (a *App) APIAddr() string {
	if a.apiServer == nil {
		return ""
	}
	return a.apiServer.Addr()
}
