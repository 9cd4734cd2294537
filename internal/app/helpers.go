package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Klingon-tech/klingnet-market/config"
	"github.com/Klingon-tech/klingnet-market/internal/chainapi"
	klog "github.com/Klingon-tech/klingnet-market/internal/log"
	"github.com/Klingon-tech/klingnet-market/internal/storage"
)

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// chainConfig maps the explorer settings onto the client's config.
func chainConfig(cfg *config.Config) chainapi.Config {
	return chainapi.Config{
		Endpoint:       cfg.Chain.Endpoint,
		LookupEndpoint: cfg.Chain.LookupEndpoint,
		APIKey:         cfg.Chain.APIKey,
		Timeout:        cfg.Chain.Timeout,
		CacheTTL:       cfg.Chain.CacheTTL,
	}
}

// openStore opens the document repository selected by cfg.Store.
func openStore(cfg *config.Config) (storage.Repository, error) {
	switch cfg.Store.Backend {
	case config.StoreBadger, "":
		dir := expandHome(cfg.StoreDir())
		db, err := storage.NewBadger(dir)
		if err != nil {
			return nil, fmt.Errorf("open database at %s: %w", dir, err)
		}
		klog.Storage.Info().Str("path", dir).Msg("Database opened")
		return storage.NewKVRepository(db), nil

	case config.StoreMemory:
		klog.Storage.Warn().Msg("Using in-memory store; data is lost on exit")
		return storage.NewKVRepository(storage.NewMemory()), nil

	case config.StorePostgres:
		repo, err := storage.NewPostgres(cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		klog.Storage.Info().Msg("Connected to PostgreSQL")
		return repo, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
