package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/threatlex/internal/cache"
	"github.com/ajitpratap0/threatlex/internal/cachestore"
	"github.com/ajitpratap0/threatlex/internal/config"
	"github.com/ajitpratap0/threatlex/internal/indexer"
	"github.com/ajitpratap0/threatlex/internal/kvstore"
	"github.com/ajitpratap0/threatlex/internal/platform"
	"github.com/ajitpratap0/threatlex/internal/refresh"
)

var cfg *config.Config

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	rootCmd := &cobra.Command{
		Use:   "threatlex",
		Short: "threatlex — local entity cache and name index for threat-intel platforms",
		Long:  "Threatlex keeps queryable local snapshots of named entities (threat actors, malware, techniques, assets, teams) from remote threat-intel and simulation platforms, and serves a merged name index for text scanning.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return nil
		},
	}

	rootCmd.AddCommand(
		refreshCmd(),
		lookupCmd(),
		statsCmd(),
		cleanupCmd(),
		clearCmd(),
		serveCmd(),
		mcpCmd(),
		healthCmd(),
		versionCmd(),
	)

	rootCmd.SetContext(ctx)

	err := rootCmd.Execute()
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if cfg != nil && cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg != nil && cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func newManager(logger *slog.Logger) (*cache.Manager, *kvstore.BoltKV, error) {
	kv, err := kvstore.OpenBolt(cfg.Storage.Path, cfg.Storage.QuotaBytes, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening storage: %w", err)
	}
	store := cachestore.New(kv, cachestore.DefaultCaps(), logger)
	manager := cache.NewManager(store, cache.Options{
		CacheDuration:   cfg.Cache.Duration,
		RefreshInterval: cfg.Cache.RefreshInterval,
	}, logger)
	return manager, kv, nil
}

func newBuilder() *indexer.Builder {
	return indexer.NewBuilder(cfg.Index.MinTermLength, cfg.Index.StopTerms)
}

func newRefresher(manager *cache.Manager, logger *slog.Logger) *refresh.Refresher {
	platforms := make([]refresh.Platform, 0, len(cfg.Platforms))
	for _, p := range cfg.Platforms {
		platforms = append(platforms, refresh.Platform{
			ID:       p.ID,
			Kind:     p.PlatformKind(),
			Searcher: platform.NewClient(p.BaseURL, p.Token, logger),
		})
	}
	return refresh.New(manager, platforms, cfg.Cache.Concurrency, logger)
}
