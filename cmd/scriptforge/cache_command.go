package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"scriptforge/internal/cache"
	"scriptforge/internal/cachestore"
	"scriptforge/internal/config"
)

func cacheOptions(cfg *config.Config) cache.Options {
	return cache.Options{
		MemoryTTL:      time.Duration(cfg.Cache.MemoryTTLSeconds) * time.Second,
		MemoryCapacity: cfg.Cache.MemoryCapacity,
		StoreTTL:       time.Duration(cfg.Cache.StoreTTLSeconds) * time.Second,
		StoreCapacity:  cfg.Cache.StoreCapacity,
		RemoteTTL:      time.Duration(cfg.Cache.RemoteTTLSeconds) * time.Second,
	}
}

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the extraction cache",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))

	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cached extraction entry counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			store, err := cachestore.Open(cfg.Paths.DataDir)
			if err != nil {
				return fmt.Errorf("open cache store: %w", err)
			}
			defer store.Close()

			count, err := store.Count(cmd.Context(), cache.DefaultNamespace)
			if err != nil {
				return fmt.Errorf("count cache entries: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Store:   %s\n", store.Path())
			fmt.Fprintf(out, "Entries: %d\n", count)
			return nil
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all cached extraction entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			store, err := cachestore.Open(cfg.Paths.DataDir)
			if err != nil {
				return fmt.Errorf("open cache store: %w", err)
			}
			defer store.Close()

			removed, err := store.Clear(cmd.Context(), cache.DefaultNamespace)
			if err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached entries\n", removed)
			return nil
		},
	}
}
