package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats [platform-id]",
		Short: "Show cached entity counts, snapshot age, and expiry",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			manager, kv, err := newManager(logger)
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			defer func() { _ = kv.Close() }()

			if len(args) == 1 {
				stats, err := manager.Stats(ctx, args[0])
				if err != nil {
					return fmt.Errorf("stats: %w", err)
				}
				if stats == nil {
					fmt.Printf("No snapshot for platform %s.\n", args[0])
					return nil
				}
				printPlatform(stats.PlatformID, stats.Total, stats.AgeSeconds, stats.IsExpired)
				for t, c := range stats.ByType {
					fmt.Printf("  %-14s %d\n", t, c)
				}
				return nil
			}

			stats, err := manager.StatsAll(ctx)
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			fmt.Printf("Platforms: %d, entities: %d\n\n", stats.PlatformCount, stats.Total)
			for _, ps := range stats.Platforms {
				printPlatform(ps.PlatformID, ps.Total, ps.AgeSeconds, ps.IsExpired)
			}
			return nil
		},
	}
}

func printPlatform(id string, total int, ageSeconds float64, expired bool) {
	state := "fresh"
	if expired {
		state = "EXPIRED"
	}
	age := time.Duration(ageSeconds * float64(time.Second)).Round(time.Second)
	fmt.Printf("%-14s %6d entities, age %s (%s)\n", id, total, age, state)
}
