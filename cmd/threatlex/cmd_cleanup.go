package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete cached snapshots for platforms no longer configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			manager, kv, err := newManager(logger)
			if err != nil {
				return fmt.Errorf("cleanup: %w", err)
			}
			defer func() { _ = kv.Close() }()

			pruned := manager.CleanupOrphaned(cmd.Context(), cfg.PlatformIDs())
			fmt.Printf("Pruned %d orphaned snapshot(s).\n", pruned)
			return nil
		},
	}
}
