package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh [platform-id...]",
		Short: "Fetch entity collections from the configured platforms and rebuild their cached snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			manager, kv, err := newManager(logger)
			if err != nil {
				return fmt.Errorf("refresh: %w", err)
			}
			defer func() { _ = kv.Close() }()

			refresher := newRefresher(manager, logger)
			report := refresher.Run(cmd.Context(), args...)

			fmt.Printf("Run %s: %d entities, %d failures, %d pruned (%s)\n",
				report.RunID, report.Entities, report.Failures, report.Pruned, report.Duration.Round(0))
			for _, tr := range report.Types {
				if tr.Err != "" {
					fmt.Printf("  %-14s %-14s FAIL: %s\n", tr.PlatformID, tr.TypeKey, tr.Err)
					continue
				}
				fmt.Printf("  %-14s %-14s %6d entities (save: %s)\n", tr.PlatformID, tr.TypeKey, tr.Entities, tr.Save)
			}

			if report.Failures > 0 {
				return fmt.Errorf("refresh: %d collection(s) failed", report.Failures)
			}
			return nil
		},
	}
}
