package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear [platform-id]",
		Short: "Invalidate the cache, for one platform or entirely",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			manager, kv, err := newManager(logger)
			if err != nil {
				return fmt.Errorf("clear: %w", err)
			}
			defer func() { _ = kv.Close() }()

			if len(args) == 1 {
				if err := manager.ClearForPlatform(ctx, args[0]); err != nil {
					return fmt.Errorf("clear: %w", err)
				}
				fmt.Printf("Cleared snapshot for %s.\n", args[0])
				return nil
			}

			if err := manager.ClearAll(ctx); err != nil {
				return fmt.Errorf("clear: %w", err)
			}
			fmt.Println("Cleared all cached snapshots.")
			return nil
		},
	}
}
