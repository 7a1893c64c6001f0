package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/threatlex/internal/platform"
)

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check storage and platform connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()
			allOK := true

			// Check storage
			manager, kv, err := newManager(logger)
			if err != nil {
				fmt.Printf("Storage: FAIL (%v)\n", err)
				allOK = false
			} else {
				defer func() { _ = kv.Close() }()
				if used, usageErr := kv.BytesInUse(ctx); usageErr != nil {
					fmt.Printf("Storage: FAIL (%v)\n", usageErr)
					allOK = false
				} else {
					fmt.Printf("Storage: OK (%d bytes in use)\n", used)
				}
				_, _ = manager.StatsAll(ctx)
			}

			// Check each configured platform with a single first-page probe.
			if len(cfg.Platforms) == 0 {
				fmt.Println("Platforms: none configured")
			}
			for _, p := range cfg.Platforms {
				client := platform.NewClient(p.BaseURL, p.Token, logger)
				keys := p.PlatformKind().TypeKeys()
				q := platform.QueryForType(keys[0])
				if _, probeErr := client.Search(ctx, q, 0); probeErr != nil {
					fmt.Printf("Platform %s: FAIL (%v)\n", p.ID, probeErr)
					allOK = false
				} else {
					fmt.Printf("Platform %s: OK\n", p.ID)
				}
			}

			if !allOK {
				return fmt.Errorf("one or more health checks failed")
			}
			return nil
		},
	}
}
