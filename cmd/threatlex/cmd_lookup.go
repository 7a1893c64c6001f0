package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func lookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <term>",
		Short: "Resolve a name, alias, or external id against the cached entity index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			manager, kv, err := newManager(logger)
			if err != nil {
				return fmt.Errorf("lookup: %w", err)
			}
			defer func() { _ = kv.Close() }()

			agg, err := manager.All(ctx)
			if err != nil {
				return fmt.Errorf("lookup: loading cache: %w", err)
			}

			idx := newBuilder().Build(agg)
			candidates := idx.Lookup(args[0])
			if len(candidates) == 0 {
				fmt.Println("No matches.")
				return nil
			}

			for _, c := range candidates {
				line := fmt.Sprintf("%-14s %-14s %s  %s", c.PlatformID, c.Entity.Type, c.Entity.ID, c.Entity.Name)
				if c.Entity.ExternalID != "" {
					line += fmt.Sprintf(" [%s]", c.Entity.ExternalID)
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}
