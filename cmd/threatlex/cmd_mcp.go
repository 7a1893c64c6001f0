package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	lexmcp "github.com/ajitpratap0/threatlex/internal/mcp"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP (Model Context Protocol) server over stdio",
		Long: `Starts an MCP JSON-RPC 2.0 server that reads from stdin and writes to stdout.
All diagnostic logs go to stderr so that stdout remains exclusively MCP protocol traffic.

Tools exposed:
  lookup_entities  — resolve a name/alias/external id against the cached index
  cache_stats      — cached entity counts, snapshot age, expiry per platform
  refresh_platform — re-fetch entity collections and rebuild snapshots`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()

			manager, kv, err := newManager(logger)
			if err != nil {
				return fmt.Errorf("mcp: %w", err)
			}
			defer func() { _ = kv.Close() }()

			refresher := newRefresher(manager, logger)
			srv := lexmcp.NewServer(manager, newBuilder(), refresher, logger)

			// Use a standard log.Logger pointing at stderr for the mcp-go error logger.
			errLogger := log.New(os.Stderr, "mcp: ", log.LstdFlags)

			logger.Info("mcp: threatlex MCP server starting", "transport", "stdio")

			return mcpserver.ServeStdio(
				srv.MCPServer(),
				mcpserver.WithErrorLogger(errLogger),
			)
		},
	}
}
