// Package mcp implements the Model Context Protocol server for
// threatlex, exposing the name index and cache operations as tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ajitpratap0/threatlex/internal/cache"
	"github.com/ajitpratap0/threatlex/internal/indexer"
	"github.com/ajitpratap0/threatlex/internal/metrics"
	"github.com/ajitpratap0/threatlex/internal/refresh"
)

// Server wraps an MCPServer with threatlex dependencies.
type Server struct {
	mcp       *mcpserver.MCPServer
	manager   *cache.Manager
	builder   *indexer.Builder
	refresher *refresh.Refresher
	logger    *slog.Logger
}

// NewServer creates a new MCP server. If manager is nil, tool calls
// return an error response instead of panicking.
func NewServer(manager *cache.Manager, builder *indexer.Builder, refresher *refresh.Refresher, logger *slog.Logger) *Server {
	s := &Server{
		manager:   manager,
		builder:   builder,
		refresher: refresher,
		logger:    logger,
	}

	mcpSrv := mcpserver.NewMCPServer(
		"threatlex",
		"1.0.0",
		mcpserver.WithToolCapabilities(true),
	)

	mcpSrv.AddTool(buildLookupTool(), s.handleLookup)
	mcpSrv.AddTool(buildStatsTool(), s.handleStats)
	mcpSrv.AddTool(buildRefreshTool(), s.handleRefresh)

	s.mcp = mcpSrv
	return s
}

// MCPServer returns the underlying mcp-go MCPServer for use with
// ServeStdio.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcp
}

// HandleLookup is the exported handler for the "lookup_entities" tool.
// It is exposed for direct testing without the mcp-go transport layer.
func (s *Server) HandleLookup(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleLookup(ctx, req)
}

// HandleStats is the exported handler for the "cache_stats" tool.
func (s *Server) HandleStats(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleStats(ctx, req)
}

// HandleRefresh is the exported handler for the "refresh_platform" tool.
func (s *Server) HandleRefresh(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleRefresh(ctx, req)
}

// --- handlers ---

// handleLookup resolves a term against the merged name index.
func (s *Server) handleLookup(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.manager == nil {
		return mcpgo.NewToolResultError("cache is unavailable"), nil
	}

	term := req.GetString("term", "")
	if term == "" {
		return mcpgo.NewToolResultError("term is required"), nil
	}

	agg, err := s.manager.All(ctx)
	if err != nil {
		return mcpgo.NewToolResultErrorf("lookup failed: %s", err.Error()), nil
	}
	idx := s.builder.Build(agg)
	metrics.Inc(metrics.Lookups)

	candidates := idx.Lookup(term)
	if candidates == nil {
		candidates = []indexer.Candidate{}
	}
	return toolResultJSON(map[string]any{
		"term":       term,
		"candidates": candidates,
	})
}

// handleStats returns cache statistics, for one platform when the
// optional platform argument is set.
func (s *Server) handleStats(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.manager == nil {
		return mcpgo.NewToolResultError("cache is unavailable"), nil
	}

	if platformID := req.GetString("platform", ""); platformID != "" {
		stats, err := s.manager.Stats(ctx, platformID)
		if err != nil {
			return mcpgo.NewToolResultErrorf("stats failed: %s", err.Error()), nil
		}
		if stats == nil {
			return mcpgo.NewToolResultErrorf("no snapshot for platform %s", platformID), nil
		}
		return toolResultJSON(stats)
	}

	stats, err := s.manager.StatsAll(ctx)
	if err != nil {
		return mcpgo.NewToolResultErrorf("stats failed: %s", err.Error()), nil
	}
	return toolResultJSON(stats)
}

// handleRefresh runs a refresh cycle for one platform or for all.
func (s *Server) handleRefresh(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.refresher == nil {
		return mcpgo.NewToolResultError("refresher is unavailable"), nil
	}

	var ids []string
	if platformID := req.GetString("platform", ""); platformID != "" {
		ids = append(ids, platformID)
	}
	report := s.refresher.Run(ctx, ids...)
	return toolResultJSON(report)
}

// --- helpers ---

// toolResultJSON marshals v to JSON and returns it as a tool text
// result.
func toolResultJSON(v any) (*mcpgo.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("mcp: marshaling result: %w", err)
	}
	return mcpgo.NewToolResultText(string(b)), nil
}

// --- tool definitions ---

func buildLookupTool() mcpgo.Tool {
	return mcpgo.NewTool("lookup_entities",
		mcpgo.WithDescription("Look up a name, alias, or external id against the cached threat-intel entity index. Returns the candidate set for the term."),
		mcpgo.WithString("term",
			mcpgo.Required(),
			mcpgo.Description("The literal string to resolve (case-insensitive)"),
		),
	)
}

func buildStatsTool() mcpgo.Tool {
	return mcpgo.NewTool("cache_stats",
		mcpgo.WithDescription("Report cached entity counts, snapshot age, and expiry per platform."),
		mcpgo.WithString("platform",
			mcpgo.Description("Restrict to one platform id"),
		),
	)
}

func buildRefreshTool() mcpgo.Tool {
	return mcpgo.NewTool("refresh_platform",
		mcpgo.WithDescription("Re-fetch entity collections from the configured platforms and rebuild their cached snapshots."),
		mcpgo.WithString("platform",
			mcpgo.Description("Refresh only this platform id (default: all configured platforms)"),
		),
	)
}
