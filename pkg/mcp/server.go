package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ormasoftchile/sitrep/pkg/engine"
)

// NewServer creates an MCP server exposing sitrep tools over stdio.
// Every tool runs against the same engine, so agents share the CLI's
// cache.
func NewServer(version string, eng *engine.Engine) *server.MCPServer {
	s := server.NewMCPServer(
		"sitrep",
		version,
		server.WithToolCapabilities(true),
	)

	h := &Handlers{Engine: eng}

	s.AddTool(
		mcp.NewTool("sitrep/report",
			mcp.WithDescription("Build an incident report for a period and return it as markdown"),
			mcp.WithString("kind", mcp.Description("Report period: daily, weekly, or monthly (default weekly)")),
			mcp.WithString("date", mcp.Description("Explicit local day YYYY-MM-DD; overrides kind and offset")),
			mcp.WithNumber("offset", mcp.Description("Periods back from the current one (0 = current)")),
			mcp.WithString("filter", mcp.Description("Incident filter expression, e.g. severity == \"Critical\" && !hasAssignee")),
			mcp.WithNumber("max_active", mcp.Description("Cap the active incident list in the rendered report")),
		),
		h.HandleReport,
	)

	s.AddTool(
		mcp.NewTool("sitrep/active",
			mcp.WithDescription("List currently active incidents, priority-sorted, as JSON"),
			mcp.WithString("filter", mcp.Description("Incident filter expression (optional)")),
		),
		h.HandleActive,
	)

	s.AddTool(
		mcp.NewTool("sitrep/cache_stats",
			mcp.WithDescription("Report disk cache entry count, size, and session hit rate"),
		),
		h.HandleCacheStats,
	)

	s.AddTool(
		mcp.NewTool("sitrep/cache_clear",
			mcp.WithDescription("Delete every disk cache entry; the next report refetches"),
		),
		h.HandleCacheClear,
	)

	return s
}
