// Package mcp exposes report building, the active incident list, and
// cache maintenance as MCP tools for AI agents.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ormasoftchile/sitrep/pkg/engine"
	"github.com/ormasoftchile/sitrep/pkg/filter"
	"github.com/ormasoftchile/sitrep/pkg/render"
	"github.com/ormasoftchile/sitrep/pkg/window"
)

// Handlers binds the MCP tools to one engine instance.
type Handlers struct {
	Engine *engine.Engine
}

// HandleReport implements the sitrep/report MCP tool.
func (h *Handlers) HandleReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	kind := window.Weekly
	if s, _ := args["kind"].(string); s != "" {
		kind = window.Kind(s)
	}
	date, _ := args["date"].(string)
	offset := 0
	if n, ok := args["offset"].(float64); ok {
		offset = int(n)
	}

	win, err := window.Resolve(kind, date, offset, h.Engine.Now())
	if err != nil {
		return errorResult(err.Error()), nil
	}

	// Per-request filters run on a copy so concurrent tool calls never
	// see each other's expression.
	eng := *h.Engine
	if src, _ := args["filter"].(string); src != "" {
		f, err := filter.Compile(src)
		if err != nil {
			return errorResult(err.Error()), nil
		}
		eng.Filter = f
	}

	rep, err := eng.BuildReport(ctx, win)
	if err != nil {
		return errorResult(fmt.Sprintf("build report: %s", err)), nil
	}

	opts := render.Options{}
	if n, ok := args["max_active"].(float64); ok {
		opts.MaxActive = int(n)
	}

	// Markdown for the agent to show, plus a machine-readable summary
	// so it never has to parse the prose for the numbers.
	summary := map[string]any{
		"window":     rep.Window.Label,
		"start":      rep.Window.Start,
		"end":        rep.Window.End,
		"totals":     rep.Totals,
		"attention":  rep.Attention,
		"ageBuckets": rep.AgeBuckets,
		"bySeverity": rep.BySeverity,
		"dropped":    rep.DroppedRecords,
	}
	if rep.MTTR != nil {
		summary["mttrSeconds"] = int(rep.MTTR.Seconds())
	}
	if rep.OldestAge != nil {
		summary["oldestActiveAgeSeconds"] = int(rep.OldestAge.Seconds())
	}
	data, _ := json.MarshalIndent(summary, "", "  ")

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(render.Markdown(rep, opts)),
			mcp.NewTextContent(string(data)),
		},
	}, nil
}

// HandleActive implements the sitrep/active MCP tool.
func (h *Handlers) HandleActive(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	eng := *h.Engine
	if src, _ := args["filter"].(string); src != "" {
		f, err := filter.Compile(src)
		if err != nil {
			return errorResult(err.Error()), nil
		}
		eng.Filter = f
	}

	incidents, err := eng.ActiveIncidents(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("fetch active incidents: %s", err)), nil
	}

	response := map[string]any{
		"count":     len(incidents),
		"incidents": incidents,
	}
	data, _ := json.MarshalIndent(response, "", "  ")
	return textResult(string(data)), nil
}

// HandleCacheStats implements the sitrep/cache_stats MCP tool.
func (h *Handlers) HandleCacheStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	store := h.Engine.Cache
	if store == nil {
		return errorResult("cache is disabled"), nil
	}

	stats, err := store.Stats()
	if err != nil {
		return errorResult(fmt.Sprintf("read cache stats: %s", err)), nil
	}

	response := map[string]any{
		"entries":       stats.EntryCount,
		"totalBytes":    stats.TotalBytes,
		"sessionHits":   store.Hits(),
		"sessionMisses": store.Misses(),
	}
	if stats.EntryCount > 0 {
		response["oldestEntryAge"] = stats.OldestAge.Round(time.Second).String()
		response["newestEntryAge"] = stats.NewestAge.Round(time.Second).String()
	}
	data, _ := json.MarshalIndent(response, "", "  ")
	return textResult(string(data)), nil
}

// HandleCacheClear implements the sitrep/cache_clear MCP tool.
func (h *Handlers) HandleCacheClear(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	store := h.Engine.Cache
	if store == nil {
		return errorResult("cache is disabled"), nil
	}

	n, err := store.Clear()
	if err != nil {
		return errorResult(fmt.Sprintf("clear cache: %s", err)), nil
	}
	return textResult(fmt.Sprintf("✓ cleared %d cache entries", n)), nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
