package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/sinagilassi/mozichem-ai/internal/tools"
)

var sanitizeRe = regexp.MustCompile(`[^a-z0-9_]`)

// BridgeTools registers a connected server's tools on registry, named
// "mcp_{server}_{tool}" and filtered by the server's include/exclude
// globs. A name already present on registry is kept and the new tool
// skipped. It returns the number of tools registered.
func BridgeTools(ctx context.Context, client *Client, registry *tools.Registry, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	server := client.Name()

	defs, err := client.ListTools(ctx)
	if err != nil {
		return 0, fmt.Errorf("list tools from %s: %w", server, err)
	}

	cfg := client.Config()
	count := 0
	for _, td := range defs {
		if !allowed(td.Name, cfg.IncludeTools, cfg.ExcludeTools) {
			continue
		}
		name := ToolName(server, td.Name)
		if prev := registry.Get(name); prev != nil {
			logger.Warn("MCP tool name collides with a registered tool, skipping",
				"mcp_server", server,
				"mcp_name", td.Name,
				"tool", name,
				"registered_by", prev.Source,
			)
			continue
		}
		registry.Register(bridgeTool(client, name, td))
		count++

		logger.Debug("bridged MCP tool",
			"mcp_server", server,
			"mcp_name", td.Name,
			"tool", name,
		)
	}
	return count, nil
}

// allowed applies include (if any) else exclude glob patterns.
func allowed(name string, include, exclude []string) bool {
	if len(include) > 0 {
		return matchAny(include, name)
	}
	return !matchAny(exclude, name)
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

// ToolPrefix is the sanitized server part of every bridged tool name.
func ToolPrefix(serverName string) string {
	return "mcp_" + sanitize(serverName) + "_"
}

// ToolName builds the registry name for an MCP tool. Both parts are
// lowercased with anything other than [a-z0-9_] folded to underscores.
func ToolName(serverName, mcpToolName string) string {
	return fmt.Sprintf("mcp_%s_%s", sanitize(serverName), sanitize(mcpToolName))
}

func bridgeTool(client *Client, name string, td ToolDefinition) *tools.Tool {
	mcpName := td.Name
	desc := td.Description
	if desc == "" {
		desc = fmt.Sprintf("%s tool from MCP server %s", mcpName, client.Name())
	}
	return &tools.Tool{
		Name:        name,
		Description: desc,
		Parameters:  td.InputSchema,
		Source:      client.Name(),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return client.CallTool(ctx, mcpName, args)
		},
	}
}

func sanitize(name string) string {
	s := sanitizeRe.ReplaceAllString(strings.ToLower(name), "_")
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return strings.Trim(s, "_")
}
