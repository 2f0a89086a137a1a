package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v3"

	"github.com/sinagilassi/mozichem-ai/examples"
	"github.com/sinagilassi/mozichem-ai/internal/mcp"
)

var validateCmd = &cli.Command{
	Name:      "validate",
	Aliases:   []string{"lint"},
	Usage:     "Validate an MCP source file and list its servers",
	ArgsUsage: "[mcp-source]",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "example", Usage: "validate the bundled example MCP source"},
	},
	Action: validateAction,
}

// validateAction normalizes an MCP source without connecting to any
// server. Without an argument it validates the source named in the
// config file.
func validateAction(ctx context.Context, cmd *cli.Command) error {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := cmd.Root().Writer

	var (
		label   string
		servers map[string]mcp.ServerConfig
		err     error
	)
	switch {
	case cmd.Bool("example"):
		label = "example mcp.yaml"
		var raw map[string]map[string]any
		if raw, err = mcp.ParseFile("mcp.yaml", examples.MCPYAML); err == nil {
			servers, err = mcp.Normalize(mcp.FromMap(raw), quiet)
		}
	case cmd.Args().Len() > 0:
		label = cmd.Args().First()
		servers, err = mcp.Normalize(mcp.FromPath(label), quiet)
	default:
		cfg, path, cerr := loadConfig(cmd)
		if cerr != nil {
			return cerr
		}
		src := initialState(cfg, path).MCPSource
		if src.IsEmpty() {
			return errors.New("no MCP source given and none configured in agent.mcp_source or agent.mcp_servers")
		}
		label = src.String()
		servers, err = mcp.Normalize(src, quiet)
	}
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Fprintf(w, "MCP source %s is valid (%d servers)\n\n", label, len(servers))
	fmt.Fprintln(w, renderServers(servers))
	return nil
}

// renderServers lays the servers out as an aligned table.
func renderServers(servers map[string]mcp.ServerConfig) string {
	if len(servers) == 0 {
		return footerStyle.Render("no servers defined")
	}
	names := mcp.SortedNames(servers)
	width := 0
	for _, n := range names {
		width = max(width, len(n))
	}
	nameCol := lipgloss.NewStyle().Width(width + 2).Bold(true)
	transportCol := lipgloss.NewStyle().Width(18)

	rows := make([]string, 0, len(names))
	for _, n := range names {
		cfg := servers[n]
		row := lipgloss.JoinHorizontal(lipgloss.Top,
			nameCol.Render(n),
			transportCol.Render(string(cfg.Transport)),
			cfg.Target(),
		)
		if filters := toolFilters(cfg); filters != "" {
			row += footerStyle.Render("  " + filters)
		}
		rows = append(rows, row)
	}
	return strings.Join(rows, "\n")
}

func toolFilters(cfg mcp.ServerConfig) string {
	var parts []string
	if len(cfg.IncludeTools) > 0 {
		parts = append(parts, "include "+strings.Join(cfg.IncludeTools, ","))
	}
	if len(cfg.ExcludeTools) > 0 {
		parts = append(parts, "exclude "+strings.Join(cfg.ExcludeTools, ","))
	}
	return strings.Join(parts, "; ")
}
