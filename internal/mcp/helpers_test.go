package mcp

import (
	"context"
	"fmt"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

type molarMassInput struct {
	Formula string `json:"formula"`
}

type scaleInput struct {
	Value  float64 `json:"value"`
	Factor float64 `json:"factor"`
}

// newChemServer builds an in-process MCP server with a few tools.
func newChemServer() *mcpsdk.Server {
	srv := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "chem-test", Version: "0.1.0"}, nil)

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        "molar-mass",
		Description: "Molar mass of a formula in g/mol",
	}, func(_ context.Context, _ *mcpsdk.CallToolRequest, in molarMassInput) (*mcpsdk.CallToolResult, any, error) {
		masses := map[string]float64{"H2O": 18.015, "CO2": 44.009}
		m, ok := masses[in.Formula]
		if !ok {
			return nil, nil, fmt.Errorf("unknown formula %s", in.Formula)
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: fmt.Sprintf("%.3f", m)}},
		}, nil, nil
	})

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        "scale",
		Description: "Multiply a value by a factor",
	}, func(_ context.Context, _ *mcpsdk.CallToolRequest, in scaleInput) (*mcpsdk.CallToolResult, any, error) {
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: fmt.Sprint(in.Value * in.Factor)}},
		}, nil, nil
	})

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        "debug_dump",
		Description: "Internal diagnostics",
	}, func(_ context.Context, _ *mcpsdk.CallToolRequest, _ struct{}) (*mcpsdk.CallToolResult, any, error) {
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "ok"}},
		}, nil, nil
	})

	return srv
}

// connectedClient returns a Client connected to newChemServer over
// in-memory transports.
func connectedClient(t *testing.T, cfg ServerConfig) *Client {
	t.Helper()
	ctx := context.Background()

	serverT, clientT := mcpsdk.NewInMemoryTransports()
	ss, err := newChemServer().Connect(ctx, serverT, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { ss.Close() })

	if cfg.Name == "" {
		cfg.Name = "chem"
	}
	c := NewClient(cfg, nil)
	if err := c.ConnectTransport(ctx, clientT); err != nil {
		t.Fatalf("ConnectTransport: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}
