package mcp

import (
	"log/slog"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sinagilassi/mozichem-ai/internal/httpkit"
)

// newHTTPTransport builds a streamable-HTTP transport. The client has
// no overall timeout since the server may hold a response stream open;
// configured headers ride on every request.
func newHTTPTransport(cfg *HTTPConfig, logger *slog.Logger) *mcpsdk.StreamableClientTransport {
	hc := httpkit.NewClient(
		httpkit.WithTimeout(0),
		httpkit.WithHeaders(cfg.Headers),
		httpkit.WithRetry(2, 500*time.Millisecond),
		httpkit.WithLogger(logger),
	)
	return &mcpsdk.StreamableClientTransport{
		Endpoint:   cfg.URL,
		HTTPClient: hc,
	}
}
