package mcp

import (
	"fmt"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewTransport builds the SDK transport for a validated server config.
func NewTransport(cfg ServerConfig, logger *slog.Logger) (mcpsdk.Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Transport {
	case TransportStdio:
		if cfg.Stdio == nil {
			return nil, fmt.Errorf("server %q: %w: missing stdio settings", cfg.Name, ErrInvalidConfig)
		}
		return newStdioTransport(cfg.Stdio, logger), nil
	case TransportStreamableHTTP:
		if cfg.HTTP == nil {
			return nil, fmt.Errorf("server %q: %w: missing http settings", cfg.Name, ErrInvalidConfig)
		}
		return newHTTPTransport(cfg.HTTP, logger), nil
	default:
		return nil, fmt.Errorf("server %q: %w: %s", cfg.Name, ErrUnsupportedTransport, cfg.Transport)
	}
}
