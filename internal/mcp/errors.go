package mcp

import "errors"

var (
	// ErrInvalidConfig marks a server entry with missing or malformed fields.
	ErrInvalidConfig = errors.New("invalid mcp server config")

	// ErrUnsupportedTransport marks a transport tag other than stdio or
	// streamable_http.
	ErrUnsupportedTransport = errors.New("unsupported transport type")

	// ErrNotConnected is returned by Client methods called before Connect
	// or after Close.
	ErrNotConnected = errors.New("mcp client not connected")

	// ErrServerNotFound is returned when a server name is not configured.
	ErrServerNotFound = errors.New("mcp server not found")
)
