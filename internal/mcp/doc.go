// Package mcp turns MCP server configuration into connected tool
// providers.
//
// A Source (an inline map or a YAML, TOML or JSON file) is normalized
// into validated ServerConfig values, one per server, each tagged with
// its transport: "stdio" launches a subprocess, "streamable_http" talks
// to a remote endpoint. A MultiServerClient connects to all of them
// through the official MCP Go SDK, and BridgeTools exposes each
// server's tools in the agent's registry as mcp_<server>_<tool>.
//
// Only the client side is implemented; the protocol itself is handled
// by the SDK.
package mcp
