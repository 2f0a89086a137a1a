package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sinagilassi/mozichem-ai/internal/buildinfo"
)

// Session is the subset of *mcpsdk.ClientSession the client uses.
type Session interface {
	ListTools(ctx context.Context, params *mcpsdk.ListToolsParams) (*mcpsdk.ListToolsResult, error)
	CallTool(ctx context.Context, params *mcpsdk.CallToolParams) (*mcpsdk.CallToolResult, error)
	Ping(ctx context.Context, params *mcpsdk.PingParams) error
	Close() error
}

// ToolDefinition describes a tool advertised by an MCP server.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// Client is a connection to a single MCP server.
type Client struct {
	cfg    ServerConfig
	logger *slog.Logger

	mu         sync.Mutex
	session    Session
	serverName string
	serverVer  string
	tools      []ToolDefinition
}

// NewClient creates an unconnected client for cfg.
func NewClient(cfg ServerConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		logger: logger.With("mcp_server", cfg.Name),
	}
}

// Name returns the configured server name.
func (c *Client) Name() string { return c.cfg.Name }

// Config returns the server config the client was built from.
func (c *Client) Config() ServerConfig { return c.cfg }

// ServerInfo returns the name and version the server reported during
// the handshake, if any.
func (c *Client) ServerInfo() (name, version string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverName, c.serverVer
}

// Connect builds the configured transport and performs the MCP
// handshake.
func (c *Client) Connect(ctx context.Context) error {
	t, err := NewTransport(c.cfg, c.logger)
	if err != nil {
		return err
	}
	return c.ConnectTransport(ctx, t)
}

// ConnectTransport performs the MCP handshake over an existing
// transport.
func (c *Client) ConnectTransport(ctx context.Context, t mcpsdk.Transport) error {
	sdk := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    "mozichem-ai",
		Version: buildinfo.Version,
	}, nil)

	cs, err := sdk.Connect(ctx, t, nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", c.cfg.Name, err)
	}

	c.mu.Lock()
	c.session = cs
	c.tools = nil
	if res := cs.InitializeResult(); res != nil && res.ServerInfo != nil {
		c.serverName = res.ServerInfo.Name
		c.serverVer = res.ServerInfo.Version
	}
	c.mu.Unlock()

	c.logger.Info("MCP server connected",
		"transport", c.cfg.Transport,
		"target", c.cfg.Target(),
		"server_name", c.serverName,
		"server_version", c.serverVer,
	)
	return nil
}

// useSession installs an already-open session.
func (c *Client) useSession(s Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
	c.tools = nil
}

func (c *Client) currentSession() (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, fmt.Errorf("%s: %w", c.cfg.Name, ErrNotConnected)
	}
	return c.session, nil
}

// Connected reports whether a session is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// ListTools returns the server's tools, following pagination. The
// result is cached until the next Connect or Refresh.
func (c *Client) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	c.mu.Lock()
	cached := c.tools
	c.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	s, err := c.currentSession()
	if err != nil {
		return nil, err
	}

	var defs []ToolDefinition
	params := &mcpsdk.ListToolsParams{}
	for {
		res, err := s.ListTools(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("tools/list: %w", err)
		}
		for _, t := range res.Tools {
			defs = append(defs, ToolDefinition{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: schemaMap(t.InputSchema),
			})
		}
		if res.NextCursor == "" {
			break
		}
		params = &mcpsdk.ListToolsParams{Cursor: res.NextCursor}
	}
	if defs == nil {
		defs = []ToolDefinition{}
	}

	c.mu.Lock()
	c.tools = defs
	c.mu.Unlock()

	c.logger.Debug("listed MCP tools", "count", len(defs))
	return defs, nil
}

// Refresh drops the cached tool list.
func (c *Client) Refresh() {
	c.mu.Lock()
	c.tools = nil
	c.mu.Unlock()
}

// CallTool invokes a tool and flattens its content to text. A result
// flagged IsError becomes an error carrying that text.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	s, err := c.currentSession()
	if err != nil {
		return "", err
	}

	c.logger.Debug("calling MCP tool", "tool", name)
	res, err := s.CallTool(ctx, &mcpsdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", fmt.Errorf("tools/call %s: %w", name, err)
	}

	text := extractText(res)
	if res.IsError {
		return "", fmt.Errorf("MCP tool %s returned error: %s", name, text)
	}
	return text, nil
}

// Ping checks that the server is responsive.
func (c *Client) Ping(ctx context.Context) error {
	s, err := c.currentSession()
	if err != nil {
		return err
	}
	return s.Ping(ctx, &mcpsdk.PingParams{})
}

// Close ends the session. For stdio servers this stops the subprocess.
func (c *Client) Close() error {
	c.mu.Lock()
	s := c.session
	c.session = nil
	c.tools = nil
	c.mu.Unlock()

	if s == nil {
		return nil
	}
	c.logger.Debug("closing MCP session")
	return s.Close()
}

// schemaMap converts the SDK's schema value into a plain map.
func schemaMap(schema any) map[string]any {
	if schema == nil {
		return nil
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

// extractText joins the text parts of a tool result. Non-text parts
// are rendered as short placeholders. A result with only structured
// content is rendered as its JSON.
func extractText(res *mcpsdk.CallToolResult) string {
	var parts []string
	for _, content := range res.Content {
		switch v := content.(type) {
		case *mcpsdk.TextContent:
			parts = append(parts, v.Text)
		case *mcpsdk.ImageContent:
			parts = append(parts, fmt.Sprintf("[image %s]", v.MIMEType))
		case *mcpsdk.AudioContent:
			parts = append(parts, fmt.Sprintf("[audio %s]", v.MIMEType))
		case *mcpsdk.EmbeddedResource:
			if v.Resource != nil && v.Resource.Text != "" {
				parts = append(parts, v.Resource.Text)
			} else {
				parts = append(parts, "[resource]")
			}
		default:
			parts = append(parts, fmt.Sprintf("[%T]", content))
		}
	}
	if len(parts) == 0 && res.StructuredContent != nil {
		if data, err := json.Marshal(res.StructuredContent); err == nil {
			return string(data)
		}
	}
	return strings.Join(parts, "\n")
}
