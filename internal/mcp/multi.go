package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sinagilassi/mozichem-ai/internal/tools"
)

// DefaultConnectTimeout bounds each server's handshake.
const DefaultConnectTimeout = 30 * time.Second

// maxConcurrentConnects caps simultaneous subprocess launches.
const maxConcurrentConnects = 4

// ServerStatus reports the state of one configured server.
type ServerStatus struct {
	Name      string        `json:"name"`
	Transport TransportType `json:"transport"`
	Target    string        `json:"target"`
	Connected bool          `json:"connected"`
	Tools     int           `json:"tools"`
	Error     string        `json:"error,omitempty"`
}

// MultiServerClient aggregates one Client per configured server.
type MultiServerClient struct {
	logger         *slog.Logger
	connectTimeout time.Duration

	mu      sync.Mutex
	order   []string
	clients map[string]*Client
	errs    map[string]error
	bridged map[string]int
}

// NewMultiServerClient creates clients for every config. Nothing is
// connected until Connect.
func NewMultiServerClient(cfgs map[string]ServerConfig, logger *slog.Logger) *MultiServerClient {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MultiServerClient{
		logger:         logger,
		connectTimeout: DefaultConnectTimeout,
		clients:        make(map[string]*Client, len(cfgs)),
		errs:           make(map[string]error),
		bridged:        make(map[string]int),
	}
	for _, name := range SortedNames(cfgs) {
		cfg := cfgs[name]
		cfg.Name = name
		m.order = append(m.order, name)
		m.clients[name] = NewClient(cfg, logger)
	}
	return m
}

// SetConnectTimeout overrides DefaultConnectTimeout.
func (m *MultiServerClient) SetConnectTimeout(d time.Duration) {
	m.connectTimeout = d
}

// Connect connects every server concurrently. A server that fails is
// logged and recorded; it does not stop the others. The returned map
// holds the failures, keyed by server name.
func (m *MultiServerClient) Connect(ctx context.Context) map[string]error {
	var g errgroup.Group
	g.SetLimit(maxConcurrentConnects)

	for _, name := range m.order {
		c := m.clients[name]
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, m.connectTimeout)
			defer cancel()

			err := c.Connect(cctx)
			m.mu.Lock()
			if err != nil {
				m.errs[name] = err
			} else {
				delete(m.errs, name)
			}
			m.mu.Unlock()

			if err != nil {
				m.logger.Warn("MCP server unavailable, skipping", "mcp_server", name, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	failed := make(map[string]error, len(m.errs))
	for k, v := range m.errs {
		failed[k] = v
	}
	return failed
}

// Client returns the client for a server name.
func (m *MultiServerClient) Client(name string) (*Client, error) {
	c, ok := m.clients[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServerNotFound, name)
	}
	return c, nil
}

// Connected returns the connected clients in name order.
func (m *MultiServerClient) Connected() []*Client {
	var out []*Client
	for _, name := range m.order {
		if c := m.clients[name]; c.Connected() {
			out = append(out, c)
		}
	}
	return out
}

// BridgeAll registers the tools of every connected server and returns
// the total count. Listing failures are logged per server.
func (m *MultiServerClient) BridgeAll(ctx context.Context, registry *tools.Registry) int {
	total := 0
	for _, c := range m.Connected() {
		n, err := BridgeTools(ctx, c, registry, m.logger)
		m.mu.Lock()
		if err != nil {
			m.errs[c.Name()] = err
		}
		m.bridged[c.Name()] = n
		m.mu.Unlock()
		if err != nil {
			m.logger.Warn("failed to bridge MCP tools", "mcp_server", c.Name(), "error", err)
			continue
		}
		m.logger.Info("bridged MCP tools", "mcp_server", c.Name(), "count", n)
		total += n
	}
	return total
}

// Status reports every configured server in name order.
func (m *MultiServerClient) Status() []ServerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ServerStatus, 0, len(m.order))
	for _, name := range m.order {
		c := m.clients[name]
		st := ServerStatus{
			Name:      name,
			Transport: c.cfg.Transport,
			Target:    c.cfg.Target(),
			Connected: c.Connected(),
			Tools:     m.bridged[name],
		}
		if err := m.errs[name]; err != nil {
			st.Error = err.Error()
		}
		out = append(out, st)
	}
	return out
}

// Close closes every session.
func (m *MultiServerClient) Close() error {
	var errs []error
	for _, name := range m.order {
		if err := m.clients[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
