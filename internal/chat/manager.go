package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sinagilassi/mozichem-ai/internal/agent"
	"github.com/sinagilassi/mozichem-ai/internal/llm"
	"github.com/sinagilassi/mozichem-ai/internal/mcp"
)

// State is the agent configuration the manager builds from.
type State struct {
	ModelProvider string     `json:"model_provider"`
	ModelName     string     `json:"model_name"`
	AgentName     string     `json:"agent_name"`
	Prompt        string     `json:"agent_prompt"`
	MCPSource     mcp.Source `json:"mcp_source"`
	MemoryMode    bool       `json:"memory_mode"`
	Temperature   float64    `json:"temperature"`
	MaxTokens     int        `json:"max_tokens"`
	MaxIterations int        `json:"max_iterations"`
}

func (s State) sampling() llm.Sampling {
	return llm.Sampling{Temperature: s.Temperature, MaxTokens: s.MaxTokens}
}

// AgentUpdate is a partial agent configuration. Nil fields keep their
// current value.
type AgentUpdate struct {
	ModelProvider *string
	ModelName     *string
	AgentName     *string
	Prompt        *string
	MCPSource     *mcp.Source
	MemoryMode    *bool
	MaxIterations *int
}

// LLMUpdate is a partial model configuration.
type LLMUpdate struct {
	ModelName   *string
	Temperature *float64
	MaxTokens   *int
}

// ClientFactory builds a chat model client for a provider.
type ClientFactory interface {
	New(provider string, sampling llm.Sampling) (llm.Client, error)
}

// Manager owns the current agent and rebuilds it when the
// configuration changes.
type Manager struct {
	factory   ClientFactory
	assembler *agent.Assembler
	logger    *slog.Logger

	mu    sync.RWMutex
	state State
	agent *agent.Agent
}

// NewManager returns a manager with no agent built yet.
func NewManager(initial State, factory ClientFactory, assembler *agent.Assembler, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if assembler == nil {
		assembler = &agent.Assembler{Logger: logger}
	}
	return &Manager{
		factory:   factory,
		assembler: assembler,
		logger:    logger.With("component", "chat"),
		state:     initial,
	}
}

// Initialize builds the agent from the current state, replacing any
// agent already running.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rebuild(ctx, m.state)
}

// UpdateAgent merges u into the state and rebuilds the agent. On
// failure the previous state and agent are kept.
func (m *Manager) UpdateAgent(ctx context.Context, u AgentUpdate) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.state
	if u.ModelProvider != nil {
		next.ModelProvider = *u.ModelProvider
	}
	if u.ModelName != nil {
		next.ModelName = *u.ModelName
	}
	if u.AgentName != nil {
		next.AgentName = *u.AgentName
	}
	if u.Prompt != nil {
		next.Prompt = *u.Prompt
	}
	if u.MCPSource != nil {
		next.MCPSource = *u.MCPSource
	}
	if u.MemoryMode != nil {
		next.MemoryMode = *u.MemoryMode
	}
	if u.MaxIterations != nil {
		next.MaxIterations = *u.MaxIterations
	}

	if err := m.rebuild(ctx, next); err != nil {
		return m.state, err
	}
	return m.state, nil
}

// UpdateLLM changes the model name or sampling settings and rebuilds
// the agent.
func (m *Manager) UpdateLLM(ctx context.Context, u LLMUpdate) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.state
	if u.ModelName != nil {
		next.ModelName = *u.ModelName
	}
	if u.Temperature != nil {
		next.Temperature = *u.Temperature
	}
	if u.MaxTokens != nil {
		next.MaxTokens = *u.MaxTokens
	}
	if err := m.rebuild(ctx, next); err != nil {
		return m.state, err
	}
	return m.state, nil
}

// rebuild must be called with mu held.
func (m *Manager) rebuild(ctx context.Context, next State) error {
	transports, err := mcp.Normalize(next.MCPSource, m.logger)
	if err != nil {
		return fmt.Errorf("mcp source: %w", err)
	}
	model, err := m.factory.New(next.ModelProvider, next.sampling())
	if err != nil {
		return fmt.Errorf("create chat model: %w", err)
	}

	ag, err := m.assembler.Build(ctx, transports, model, agent.Options{
		Name:          next.AgentName,
		Prompt:        next.Prompt,
		Model:         next.ModelName,
		MemoryMode:    next.MemoryMode,
		Temperature:   next.Temperature,
		MaxTokens:     next.MaxTokens,
		MaxIterations: next.MaxIterations,
	})
	if err != nil {
		return fmt.Errorf("build agent: %w", err)
	}

	if m.agent != nil {
		if err := m.agent.Close(); err != nil {
			m.logger.Warn("failed to close previous agent", "error", err)
		}
	}
	m.agent = ag
	m.state = next
	m.logger.Info("agent ready",
		"provider", next.ModelProvider,
		"model", next.ModelName,
		"mcp_source", next.MCPSource.String(),
		"tools", len(ag.Tools()),
	)
	return nil
}

// State returns the current configuration.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Agent returns the running agent, or nil before Initialize succeeds.
func (m *Manager) Agent() *agent.Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.agent
}

// Current implements AgentSource.
func (m *Manager) Current() (Runner, State) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.agent == nil {
		return nil, m.state
	}
	return m.agent, m.state
}

// Ping builds a throwaway client for provider and sends it a one-word
// prompt on model.
func (m *Manager) Ping(ctx context.Context, provider, model string) error {
	m.mu.RLock()
	sampling := m.state.sampling()
	m.mu.RUnlock()

	c, err := m.factory.New(provider, sampling)
	if err != nil {
		return err
	}
	return llm.Probe(ctx, c, model)
}

// CheckProvider reports whether the configured provider is reachable
// with the configured credentials. It does not spend tokens.
func (m *Manager) CheckProvider(ctx context.Context) error {
	st := m.State()
	c, err := m.factory.New(st.ModelProvider, st.sampling())
	if err != nil {
		return err
	}
	return c.Ping(ctx)
}

// EnsureAgent builds the agent unless one is already running.
func (m *Manager) EnsureAgent(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.agent != nil {
		return nil
	}
	return m.rebuild(ctx, m.state)
}

// Close shuts down the running agent.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.agent == nil {
		return nil
	}
	err := m.agent.Close()
	m.agent = nil
	return err
}
