package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sinagilassi/mozichem-ai/internal/llm"
	"github.com/sinagilassi/mozichem-ai/internal/mcp"
	"github.com/sinagilassi/mozichem-ai/internal/memory"
	"github.com/sinagilassi/mozichem-ai/internal/prompts"
	"github.com/sinagilassi/mozichem-ai/internal/tools"
)

// DefaultMaxIterations bounds the tool loop when Options leaves it unset.
const DefaultMaxIterations = 10

// ErrNoModel is returned by Build when no chat model is supplied.
var ErrNoModel = errors.New("agent requires a chat model")

// Options configures an assembled agent.
type Options struct {
	Name   string
	Prompt string
	// Model is the provider's model identifier passed on every call.
	Model      string
	MemoryMode bool
	// Temperature and MaxTokens are applied by the llm.Client; they are
	// kept here so the agent can report its effective settings.
	Temperature   float64
	MaxTokens     int
	MaxIterations int
}

// Assembler builds agents. The zero value is usable.
type Assembler struct {
	Logger *slog.Logger
	// Checkpointer stores thread history when MemoryMode is on. A nil
	// Checkpointer gets a fresh in-memory store per agent.
	Checkpointer memory.Checkpointer
	// Usage, when set, exposes the cost_summary tool.
	Usage tools.UsageSummarizer
	// ConnectTimeout overrides mcp.DefaultConnectTimeout per server.
	ConnectTimeout time.Duration
}

// Build connects every MCP server in transports, bridges their tools,
// registers the built-ins and returns a ready agent. Servers that fail
// to connect are logged and skipped. Build fails when the model is nil
// or when transports cannot be merged into one client map.
func (a *Assembler) Build(ctx context.Context, transports map[string]mcp.ServerConfig, model llm.Client, opts Options) (*Agent, error) {
	if model == nil {
		return nil, ErrNoModel
	}
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "agent")

	if opts.Name == "" {
		opts.Name = "MoziChem Agent"
	}
	if opts.Prompt == "" {
		opts.Prompt = prompts.BaseSystemPrompt(opts.Name)
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}

	stdio, http := mcp.Split(transports)
	transports, err := mcp.Merge(stdio, http)
	if err != nil {
		return nil, err
	}
	logger.Debug("MCP transports adapted", "stdio", len(stdio), "streamable_http", len(http))

	registry := tools.NewRegistry()
	multi := mcp.NewMultiServerClient(transports, logger)
	if a.ConnectTimeout > 0 {
		multi.SetConnectTimeout(a.ConnectTimeout)
	}

	if len(transports) == 0 {
		logger.Warn("no MCP servers configured, only built-in tools will be available")
	} else {
		failed := multi.Connect(ctx)
		bridged := multi.BridgeAll(ctx, registry)
		logger.Info("MCP servers connected",
			"configured", len(transports),
			"failed", len(failed),
			"tools", bridged,
		)
	}

	tools.RegisterBuiltins(registry)
	tools.RegisterCostSummary(registry, a.Usage)

	ag := &Agent{
		opts:     opts,
		llm:      model,
		registry: registry,
		mcp:      multi,
		logger:   logger.With("agent", opts.Name),
	}

	if opts.MemoryMode {
		ag.checkpointer = a.Checkpointer
		if ag.checkpointer == nil {
			ag.checkpointer = memory.NewStore(memory.DefaultMaxMessages)
		}
		tools.RegisterThreadReset(registry, ag)
	}

	logger.Info("agent assembled",
		"name", opts.Name,
		"model", opts.Model,
		"memory", opts.MemoryMode,
		"tools", registry.Len(),
	)
	return ag, nil
}
