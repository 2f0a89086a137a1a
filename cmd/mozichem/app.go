package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/sinagilassi/mozichem-ai/internal/agent"
	"github.com/sinagilassi/mozichem-ai/internal/buildinfo"
	"github.com/sinagilassi/mozichem-ai/internal/chat"
	"github.com/sinagilassi/mozichem-ai/internal/config"
	"github.com/sinagilassi/mozichem-ai/internal/llm"
	"github.com/sinagilassi/mozichem-ai/internal/mcp"
	"github.com/sinagilassi/mozichem-ai/internal/memory"
	"github.com/sinagilassi/mozichem-ai/internal/usage"
)

// loadConfig resolves and loads the config named by --config, falling
// back to the search path and then to built-in defaults. The returned
// path is empty when defaults are used.
func loadConfig(cmd *cli.Command) (*config.Config, string, error) {
	explicit := cmd.String("config")
	path, err := config.FindConfig(explicit)
	var cfg *config.Config
	switch {
	case err == nil:
		if cfg, err = config.Load(path); err != nil {
			return nil, "", fmt.Errorf("load config %s: %w", path, err)
		}
	case explicit != "":
		return nil, "", err
	default:
		cfg, path = config.Default(), ""
	}

	if lvl := cmd.String("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// initialState maps the agent and llm sections to the manager's state.
// A relative mcp_source is resolved against the config file directory.
func initialState(cfg *config.Config, cfgPath string) chat.State {
	var src mcp.Source
	switch {
	case cfg.Agent.MCPSource != "":
		p := cfg.Agent.MCPSource
		if !filepath.IsAbs(p) && cfgPath != "" {
			p = filepath.Join(filepath.Dir(cfgPath), p)
		}
		src = mcp.FromPath(p)
	case len(cfg.Agent.MCPServers) > 0:
		src = mcp.FromMap(cfg.Agent.MCPServers)
	}
	return chat.State{
		ModelProvider: cfg.Agent.ModelProvider,
		ModelName:     cfg.Agent.ModelName,
		AgentName:     cfg.Agent.Name,
		Prompt:        cfg.Agent.Prompt,
		MCPSource:     src,
		MemoryMode:    cfg.Agent.MemoryMode,
		Temperature:   cfg.LLM.Temperature,
		MaxTokens:     cfg.LLM.MaxTokens,
		MaxIterations: cfg.Agent.MaxIterations,
	}
}

func providerSettings(p config.ProvidersConfig) map[string]llm.ProviderSettings {
	return map[string]llm.ProviderSettings{
		llm.ProviderOpenAI:    {APIKey: p.OpenAI.APIKey, BaseURL: p.OpenAI.BaseURL},
		llm.ProviderGoogle:    {APIKey: p.Google.APIKey, BaseURL: p.Google.BaseURL},
		llm.ProviderAnthropic: {APIKey: p.Anthropic.APIKey, BaseURL: p.Anthropic.BaseURL},
		llm.ProviderOllama:    {APIKey: p.Ollama.APIKey, BaseURL: p.Ollama.BaseURL},
	}
}

// services holds the components shared by serve, chat and ask.
type services struct {
	cfg     *config.Config
	logger  *slog.Logger
	manager *chat.Manager
	handler *chat.Handler
	usage   *usage.Store

	closers []func() error
}

// newServices opens the stores and builds the chat manager. The agent is
// not initialized; callers decide when to connect MCP servers.
func newServices(ctx context.Context, cfg *config.Config, cfgPath string, logw io.Writer) (*services, error) {
	logger, err := config.NewLogger(logw, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	logger.Info("starting MoziChem", "version", buildinfo.Version, "commit", buildinfo.GitCommit)
	if cfgPath != "" {
		logger.Info("config loaded", "path", cfgPath)
	} else {
		logger.Warn("no config file found, using defaults", "searched", config.DefaultSearchPaths())
	}

	svc := &services{cfg: cfg, logger: logger}

	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	var checkpointer memory.Checkpointer
	switch cfg.Memory.Backend {
	case "sqlite":
		store, err := memory.NewSQLiteStore(ctx, filepath.Join(cfg.DataDir, "threads.db"), cfg.Memory.MaxMessages)
		if err != nil {
			svc.Close()
			return nil, fmt.Errorf("open thread store: %w", err)
		}
		svc.closers = append(svc.closers, store.Close)
		checkpointer = store
	default:
		checkpointer = memory.NewStore(cfg.Memory.MaxMessages)
	}
	logger.Info("thread memory ready", "backend", cfg.Memory.Backend, "max_messages", cfg.Memory.MaxMessages)

	assembler := &agent.Assembler{Logger: logger, Checkpointer: checkpointer}
	if cfg.DataDir != "" {
		store, err := usage.NewStore(filepath.Join(cfg.DataDir, "usage.db"))
		if err != nil {
			svc.Close()
			return nil, fmt.Errorf("open usage store: %w", err)
		}
		svc.closers = append(svc.closers, store.Close)
		svc.usage = store
		assembler.Usage = store
	}

	factory := &llm.Factory{Settings: providerSettings(cfg.Providers), Logger: logger}
	svc.manager = chat.NewManager(initialState(cfg, cfgPath), factory, assembler, logger)
	svc.closers = append(svc.closers, svc.manager.Close)

	svc.handler = &chat.Handler{
		Agents: svc.manager,
		Stats:  usage.NewSessionStats(),
		Logger: logger,
	}
	if svc.usage != nil {
		svc.handler.Usage = svc.usage
	}
	return svc, nil
}

// Close releases stores and MCP sessions in reverse order of opening.
func (svc *services) Close() error {
	var errs []error
	for i := len(svc.closers) - 1; i >= 0; i-- {
		if err := svc.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	svc.closers = nil
	return errors.Join(errs...)
}

// setup is the shared prologue of the agent-running subcommands.
func setup(ctx context.Context, cmd *cli.Command) (*services, error) {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return newServices(ctx, cfg, path, cmd.Root().ErrWriter)
}
