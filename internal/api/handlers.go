package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sinagilassi/mozichem-ai/internal/buildinfo"
	"github.com/sinagilassi/mozichem-ai/internal/chat"
	"github.com/sinagilassi/mozichem-ai/internal/llm"
	"github.com/sinagilassi/mozichem-ai/internal/mcp"
	"github.com/sinagilassi/mozichem-ai/internal/memory"
	"github.com/sinagilassi/mozichem-ai/internal/usage"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.ok(w, map[string]string{"message": "MoziChem AI API is running"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "healthy",
		"agent":  s.manager.Agent() != nil,
	}
	if s.services != nil {
		resp["services"] = s.services()
	}
	s.ok(w, resp)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.ok(w, buildinfo.Info())
}

func (s *Server) handleAgentInitialization(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Initialize(r.Context()); err != nil {
		s.logger.Error("agent initialization failed", "error", err)
		s.errorResponse(w, statusFor(err), "Failed to initialize agent: "+err.Error())
		return
	}
	s.ok(w, map[string]string{"message": "Agent initialized successfully"})
}

// AgentConfigRequest is the body of POST /agent-config. Omitted or null
// fields keep their current value. mcp_source is either a file path or
// a map of server name to transport config.
type AgentConfigRequest struct {
	ModelProvider *string         `json:"model_provider"`
	ModelName     *string         `json:"model_name"`
	AgentName     *string         `json:"agent_name"`
	AgentPrompt   *string         `json:"agent_prompt"`
	MCPSource     json.RawMessage `json:"mcp_source"`
	MemoryMode    *bool           `json:"memory_mode"`
	MaxIterations *int            `json:"max_iterations"`
}

func (s *Server) handleAgentConfig(w http.ResponseWriter, r *http.Request) {
	var req AgentConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	update := chat.AgentUpdate{
		ModelProvider: req.ModelProvider,
		ModelName:     req.ModelName,
		AgentName:     req.AgentName,
		Prompt:        req.AgentPrompt,
		MemoryMode:    req.MemoryMode,
		MaxIterations: req.MaxIterations,
	}
	if len(req.MCPSource) > 0 && string(req.MCPSource) != "null" {
		src, err := mcp.SourceFromJSON(req.MCPSource)
		if err != nil {
			s.errorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
		update.MCPSource = &src
	}

	state, err := s.manager.UpdateAgent(r.Context(), update)
	if err != nil {
		s.logger.Error("agent configuration failed", "error", err)
		s.errorResponse(w, statusFor(err), "Failed to configure agent: "+err.Error())
		return
	}
	s.ok(w, map[string]any{
		"message": "Agent configured successfully",
		"agent":   agentDetails(state, true),
	})
}

// LLMConfigRequest is the body of POST /llm-config.
type LLMConfigRequest struct {
	ModelName   *string  `json:"model_name"`
	Temperature *float64 `json:"temperature"`
	MaxTokens   *int     `json:"max_tokens"`
}

func (s *Server) handleLLMConfig(w http.ResponseWriter, r *http.Request) {
	var req LLMConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		s.errorResponse(w, http.StatusBadRequest, "temperature must be between 0 and 2")
		return
	}
	if req.MaxTokens != nil && *req.MaxTokens <= 0 {
		s.errorResponse(w, http.StatusBadRequest, "max_tokens must be positive")
		return
	}

	state, err := s.manager.UpdateLLM(r.Context(), chat.LLMUpdate{
		ModelName:   req.ModelName,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		s.logger.Error("LLM configuration failed", "error", err)
		s.errorResponse(w, statusFor(err), "Failed to configure LLM: "+err.Error())
		return
	}
	s.ok(w, map[string]any{
		"message": "LLM configured successfully",
		"llm":     LLMDetails{Temperature: state.Temperature, MaxTokens: state.MaxTokens},
	})
}

func (s *Server) handleLLMPing(w http.ResponseWriter, r *http.Request) {
	provider := strings.TrimSpace(r.URL.Query().Get("model_provider"))
	model := strings.TrimSpace(r.URL.Query().Get("model_name"))
	if provider == "" || model == "" {
		s.errorResponse(w, http.StatusBadRequest, "Model provider and name must be provided.")
		return
	}
	if !llm.Supported(provider) {
		s.errorResponse(w, http.StatusBadRequest, fmt.Sprintf(
			"Unsupported model provider: %s. Supported providers are: %s.",
			provider, strings.Join(llm.Providers, ", ")))
		return
	}

	if err := s.manager.Ping(r.Context(), provider, model); err != nil {
		s.logger.Warn("LLM ping failed", "provider", provider, "model", model, "error", err)
		s.errorResponse(w, statusFor(err), err.Error())
		return
	}
	s.ok(w, true)
}

// AppInfo describes the running application.
type AppInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

// AgentDetails is the agent section of the config summary.
type AgentDetails struct {
	Exists        bool   `json:"exists"`
	ModelProvider string `json:"model_provider"`
	ModelName     string `json:"model_name"`
	AgentName     string `json:"agent_name"`
	AgentPrompt   string `json:"agent_prompt"`
	// MCPSource is the file path, the inline server map, or null.
	MCPSource     any  `json:"mcp_source"`
	MemoryMode    bool `json:"memory_mode"`
	MaxIterations int  `json:"max_iterations"`
}

// LLMDetails is the sampling section of the config summary.
type LLMDetails struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// OverallSettings holds server-wide settings.
type OverallSettings struct {
	CORSOrigins []string `json:"cors_origins"`
}

// ConfigSummary is the response of GET /config/summary.
type ConfigSummary struct {
	App      AppInfo         `json:"app"`
	Agent    AgentDetails    `json:"agent"`
	LLM      LLMDetails      `json:"llm"`
	Settings OverallSettings `json:"settings"`
}

func agentDetails(state chat.State, exists bool) AgentDetails {
	d := AgentDetails{
		Exists:        exists,
		ModelProvider: state.ModelProvider,
		ModelName:     state.ModelName,
		AgentName:     state.AgentName,
		AgentPrompt:   state.Prompt,
		MemoryMode:    state.MemoryMode,
		MaxIterations: state.MaxIterations,
	}
	switch {
	case state.MCPSource.Path != "":
		d.MCPSource = state.MCPSource.Path
	case len(state.MCPSource.Servers) > 0:
		d.MCPSource = state.MCPSource.Servers
	}
	return d
}

func (s *Server) handleConfigSummary(w http.ResponseWriter, r *http.Request) {
	state := s.manager.State()
	s.ok(w, ConfigSummary{
		App: AppInfo{
			Name:        buildinfo.AppName,
			Version:     buildinfo.Version,
			Description: buildinfo.Description,
		},
		Agent:    agentDetails(state, s.manager.Agent() != nil),
		LLM:      LLMDetails{Temperature: state.Temperature, MaxTokens: state.MaxTokens},
		Settings: OverallSettings{CORSOrigins: s.opts.CORSOrigins},
	})
}

func (s *Server) handleExit(w http.ResponseWriter, r *http.Request) {
	if !s.running.CompareAndSwap(true, false) {
		s.errorResponse(w, http.StatusBadRequest, "Server is not running.")
		return
	}
	s.logger.Info("server is shutting down on request")
	s.ok(w, map[string]string{"message": "Server is shutting down."})
	s.requestExit()
}

// StatsResponse is the response of GET /v1/stats.
type StatsResponse struct {
	Session usage.StatsSnapshot       `json:"session"`
	Usage   *usage.Summary            `json:"usage,omitempty"`
	ByModel map[string]*usage.Summary `json:"by_model,omitempty"`
	Build   map[string]string         `json:"build"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{Build: buildinfo.Info()}
	if s.chat.Stats != nil {
		resp.Session = s.chat.Stats.Snapshot()
	}
	if s.usage != nil {
		var since time.Time
		if d := r.URL.Query().Get("since"); d != "" {
			dur, err := time.ParseDuration(d)
			if err != nil || dur <= 0 {
				s.errorResponse(w, http.StatusBadRequest, "since must be a positive duration such as 24h")
				return
			}
			since = time.Now().Add(-dur)
		}
		now := time.Now().Add(time.Second)

		sum, err := s.usage.Summary(r.Context(), since, now)
		if err != nil {
			s.logger.Error("usage summary failed", "error", err)
			s.errorResponse(w, http.StatusInternalServerError, "usage summary failed")
			return
		}
		byModel, err := s.usage.SummaryByModel(r.Context(), since, now)
		if err != nil {
			s.logger.Error("usage summary by model failed", "error", err)
			s.errorResponse(w, http.StatusInternalServerError, "usage summary failed")
			return
		}
		resp.Usage, resp.ByModel = sum, byModel
	}
	s.ok(w, resp)
}

// checkpointer resolves the running agent's thread store and writes the
// error response when there is none.
func (s *Server) checkpointer(w http.ResponseWriter) memory.Checkpointer {
	ag := s.manager.Agent()
	if ag == nil {
		s.errorResponse(w, http.StatusInternalServerError, chat.ErrAgentNotCreated.Error())
		return nil
	}
	cp := ag.Checkpointer()
	if cp == nil {
		s.errorResponse(w, http.StatusConflict, "memory mode is off")
		return nil
	}
	return cp
}

func (s *Server) handleThreadList(w http.ResponseWriter, r *http.Request) {
	cp := s.checkpointer(w)
	if cp == nil {
		return
	}
	threads, err := cp.List(r.Context())
	if err != nil {
		s.logger.Error("thread list failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "thread list failed")
		return
	}
	s.ok(w, map[string]any{"count": len(threads), "threads": threads})
}

func (s *Server) handleThreadGet(w http.ResponseWriter, r *http.Request) {
	cp := s.checkpointer(w)
	if cp == nil {
		return
	}
	id := chi.URLParam(r, "id")
	msgs, err := cp.Load(r.Context(), id)
	if errors.Is(err, memory.ErrThreadNotFound) {
		s.errorResponse(w, http.StatusNotFound, "thread not found")
		return
	}
	if err != nil {
		s.logger.Error("thread load failed", "thread_id", id, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "thread load failed")
		return
	}
	s.ok(w, map[string]any{
		"thread_id": id,
		"messages":  chat.AnalyzeMessages(msgs),
	})
}

func (s *Server) handleThreadDelete(w http.ResponseWriter, r *http.Request) {
	ag := s.manager.Agent()
	if s.checkpointer(w) == nil {
		return
	}
	id := chi.URLParam(r, "id")
	if err := ag.ResetThread(r.Context(), id); err != nil {
		s.logger.Error("thread reset failed", "thread_id", id, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "thread reset failed")
		return
	}
	s.ok(w, map[string]string{"message": "Thread cleared", "thread_id": id})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, mcp.ErrInvalidConfig),
		errors.Is(err, mcp.ErrUnsupportedTransport),
		errors.Is(err, llm.ErrUnsupportedProvider),
		errors.Is(err, llm.ErrMissingAPIKey):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
