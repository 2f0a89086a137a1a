// Package chat runs chat turns against the configured agent and
// shapes the results for API and console clients.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sinagilassi/mozichem-ai/internal/agent"
	"github.com/sinagilassi/mozichem-ai/internal/llm"
	"github.com/sinagilassi/mozichem-ai/internal/usage"
)

var (
	// ErrAgentNotCreated is returned when a turn arrives before the
	// agent has been built.
	ErrAgentNotCreated = errors.New("agent is not created yet")

	// ErrEmptyMessage is returned for a blank user message.
	ErrEmptyMessage = errors.New("message must not be empty")
)

// Runner runs one agent turn.
type Runner interface {
	Run(ctx context.Context, threadID, message string, cb llm.StreamCallback) (*agent.Result, error)
}

// AgentSource yields the agent to run and the configuration it was
// built from. The Runner is nil when no agent exists.
type AgentSource interface {
	Current() (Runner, State)
}

// Recorder persists per-turn usage.
type Recorder interface {
	Record(ctx context.Context, rec usage.Record) error
}

// Request is one chat turn.
type Request struct {
	Message    string `json:"message"`
	ThreadID   string `json:"thread_id,omitempty"`
	RenderHTML bool   `json:"render_html,omitempty"`
}

// TokenMetadata holds the turn's token counts; -1 means the provider
// did not report them.
type TokenMetadata struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is the result of a chat turn.
type Response struct {
	ThreadID      string         `json:"thread_id"`
	Content       string         `json:"content"`
	Messages      []AgentMessage `json:"messages"`
	TokenMetadata TokenMetadata  `json:"token_metadata"`
	DurationMS    int64          `json:"duration_ms"`
	ModelProvider string         `json:"model_provider"`
	ModelName     string         `json:"model_name"`
	HTML          string         `json:"html,omitempty"`
	Iterations    int            `json:"iterations"`
	Exhausted     bool           `json:"exhausted,omitempty"`
}

// Update is one streamed progress event.
type Update struct {
	Type       string         `json:"type"`
	ThreadID   string         `json:"thread_id"`
	Token      string         `json:"token,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	ToolArgs   map[string]any `json:"tool_args,omitempty"`
	ToolResult string         `json:"tool_result,omitempty"`
	ToolError  string         `json:"tool_error,omitempty"`
	Content    string         `json:"content,omitempty"`
}

// Handler runs chat turns. Agents is required; the rest is optional.
type Handler struct {
	Agents  AgentSource
	Usage   Recorder
	Pricing map[string]usage.ModelPricing
	Stats   *usage.SessionStats
	Logger  *slog.Logger

	// NewThreadID overrides thread ID generation in tests.
	NewThreadID func() string
}

// Chat runs one turn and waits for the final answer.
func (h *Handler) Chat(ctx context.Context, req Request) (*Response, error) {
	return h.run(ctx, req, nil)
}

// Stream runs one turn, passing every agent event to cb as an Update
// before returning the final response.
func (h *Handler) Stream(ctx context.Context, req Request, cb func(Update)) (*Response, error) {
	return h.run(ctx, req, cb)
}

func (h *Handler) run(ctx context.Context, req Request, cb func(Update)) (*Response, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}
	if h.Agents == nil {
		return nil, ErrAgentNotCreated
	}
	runner, state := h.Agents.Current()
	if runner == nil {
		return nil, ErrAgentNotCreated
	}

	threadID := strings.TrimSpace(req.ThreadID)
	if threadID == "" {
		threadID = h.threadID()
	}
	log := h.logger().With("thread_id", threadID)

	var streamCB llm.StreamCallback
	if cb != nil {
		streamCB = func(ev llm.StreamEvent) { cb(toUpdate(threadID, ev)) }
	}

	start := time.Now()
	res, err := runner.Run(ctx, threadID, req.Message, streamCB)
	elapsed := time.Since(start)
	if err != nil {
		if h.Stats != nil {
			h.Stats.RecordFailure()
		}
		log.Error("chat turn failed", "error", err, "elapsed", elapsed)
		return nil, fmt.Errorf("chat turn: %w", err)
	}

	tokens := TokenMetadata{InputTokens: -1, OutputTokens: -1}
	if res.UsageReported {
		tokens = TokenMetadata{InputTokens: res.Usage.InputTokens, OutputTokens: res.Usage.OutputTokens}
	}

	resp := &Response{
		ThreadID:      threadID,
		Content:       res.Content,
		Messages:      AnalyzeMessages(res.Messages),
		TokenMetadata: tokens,
		DurationMS:    elapsed.Milliseconds(),
		ModelProvider: state.ModelProvider,
		ModelName:     state.ModelName,
		Iterations:    res.Iterations,
		Exhausted:     res.Exhausted,
	}
	if req.RenderHTML {
		html, err := RenderHTML(res.Content)
		if err != nil {
			log.Warn("markdown render failed", "error", err)
		} else {
			resp.HTML = html
		}
	}

	if h.Stats != nil {
		h.Stats.RecordTurn(tokens.InputTokens, tokens.OutputTokens)
	}
	h.record(ctx, log, state, resp)

	log.Info("chat turn completed",
		"duration_ms", resp.DurationMS,
		"input_tokens", tokens.InputTokens,
		"output_tokens", tokens.OutputTokens,
	)
	return resp, nil
}

func (h *Handler) record(ctx context.Context, log *slog.Logger, state State, resp *Response) {
	if h.Usage == nil {
		return
	}
	pricing := h.Pricing
	if pricing == nil {
		pricing = usage.DefaultPricing
	}
	in, out := max(resp.TokenMetadata.InputTokens, 0), max(resp.TokenMetadata.OutputTokens, 0)
	rec := usage.Record{
		Timestamp:    time.Now(),
		ThreadID:     resp.ThreadID,
		Provider:     state.ModelProvider,
		Model:        resp.ModelName,
		InputTokens:  in,
		OutputTokens: out,
		CostUSD:      usage.ComputeCost(resp.ModelName, in, out, pricing),
		DurationMS:   resp.DurationMS,
	}
	if err := h.Usage.Record(ctx, rec); err != nil {
		log.Warn("failed to record usage", "error", err)
	}
}

func (h *Handler) threadID() string {
	if h.NewThreadID != nil {
		return h.NewThreadID()
	}
	return uuid.NewString()
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func toUpdate(threadID string, ev llm.StreamEvent) Update {
	u := Update{Type: ev.Kind.String(), ThreadID: threadID}
	switch ev.Kind {
	case llm.KindToken:
		u.Token = ev.Token
	case llm.KindToolCallStart:
		if ev.ToolCall != nil {
			u.ToolName = ev.ToolCall.Function.Name
			u.ToolArgs = ev.ToolCall.Function.Arguments
		}
	case llm.KindToolCallDone:
		u.ToolName = ev.ToolName
		u.ToolResult = ev.ToolResult
		u.ToolError = ev.ToolError
	case llm.KindDone:
		if ev.Response != nil {
			u.Content = ev.Response.Message.Content
		}
	}
	return u
}
