// Package agent assembles the chat model, MCP tools and thread memory
// into an agent and runs its tool-calling loop.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/sinagilassi/mozichem-ai/internal/llm"
	"github.com/sinagilassi/mozichem-ai/internal/mcp"
	"github.com/sinagilassi/mozichem-ai/internal/memory"
	"github.com/sinagilassi/mozichem-ai/internal/prompts"
	"github.com/sinagilassi/mozichem-ai/internal/tools"
)

// Agent is an assembled, ready-to-run agent.
type Agent struct {
	opts         Options
	llm          llm.Client
	registry     *tools.Registry
	mcp          *mcp.MultiServerClient
	checkpointer memory.Checkpointer
	logger       *slog.Logger

	threadMu sync.Mutex
	threads  map[string]*threadLock
}

// threadLock serializes turns on one thread. Entries are dropped once
// no turn holds or waits for them.
type threadLock struct {
	mu   sync.Mutex
	refs int
}

// Result is the outcome of one Run.
type Result struct {
	ThreadID string
	// Messages is the thread transcript after the turn, without the
	// system prompt. With memory off it holds only this turn.
	Messages []llm.Message
	Content  string
	Model    string
	// Usage sums every model call of the turn. UsageReported is false
	// when the provider reported no counts at all.
	Usage         llm.Usage
	UsageReported bool
	Iterations    int
	// Exhausted is set when MaxIterations was reached before a final answer.
	Exhausted bool
}

// Name returns the agent name.
func (a *Agent) Name() string { return a.opts.Name }

// Options returns the effective options.
func (a *Agent) Options() Options { return a.opts }

// Tools lists the registered tool names in registration order.
func (a *Agent) Tools() []string { return a.registry.Names() }

// ToolsBySource groups tool names by MCP server, with "builtin" for the
// local tools.
func (a *Agent) ToolsBySource() map[string][]string { return a.registry.BySource() }

// Servers reports the MCP servers and their connection state.
func (a *Agent) Servers() []mcp.ServerStatus { return a.mcp.Status() }

// Checkpointer returns the thread store, or nil when memory is off.
func (a *Agent) Checkpointer() memory.Checkpointer { return a.checkpointer }

// Close closes all MCP sessions.
func (a *Agent) Close() error { return a.mcp.Close() }

// ResetThread clears a thread's history. It is a no-op when memory is off.
func (a *Agent) ResetThread(ctx context.Context, threadID string) error {
	if a.checkpointer == nil {
		return nil
	}
	a.logger.Info("thread reset", "thread_id", threadID)
	return a.checkpointer.Delete(ctx, threadID)
}

func (a *Agent) lockThread(id string) func() {
	a.threadMu.Lock()
	if a.threads == nil {
		a.threads = make(map[string]*threadLock)
	}
	tl, ok := a.threads[id]
	if !ok {
		tl = &threadLock{}
		a.threads[id] = tl
	}
	tl.refs++
	a.threadMu.Unlock()

	tl.mu.Lock()
	return func() {
		tl.mu.Unlock()
		a.threadMu.Lock()
		if tl.refs--; tl.refs == 0 {
			delete(a.threads, id)
		}
		a.threadMu.Unlock()
	}
}

// Run sends message on threadID and loops until the model answers
// without requesting tools or MaxIterations is reached. When cb is
// non-nil, tokens and tool progress are streamed to it and a KindDone
// event closes the turn.
func (a *Agent) Run(ctx context.Context, threadID, message string, cb llm.StreamCallback) (*Result, error) {
	unlock := a.lockThread(threadID)
	defer unlock()

	start := time.Now()
	log := a.logger.With("thread_id", threadID)

	var history []llm.Message
	if a.checkpointer != nil {
		h, err := a.checkpointer.Load(ctx, threadID)
		switch {
		case errors.Is(err, memory.ErrThreadNotFound):
		case err != nil:
			return nil, fmt.Errorf("load thread %s: %w", threadID, err)
		default:
			history = h
		}
	}
	log.Info("agent turn started", "history", len(history), "model", a.opts.Model)

	transcript := append(slices.Clone(history), llm.Message{Role: llm.RoleUser, Content: message})
	res := &Result{ThreadID: threadID, Model: a.opts.Model}
	toolDefs := a.registry.List()
	toolCtx := tools.WithThreadID(ctx, threadID)

	var (
		last   *llm.ChatResponse
		nudged bool // the nudge was spent this turn
		nudge  bool // send the nudge on the next call only
		final  string
		done   bool
	)
	for i := 0; i < a.opts.MaxIterations; i++ {
		res.Iterations = i + 1

		req := make([]llm.Message, 0, len(transcript)+2)
		req = append(req, llm.Message{Role: llm.RoleSystem, Content: a.opts.Prompt})
		req = append(req, transcript...)
		if nudge {
			req = append(req, llm.Message{Role: llm.RoleUser, Content: prompts.EmptyResponseNudge})
			nudge = false
		}

		log.Debug("calling model", "iteration", i, "messages", len(req), "tools", len(toolDefs))
		resp, err := a.call(ctx, req, toolDefs, cb)
		if err != nil {
			log.Error("model call failed", "iteration", i, "error", err)
			return nil, fmt.Errorf("model call: %w", err)
		}
		last = resp
		if resp.Model != "" {
			res.Model = resp.Model
		}
		if resp.Usage != nil {
			res.UsageReported = true
			res.Usage.InputTokens += resp.Usage.InputTokens
			res.Usage.OutputTokens += resp.Usage.OutputTokens
		}

		reply := resp.Message
		reply.Role = llm.RoleAssistant

		if len(reply.ToolCalls) == 0 {
			if reply.Content == "" && i > 0 && !nudged {
				// Tools ran but the model said nothing; ask once more.
				log.Warn("empty response after tool calls, nudging", "iteration", i)
				nudged, nudge = true, true
				continue
			}
			if reply.Content == "" {
				reply.Content = prompts.EmptyResponseFallback
			}
			transcript = append(transcript, reply)
			final = reply.Content
			done = true
			break
		}

		for j := range reply.ToolCalls {
			if reply.ToolCalls[j].ID == "" {
				reply.ToolCalls[j].ID = fmt.Sprintf("call_%d_%d", i, j)
			}
		}
		transcript = append(transcript, reply)
		transcript = append(transcript, a.executeTools(toolCtx, log, reply.ToolCalls, cb)...)
	}

	if !done {
		res.Exhausted = true
		final = prompts.MaxIterationsFallback(a.opts.MaxIterations)
		transcript = append(transcript, llm.Message{Role: llm.RoleAssistant, Content: final})
		log.Warn("max iterations reached", "iterations", a.opts.MaxIterations)
	}
	res.Content = final
	res.Messages = transcript

	if a.checkpointer != nil {
		if err := a.checkpointer.Save(ctx, threadID, transcript); err != nil {
			log.Error("failed to save thread", "error", err)
		}
	}

	if cb != nil {
		out := &llm.ChatResponse{Model: res.Model, Message: llm.Message{Role: llm.RoleAssistant, Content: final}}
		if last != nil {
			out.StopReason = last.StopReason
		}
		if res.UsageReported {
			u := res.Usage
			out.Usage = &u
		}
		out.TotalDuration = time.Since(start)
		cb(llm.StreamEvent{Kind: llm.KindDone, Response: out})
	}

	log.Info("agent turn completed",
		"iterations", res.Iterations,
		"input_tokens", res.Usage.InputTokens,
		"output_tokens", res.Usage.OutputTokens,
		"elapsed", time.Since(start),
	)
	return res, nil
}

func (a *Agent) call(ctx context.Context, msgs []llm.Message, toolDefs []map[string]any, cb llm.StreamCallback) (*llm.ChatResponse, error) {
	if cb == nil {
		return a.llm.Chat(ctx, a.opts.Model, msgs, toolDefs)
	}
	return a.llm.ChatStream(ctx, a.opts.Model, msgs, toolDefs, cb)
}

// executeTools runs each call in order. Failures become error results
// the model can read; they never abort the turn.
func (a *Agent) executeTools(ctx context.Context, log *slog.Logger, calls []llm.ToolCall, cb llm.StreamCallback) []llm.Message {
	out := make([]llm.Message, 0, len(calls))
	for _, tc := range calls {
		if cb != nil {
			call := tc
			cb(llm.StreamEvent{Kind: llm.KindToolCallStart, ToolCall: &call})
		}

		started := time.Now()
		result, err := a.registry.Execute(ctx, tc.Function.Name, tc.Function.Arguments)
		msg := llm.Message{
			Role:       llm.RoleTool,
			ToolCallID: tc.ID,
			Name:       tc.Function.Name,
			Content:    result,
		}
		ev := llm.StreamEvent{Kind: llm.KindToolCallDone, ToolName: tc.Function.Name, ToolResult: result}
		if err != nil {
			msg.Content = "Error: " + err.Error()
			msg.IsError = true
			ev.ToolError = err.Error()
			log.Warn("tool failed", "tool", tc.Function.Name, "error", err, "elapsed", time.Since(started))
		} else {
			log.Debug("tool executed", "tool", tc.Function.Name, "bytes", len(result), "elapsed", time.Since(started))
		}
		if cb != nil {
			cb(ev)
		}
		out = append(out, msg)
	}
	return out
}
