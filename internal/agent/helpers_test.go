package agent

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sinagilassi/mozichem-ai/internal/llm"
	"github.com/sinagilassi/mozichem-ai/internal/mcp"
)

type mockLLM struct {
	mu        sync.Mutex
	responses []*llm.ChatResponse
	callIndex int
	calls     []mockLLMCall
}

type mockLLMCall struct {
	Model    string
	Messages []llm.Message
	Tools    []map[string]any
	Stream   bool
}

func (m *mockLLM) Chat(ctx context.Context, model string, msgs []llm.Message, td []map[string]any) (*llm.ChatResponse, error) {
	return m.next(model, msgs, td, nil)
}

func (m *mockLLM) ChatStream(_ context.Context, model string, msgs []llm.Message, td []map[string]any, cb llm.StreamCallback) (*llm.ChatResponse, error) {
	return m.next(model, msgs, td, cb)
}

func (m *mockLLM) next(model string, msgs []llm.Message, td []map[string]any, cb llm.StreamCallback) (*llm.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, mockLLMCall{Model: model, Messages: msgs, Tools: td, Stream: cb != nil})

	if m.callIndex >= len(m.responses) {
		return nil, fmt.Errorf("mockLLM: no more responses (call %d)", m.callIndex)
	}
	resp := m.responses[m.callIndex]
	m.callIndex++
	if cb != nil && resp.Message.Content != "" {
		cb(llm.StreamEvent{Kind: llm.KindToken, Token: resp.Message.Content})
	}
	return resp, nil
}

func (m *mockLLM) Ping(_ context.Context) error { return nil }

func toolCall(id, name string, args map[string]any) llm.ToolCall {
	return llm.ToolCall{ID: id, Function: llm.FunctionCall{Name: name, Arguments: args}}
}

func text(content string, in, out int) *llm.ChatResponse {
	return &llm.ChatResponse{
		Model:   "test-model",
		Message: llm.Message{Role: llm.RoleAssistant, Content: content},
		Usage:   &llm.Usage{InputTokens: in, OutputTokens: out},
	}
}

func calls(tcs ...llm.ToolCall) *llm.ChatResponse {
	return &llm.ChatResponse{
		Model:   "test-model",
		Message: llm.Message{Role: llm.RoleAssistant, ToolCalls: tcs},
		Usage:   &llm.Usage{InputTokens: 10, OutputTokens: 5},
	}
}

type massInput struct {
	Formula string `json:"formula"`
}

// chemHTTPServer serves an MCP server with a molar-mass tool over
// streamable HTTP and returns its URL.
func chemHTTPServer(t *testing.T) string {
	t.Helper()
	srv := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "chem-http", Version: "0.1.0"}, nil)
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        "molar-mass",
		Description: "Molar mass of a formula in g/mol",
	}, func(_ context.Context, _ *mcpsdk.CallToolRequest, in massInput) (*mcpsdk.CallToolResult, any, error) {
		if in.Formula != "H2O" {
			return nil, nil, fmt.Errorf("unknown formula %s", in.Formula)
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "18.015"}},
		}, nil, nil
	})

	handler := mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return srv }, nil)
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts.URL
}

func httpTransport(url string) mcp.ServerConfig {
	return mcp.ServerConfig{
		Transport: mcp.TransportStreamableHTTP,
		HTTP:      &mcp.HTTPConfig{URL: url},
	}
}
