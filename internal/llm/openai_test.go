package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAIClient_Chat(t *testing.T) {
	var got openaiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{
			"model": "gpt-4o-mini",
			"choices": [{"message": {"role": "assistant", "content": "",
				"tool_calls": [{"id": "call_1", "type": "function",
					"function": {"name": "multiply", "arguments": "{\"a\":2,\"b\":3}"}}]},
				"finish_reason": "tool_calls"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 7}
		}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient("openai", srv.URL, "sk-test", Sampling{Temperature: 0.2, MaxTokens: 64}, nil)
	resp, err := c.Chat(context.Background(), "gpt-4o-mini", []Message{
		{Role: RoleSystem, Content: "be terse"},
		{Role: RoleUser, Content: "2*3?"},
	}, []map[string]any{{"type": "function", "function": map[string]any{"name": "multiply"}}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if got.Temperature != 0.2 || got.MaxTokens != 64 || got.Stream {
		t.Errorf("request = %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Errorf("request messages = %+v", got.Messages)
	}
	if resp.StopReason != "tool_calls" {
		t.Errorf("StopReason = %q", resp.StopReason)
	}
	if resp.Usage == nil || resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 7 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("ToolCalls = %+v", resp.Message.ToolCalls)
	}
	tc := resp.Message.ToolCalls[0]
	if tc.ID != "call_1" || tc.Function.Name != "multiply" || tc.Function.Arguments["b"] != 3.0 {
		t.Errorf("ToolCall = %+v", tc)
	}
}

func TestOpenAIClient_Stream(t *testing.T) {
	chunks := []string{
		`{"model":"gpt-4o-mini","choices":[{"delta":{"content":"The "}}]}`,
		`{"choices":[{"delta":{"content":"answer"}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_9","function":{"name":"add","arguments":"{\"a\":"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"1,\"b\":2}"}}]},"finish_reason":"tool_calls"}]}`,
		`{"choices":[],"usage":{"prompt_tokens":30,"completion_tokens":9}}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openaiRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream || req.StreamOptions == nil || !req.StreamOptions.IncludeUsage {
			t.Errorf("stream request = %+v", req)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	var tokens []string
	c := NewOpenAIClient("google", srv.URL, "key", DefaultSampling, nil)
	resp, err := c.ChatStream(context.Background(), "gemini-2.0-flash", []Message{{Role: RoleUser, Content: "hi"}}, nil, func(ev StreamEvent) {
		if ev.Kind == KindToken {
			tokens = append(tokens, ev.Token)
		}
	})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	if strings.Join(tokens, "") != "The answer" || resp.Message.Content != "The answer" {
		t.Errorf("tokens = %q, content = %q", tokens, resp.Message.Content)
	}
	if len(resp.Message.ToolCalls) != 1 || resp.Message.ToolCalls[0].Function.Arguments["a"] != 1.0 {
		t.Errorf("ToolCalls = %+v", resp.Message.ToolCalls)
	}
	if resp.Usage == nil || resp.Usage.InputTokens != 30 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
	if resp.Model != "gpt-4o-mini" {
		t.Errorf("Model = %q", resp.Model)
	}
}

func TestOpenAIClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"model not found"}}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewOpenAIClient("openai", srv.URL, "k", DefaultSampling, nil)
	_, err := c.Chat(context.Background(), "nope", []Message{{Role: RoleUser, Content: "x"}}, nil)
	if err == nil || !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "model not found") {
		t.Errorf("err = %v", err)
	}
}

func TestOpenAIClient_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, `{"data":[]}`)
	}))
	defer srv.Close()

	if err := NewOpenAIClient("openai", srv.URL, "good", DefaultSampling, nil).Ping(context.Background()); err != nil {
		t.Errorf("Ping(good) = %v", err)
	}
	err := NewOpenAIClient("openai", srv.URL, "bad", DefaultSampling, nil).Ping(context.Background())
	if err == nil || !strings.Contains(err.Error(), "invalid API key") {
		t.Errorf("Ping(bad) = %v", err)
	}
}

func TestConvertToOpenAI_ToolRoundTrip(t *testing.T) {
	msgs := convertToOpenAI([]Message{
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Function: FunctionCall{Name: "add"}}}},
		{Role: RoleTool, Content: "3", ToolCallID: "c1", Name: "add"},
	})
	if msgs[0].ToolCalls[0].Function.Arguments != "{}" || msgs[0].ToolCalls[0].Type != "function" {
		t.Errorf("assistant tool call = %+v", msgs[0].ToolCalls[0])
	}
	if msgs[1].ToolCallID != "c1" || msgs[1].Name != "add" {
		t.Errorf("tool message = %+v", msgs[1])
	}

	calls := convertFromOpenAIToolCalls([]openaiToolCall{{ID: "x"}})
	if calls[0].Function.Arguments != nil {
		t.Errorf("empty arguments should decode to nil, got %v", calls[0].Function.Arguments)
	}
}
