package web

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sinagilassi/mozichem-ai/internal/llm"
	"github.com/sinagilassi/mozichem-ai/internal/mcp"
	"github.com/sinagilassi/mozichem-ai/internal/memory"
	"github.com/sinagilassi/mozichem-ai/internal/usage"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newThreadStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore(memory.DefaultMaxMessages)
	err := store.Save(context.Background(), "lab-1", []llm.Message{
		{Role: llm.RoleUser, Content: "Molar mass of H2O?"},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "c1", Function: llm.FunctionCall{Name: "mcp_chem_molar_mass", Arguments: map[string]any{"formula": "H2O"}}}}},
		{Role: llm.RoleTool, ToolCallID: "c1", Name: "mcp_chem_molar_mass", Content: "18.015"},
		{Role: llm.RoleAssistant, Content: "Water is 18.015 g/mol."},
	})
	if err != nil {
		t.Fatal(err)
	}
	return store
}

// newTestServer creates a WebServer with stub providers for testing.
func newTestServer(t *testing.T) *WebServer {
	store := newThreadStore(t)
	return NewWebServer(Config{
		BasePath: "/ui/",
		APIBase:  "",
		StatsFunc: func() StatsSnapshot {
			return StatsSnapshot{
				Session: usage.StatsSnapshot{Turns: 3, Failures: 1, InputTokens: 12345, OutputTokens: 678},
				Usage:   &usage.Summary{TotalRecords: 3, TotalCostUSD: decimal.RequireFromString("0.0042")},
				ByModel: map[string]*usage.Summary{
					"gpt-4o-mini": {TotalRecords: 3, TotalInputTokens: 12345, TotalCostUSD: decimal.RequireFromString("0.0042")},
				},
				Build: map[string]string{
					"name":       "MoziChem AI",
					"version":    "test-v1.0.0",
					"git_commit": "abc1234",
					"go_version": "go1.25.0",
				},
			}
		},
		AgentFunc: func() AgentInfo {
			return AgentInfo{
				Exists:     true,
				Name:       "Lab Assistant",
				Provider:   "openai",
				Model:      "gpt-4o-mini",
				MemoryMode: true,
				Tools:      map[string][]string{"builtin": {"multiply", "add"}, "chem": {"mcp_chem_molar_mass"}},
				Servers: []mcp.ServerStatus{
					{Name: "chem", Transport: mcp.TransportStreamableHTTP, Target: "http://localhost:8000/mcp", Connected: true, Tools: 1},
					{Name: "thermo", Transport: mcp.TransportStdio, Target: "thermo-mcp", Error: "executable not found"},
				},
			}
		},
		ThreadsFunc: func() ThreadStore { return store },
		Logger:      quiet,
	})
}

func get(t *testing.T, h http.Handler, path string, htmx bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if htmx {
		req.Header.Set("HX-Request", "true")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestDashboard_FullPage(t *testing.T) {
	w := get(t, newTestServer(t).Handler(), "/", false)
	if w.Code != http.StatusOK {
		t.Fatalf("GET / status = %d, want %d", w.Code, http.StatusOK)
	}

	body := w.Body.String()
	for _, want := range []string{
		"<!DOCTYPE html>", "<nav", "MoziChem", "test-v1.0.0", "abc1234",
		"Lab Assistant", "gpt-4o-mini", "executable not found", "mcp_chem_molar_mass",
		"12,345", "$0.0042", `href="/ui/chat"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("GET / response missing %q", want)
		}
	}
}

func TestDashboard_HtmxPartial(t *testing.T) {
	w := get(t, newTestServer(t).Handler(), "/", true)
	if w.Code != http.StatusOK {
		t.Fatalf("GET / (htmx) status = %d, want %d", w.Code, http.StatusOK)
	}

	body := w.Body.String()
	if strings.Contains(body, "<!DOCTYPE html>") || strings.Contains(body, "<nav") {
		t.Error("htmx partial should not contain the layout")
	}
	if !strings.Contains(body, "test-v1.0.0") {
		t.Error("htmx partial should contain version info")
	}
}

func TestDashboard_SubpathNotFound(t *testing.T) {
	w := get(t, newTestServer(t).Handler(), "/nonexistent", false)
	if w.Code != http.StatusNotFound {
		t.Errorf("GET /nonexistent status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestDashboard_NilProviders(t *testing.T) {
	ws := NewWebServer(Config{Logger: quiet})
	w := get(t, ws.Handler(), "/", false)
	if w.Code != http.StatusOK {
		t.Fatalf("GET / (nil providers) status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "not created yet") {
		t.Error("dashboard without agent should say so")
	}
}

func TestStaticCSS(t *testing.T) {
	w := get(t, newTestServer(t).Handler(), "/static/style.css", false)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /static/style.css status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "css") {
		t.Errorf("Content-Type = %q, want css", ct)
	}
}

func TestChat_RendersInLayout(t *testing.T) {
	w := get(t, newTestServer(t).Handler(), "/chat", false)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /chat status = %d, want %d", w.Code, http.StatusOK)
	}

	body := w.Body.String()
	for _, want := range []string{"<!DOCTYPE html>", "<nav", "Ask MoziChem about a molecule..."} {
		if !strings.Contains(body, want) {
			t.Errorf("GET /chat response missing %q", want)
		}
	}
	if !strings.Contains(body, `class="nav-link active" href="/ui/chat"`) {
		t.Error("GET /chat should mark the chat nav link active")
	}
}

func TestThreads(t *testing.T) {
	h := newTestServer(t).Handler()

	w := get(t, h, "/threads", false)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /threads status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `href="/ui/threads/lab-1"`) {
		t.Error("thread list should link lab-1")
	}

	w = get(t, h, "/threads/lab-1", false)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /threads/lab-1 status = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"Water is 18.015 g/mol.", "mcp_chem_molar_mass {&#34;formula&#34;:&#34;H2O&#34;}"} {
		if !strings.Contains(body, want) {
			t.Errorf("thread detail missing %q", want)
		}
	}

	if w := get(t, h, "/threads/missing", false); w.Code != http.StatusNotFound {
		t.Errorf("GET /threads/missing status = %d, want 404", w.Code)
	}
}

func TestThreads_MemoryOff(t *testing.T) {
	ws := NewWebServer(Config{ThreadsFunc: func() ThreadStore { return nil }, Logger: quiet})
	h := ws.Handler()

	w := get(t, h, "/threads", false)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Memory mode is off") {
		t.Errorf("GET /threads with memory off: %d %q", w.Code, w.Body.String())
	}
	if w := get(t, h, "/threads/x", false); w.Code != http.StatusNotFound {
		t.Errorf("GET /threads/x status = %d, want 404", w.Code)
	}
}

func TestFormatHelpers(t *testing.T) {
	if got := formatCost(decimal.Zero); got != "$0.00" {
		t.Errorf("formatCost(0) = %q", got)
	}
	if got := formatCost(decimal.RequireFromString("0.00123")); got != "$0.0012" {
		t.Errorf("formatCost(small) = %q", got)
	}
	if got := formatCost(decimal.RequireFromString("1.5")); got != "$1.50" {
		t.Errorf("formatCost(1.5) = %q", got)
	}
	if got := formatTokens(1234567); got != "1,234,567" {
		t.Errorf("formatTokens = %q", got)
	}
	if got := timeAgo(time.Time{}); got != "never" {
		t.Errorf("timeAgo(zero) = %q", got)
	}
	if got := formatDuration(90 * time.Minute); got != "1h 30m" {
		t.Errorf("formatDuration = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		s    string
		n    int
		want string
	}{
		{"short string unchanged", "hello", 10, "hello"},
		{"exact length unchanged", "hello", 5, "hello"},
		{"truncated with ellipsis", "hello world", 8, "hello..."},
		{"n equals 3", "hello", 3, "hel"},
		{"empty string", "", 5, ""},
		{"unicode truncated", "α-pinene oxide", 6, "α-p..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncate(tt.s, tt.n); got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.s, tt.n, got, tt.want)
			}
		})
	}
}
