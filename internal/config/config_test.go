package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFindConfig_Explicit(t *testing.T) {
	path := writeFile(t, t.TempDir(), "test.yaml", "listen:\n  port: 9999\n")

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	if _, err := FindConfig("/nonexistent/config.yaml"); err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", "listen:\n  port: 8001\n")
	t.Chdir(dir)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "config.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "config.yaml")
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "agent:\n  prompt: be brief\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Listen.Addr() != "127.0.0.1:8000" {
		t.Errorf("Addr() = %q, want 127.0.0.1:8000", cfg.Listen.Addr())
	}
	if cfg.Agent.ModelProvider != "openai" || cfg.Agent.ModelName != DefaultModel {
		t.Errorf("model = %s/%s, want openai/%s", cfg.Agent.ModelProvider, cfg.Agent.ModelName, DefaultModel)
	}
	if cfg.LLM.Temperature != 0 || cfg.LLM.MaxTokens != 2048 {
		t.Errorf("llm = %+v, want temperature 0 max_tokens 2048", cfg.LLM)
	}
	if cfg.Agent.Prompt != "be brief" {
		t.Errorf("prompt = %q", cfg.Agent.Prompt)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "providers:\n  anthropic:\n    api_key: ${MOZICHEM_TEST_KEY}\n")
	t.Setenv("MOZICHEM_TEST_KEY", "secret123")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Providers.Anthropic.APIKey != "secret123" {
		t.Errorf("api_key = %q, want %q", cfg.Providers.Anthropic.APIKey, "secret123")
	}
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "secrets.env", "MOZICHEM_ENVFILE_KEY=from-file\n")
	path := writeFile(t, dir, "config.yaml", "env_files: [secrets.env]\nproviders:\n  openai:\n    api_key: ${MOZICHEM_ENVFILE_KEY}\n")
	t.Cleanup(func() { os.Unsetenv("MOZICHEM_ENVFILE_KEY") })

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Providers.OpenAI.APIKey != "from-file" {
		t.Errorf("api_key = %q, want from-file", cfg.Providers.OpenAI.APIKey)
	}
}

func TestLoad_MissingEnvFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "env_files: [nope.env]\n")
	if _, err := Load(path); err == nil {
		t.Fatal("Load with missing env file should error")
	}
}

func TestLoad_InlineMCPServers(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
agent:
  mcp_servers:
    chem:
      transport: stdio
      command: python
      args: [server.py]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	chem, ok := cfg.Agent.MCPServers["chem"]
	if !ok {
		t.Fatal("mcp_servers.chem missing")
	}
	if chem["command"] != "python" {
		t.Errorf("command = %v, want python", chem["command"])
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"default", func(*Config) {}, ""},
		{"bad provider", func(c *Config) { c.Agent.ModelProvider = "cohere" }, "model_provider"},
		{"missing model", func(c *Config) { c.Agent.ModelName = "" }, "model_name"},
		{"bad temperature", func(c *Config) { c.LLM.Temperature = 3 }, "temperature"},
		{"bad port", func(c *Config) { c.Listen.Port = 70000 }, "port"},
		{"sqlite without data dir", func(c *Config) { c.Memory.Backend = "sqlite" }, "data_dir"},
		{"both sources", func(c *Config) {
			c.Agent.MCPSource = "mcp.yaml"
			c.Agent.MCPServers = map[string]map[string]any{"x": {}}
		}, "only one"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		err  bool
	}{
		{"", slog.LevelInfo, false},
		{"TRACE", LevelTrace, false},
		{" debug ", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.err {
			t.Errorf("ParseLogLevel(%q) err = %v, want err %v", tt.in, err, tt.err)
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger_JSONTrace(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "trace", "json")
	if err != nil {
		t.Fatal(err)
	}
	logger.Log(t.Context(), LevelTrace, "wire")
	if !strings.Contains(buf.String(), `"level":"TRACE"`) {
		t.Errorf("output = %s, want TRACE level", buf.String())
	}
}

func TestNewLogger_TextFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "warn", "text")
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("output = %q", buf.String())
	}
}
