package mcp

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSource(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNormalize_Empty(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	for _, src := range []Source{{}, FromMap(nil), FromMap(map[string]map[string]any{}), FromPath("  ")} {
		got, err := Normalize(src, logger)
		if err != nil {
			t.Fatalf("Normalize(%+v) error: %v", src, err)
		}
		if got == nil || len(got) != 0 {
			t.Errorf("Normalize(%+v) = %v, want empty non-nil map", src, got)
		}
	}
	if !strings.Contains(buf.String(), "no MCP source provided") {
		t.Errorf("expected warning, log = %q", buf.String())
	}
}

func TestNormalize_Inline(t *testing.T) {
	got, err := Normalize(FromMap(map[string]map[string]any{
		"chem":   {"transport": "stdio", "command": "python", "args": []string{"chem.py"}},
		"remote": {"transport": "streamable_http", "url": "http://127.0.0.1:8001/mcp"},
	}), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got["chem"].Name != "chem" || got["chem"].Stdio.Command != "python" {
		t.Errorf("chem = %+v", got["chem"])
	}
	if got["remote"].HTTP.URL != "http://127.0.0.1:8001/mcp" {
		t.Errorf("remote = %+v", got["remote"])
	}
}

func TestNormalize_Files(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{"yaml", "mcp.yaml", `
chem:
  transport: stdio
  command: python
  args: [chem.py]
remote:
  transport: streamable_http
  url: http://127.0.0.1:8001/mcp
`},
		{"yaml wrapped", "mcp.yml", `
mcpServers:
  chem:
    command: python
    args: [chem.py]
  remote:
    url: http://127.0.0.1:8001/mcp
`},
		{"toml", "mcp.toml", `
[chem]
transport = "stdio"
command = "python"
args = ["chem.py"]

[remote]
transport = "streamable_http"
url = "http://127.0.0.1:8001/mcp"
`},
		{"json", "mcp.json", `{"mcp_servers": {
  "chem": {"transport": "stdio", "command": "python", "args": ["chem.py"]},
  "remote": {"transport": "streamable_http", "url": "http://127.0.0.1:8001/mcp"}
}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(FromPath(writeSource(t, tt.file, tt.body)), nil)
			if err != nil {
				t.Fatalf("Normalize error: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("len = %d, want 2: %+v", len(got), got)
			}
			if got["chem"].Transport != TransportStdio || got["chem"].Stdio.Args[0] != "chem.py" {
				t.Errorf("chem = %+v", got["chem"])
			}
			if got["remote"].Transport != TransportStreamableHTTP {
				t.Errorf("remote = %+v", got["remote"])
			}
		})
	}
}

func TestNormalize_Errors(t *testing.T) {
	if _, err := Normalize(FromPath("/nonexistent/mcp.yaml"), nil); err == nil || !strings.Contains(err.Error(), "/nonexistent/mcp.yaml") {
		t.Errorf("missing file err = %v, want path in error", err)
	}

	bad := writeSource(t, "bad.yaml", "chem: [not, a, mapping]\n")
	if _, err := Normalize(FromPath(bad), nil); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("non-mapping entry err = %v, want ErrInvalidConfig", err)
	}

	garbled := writeSource(t, "garbled.json", "{")
	if _, err := Normalize(FromPath(garbled), nil); err == nil {
		t.Error("garbled json should error")
	}

	_, err := Normalize(FromMap(map[string]map[string]any{
		"good": {"transport": "stdio", "command": "x"},
		"odd":  {"transport": "websocket", "url": "ws://x"},
	}), nil)
	if !errors.Is(err, ErrUnsupportedTransport) || !strings.Contains(err.Error(), `"odd"`) {
		t.Errorf("err = %v, want unsupported transport naming odd", err)
	}
}

func TestPathWinsOverInline(t *testing.T) {
	path := writeSource(t, "mcp.yaml", "fromfile:\n  command: x\n")
	got, err := Normalize(Source{
		Path:    path,
		Servers: map[string]map[string]any{"inline": {"command": "y"}},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got["fromfile"]; !ok || len(got) != 1 {
		t.Errorf("got %v, want only fromfile", SortedNames(got))
	}
}

func TestSplitMerge(t *testing.T) {
	cfgs, err := Normalize(FromMap(map[string]map[string]any{
		"a": {"command": "x", "include_tools": []any{"read_*"}},
		"b": {"url": "http://localhost/mcp", "exclude_tools": []any{"debug_*"}},
		"c": {"command": "y"},
	}), nil)
	if err != nil {
		t.Fatal(err)
	}

	stdio, http := Split(cfgs)
	if len(stdio) != 2 || len(http) != 1 {
		t.Fatalf("Split = %d stdio, %d http; want 2, 1", len(stdio), len(http))
	}

	merged, err := Merge(stdio, http)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(SortedNames(merged), ","); got != "a,b,c" {
		t.Errorf("merged names = %s, want a,b,c", got)
	}
	if merged["b"].Transport != TransportStreamableHTTP || merged["a"].Transport != TransportStdio {
		t.Errorf("merged transports wrong: %+v", merged)
	}
	if got := merged["a"].IncludeTools; len(got) != 1 || got[0] != "read_*" {
		t.Errorf("a include_tools after merge = %v, want [read_*]", got)
	}
	if got := merged["b"].ExcludeTools; len(got) != 1 || got[0] != "debug_*" {
		t.Errorf("b exclude_tools after merge = %v, want [debug_*]", got)
	}

	stdio["b"] = cfgs["a"]
	if _, err := Merge(stdio, http); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("duplicate name err = %v, want ErrInvalidConfig", err)
	}
	delete(stdio, "b")

	stdio["d"] = cfgs["b"]
	if _, err := Merge(stdio, http); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("http config filed as stdio err = %v, want ErrInvalidConfig", err)
	}
}

func TestNormalize_ToolPrefixCollision(t *testing.T) {
	_, err := Normalize(FromMap(map[string]map[string]any{
		"my-srv": {"command": "x"},
		"my_srv": {"command": "y"},
	}), nil)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
	if !strings.Contains(err.Error(), "mcp_my_srv_") {
		t.Errorf("error %q does not name the shared prefix", err)
	}
}

func TestSourceString(t *testing.T) {
	if s := FromPath("mcp.yaml").String(); s != "mcp.yaml" {
		t.Errorf("String() = %q", s)
	}
	if s := FromMap(map[string]map[string]any{"a": {}}).String(); s != "inline (1 servers)" {
		t.Errorf("String() = %q", s)
	}
	if !(Source{}).IsEmpty() {
		t.Error("zero Source should be empty")
	}
}

func TestSourceFromJSON(t *testing.T) {
	src, err := SourceFromJSON([]byte(`"servers.yaml"`))
	if err != nil || src.Path != "servers.yaml" {
		t.Errorf("string form = %+v, %v", src, err)
	}

	src, err = SourceFromJSON([]byte(`{"chem": {"transport": "stdio", "command": "chem-mcp"}}`))
	if err != nil || src.Servers["chem"]["command"] != "chem-mcp" {
		t.Errorf("object form = %+v, %v", src, err)
	}

	src, err = SourceFromJSON([]byte(`null`))
	if err != nil || !src.IsEmpty() {
		t.Errorf("null form = %+v, %v", src, err)
	}

	if _, err := SourceFromJSON([]byte(`42`)); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("number form err = %v, want ErrInvalidConfig", err)
	}
}

func TestParseFile(t *testing.T) {
	servers, err := ParseFile("inline.json", []byte(`{"mcpServers": {"calc": {"command": "uvx", "args": ["calc-mcp"]}}}`))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := servers["calc"]; !ok || len(servers) != 1 {
		t.Fatalf("servers = %v", servers)
	}

	if _, err := ParseFile("bad.yaml", []byte("calc: 3\n")); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
}
