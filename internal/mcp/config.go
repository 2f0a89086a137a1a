package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/sinagilassi/mozichem-ai/internal/validation"
)

// TransportType names how a server is reached.
type TransportType string

// Supported transports.
const (
	TransportStdio          TransportType = "stdio"
	TransportStreamableHTTP TransportType = "streamable_http"
)

// transportAliases maps accepted spellings to their canonical type.
var transportAliases = map[string]TransportType{
	"stdio":           TransportStdio,
	"streamable_http": TransportStreamableHTTP,
	"streamable-http": TransportStreamableHTTP,
	"http":            TransportStreamableHTTP,
}

// StdioConfig launches an MCP server as a subprocess.
type StdioConfig struct {
	Command string            `json:"command" yaml:"command" validate:"required"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// Environ returns Env as sorted KEY=VALUE pairs.
func (c *StdioConfig) Environ() []string {
	out := make([]string, 0, len(c.Env))
	for k, v := range c.Env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// HTTPConfig reaches an MCP server over streamable HTTP. Env is kept
// for parity with stdio entries; it does not affect the connection.
type HTTPConfig struct {
	URL     string            `json:"url" yaml:"url" validate:"required,url"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// ServerConfig is one validated server entry. Exactly one of Stdio and
// HTTP is set, matching Transport.
type ServerConfig struct {
	Name      string        `json:"name" yaml:"-"`
	Transport TransportType `json:"transport" yaml:"transport"`

	Stdio *StdioConfig `json:"stdio,omitempty" yaml:"stdio,omitempty"`
	HTTP  *HTTPConfig  `json:"http,omitempty" yaml:"http,omitempty"`

	// IncludeTools and ExcludeTools are glob patterns over the server's
	// own tool names. A non-empty include list wins over exclude.
	IncludeTools []string `json:"include_tools,omitempty" yaml:"include_tools,omitempty"`
	ExcludeTools []string `json:"exclude_tools,omitempty" yaml:"exclude_tools,omitempty"`
}

// Target describes where the server lives, for logs and summaries.
func (c ServerConfig) Target() string {
	switch {
	case c.Stdio != nil:
		return strings.TrimSpace(c.Stdio.Command + " " + strings.Join(c.Stdio.Args, " "))
	case c.HTTP != nil:
		return c.HTTP.URL
	}
	return ""
}

// rawEntry is the loosely typed shape of a server entry as written in
// a source file or inline map.
type rawEntry struct {
	Transport    string            `json:"transport"`
	Command      string            `json:"command"`
	Args         []string          `json:"args"`
	Env          map[string]any    `json:"env"`
	URL          string            `json:"url"`
	Headers      map[string]string `json:"headers"`
	IncludeTools []string          `json:"include_tools"`
	ExcludeTools []string          `json:"exclude_tools"`
}

// ValidateEntry discriminates a raw entry by its transport tag and
// checks the fields that transport requires. ${VAR} references in
// string fields are expanded from the environment.
//
// An entry without a transport tag is inferred from its fields:
// command means stdio, url means streamable_http.
func ValidateEntry(name string, entry map[string]any) (ServerConfig, error) {
	if strings.TrimSpace(name) == "" {
		return ServerConfig{}, fmt.Errorf("%w: server name is empty", ErrInvalidConfig)
	}

	// Entries arrive from YAML, TOML, JSON or Go literals; a JSON round
	// trip normalizes them into one shape.
	data, err := json.Marshal(entry)
	if err != nil {
		return ServerConfig{}, fmt.Errorf("server %q: %w: %v", name, ErrInvalidConfig, err)
	}
	var raw rawEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return ServerConfig{}, fmt.Errorf("server %q: %w: %v", name, ErrInvalidConfig, err)
	}

	transport, err := resolveTransport(raw)
	if err != nil {
		return ServerConfig{}, fmt.Errorf("server %q: %w", name, err)
	}

	for _, p := range append(append([]string(nil), raw.IncludeTools...), raw.ExcludeTools...) {
		if !doublestar.ValidatePattern(p) {
			return ServerConfig{}, fmt.Errorf("server %q: %w: invalid tool pattern %q", name, ErrInvalidConfig, p)
		}
	}

	cfg := ServerConfig{
		Name:         name,
		Transport:    transport,
		IncludeTools: raw.IncludeTools,
		ExcludeTools: raw.ExcludeTools,
	}

	switch transport {
	case TransportStdio:
		sc := &StdioConfig{
			Command: os.ExpandEnv(raw.Command),
			Args:    expandAll(raw.Args),
			Env:     stringifyEnv(raw.Env),
		}
		if err := validation.Struct(sc); err != nil {
			return ServerConfig{}, fmt.Errorf("server %q: %w: %v", name, ErrInvalidConfig, err)
		}
		cfg.Stdio = sc

	case TransportStreamableHTTP:
		hc := &HTTPConfig{
			URL:     os.ExpandEnv(raw.URL),
			Env:     stringifyEnv(raw.Env),
			Headers: expandMap(raw.Headers),
		}
		if err := validation.Struct(hc); err != nil {
			return ServerConfig{}, fmt.Errorf("server %q: %w: %v", name, ErrInvalidConfig, err)
		}
		if validation.Var(hc.URL, "http_url") != nil {
			return ServerConfig{}, fmt.Errorf("server %q: %w: url must use http or https", name, ErrInvalidConfig)
		}
		cfg.HTTP = hc
	}

	return cfg, nil
}

func resolveTransport(raw rawEntry) (TransportType, error) {
	tag := strings.ToLower(strings.TrimSpace(raw.Transport))
	if tag == "" {
		switch {
		case raw.Command != "":
			return TransportStdio, nil
		case raw.URL != "":
			return TransportStreamableHTTP, nil
		}
		return "", fmt.Errorf("%w: transport is a required field", ErrInvalidConfig)
	}
	t, ok := transportAliases[tag]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedTransport, raw.Transport)
	}
	return t, nil
}

func expandAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = os.ExpandEnv(s)
	}
	return out
}

func expandMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = os.ExpandEnv(v)
	}
	return out
}

// stringifyEnv accepts env values of any scalar type (YAML happily
// produces ints and bools) and renders them as strings.
func stringifyEnv(in map[string]any) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = os.ExpandEnv(val)
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}
