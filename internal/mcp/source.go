package mcp

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Source is where MCP server definitions come from: an inline map of
// server name to raw entry, or a path to a YAML, TOML or JSON file.
// When both are set, Path wins.
type Source struct {
	Path    string                    `json:"path,omitempty" yaml:"path,omitempty"`
	Servers map[string]map[string]any `json:"servers,omitempty" yaml:"servers,omitempty"`
}

// FromPath returns a file-backed Source.
func FromPath(path string) Source {
	return Source{Path: path}
}

// FromMap returns an inline Source.
func FromMap(servers map[string]map[string]any) Source {
	return Source{Servers: servers}
}

// IsEmpty reports whether the source names no servers and no file.
func (s Source) IsEmpty() bool {
	return strings.TrimSpace(s.Path) == "" && len(s.Servers) == 0
}

// String describes the source for logs and config summaries.
func (s Source) String() string {
	switch {
	case strings.TrimSpace(s.Path) != "":
		return s.Path
	case len(s.Servers) > 0:
		return fmt.Sprintf("inline (%d servers)", len(s.Servers))
	}
	return ""
}

// wrapperKeys are top-level keys some tools nest the server map under.
var wrapperKeys = []string{"mcpServers", "mcp_servers", "servers"}

// LoadFile reads a server map from disk. The format is chosen by
// extension: .toml, .json, and YAML for everything else. A document
// whose only top-level key is mcpServers, mcp_servers or servers is
// unwrapped.
func LoadFile(path string) (map[string]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mcp source %s: %w", path, err)
	}
	return ParseFile(path, data)
}

// ParseFile is LoadFile on bytes already in memory; name only selects
// the format and labels errors.
func ParseFile(name string, data []byte) (map[string]map[string]any, error) {
	path := name
	var err error
	doc := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &doc)
	case ".json":
		err = json.Unmarshal(data, &doc)
	default:
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("parse mcp source %s: %w", path, err)
	}

	if len(doc) == 1 {
		for _, k := range wrapperKeys {
			if inner, ok := doc[k].(map[string]any); ok {
				doc = inner
				break
			}
		}
	}

	servers := make(map[string]map[string]any, len(doc))
	for name, v := range doc {
		entry, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("parse mcp source %s: server %q: %w: entry must be a mapping, got %T", path, name, ErrInvalidConfig, v)
		}
		servers[name] = entry
	}
	return servers, nil
}

// Normalize resolves a Source into validated server configs keyed by
// server name. An empty source yields an empty, non-nil map and a
// warning. The first invalid entry (in name order) aborts with an error
// naming that server.
func Normalize(src Source, logger *slog.Logger) (map[string]ServerConfig, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if src.IsEmpty() {
		logger.Warn("no MCP source provided, agent will run with built-in tools only")
		return map[string]ServerConfig{}, nil
	}

	raw := src.Servers
	if strings.TrimSpace(src.Path) != "" {
		var err error
		if raw, err = LoadFile(src.Path); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]ServerConfig, len(raw))
	for _, name := range names {
		cfg, err := ValidateEntry(name, raw[name])
		if err != nil {
			return nil, err
		}
		out[name] = cfg
		logger.Debug("normalized MCP server",
			"mcp_server", name,
			"transport", cfg.Transport,
			"target", cfg.Target(),
		)
	}

	if err := checkToolPrefixes(out); err != nil {
		return nil, err
	}

	if len(out) == 0 {
		logger.Warn("MCP source defines no servers", "source", src.String())
	}
	return out, nil
}

// Split separates configs by transport. Each side keeps the full
// ServerConfig so tool filters survive a later Merge.
func Split(cfgs map[string]ServerConfig) (stdio, http map[string]ServerConfig) {
	stdio = make(map[string]ServerConfig)
	http = make(map[string]ServerConfig)
	for name, c := range cfgs {
		switch {
		case c.Stdio != nil:
			stdio[name] = c
		case c.HTTP != nil:
			http[name] = c
		}
	}
	return stdio, http
}

// Merge recombines per-transport maps into one config map for the
// aggregating client. A name present in both maps, an entry filed under
// the wrong transport, or two names sharing a tool prefix is an error.
func Merge(stdio, http map[string]ServerConfig) (map[string]ServerConfig, error) {
	out := make(map[string]ServerConfig, len(stdio)+len(http))
	for name, c := range stdio {
		if c.Stdio == nil {
			return nil, fmt.Errorf("server %q: %w: not a stdio server", name, ErrInvalidConfig)
		}
		c.Name, c.Transport = name, TransportStdio
		out[name] = c
	}
	for name, c := range http {
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("server %q: %w: defined for both stdio and streamable_http", name, ErrInvalidConfig)
		}
		if c.HTTP == nil {
			return nil, fmt.Errorf("server %q: %w: not a streamable_http server", name, ErrInvalidConfig)
		}
		c.Name, c.Transport = name, TransportStreamableHTTP
		out[name] = c
	}
	if err := checkToolPrefixes(out); err != nil {
		return nil, err
	}
	return out, nil
}

// checkToolPrefixes rejects server names that sanitize to the same
// bridged tool prefix, e.g. "my-srv" and "my_srv".
func checkToolPrefixes(cfgs map[string]ServerConfig) error {
	seen := make(map[string]string, len(cfgs))
	for _, name := range SortedNames(cfgs) {
		prefix := ToolPrefix(name)
		if other, ok := seen[prefix]; ok {
			return fmt.Errorf("servers %q and %q: %w: both map to tool prefix %s", other, name, ErrInvalidConfig, prefix)
		}
		seen[prefix] = name
	}
	return nil
}

// SortedNames returns the keys of cfgs in order.
func SortedNames(cfgs map[string]ServerConfig) []string {
	names := make([]string, 0, len(cfgs))
	for n := range cfgs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SourceFromJSON decodes the API form of a source: a JSON string is a
// file path, a JSON object is an inline server map. null yields an
// empty Source.
func SourceFromJSON(raw json.RawMessage) (Source, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return Source{}, nil
	}

	var path string
	if err := json.Unmarshal(raw, &path); err == nil {
		return FromPath(path), nil
	}
	var servers map[string]map[string]any
	if err := json.Unmarshal(raw, &servers); err != nil {
		return Source{}, fmt.Errorf("%w: mcp_source must be a file path or a map of servers", ErrInvalidConfig)
	}
	return FromMap(servers), nil
}
