// Package config handles MoziChem configuration loading.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sinagilassi/mozichem-ai/internal/validation"
)

// Defaults applied by Load and Default.
const (
	DefaultAddress       = "127.0.0.1"
	DefaultPort          = 8000
	DefaultProvider      = "openai"
	DefaultModel         = "gpt-4o-mini"
	DefaultAgentName     = "MoziChem Agent"
	DefaultTemperature   = 0.0
	DefaultMaxTokens     = 2048
	DefaultMaxIterations = 10
	DefaultMaxMessages   = 100
)

// DefaultSearchPaths returns the config file search order:
// ./config.yaml, ~/.config/mozichem/config.yaml, /etc/mozichem/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "mozichem", "config.yaml"))
	}

	paths = append(paths, "/etc/mozichem/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise the first existing entry of DefaultSearchPaths is returned.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all MoziChem configuration.
type Config struct {
	Listen      ListenConfig    `yaml:"listen"`
	Agent       AgentConfig     `yaml:"agent"`
	LLM         LLMConfig       `yaml:"llm"`
	Providers   ProvidersConfig `yaml:"providers"`
	Memory      MemoryConfig    `yaml:"memory"`
	CORSOrigins []string        `yaml:"cors_origins"`
	DataDir     string          `yaml:"data_dir"`
	UIDir       string          `yaml:"ui_dir"`
	EnvFiles    []string        `yaml:"env_files"`
	LogLevel    string          `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn warning error"`
	LogFormat   string          `yaml:"log_format" validate:"omitempty,oneof=text json"`
}

// ListenConfig defines the API server bind address.
type ListenConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port" validate:"min=1,max=65535"`
}

// Addr returns the host:port the API server listens on.
func (l ListenConfig) Addr() string {
	return net.JoinHostPort(l.Address, strconv.Itoa(l.Port))
}

// AgentConfig describes the agent built at startup and rebuilt by the
// /agent-config endpoint.
type AgentConfig struct {
	ModelProvider string `yaml:"model_provider" validate:"required,oneof=openai google anthropic ollama"`
	ModelName     string `yaml:"model_name" validate:"required"`
	Name          string `yaml:"name"`
	Prompt        string `yaml:"prompt"`

	// MCPSource is a path to a YAML, TOML or JSON file of MCP servers.
	MCPSource string `yaml:"mcp_source"`
	// MCPServers is an inline server map; it is used when MCPSource is empty.
	MCPServers map[string]map[string]any `yaml:"mcp_servers"`

	MemoryMode    bool `yaml:"memory_mode"`
	MaxIterations int  `yaml:"max_iterations" validate:"gte=0"`
}

// LLMConfig holds sampling parameters shared by every provider.
type LLMConfig struct {
	Temperature float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `yaml:"max_tokens" validate:"gt=0"`
}

// ProvidersConfig holds credentials and endpoints per model provider.
type ProvidersConfig struct {
	OpenAI    ProviderConfig `yaml:"openai"`
	Google    ProviderConfig `yaml:"google"`
	Anthropic ProviderConfig `yaml:"anthropic"`
	Ollama    ProviderConfig `yaml:"ollama"`
}

// ProviderConfig is one provider's endpoint and key. BaseURL is
// optional; each client has its own default.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
}

// MemoryConfig selects the thread checkpoint backend.
type MemoryConfig struct {
	Backend     string `yaml:"backend" validate:"omitempty,oneof=memory sqlite"`
	MaxMessages int    `yaml:"max_messages" validate:"gte=0"`
}

// Load reads configuration from a YAML file. Env files listed in the
// config (and a .env beside it, if present) are loaded first so their
// values are visible to ${VAR} expansion.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var pre struct {
		EnvFiles []string `yaml:"env_files"`
	}
	_ = yaml.Unmarshal(data, &pre)
	if err := loadEnvFiles(filepath.Dir(path), pre.EnvFiles); err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()

	return cfg, nil
}

// loadEnvFiles loads the named env files, resolved against dir. A
// missing implicit .env is ignored; a missing listed file is an error.
// Variables already set in the environment are never overwritten.
func loadEnvFiles(dir string, files []string) error {
	implicit := filepath.Join(dir, ".env")
	if _, err := os.Stat(implicit); err == nil {
		if err := godotenv.Load(implicit); err != nil {
			return fmt.Errorf("load %s: %w", implicit, err)
		}
	}
	for _, f := range files {
		if !filepath.IsAbs(f) {
			f = filepath.Join(dir, f)
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load env file %s: %w", f, err)
		}
	}
	return nil
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	cfg := &Config{
		Listen: ListenConfig{Address: DefaultAddress, Port: DefaultPort},
		Agent: AgentConfig{
			ModelProvider: DefaultProvider,
			ModelName:     DefaultModel,
			Name:          DefaultAgentName,
		},
		LLM: LLMConfig{
			Temperature: DefaultTemperature,
			MaxTokens:   DefaultMaxTokens,
		},
		CORSOrigins: []string{"*"},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = DefaultPort
	}
	if c.Agent.MaxIterations == 0 {
		c.Agent.MaxIterations = DefaultMaxIterations
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = DefaultMaxTokens
	}
	if c.Memory.Backend == "" {
		c.Memory.Backend = "memory"
	}
	if c.Memory.MaxMessages == 0 {
		c.Memory.MaxMessages = DefaultMaxMessages
	}
	if c.Providers.OpenAI.APIKey == "" {
		c.Providers.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Providers.Google.APIKey == "" {
		c.Providers.Google.APIKey = os.Getenv("GOOGLE_API_KEY")
	}
	if c.Providers.Anthropic.APIKey == "" {
		c.Providers.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Memory.Backend == "sqlite" && c.DataDir == "" {
		return errors.New("invalid config: memory backend sqlite requires data_dir")
	}
	if c.Agent.MCPSource != "" && len(c.Agent.MCPServers) > 0 {
		return errors.New("invalid config: set only one of agent.mcp_source and agent.mcp_servers")
	}
	return nil
}
