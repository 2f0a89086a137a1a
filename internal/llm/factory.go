package llm

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// Supported provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// Providers lists the hosted providers accepted by the API, in display order.
var Providers = []string{ProviderOpenAI, ProviderGoogle, ProviderAnthropic}

// ProviderSettings is one provider's endpoint and key.
type ProviderSettings struct {
	APIKey  string
	BaseURL string
}

// Factory builds clients from per-provider settings.
type Factory struct {
	Settings map[string]ProviderSettings
	Logger   *slog.Logger
}

// Supported reports whether name is a provider New accepts.
func Supported(name string) bool {
	name = strings.ToLower(name)
	return slices.Contains(Providers, name) || name == ProviderOllama
}

// New returns a client for provider with the given sampling.
func (f *Factory) New(provider string, sampling Sampling) (Client, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !Supported(provider) {
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedProvider, provider, strings.Join(Providers, ", "))
	}
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := f.Settings[provider]

	if provider != ProviderOllama && s.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", provider, ErrMissingAPIKey)
	}

	switch provider {
	case ProviderOpenAI:
		return NewOpenAIClient(provider, s.BaseURL, s.APIKey, sampling, logger), nil
	case ProviderGoogle:
		base := s.BaseURL
		if base == "" {
			base = GoogleBaseURL
		}
		return NewOpenAIClient(provider, base, s.APIKey, sampling, logger), nil
	case ProviderAnthropic:
		return NewAnthropicClient(s.APIKey, s.BaseURL, sampling, logger), nil
	default:
		return NewOllamaClient(s.BaseURL, sampling, logger), nil
	}
}
