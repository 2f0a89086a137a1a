package llm

import (
	"errors"
	"testing"
)

func TestFactory_New(t *testing.T) {
	f := &Factory{Settings: map[string]ProviderSettings{
		ProviderOpenAI:    {APIKey: "sk"},
		ProviderGoogle:    {APIKey: "g"},
		ProviderAnthropic: {APIKey: "a"},
	}}

	tests := []struct {
		provider string
		wantType string
		wantErr  error
	}{
		{"openai", "*llm.OpenAIClient", nil},
		{"Google", "*llm.OpenAIClient", nil},
		{"anthropic", "*llm.AnthropicClient", nil},
		{"ollama", "*llm.OllamaClient", nil},
		{"cohere", "", ErrUnsupportedProvider},
	}
	for _, tt := range tests {
		c, err := f.New(tt.provider, DefaultSampling)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("New(%q) err = %v, want %v", tt.provider, err, tt.wantErr)
			}
			continue
		}
		if err != nil {
			t.Fatalf("New(%q): %v", tt.provider, err)
		}
		if got := typeName(c); got != tt.wantType {
			t.Errorf("New(%q) = %s, want %s", tt.provider, got, tt.wantType)
		}
	}

	g, _ := f.New("google", DefaultSampling)
	if g.(*OpenAIClient).baseURL != GoogleBaseURL {
		t.Errorf("google baseURL = %q", g.(*OpenAIClient).baseURL)
	}
}

func TestFactory_MissingKey(t *testing.T) {
	f := &Factory{}
	if _, err := f.New("openai", DefaultSampling); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("err = %v, want ErrMissingAPIKey", err)
	}
}

func TestSupported(t *testing.T) {
	for _, p := range []string{"openai", "google", "anthropic", "ollama", "OpenAI"} {
		if !Supported(p) {
			t.Errorf("Supported(%q) = false", p)
		}
	}
	if Supported("mistral") {
		t.Error("Supported(mistral) = true")
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *OpenAIClient:
		return "*llm.OpenAIClient"
	case *AnthropicClient:
		return "*llm.AnthropicClient"
	case *OllamaClient:
		return "*llm.OllamaClient"
	}
	return "?"
}
