package grading

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Provider names accepted by NewBackend.
const (
	ProviderAnthropic  = "anthropic"
	ProviderOpenAI     = "openai"
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
)

// Providers lists every supported provider name.
var Providers = []string{ProviderAnthropic, ProviderOpenAI, ProviderGemini, ProviderOpenRouter, ProviderOllama}

var defaultModels = map[string]string{
	ProviderAnthropic:  "claude-sonnet-4-5",
	ProviderOpenAI:     "gpt-5-mini",
	ProviderGemini:     "gemini-2.5-flash",
	ProviderOpenRouter: "anthropic/claude-sonnet-4.5",
	ProviderOllama:     "llama3.1",
}

var keyEnv = map[string]string{
	ProviderAnthropic:  "ANTHROPIC_API_KEY",
	ProviderOpenAI:     "OPENAI_API_KEY",
	ProviderGemini:     "GEMINI_API_KEY",
	ProviderOpenRouter: "OPENROUTER_API_KEY",
}

// Settings selects and configures one backend.
type Settings struct {
	Provider  string        `json:"provider" mapstructure:"provider"`
	Model     string        `json:"model" mapstructure:"model"`
	APIKey    string        `json:"-" mapstructure:"api_key"`
	BaseURL   string        `json:"base_url,omitempty" mapstructure:"base_url"`
	Timeout   time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxTokens int           `json:"max_tokens" mapstructure:"max_tokens"`
}

// DefaultModel returns the model used for provider when none is configured.
func DefaultModel(provider string) string {
	return defaultModels[strings.ToLower(provider)]
}

// KeyEnv returns the vendor's conventional credential variable for provider,
// or "" when the provider takes no key.
func KeyEnv(provider string) string {
	return keyEnv[strings.ToLower(strings.TrimSpace(provider))]
}

// NewBackend builds the backend named by s.Provider. A missing credential is
// not an error; the backend reports itself unavailable instead.
func NewBackend(ctx context.Context, s Settings, httpClient *http.Client) (Backend, error) {
	provider := strings.ToLower(strings.TrimSpace(s.Provider))
	model := s.Model
	if model == "" {
		model = defaultModels[provider]
	}
	key := strings.TrimSpace(s.APIKey)

	switch provider {
	case ProviderAnthropic:
		return NewAnthropic(key, model, s.BaseURL, httpClient), nil
	case ProviderOpenAI:
		return NewOpenAI(key, model, s.BaseURL, httpClient), nil
	case ProviderGemini:
		g, err := NewGemini(ctx, key, model, s.BaseURL, httpClient)
		if err != nil {
			return nil, err
		}
		return g, nil
	case ProviderOpenRouter:
		return NewHTTPBackend(OpenRouter{}, key, model, s.BaseURL, httpClient), nil
	case ProviderOllama:
		return NewHTTPBackend(Ollama{}, key, model, s.BaseURL, httpClient), nil
	default:
		return nil, fmt.Errorf("unknown grading provider %q (want one of %s)", s.Provider, strings.Join(Providers, ", "))
	}
}

// NewGraderFromSettings builds a backend and wraps it in a Grader.
func NewGraderFromSettings(ctx context.Context, s Settings, httpClient *http.Client, log zerolog.Logger) (*Grader, error) {
	b, err := NewBackend(ctx, s, httpClient)
	if err != nil {
		return nil, err
	}
	g := NewGrader(b, log.With().Str("backend", b.Name()).Logger())
	if s.Timeout > 0 {
		g.Timeout = s.Timeout
	}
	if s.MaxTokens > 0 {
		g.MaxTokens = s.MaxTokens
	}
	return g, nil
}
