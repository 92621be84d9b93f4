package llm

import (
	"context"
	"fmt"
)

// NewProvider creates a Provider from configuration, wrapped with retry
// and, when a Recorder is given, request recording middleware.
func NewProvider(ctx context.Context, cfg Config, rec Recorder) (Provider, error) {
	var base Provider
	var err error

	switch cfg.Provider {
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case "openai":
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case "openrouter":
		base, err = NewOpenRouterProvider(cfg.OpenRouter)
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	// Middleware order: caller → retry → recording → base, so every
	// attempt is recorded individually.
	wrapped := base
	if rec != nil {
		wrapped = WithRecording(wrapped, rec)
	}
	return WithRetry(wrapped, cfg.Retry), nil
}

// NewProviderFromEnv builds a Provider from QUANDARY_* variables,
// falling back to probing the standard provider API key variables when no
// explicit configuration is present.
func NewProviderFromEnv(ctx context.Context, rec Recorder) (Provider, error) {
	cfg := ConfigFromEnv()
	if err := cfg.Validate(); err != nil {
		discovered, ok := DiscoverConfig()
		if !ok {
			return nil, err
		}
		cfg = discovered
	}
	return NewProvider(ctx, cfg, rec)
}
