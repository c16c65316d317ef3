package perception

import (
	"context"
	"fmt"

	"testforge/internal/config"
	"testforge/internal/logging"
	"testforge/internal/types"
)

// NewClientFromConfig builds the configured provider client, wrapped in the
// rate limiter when RequestsPerSec is set.
func NewClientFromConfig(ctx context.Context, cfg *config.Config) (types.LLMClient, error) {
	llm := cfg.LLM
	if !llm.HasCredentials() {
		return nil, types.LLMError(llm.Provider, fmt.Errorf("no API key found; set llm.api_key or GEMINI_API_KEY / OPENAI_API_KEY"))
	}

	var (
		client types.LLMClient
		err    error
	)
	switch llm.Provider {
	case config.ProviderGemini:
		gc := DefaultGeminiConfig(llm.APIKey)
		gc.Timeout = cfg.GetLLMTimeout()
		if llm.Model != "" {
			gc.Model = llm.Model
		}
		client, err = NewGeminiClient(ctx, gc)
	case config.ProviderOpenAI:
		oc := DefaultOpenAIConfig(llm.APIKey)
		oc.Timeout = cfg.GetLLMTimeout()
		oc.BaseURL = llm.BaseURL
		if llm.Model != "" {
			oc.Model = llm.Model
		}
		client, err = NewOpenAIClient(oc)
	default:
		return nil, types.LLMError(llm.Provider, fmt.Errorf("unsupported provider %q", llm.Provider))
	}
	if err != nil {
		return nil, err
	}

	logging.Boot("LLM client ready: provider=%s model=%s rps=%.2f", llm.Provider, llm.Model, llm.RequestsPerSec)
	return NewRateLimitedClient(client, llm.RequestsPerSec, llm.Burst), nil
}
