package config

import "time"

// Supported LLM providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{ProviderGemini, ProviderOpenAI}

// LLMConfig configures the LLM backend.
type LLMConfig struct {
	Provider string `yaml:"provider"` // gemini, openai
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`

	// Timeout bounds a single generate call. On expiry the pipeline falls back.
	Timeout string `yaml:"timeout"`

	// MaxRetries is the number of extra attempts for retryable errors.
	MaxRetries   int    `yaml:"max_retries"`
	RetryBackoff string `yaml:"retry_backoff"`

	// RequestsPerSec and Burst feed the client-side rate limiter. Zero disables it.
	RequestsPerSec float64 `yaml:"requests_per_sec"`
	Burst          int     `yaml:"burst"`
}

// HasCredentials reports whether an API key is configured.
func (c LLMConfig) HasCredentials() bool {
	return c.APIKey != ""
}

// GetLLMTimeout returns the per-call LLM timeout.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDurationOr(c.LLM.Timeout, 2*time.Minute)
}

// GetRetryBackoff returns the base retry backoff.
func (c *Config) GetRetryBackoff() time.Duration {
	return parseDurationOr(c.LLM.RetryBackoff, 500*time.Millisecond)
}
