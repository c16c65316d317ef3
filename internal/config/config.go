package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is where Load looks when no path is given.
const DefaultConfigPath = ".forge/config.yaml"

// Config holds all testforge configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM backend and call bounds
	LLM LLMConfig `yaml:"llm"`

	// Isolated execution of generated tests
	Execution ExecutionConfig `yaml:"execution"`

	// Test generation knobs
	Generation GenerationConfig `yaml:"generation"`

	// Persisted artifacts and run history
	Output OutputConfig `yaml:"output"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// GenerationConfig configures test generation and calculated feedback.
type GenerationConfig struct {
	// MaxTestCases caps how many test cases the prompt asks for.
	MaxTestCases int `yaml:"max_test_cases"`
	// MinTestCases is the coverage threshold below which calculated feedback recommends more tests.
	MinTestCases int `yaml:"min_test_cases"`
	// MinTestCoverage is the target coverage percentage quoted in prompts.
	MinTestCoverage float64 `yaml:"min_test_coverage"`
}

// OutputConfig configures where artifacts are written.
type OutputConfig struct {
	Dir string `yaml:"dir"`
	// HistoryDB is the SQLite run-history file; relative paths resolve under Dir.
	HistoryDB string `yaml:"history_db"`
	// DisableHistory skips recording runs.
	DisableHistory bool `yaml:"disable_history"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "testforge",
		Version: "0.1.0",
		LLM: LLMConfig{
			Provider:       ProviderGemini,
			Model:          "gemini-2.0-flash-exp",
			Timeout:        "2m",
			MaxRetries:     2,
			RetryBackoff:   "500ms",
			RequestsPerSec: 1,
			Burst:          2,
		},
		Execution: ExecutionConfig{
			Sandbox:        "none",
			PythonBinary:   "python3",
			DockerImage:    "python:3.10-slim",
			Timeout:        "60s",
			MaxOutputBytes: 1 << 20,
			MemoryLimit:    256 << 20,
			AllowFallback:  true,
			Parallelism:    2,
		},
		Generation: GenerationConfig{
			MaxTestCases:    10,
			MinTestCases:    10,
			MinTestCoverage: 80.0,
		},
		Output: OutputConfig{
			Dir:       "output",
			HistoryDB: "history.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file.
// A missing file yields defaults. A .env file in the working directory is loaded
// before environment overrides are applied.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = DefaultConfigPath
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// .env is optional; existing environment variables win over it.
	_ = godotenv.Load()

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// LLM API key from environment (check in priority order)
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = ProviderGemini
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = ProviderGemini
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = key
		c.LLM.Provider = ProviderOpenAI
	}
	if provider := os.Getenv("FORGE_PROVIDER"); provider != "" {
		c.LLM.Provider = strings.ToLower(provider)
		if c.LLM.Provider == ProviderOpenAI {
			if key := os.Getenv("OPENAI_API_KEY"); key != "" {
				c.LLM.APIKey = key
			}
		}
	}
	if model := os.Getenv("FORGE_MODEL"); model != "" {
		c.LLM.Model = model
	}

	if sandbox := os.Getenv("FORGE_SANDBOX"); sandbox != "" {
		c.Execution.Sandbox = sandbox
	}
	if dir := os.Getenv("FORGE_OUTPUT_DIR"); dir != "" {
		c.Output.Dir = dir
	}
}

// HistoryPath returns the resolved run-history database path.
func (c *Config) HistoryPath() string {
	if c.Output.HistoryDB == "" || filepath.IsAbs(c.Output.HistoryDB) {
		return c.Output.HistoryDB
	}
	return filepath.Join(c.Output.Dir, c.Output.HistoryDB)
}

// Validate validates the configuration.
// A missing API key is not an error: the pipeline falls back to calculated results.
func (c *Config) Validate() error {
	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}

	switch c.Execution.Sandbox {
	case "none", "docker":
	default:
		return fmt.Errorf("invalid sandbox mode: %s (valid: none, docker)", c.Execution.Sandbox)
	}

	for name, value := range map[string]string{
		"llm.timeout":       c.LLM.Timeout,
		"llm.retry_backoff": c.LLM.RetryBackoff,
		"execution.timeout": c.Execution.Timeout,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, value, err)
		}
	}

	if c.Generation.MaxTestCases <= 0 {
		return fmt.Errorf("generation.max_test_cases must be positive")
	}
	if c.Execution.Parallelism <= 0 {
		return fmt.Errorf("execution.parallelism must be positive")
	}
	return nil
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
