package config

import "time"

// ExecutionConfig configures isolated execution of generated tests.
type ExecutionConfig struct {
	// Sandbox selects the isolation boundary: "none" (separate process) or "docker".
	Sandbox string `yaml:"sandbox"`

	// Interpreter used by the process executor.
	PythonBinary string `yaml:"python_binary"`

	// Image used by the docker executor.
	DockerImage string `yaml:"docker_image"`

	// Wall-clock bound for one test run.
	Timeout string `yaml:"timeout"`

	MaxOutputBytes int64 `yaml:"max_output_bytes"`
	MemoryLimit    int64 `yaml:"memory_limit"`

	// AllowFallback lets a docker run fall back to a plain process when docker is missing.
	AllowFallback bool `yaml:"allow_fallback"`

	// Parallelism bounds how many files the CLI processes at once.
	Parallelism int `yaml:"parallelism"`
}

// GetExecutionTimeout returns the test-run timeout as a duration.
func (c *Config) GetExecutionTimeout() time.Duration {
	return parseDurationOr(c.Execution.Timeout, 60*time.Second)
}
