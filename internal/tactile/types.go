// Package tactile is the execution layer: it runs generated Python test
// suites in a throwaway workspace, either as a host process or inside a
// Docker container.
//
// Design Principles:
//   - One workspace and one container name per run, released on every path
//   - Resource limits: wall-clock timeout, memory, captured-output cap
//   - Structured output: ExecutionResult carries everything the caller needs
//   - Audit trail: start/complete/kill events feed logging and metrics
package tactile

import (
	"time"
)

// SandboxMode defines the isolation level for command execution.
type SandboxMode string

const (
	// SandboxNone runs commands directly on the host in their own process group.
	SandboxNone SandboxMode = "none"

	// SandboxDocker runs commands in a Docker container.
	SandboxDocker SandboxMode = "docker"
)

// Command represents a command to be executed.
type Command struct {
	// Binary is the executable to run (e.g., "python3").
	Binary string `json:"binary"`

	// Arguments are the command-line arguments.
	Arguments []string `json:"arguments"`

	// WorkingDirectory is the directory to execute in.
	// Inside a container this is the container path.
	WorkingDirectory string `json:"working_directory,omitempty"`

	// Environment variables to set (in KEY=VALUE format).
	Environment []string `json:"environment,omitempty"`

	// Limits specifies resource constraints for execution.
	Limits *ResourceLimits `json:"limits,omitempty"`

	// Sandbox specifies isolation settings.
	Sandbox *SandboxConfig `json:"sandbox,omitempty"`

	// RunID links this execution to a pipeline run (for audit).
	RunID string `json:"run_id,omitempty"`
}

// CommandString returns the full command as a string (for display/logging).
func (c Command) CommandString() string {
	result := c.Binary
	for _, arg := range c.Arguments {
		result += " " + arg
	}
	return result
}

// ResourceLimits defines constraints on command execution.
type ResourceLimits struct {
	// TimeoutMs is the maximum wall-clock time in milliseconds.
	// Zero means use the executor's default timeout.
	TimeoutMs int64 `json:"timeout_ms,omitempty"`

	// MaxMemoryBytes limits memory usage. Enforced by Docker only.
	MaxMemoryBytes int64 `json:"max_memory_bytes,omitempty"`

	// MaxOutputBytes limits captured stdout+stderr size.
	MaxOutputBytes int64 `json:"max_output_bytes,omitempty"`

	// NetworkAllowed controls whether network access is permitted.
	// Only enforced in Docker mode.
	NetworkAllowed bool `json:"network_allowed,omitempty"`
}

// Mount binds a host path into a container.
type Mount struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	ReadOnly bool   `json:"read_only,omitempty"`
}

// SandboxConfig specifies isolation settings for command execution.
type SandboxConfig struct {
	// Mode is the sandboxing strategy.
	Mode SandboxMode `json:"mode"`

	// Image is the Docker image to use (for Docker mode).
	Image string `json:"image,omitempty"`

	// ContainerName names the container so it can be force-removed.
	ContainerName string `json:"container_name,omitempty"`

	// Mounts are bind mounts into the container.
	Mounts []Mount `json:"mounts,omitempty"`

	// ReadOnlyRoot makes the root filesystem read-only.
	ReadOnlyRoot bool `json:"read_only_root,omitempty"`

	// TmpfsSize is the size of /tmp tmpfs mount (e.g., "64m").
	TmpfsSize string `json:"tmpfs_size,omitempty"`
}

// ExecutionResult is the output of command execution.
type ExecutionResult struct {
	// Success indicates whether the execution infrastructure worked.
	// A command that runs but returns non-zero exit code has Success=true.
	Success bool `json:"success"`

	// ExitCode is the command's exit code (-1 if not available).
	ExitCode int `json:"exit_code"`

	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`

	// Combined is stdout followed by stderr.
	Combined string `json:"combined"`

	Duration   time.Duration `json:"duration"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`

	// Killed indicates the command was forcibly terminated.
	Killed     bool   `json:"killed"`
	KillReason string `json:"kill_reason,omitempty"`

	// Truncated indicates output was cut at the size limit.
	Truncated      bool  `json:"truncated"`
	TruncatedBytes int64 `json:"truncated_bytes,omitempty"`

	// Error contains any infrastructure-level error message.
	Error string `json:"error,omitempty"`

	// SandboxUsed indicates which sandbox mode was actually used.
	SandboxUsed SandboxMode `json:"sandbox_used"`
}

// IsError returns true if the execution failed (infrastructure error).
func (r *ExecutionResult) IsError() bool {
	return !r.Success || r.Error != ""
}

// IsNonZeroExit returns true if the command ran but returned non-zero.
func (r *ExecutionResult) IsNonZeroExit() bool {
	return r.Success && r.ExitCode != 0
}

// Output returns Combined if available, otherwise Stdout+Stderr.
func (r *ExecutionResult) Output() string {
	if r.Combined != "" {
		return r.Combined
	}
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// ExecutorCapabilities describes what an executor can do.
type ExecutorCapabilities struct {
	Name                     string        `json:"name"`
	Platform                 string        `json:"platform"`
	SupportedSandboxModes    []SandboxMode `json:"supported_sandbox_modes"`
	SupportsNetworkIsolation bool          `json:"supports_network_isolation"`
	DefaultTimeout           time.Duration `json:"default_timeout"`
}

// ExecutorConfig is the configuration for creating executors.
type ExecutorConfig struct {
	// DefaultWorkingDir is used when Command.WorkingDirectory is empty.
	DefaultWorkingDir string `json:"default_working_dir"`

	// DefaultTimeout is used when no timeout is specified.
	DefaultTimeout time.Duration `json:"default_timeout"`

	// MaxTimeout caps all timeout values.
	MaxTimeout time.Duration `json:"max_timeout"`

	// AllowedEnvironment lists host environment variables to pass through.
	AllowedEnvironment []string `json:"allowed_environment"`

	// DefaultLimits is applied when Command.Limits is nil.
	DefaultLimits *ResourceLimits `json:"default_limits,omitempty"`

	// MaxOutputBytes caps output capture.
	MaxOutputBytes int64 `json:"max_output_bytes"`

	// DockerDefaultImage is used for Docker sandbox when no image specified.
	DockerDefaultImage string `json:"docker_default_image,omitempty"`
}

// DefaultExecutorConfig returns sensible defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		DefaultWorkingDir: ".",
		DefaultTimeout:    60 * time.Second,
		MaxTimeout:        10 * time.Minute,
		MaxOutputBytes:    1024 * 1024, // 1MB
		AllowedEnvironment: []string{
			"PATH", "HOME", "USER", "LANG", "LC_ALL", "TMPDIR",
			"SYSTEMROOT", "PYTHONHOME", "VIRTUAL_ENV",
		},
		DefaultLimits: &ResourceLimits{
			TimeoutMs:      60000,
			MaxOutputBytes: 1024 * 1024,
		},
		DockerDefaultImage: "python:3.10-slim",
	}
}

// Merge combines this config with command-specific settings.
// Command settings override config defaults.
func (c ExecutorConfig) Merge(cmd Command) Command {
	result := cmd

	if result.WorkingDirectory == "" {
		result.WorkingDirectory = c.DefaultWorkingDir
	}

	if result.Limits == nil && c.DefaultLimits != nil {
		limitsCopy := *c.DefaultLimits
		result.Limits = &limitsCopy
	} else if result.Limits != nil && c.DefaultLimits != nil {
		limitsCopy := *result.Limits
		if limitsCopy.TimeoutMs == 0 {
			limitsCopy.TimeoutMs = c.DefaultLimits.TimeoutMs
		}
		if limitsCopy.MaxOutputBytes == 0 {
			limitsCopy.MaxOutputBytes = c.DefaultLimits.MaxOutputBytes
		}
		result.Limits = &limitsCopy
	}

	if result.Limits != nil && c.MaxTimeout > 0 {
		maxMs := int64(c.MaxTimeout / time.Millisecond)
		if result.Limits.TimeoutMs > maxMs {
			result.Limits.TimeoutMs = maxMs
		}
	}

	return result
}

// timeoutFor resolves the wall-clock timeout for cmd.
func (c ExecutorConfig) timeoutFor(cmd Command) time.Duration {
	if cmd.Limits != nil && cmd.Limits.TimeoutMs > 0 {
		return time.Duration(cmd.Limits.TimeoutMs) * time.Millisecond
	}
	return c.DefaultTimeout
}

// outputCapFor resolves the captured-output cap for cmd.
func (c ExecutorConfig) outputCapFor(cmd Command) int64 {
	if cmd.Limits != nil && cmd.Limits.MaxOutputBytes > 0 {
		return cmd.Limits.MaxOutputBytes
	}
	if c.MaxOutputBytes > 0 {
		return c.MaxOutputBytes
	}
	return 1024 * 1024
}
