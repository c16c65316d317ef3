package tactile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"testforge/internal/config"
	"testforge/internal/logging"
)

// CompositeExecutor routes commands to different executors based on sandbox mode.
type CompositeExecutor struct {
	mu sync.RWMutex

	defaultExecutor Executor
	executors       map[SandboxMode]Executor

	// allowFallback routes an unavailable mode to the default executor.
	allowFallback bool
}

// NewCompositeExecutor creates a composite executor with a direct executor
// registered for SandboxNone.
func NewCompositeExecutor(direct Executor, allowFallback bool) *CompositeExecutor {
	return &CompositeExecutor{
		defaultExecutor: direct,
		executors:       map[SandboxMode]Executor{SandboxNone: direct},
		allowFallback:   allowFallback,
	}
}

// RegisterExecutor registers an executor for specific sandbox modes.
func (ce *CompositeExecutor) RegisterExecutor(modes []SandboxMode, executor Executor) {
	ce.mu.Lock()
	defer ce.mu.Unlock()

	for _, mode := range modes {
		ce.executors[mode] = executor
	}
}

// SetAuditCallback sets the callback for audit events on all executors.
func (ce *CompositeExecutor) SetAuditCallback(callback func(AuditEvent)) {
	ce.mu.RLock()
	defer ce.mu.RUnlock()

	for _, exec := range ce.executors {
		if a, ok := exec.(auditable); ok {
			a.SetAuditCallback(callback)
		}
	}
}

// Capabilities returns the combined capabilities of all registered executors.
func (ce *CompositeExecutor) Capabilities() ExecutorCapabilities {
	ce.mu.RLock()
	defer ce.mu.RUnlock()

	caps := ExecutorCapabilities{Name: "composite"}
	for mode, exec := range ce.executors {
		caps.SupportedSandboxModes = append(caps.SupportedSandboxModes, mode)
		execCaps := exec.Capabilities()
		if execCaps.SupportsNetworkIsolation {
			caps.SupportsNetworkIsolation = true
		}
		if caps.Platform == "" {
			caps.Platform = execCaps.Platform
			caps.DefaultTimeout = execCaps.DefaultTimeout
		}
	}
	return caps
}

// EffectiveMode reports which mode a request for requested will run under.
func (ce *CompositeExecutor) EffectiveMode(requested SandboxMode) (SandboxMode, error) {
	if requested == "" {
		requested = SandboxNone
	}

	ce.mu.RLock()
	defer ce.mu.RUnlock()

	if _, ok := ce.executors[requested]; ok {
		return requested, nil
	}
	if ce.allowFallback {
		logging.TactileWarn("sandbox %s unavailable, falling back to %s", requested, SandboxNone)
		return SandboxNone, nil
	}
	return "", fmt.Errorf("no executor available for sandbox mode: %s", requested)
}

// Validate checks if a command can be executed.
func (ce *CompositeExecutor) Validate(cmd Command) error {
	executor, err := ce.selectExecutor(cmd)
	if err != nil {
		return err
	}
	return executor.Validate(cmd)
}

// Execute routes the command to the appropriate executor and executes it.
func (ce *CompositeExecutor) Execute(ctx context.Context, cmd Command) (*ExecutionResult, error) {
	executor, err := ce.selectExecutor(cmd)
	if err != nil {
		return nil, err
	}
	return executor.Execute(ctx, cmd)
}

// selectExecutor picks the executor registered for the command's mode.
// Fallback is decided earlier by EffectiveMode, because a fallback command
// needs host paths rather than container paths.
func (ce *CompositeExecutor) selectExecutor(cmd Command) (Executor, error) {
	ce.mu.RLock()
	defer ce.mu.RUnlock()

	mode := SandboxNone
	if cmd.Sandbox != nil && cmd.Sandbox.Mode != "" {
		mode = cmd.Sandbox.Mode
	}
	if executor, ok := ce.executors[mode]; ok {
		return executor, nil
	}
	return nil, fmt.Errorf("no executor available for sandbox mode: %s", mode)
}

// ExecutorConfigFrom maps the execution section of the config file onto
// executor defaults.
func ExecutorConfigFrom(cfg *config.Config) ExecutorConfig {
	ec := DefaultExecutorConfig()
	timeout := cfg.GetExecutionTimeout()
	ec.DefaultTimeout = timeout
	if ec.MaxTimeout < timeout {
		ec.MaxTimeout = timeout
	}
	if cfg.Execution.MaxOutputBytes > 0 {
		ec.MaxOutputBytes = cfg.Execution.MaxOutputBytes
	}
	if cfg.Execution.DockerImage != "" {
		ec.DockerDefaultImage = cfg.Execution.DockerImage
	}
	ec.DefaultLimits = &ResourceLimits{
		TimeoutMs:      int64(timeout / time.Millisecond),
		MaxOutputBytes: ec.MaxOutputBytes,
		MaxMemoryBytes: cfg.Execution.MemoryLimit,
	}
	return ec
}

// NewExecutorFromConfig builds the composite executor for cfg. Docker is
// checked only when the docker sandbox is requested.
func NewExecutorFromConfig(cfg *config.Config) *CompositeExecutor {
	ec := ExecutorConfigFrom(cfg)
	composite := NewCompositeExecutor(NewDirectExecutorWithConfig(ec), cfg.Execution.AllowFallback)

	if SandboxMode(cfg.Execution.Sandbox) == SandboxDocker {
		docker := NewDockerExecutorWithConfig(ec)
		if docker.IsAvailable() {
			composite.RegisterExecutor([]SandboxMode{SandboxDocker}, docker)
		} else {
			logging.TactileWarn("docker sandbox requested but docker is not available")
		}
	}
	return composite
}
