package tactile

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"testforge/internal/logging"
)

// containerRemoveTimeout bounds the forced cleanup after a run.
const containerRemoveTimeout = 15 * time.Second

// DockerExecutor executes commands inside Docker containers.
// Every run is named so it can be force-removed even when the docker CLI
// itself was killed by a timeout.
type DockerExecutor struct {
	mu     sync.RWMutex
	config ExecutorConfig

	// dockerPath is the path to the docker binary
	dockerPath string

	// available is true if Docker is available on this system
	available bool

	auditCallback func(AuditEvent)
}

// NewDockerExecutor creates a new Docker executor.
func NewDockerExecutor() *DockerExecutor {
	return NewDockerExecutorWithConfig(DefaultExecutorConfig())
}

// NewDockerExecutorWithConfig creates a new Docker executor with custom config.
func NewDockerExecutorWithConfig(config ExecutorConfig) *DockerExecutor {
	e := &DockerExecutor{
		config: config,
	}
	e.detectDocker()
	return e
}

// detectDocker checks if Docker is available.
func (e *DockerExecutor) detectDocker() {
	dockerPath, err := exec.LookPath("docker")
	if err != nil {
		logging.TactileDebug("docker binary not found: %v", err)
		e.available = false
		return
	}
	e.dockerPath = dockerPath

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, dockerPath, "version", "--format", "{{.Server.Version}}")
	if err := cmd.Run(); err != nil {
		logging.TactileDebug("docker daemon not responsive: %v", err)
		e.available = false
		return
	}
	e.available = true
}

// IsAvailable returns whether Docker is available on this system.
func (e *DockerExecutor) IsAvailable() bool {
	return e.available
}

// SetAuditCallback sets the callback for audit events.
func (e *DockerExecutor) SetAuditCallback(callback func(AuditEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.auditCallback = callback
}

func (e *DockerExecutor) emitAudit(eventType AuditEventType, cmd Command, result *ExecutionResult) {
	e.mu.RLock()
	callback := e.auditCallback
	e.mu.RUnlock()

	if callback != nil {
		callback(newAuditEvent(eventType, "docker", cmd, result))
	}
}

// Capabilities returns what this executor supports.
func (e *DockerExecutor) Capabilities() ExecutorCapabilities {
	modes := []SandboxMode{}
	if e.available {
		modes = append(modes, SandboxDocker)
	}
	return ExecutorCapabilities{
		Name:                     "docker",
		Platform:                 runtime.GOOS,
		SupportedSandboxModes:    modes,
		SupportsNetworkIsolation: true,
		DefaultTimeout:           e.config.DefaultTimeout,
	}
}

// Validate checks if a command can be executed.
func (e *DockerExecutor) Validate(cmd Command) error {
	if !e.available {
		return fmt.Errorf("docker is not available on this system")
	}
	if cmd.Binary == "" {
		return fmt.Errorf("binary is required")
	}
	if cmd.Sandbox == nil || cmd.Sandbox.Mode != SandboxDocker {
		return fmt.Errorf("DockerExecutor requires SandboxDocker configuration")
	}
	if cmd.Sandbox.ContainerName == "" {
		return fmt.Errorf("DockerExecutor requires a container name")
	}
	return nil
}

// Execute runs a command inside a Docker container and force-removes the
// container afterwards.
func (e *DockerExecutor) Execute(ctx context.Context, cmd Command) (*ExecutionResult, error) {
	timer := logging.StartTimer(logging.CategoryTactile, "Docker command execution")
	defer timer.Stop()

	if err := e.Validate(cmd); err != nil {
		return nil, err
	}
	cmd = e.config.Merge(cmd)
	name := cmd.Sandbox.ContainerName
	defer e.removeContainer(name)

	timeout := e.config.timeoutFor(cmd)
	result := &ExecutionResult{
		ExitCode:    -1,
		SandboxUsed: SandboxDocker,
	}
	e.emitAudit(AuditEventStart, cmd, nil)

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dockerArgs := e.buildDockerArgs(cmd)
	logging.TactileDebug("docker %v", dockerArgs)
	execCmd := exec.CommandContext(execCtx, e.dockerPath, dockerArgs...)
	execCmd.WaitDelay = 2 * time.Second

	maxOutput := e.config.outputCapFor(cmd)
	var stdoutBuf, stderrBuf bytes.Buffer
	stdoutLimited := &limitedWriter{w: &stdoutBuf, max: maxOutput}
	stderrLimited := &limitedWriter{w: &stderrBuf, max: maxOutput}
	execCmd.Stdout = stdoutLimited
	execCmd.Stderr = stderrLimited

	result.StartedAt = time.Now()
	err := execCmd.Run()
	result.FinishedAt = time.Now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)

	captureOutput(result, &stdoutBuf, &stderrBuf, stdoutLimited, stderrLimited)
	e.emitAudit(classifyRunError(result, err, execCtx, timeout), cmd, result)

	logging.Tactile("Container %s completed: exit=%d, duration=%s, killed=%v",
		name, result.ExitCode, result.Duration, result.Killed)
	return result, nil
}

// removeContainer force-removes a container by name. It runs on a fresh
// context so cleanup still happens after the caller's context expired.
func (e *DockerExecutor) removeContainer(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), containerRemoveTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, e.dockerPath, "rm", "-f", name).CombinedOutput()
	if err != nil {
		// "No such container" is the normal case after --rm.
		logging.TactileDebug("docker rm -f %s: %v (%s)", name, err, bytes.TrimSpace(out))
	}
}

// buildDockerArgs constructs the docker run command arguments.
func (e *DockerExecutor) buildDockerArgs(cmd Command) []string {
	sandbox := cmd.Sandbox
	if sandbox == nil {
		sandbox = &SandboxConfig{}
	}

	args := []string{"run", "--rm"}
	if sandbox.ContainerName != "" {
		args = append(args, "--name", sandbox.ContainerName)
	}

	networkMode := "none"
	if cmd.Limits != nil && cmd.Limits.NetworkAllowed {
		networkMode = "bridge"
	}
	args = append(args, "--network", networkMode)

	if sandbox.ReadOnlyRoot {
		args = append(args, "--read-only")
	}
	if sandbox.ReadOnlyRoot || sandbox.TmpfsSize != "" {
		tmpfsSize := sandbox.TmpfsSize
		if tmpfsSize == "" {
			tmpfsSize = "64m"
		}
		args = append(args, "--tmpfs", fmt.Sprintf("/tmp:size=%s", tmpfsSize))
	}
	args = append(args, "--security-opt", "no-new-privileges")

	for _, m := range sandbox.Mounts {
		mode := "rw"
		if m.ReadOnly {
			mode = "ro"
		}
		args = append(args, "-v", fmt.Sprintf("%s:%s:%s", m.Source, m.Target, mode))
	}

	if cmd.WorkingDirectory != "" {
		args = append(args, "-w", cmd.WorkingDirectory)
	}
	for _, env := range cmd.Environment {
		args = append(args, "-e", env)
	}

	if cmd.Limits != nil && cmd.Limits.MaxMemoryBytes > 0 {
		args = append(args, "--memory", fmt.Sprintf("%d", cmd.Limits.MaxMemoryBytes))
	}

	image := sandbox.Image
	if image == "" {
		image = e.config.DockerDefaultImage
	}
	if image == "" {
		image = "python:3.10-slim"
	}
	args = append(args, image, cmd.Binary)
	return append(args, cmd.Arguments...)
}
