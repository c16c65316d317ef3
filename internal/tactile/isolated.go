package tactile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"testforge/internal/config"
	"testforge/internal/logging"
	"testforge/internal/types"
)

// containerWorkspace is where the workspace is mounted inside a container.
const containerWorkspace = "/workspace"

// dockerRunFailed is the exit code docker run uses for daemon-side failures.
const dockerRunFailed = 125

var moduleNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// =============================================================================
// WORKSPACE
// =============================================================================

// Workspace is a single-use directory for one test run.
type Workspace struct {
	Dir string

	mu       sync.Mutex
	released bool
}

// NewWorkspace creates a fresh directory under root (os.TempDir when empty).
func NewWorkspace(root string) (*Workspace, error) {
	dir, err := os.MkdirTemp(root, "forge-run-")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	logging.TactileDebug("workspace created: %s", dir)
	return &Workspace{Dir: dir}, nil
}

// Path returns the absolute path of name inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// WriteFile writes a top-level file. Names containing path separators are rejected.
func (w *Workspace) WriteFile(name, content string) error {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return fmt.Errorf("invalid workspace file name %q", name)
	}
	return os.WriteFile(w.Path(name), []byte(content), 0o644)
}

// Release deletes the workspace. Safe to call more than once.
func (w *Workspace) Release() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.released {
		return nil
	}
	w.released = true
	if err := os.RemoveAll(w.Dir); err != nil {
		logging.TactileWarn("failed to remove workspace %s: %v", w.Dir, err)
		return err
	}
	logging.TactileDebug("workspace released: %s", w.Dir)
	return nil
}

// =============================================================================
// ISOLATED EXECUTOR
// =============================================================================

// IsolatedConfig configures IsolatedExecutor.
type IsolatedConfig struct {
	Mode           SandboxMode
	PythonBinary   string // host interpreter for SandboxNone
	Image          string // container image for SandboxDocker
	Timeout        time.Duration
	MaxOutputBytes int64
	MemoryLimit    int64

	// WorkspaceRoot is the parent of per-run workspaces (os.TempDir when empty).
	WorkspaceRoot string
}

// modeResolver is implemented by executors that can fall back between modes.
type modeResolver interface {
	EffectiveMode(requested SandboxMode) (SandboxMode, error)
}

// IsolatedExecutor runs a generated unittest module against its target in a
// fresh workspace and returns the runner's combined output.
type IsolatedExecutor struct {
	executor Executor
	config   IsolatedConfig
}

var _ types.TestRunner = (*IsolatedExecutor)(nil)

// NewIsolatedExecutor creates an isolated executor on top of executor.
func NewIsolatedExecutor(executor Executor, cfg IsolatedConfig) *IsolatedExecutor {
	if cfg.Mode == "" {
		cfg.Mode = SandboxNone
	}
	if cfg.PythonBinary == "" {
		cfg.PythonBinary = "python3"
	}
	if cfg.Image == "" {
		cfg.Image = "python:3.10-slim"
	}
	return &IsolatedExecutor{executor: executor, config: cfg}
}

// NewIsolatedExecutorFromConfig wires the configured executors, attaching
// audit when non-nil.
func NewIsolatedExecutorFromConfig(cfg *config.Config, audit *AuditLogger) *IsolatedExecutor {
	composite := NewExecutorFromConfig(cfg)
	if audit != nil {
		composite.SetAuditCallback(audit.Log)
	}
	return NewIsolatedExecutor(composite, IsolatedConfig{
		Mode:           SandboxMode(cfg.Execution.Sandbox),
		PythonBinary:   cfg.Execution.PythonBinary,
		Image:          cfg.Execution.DockerImage,
		Timeout:        cfg.GetExecutionTimeout(),
		MaxOutputBytes: cfg.Execution.MaxOutputBytes,
		MemoryLimit:    cfg.Execution.MemoryLimit,
	})
}

// Run materializes <module>.py, test_<module>.py and __init__.py in a fresh
// workspace and runs the verbose unittest runner there. Failing tests are not
// an error. It fails with *types.ExecutionError when the runner could not be
// started or was killed before producing output.
func (e *IsolatedExecutor) Run(ctx context.Context, moduleName, originalSource, testSource string) (string, error) {
	timer := logging.StartTimer(logging.CategoryTactile, "Isolated test run")
	defer timer.Stop()

	if !moduleNamePattern.MatchString(moduleName) {
		return "", &types.ExecutionError{Reason: fmt.Sprintf("invalid module name %q", moduleName)}
	}

	mode, err := e.effectiveMode()
	if err != nil {
		return "", &types.ExecutionError{Reason: "no isolated runtime", Err: err}
	}

	ws, err := NewWorkspace(e.config.WorkspaceRoot)
	if err != nil {
		return "", &types.ExecutionError{Reason: "workspace", Err: err}
	}
	defer ws.Release()

	testModule := "test_" + moduleName
	files := []struct{ name, content string }{
		{moduleName + ".py", originalSource},
		{testModule + ".py", testSource},
		{"__init__.py", ""},
	}
	for _, f := range files {
		if err := ws.WriteFile(f.name, f.content); err != nil {
			return "", &types.ExecutionError{Reason: "workspace", Err: err}
		}
	}

	cmd := e.buildCommand(mode, ws, testModule)
	logging.Tactile("Running %s in %s sandbox (workspace=%s)", testModule, mode, ws.Dir)

	result, err := e.executor.Execute(ctx, cmd)
	if err != nil {
		return "", &types.ExecutionError{Reason: "runner could not start", Err: err}
	}
	if result.IsError() {
		msg := result.Error
		if msg == "" {
			msg = "executor reported failure"
		}
		return "", &types.ExecutionError{Reason: "runner could not start", Err: errors.New(msg)}
	}
	if result.IsNonZeroExit() {
		logging.TactileDebug("%s exited with code %d", testModule, result.ExitCode)
	}
	if result.SandboxUsed == SandboxDocker && result.ExitCode == dockerRunFailed {
		return "", &types.ExecutionError{Reason: "docker run failed", Err: errors.New(strings.TrimSpace(result.Stderr))}
	}

	output := result.Output()
	if result.Truncated {
		output += fmt.Sprintf("\n[forge] output truncated: %d bytes discarded\n", result.TruncatedBytes)
	}
	if result.Killed {
		if strings.TrimSpace(result.Output()) == "" {
			return "", &types.ExecutionError{Reason: "killed: " + result.KillReason}
		}
		output += fmt.Sprintf("\n[forge] run killed: %s\n", result.KillReason)
	}
	return output, nil
}

func (e *IsolatedExecutor) effectiveMode() (SandboxMode, error) {
	if r, ok := e.executor.(modeResolver); ok {
		return r.EffectiveMode(e.config.Mode)
	}
	return e.config.Mode, nil
}

// buildCommand builds the runner invocation for mode. Docker runs get a
// unique container name so they can be force-removed.
func (e *IsolatedExecutor) buildCommand(mode SandboxMode, ws *Workspace, testModule string) Command {
	runID := uuid.NewString()
	limits := &ResourceLimits{
		TimeoutMs:      int64(e.config.Timeout / time.Millisecond),
		MaxOutputBytes: e.config.MaxOutputBytes,
		MaxMemoryBytes: e.config.MemoryLimit,
	}
	args := []string{"-m", "unittest", "-v", testModule}
	env := []string{"PYTHONDONTWRITEBYTECODE=1", "PYTHONUNBUFFERED=1"}

	if mode == SandboxDocker {
		return Command{
			Binary:           "python",
			Arguments:        args,
			WorkingDirectory: containerWorkspace,
			Environment:      env,
			Limits:           limits,
			RunID:            runID,
			Sandbox: &SandboxConfig{
				Mode:          SandboxDocker,
				Image:         e.config.Image,
				ContainerName: "forge-" + runID,
				Mounts:        []Mount{{Source: ws.Dir, Target: containerWorkspace}},
				TmpfsSize:     "64m",
			},
		}
	}

	return Command{
		Binary:           e.config.PythonBinary,
		Arguments:        args,
		WorkingDirectory: ws.Dir,
		Environment:      env,
		Limits:           limits,
		RunID:            runID,
		Sandbox:          &SandboxConfig{Mode: SandboxNone},
	}
}
