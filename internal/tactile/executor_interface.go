package tactile

import (
	"context"
)

// Executor is the interface for command execution.
type Executor interface {
	// Execute runs a command and returns its result. A non-zero exit is not an
	// error; an error means the command could not be run at all.
	Execute(ctx context.Context, cmd Command) (*ExecutionResult, error)

	// Capabilities returns what this executor supports.
	Capabilities() ExecutorCapabilities

	// Validate checks if a command can be executed by this executor.
	Validate(cmd Command) error
}

// auditable is implemented by executors that emit AuditEvents.
type auditable interface {
	SetAuditCallback(callback func(AuditEvent))
}
