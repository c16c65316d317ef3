package types

import (
	"errors"
	"fmt"
)

// Error classes. Wrap them with %w and test with errors.Is.
var (
	// ErrParse marks structural-analysis or JSON-extraction failures. Always recoverable.
	ErrParse = errors.New("parse error")
	// ErrLLM marks LLM request failures and timeouts. Always recoverable.
	ErrLLM = errors.New("llm error")
	// ErrExecution marks an isolated run that could not be started.
	ErrExecution = errors.New("execution error")
	// ErrValidation marks a generated artifact that is not well formed.
	ErrValidation = errors.New("validation error")
)

// ParseError records the repair stage that failed.
type ParseError struct {
	Stage string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("parse error at %s", e.Stage)
	}
	return fmt.Sprintf("parse error at %s: %v", e.Stage, e.Err)
}

// Unwrap lets errors.Is match both ErrParse and the underlying cause.
func (e *ParseError) Unwrap() []error {
	return []error{ErrParse, e.Err}
}

// ExecutionError records why an isolated run could not produce output.
type ExecutionError struct {
	Reason string
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.Err == nil {
		return "execution error: " + e.Reason
	}
	return fmt.Sprintf("execution error: %s: %v", e.Reason, e.Err)
}

func (e *ExecutionError) Unwrap() []error {
	return []error{ErrExecution, e.Err}
}

// LLMError wraps a backend failure with the provider that produced it.
func LLMError(provider string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrLLM, provider, err)
}
