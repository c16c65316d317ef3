package types

import (
	"context"
)

// LLMClient defines the interface for LLM interactions.
// Implementations must honor ctx cancellation; callers treat every error as recoverable.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// StructuralAnalyzer builds a structural summary from source. Implementations are total.
type StructuralAnalyzer interface {
	Analyze(source, logicalName string) StructuralSummary
}

// TestRunner executes a generated test module against the original source in isolation
// and returns the raw textual runner output. moduleName is the import name the
// test module uses for the original source.
type TestRunner interface {
	Run(ctx context.Context, moduleName, originalSource, testSource string) (string, error)
}
