// Package perception adapts LLM provider SDKs to types.LLMClient.
package perception

import (
	"context"
	"strings"
	"time"

	"testforge/internal/types"
)

// defaultSystemPrompt is used when a caller passes an empty system prompt.
const defaultSystemPrompt = "You are an expert Python developer and test engineer."

var (
	_ types.LLMClient = (*GeminiClient)(nil)
	_ types.LLMClient = (*OpenAIClient)(nil)
	_ types.LLMClient = (*RateLimitedClient)(nil)
)

// withDefaultTimeout applies timeout when ctx carries no deadline.
func withDefaultTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline || timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func systemOrDefault(systemPrompt string) string {
	if strings.TrimSpace(systemPrompt) == "" {
		return defaultSystemPrompt
	}
	return systemPrompt
}
