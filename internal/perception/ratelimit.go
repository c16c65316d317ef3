package perception

import (
	"context"

	"golang.org/x/time/rate"

	"testforge/internal/logging"
	"testforge/internal/types"
)

// RateLimitedClient gates calls to an inner client through a token bucket.
// Safe for concurrent use by runs sharing one provider.
type RateLimitedClient struct {
	inner   types.LLMClient
	limiter *rate.Limiter
}

// NewRateLimitedClient wraps inner. A non-positive rps returns inner unchanged.
func NewRateLimitedClient(inner types.LLMClient, rps float64, burst int) types.LLMClient {
	if rps <= 0 {
		return inner
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedClient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Complete waits for a token then delegates.
func (c *RateLimitedClient) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	return c.inner.Complete(ctx, prompt)
}

// CompleteWithSystem waits for a token then delegates.
func (c *RateLimitedClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	return c.inner.CompleteWithSystem(ctx, systemPrompt, userPrompt)
}

func (c *RateLimitedClient) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		logging.APIWarn("rate limiter wait aborted: %v", err)
		return types.LLMError("ratelimit", err)
	}
	return nil
}
