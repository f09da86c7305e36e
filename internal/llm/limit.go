package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limited throttles calls to a provider.
type Limited struct {
	Provider
	limiter *rate.Limiter
}

// NewLimited wraps p with a limiter allowing perMinute calls per minute.
// perMinute <= 0 disables limiting; burst < 1 is treated as 1.
func NewLimited(p Provider, perMinute, burst int) *Limited {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / 60)
	}
	if burst < 1 {
		burst = 1
	}
	return &Limited{Provider: p, limiter: rate.NewLimiter(limit, burst)}
}

// Generate waits for the limiter, then delegates.
func (l *Limited) Generate(ctx context.Context, prompt string) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}
	return l.Provider.Generate(ctx, prompt)
}
