package adapter

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimited wraps an Adapter so every provider call waits for a token.
type RateLimited struct {
	Adapter
	limiter *rate.Limiter
}

// WithRateLimit limits a to requestsPerMinute calls. A non-positive rate
// returns a unchanged.
func WithRateLimit(a Adapter, requestsPerMinute int) Adapter {
	if requestsPerMinute <= 0 {
		return a
	}
	every := time.Minute / time.Duration(requestsPerMinute)
	return &RateLimited{
		Adapter: a,
		limiter: rate.NewLimiter(rate.Every(every), 1),
	}
}

// ExtractParams waits for the limiter, then delegates.
func (r *RateLimited) ExtractParams(ctx context.Context, req ExtractRequest) (Extraction, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return Extraction{}, err
	}
	return r.Adapter.ExtractParams(ctx, req)
}

// Generate waits for the limiter, then delegates.
func (r *RateLimited) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.Adapter.Generate(ctx, req)
}
