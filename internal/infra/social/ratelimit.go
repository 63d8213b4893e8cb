package social

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter implements token bucket rate limiting in front of provider
// API calls, keeping one client from hammering a platform during bursts.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a RateLimiter allowing requestsPerSecond sustained
// throughput with the given burst capacity.
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Allow blocks until a token is available or the context is canceled.
func (r *RateLimiter) Allow(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
