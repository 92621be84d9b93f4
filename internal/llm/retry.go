package llm

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// retryClass is the retry policy bucket an error falls into.
type retryClass int

const (
	retryNever  retryClass = iota // configuration or caller problem
	retryOnce                     // worth exactly one more attempt
	retryAlways                   // transient, retry until attempts run out
)

// classifyError buckets a Generate error for retry purposes. Context
// cancellation and token-limit truncation will not improve on retry;
// a schema-invalid response gets a single second chance; everything
// else, rate limits and outages included, is treated as transient.
func classifyError(err error) retryClass {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retryNever
	}
	var maxTok *ErrMaxTokensExceeded
	if errors.As(err, &maxTok) {
		return retryNever
	}
	var invResp *ErrInvalidResponse
	if errors.As(err, &invResp) {
		return retryOnce
	}
	return retryAlways
}

// RetryProvider retries transient Generate failures with exponential
// backoff and jitter.
type RetryProvider struct {
	inner  Provider
	config RetryConfig
}

// WithRetry wraps a Provider with retry logic.
func WithRetry(p Provider, cfg RetryConfig) Provider {
	return &RetryProvider{inner: p, config: cfg}
}

func (r *RetryProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	onceUsed := false

	for attempt := range r.config.MaxAttempts {
		resp, err := r.inner.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		switch classifyError(err) {
		case retryNever:
			return nil, err
		case retryOnce:
			if onceUsed {
				return nil, err
			}
			onceUsed = true
		}

		if attempt == r.config.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.backoff(attempt, err)):
		}
	}

	return nil, lastErr
}

func (r *RetryProvider) ModelID() string {
	return r.inner.ModelID()
}

// backoff computes the wait before the next attempt. A rate limit that
// carries a Retry-After hint overrides the exponential schedule.
func (r *RetryProvider) backoff(attempt int, err error) time.Duration {
	var rl *ErrRateLimit
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}

	wait := float64(r.config.InitialWait) * math.Pow(r.config.Multiplier, float64(attempt))
	wait = math.Min(wait, float64(r.config.MaxWait))

	// ±20% jitter.
	wait += wait * 0.2 * (2*rand.Float64() - 1)
	if wait < 0 {
		wait = 0
	}
	return time.Duration(wait)
}
