package graph

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy configures bounded retries with exponential backoff for
// transient node failures. The engine does not classify errors: any error a
// node returns is treated as transient until attempts run out.
//
// The wait before attempt n+1 is:
//
//	InitialInterval * BackoffFactor^(n-1)
//
// optionally extended by a uniformly random jitter in [0, InitialInterval)
// to spread out synchronized retries.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Must be >= 1; a value of 1 disables retries.
	MaxAttempts int

	// InitialInterval is the wait after the first failed attempt.
	InitialInterval time.Duration

	// BackoffFactor multiplies the wait after each subsequent failure.
	// Values below 1 are treated as 1 (constant interval).
	BackoffFactor float64

	// Jitter randomizes each wait by an additive amount in
	// [0, InitialInterval).
	Jitter bool
}

// Validate reports whether the policy is well formed.
func (p *RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return &EngineError{
			Message: "retry policy MaxAttempts must be >= 1",
			Code:    "INVALID_RETRY_POLICY",
		}
	}
	if p.InitialInterval < 0 {
		return &EngineError{
			Message: "retry policy InitialInterval must not be negative",
			Code:    "INVALID_RETRY_POLICY",
		}
	}
	return nil
}

// backoff returns the wait before retrying after the given failed attempt
// (1-based). The attempt counter resets on every superstep invocation of
// the node, not per run.
func (p *RetryPolicy) backoff(attempt int) time.Duration {
	factor := p.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	delay := time.Duration(float64(p.InitialInterval) * math.Pow(factor, float64(attempt-1)))
	if p.Jitter && p.InitialInterval > 0 {
		delay += time.Duration(rand.Int63n(int64(p.InitialInterval)))
	}
	return delay
}
