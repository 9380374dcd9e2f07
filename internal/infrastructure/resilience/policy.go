package resilience

import (
	"strings"
	"time"
)

// Config tunes retries and circuit breaking for outbound calls.
type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	// OperationAttempts caps attempts for operations by name prefix,
	// e.g. "websearch." keeps live web lookups inside the chat budget.
	// The longest matching prefix wins.
	OperationAttempts map[string]int

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     400 * time.Millisecond,
		RetryMultiplier:     2.0,

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

// attemptsFor resolves the attempt budget of one operation.
func (c Config) attemptsFor(operation string) int {
	attempts := c.RetryMaxAttempts
	matched := -1
	for prefix, n := range c.OperationAttempts {
		if n <= 0 || !strings.HasPrefix(operation, prefix) || len(prefix) <= matched {
			continue
		}
		attempts, matched = n, len(prefix)
	}
	return attempts
}

// backoff returns the wait after the given failed attempt (1-based).
func (c Config) backoff(attempt int) time.Duration {
	wait := c.RetryInitialBackoff
	for i := 1; i < attempt && wait < c.RetryMaxBackoff; i++ {
		wait = time.Duration(float64(wait) * c.RetryMultiplier)
	}
	return min(wait, c.RetryMaxBackoff)
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if out.RetryInitialBackoff <= 0 {
		out.RetryInitialBackoff = def.RetryInitialBackoff
	}
	if out.RetryMaxBackoff <= 0 {
		out.RetryMaxBackoff = def.RetryMaxBackoff
	}
	out.RetryMaxBackoff = max(out.RetryMaxBackoff, out.RetryInitialBackoff)
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = def.RetryMultiplier
	}
	if len(c.OperationAttempts) > 0 {
		out.OperationAttempts = make(map[string]int, len(c.OperationAttempts))
		for prefix, n := range c.OperationAttempts {
			if prefix = strings.TrimSpace(prefix); prefix != "" && n > 0 {
				out.OperationAttempts[prefix] = n
			}
		}
	}

	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = def.BreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if out.BreakerHalfOpenMaxCalls == 0 {
		out.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}

	return out
}
