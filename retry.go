package rda

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// =====================================
// Retry Execution
// =====================================

// Operation is a unit of remote work run under a retry policy. The
// error it returns is the only failure channel the executor watches;
// panics are left alone.
type Operation func(ctx context.Context) error

// RetryError reports an operation that kept failing retryably until
// the policy ran out of attempts.
type RetryError struct {
	Attempts int
	Code     ErrorCode
	Cause    error
}

// Error implements the error interface
func (e *RetryError) Error() string {
	return fmt.Sprintf("failed after %d attempts (last code: %s): %v", e.Attempts, e.Code, e.Cause)
}

// Unwrap returns the last underlying failure
func (e *RetryError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the policy retries the given code
func (p RetryPolicy) Retryable(code ErrorCode) bool {
	for _, c := range p.RetryableCodes {
		if c == code {
			return true
		}
	}
	return false
}

// normalized fills invalid policy fields with defaults. MaxRetries
// zero stays zero, a single attempt is a legitimate policy.
func (p RetryPolicy) normalized() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = def.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.BackoffFactor < 1 {
		p.BackoffFactor = def.BackoffFactor
	}
	if p.RetryableCodes == nil {
		p.RetryableCodes = def.RetryableCodes
	}
	return p
}

// Executor runs operations under a retry policy with exponential
// backoff. Safe for concurrent use, it holds no per-call state.
type Executor struct {
	policy RetryPolicy
	clock  Clock
	logger zerolog.Logger
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithExecutorClock swaps the time source, mainly for tests
func WithExecutorClock(clock Clock) ExecutorOption {
	return func(e *Executor) {
		e.clock = clock
	}
}

// WithExecutorLogger attaches a logger for per-retry warnings
func WithExecutorLogger(logger zerolog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// NewExecutor creates an executor for the given policy
func NewExecutor(policy RetryPolicy, opts ...ExecutorOption) *Executor {
	e := &Executor{
		policy: policy.normalized(),
		clock:  SystemClock(),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Do runs op until it succeeds, fails non-retryably, or exhausts the
// policy. Non-retryable failures propagate unchanged on first sight.
// Exhaustion returns a *RetryError carrying the attempt count and the
// last classified code. Sleeps go through the injected clock and are
// not interruptible; ctx is only passed through to op.
func (e *Executor) Do(ctx context.Context, op Operation) error {
	attempts := e.policy.MaxRetries + 1

	var lastErr error
	var lastCode ErrorCode

	for attempt := 0; attempt < attempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}

		lastErr = err
		lastCode = Classify(err)

		if !e.policy.Retryable(lastCode) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		delay := e.backoff(attempt)
		e.logger.Warn().
			Str("code", string(lastCode)).
			Int("attempt", attempt+1).
			Int("max_attempts", attempts).
			Dur("delay", delay).
			Err(err).
			Msg("store operation failed, retrying")
		e.clock.Sleep(delay)
	}

	return &RetryError{
		Attempts: attempts,
		Code:     lastCode,
		Cause:    lastErr,
	}
}

// backoff computes the delay after the given zero-based attempt,
// capped at the policy maximum.
func (e *Executor) backoff(attempt int) time.Duration {
	delay := float64(e.policy.InitialDelay) * math.Pow(e.policy.BackoffFactor, float64(attempt))
	if delay > float64(e.policy.MaxDelay) {
		delay = float64(e.policy.MaxDelay)
	}
	return time.Duration(delay)
}

// Execute runs fn under exec's policy and returns its value. It is the
// typed companion to Do for operations that produce a result.
func Execute[T any](ctx context.Context, exec *Executor, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := exec.Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = fn(ctx)
		return opErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
