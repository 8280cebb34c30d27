// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/poiesic/docpipe/core"
)

// RetryConfig controls a RetryPolicy.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BaseDelay is the wait before the second attempt.
	BaseDelay time.Duration
	// MaxDelay caps every wait. Zero disables the cap.
	MaxDelay time.Duration
	// BackoffMultiplier scales the wait after every attempt.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns 3 retries starting at 1s, doubling up to 30s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		BaseDelay:         time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2,
	}
}

// Validate checks that the configuration can drive a policy.
func (c RetryConfig) Validate() error {
	switch {
	case c.MaxRetries < 0:
		return fmt.Errorf("%w: max retries must not be negative, got %d", ErrInvalidRetryConfig, c.MaxRetries)
	case c.BaseDelay < 0 || c.MaxDelay < 0:
		return fmt.Errorf("%w: delays must not be negative", ErrInvalidRetryConfig)
	case c.BackoffMultiplier < 1:
		return fmt.Errorf("%w: backoff multiplier must be at least 1, got %v", ErrInvalidRetryConfig, c.BackoffMultiplier)
	}
	return nil
}

// Observer is called before each backoff wait with the number of the
// upcoming attempt, the wait, and the failure that caused it.
type Observer func(attempt int, delay time.Duration, err error)

// RetryPolicy retries an operation with capped exponential backoff.
// A policy is immutable once built and safe for concurrent use.
type RetryPolicy struct {
	cfg         RetryConfig
	observer    Observer
	recoverable func(error) bool
	sleep       func(context.Context, time.Duration) error
	logger      *slog.Logger
}

// RetryOption configures a RetryPolicy.
type RetryOption func(*RetryPolicy) error

// WithObserver registers a callback invoked before each wait.
func WithObserver(fn Observer) RetryOption {
	return func(p *RetryPolicy) error {
		p.observer = fn
		return nil
	}
}

// WithClassifier replaces the recoverability check. The default is
// core.IsRecoverable.
func WithClassifier(fn func(error) bool) RetryOption {
	return func(p *RetryPolicy) error {
		if fn == nil {
			return fmt.Errorf("%w: classifier cannot be nil", ErrInvalidRetryConfig)
		}
		p.recoverable = fn
		return nil
	}
}

// WithSleeper replaces the wait between attempts.
func WithSleeper(fn func(context.Context, time.Duration) error) RetryOption {
	return func(p *RetryPolicy) error {
		if fn == nil {
			return fmt.Errorf("%w: sleeper cannot be nil", ErrInvalidRetryConfig)
		}
		p.sleep = fn
		return nil
	}
}

// WithRetryLogger sets the logger for retry diagnostics.
func WithRetryLogger(logger *slog.Logger) RetryOption {
	return func(p *RetryPolicy) error {
		p.logger = logger
		return nil
	}
}

// NewRetryPolicy creates a RetryPolicy.
func NewRetryPolicy(cfg RetryConfig, opts ...RetryOption) (*RetryPolicy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &RetryPolicy{
		cfg:         cfg,
		recoverable: core.IsRecoverable,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p, nil
}

// Attempts returns the maximum number of attempts, MaxRetries + 1.
func (p *RetryPolicy) Attempts() int {
	return p.cfg.MaxRetries + 1
}

// Delay returns the wait before the given attempt:
// min(BaseDelay * BackoffMultiplier^(attempt-2), MaxDelay). The first
// attempt has no wait.
func (p *RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 2 {
		return 0
	}
	d := float64(p.cfg.BaseDelay) * math.Pow(p.cfg.BackoffMultiplier, float64(attempt-2))
	if p.cfg.MaxDelay > 0 && (d > float64(p.cfg.MaxDelay) || math.IsInf(d, 0)) {
		return p.cfg.MaxDelay
	}
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Execute runs op until it succeeds, fails with an unrecoverable error, or
// runs out of attempts. The last error is returned unchanged. Cancellation
// during a wait returns ctx.Err().
func (p *RetryPolicy) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.Attempts()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			if attempt > 1 {
				p.logger.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}

		if !p.recoverable(lastErr) {
			p.logger.Debug("operation failed with unrecoverable error", "attempt", attempt, "err", lastErr)
			return lastErr
		}

		// Don't sleep after the last attempt
		if attempt == attempts {
			break
		}

		delay := p.Delay(attempt + 1)
		p.logger.Debug("operation failed, will retry",
			"attempt", attempt, "max_attempts", attempts, "delay", delay, "err", lastErr)
		if p.observer != nil {
			p.observer(attempt+1, delay, lastErr)
		}
		if err := p.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return lastErr
}

// Retry is Execute for operations that return a value.
func Retry[T any](ctx context.Context, p *RetryPolicy, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := p.Execute(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
