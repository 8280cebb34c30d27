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
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/docpipe/core"
)

// State is the state of a CircuitBreaker.
type State int

const (
	// StateClosed passes calls through and counts consecutive failures.
	StateClosed State = iota
	// StateOpen rejects calls until the timeout has elapsed.
	StateOpen
	// StateHalfOpen admits a single trial call.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// BreakerConfig controls a CircuitBreaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// Timeout is how long the circuit stays open after the last failure.
	Timeout time.Duration
}

// DefaultBreakerConfig opens after 5 consecutive failures for 60s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Timeout:          60 * time.Second,
	}
}

// Validate checks that the configuration can drive a breaker.
func (c BreakerConfig) Validate() error {
	if c.FailureThreshold < 1 {
		return fmt.Errorf("%w: failure threshold must be positive, got %d", ErrInvalidBreakerConfig, c.FailureThreshold)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidBreakerConfig)
	}
	return nil
}

// CircuitState is a point-in-time view of a breaker.
type CircuitState struct {
	State            State
	Failures         int
	LastFailure      time.Time
	FailureThreshold int
	Timeout          time.Duration
}

// CircuitBreaker guards calls to a dependency. It is safe for concurrent use
// and is meant to be shared by every caller of the same dependency.
type CircuitBreaker struct {
	name   string
	cfg    BreakerConfig
	clock  func() time.Time
	logger *slog.Logger

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	trial       bool // a half-open trial call is in flight
}

// BreakerOption configures a CircuitBreaker.
type BreakerOption func(*CircuitBreaker) error

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) BreakerOption {
	return func(b *CircuitBreaker) error {
		if clock == nil {
			return fmt.Errorf("%w: clock cannot be nil", ErrInvalidBreakerConfig)
		}
		b.clock = clock
		return nil
	}
}

// WithBreakerLogger sets the logger for state transitions.
func WithBreakerLogger(logger *slog.Logger) BreakerOption {
	return func(b *CircuitBreaker) error {
		b.logger = logger
		return nil
	}
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(name string, cfg BreakerConfig, opts ...BreakerOption) (*CircuitBreaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &CircuitBreaker{
		name:  name,
		cfg:   cfg,
		clock: time.Now,
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.logger = b.logger.With("component", "circuit_breaker", "circuit", name)
	return b, nil
}

// Name returns the breaker name.
func (b *CircuitBreaker) Name() string {
	return b.name
}

// Execute calls op unless the circuit rejects it. Rejections return a
// core.Error of KindCircuitOpen without calling op. A context.Canceled
// result is not counted as a failure. A panic in op is recorded as a
// failure and re-raised.
func (b *CircuitBreaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			b.record(fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()
	err := op(ctx)
	b.record(err)
	return err
}

// Call is Execute for operations that return a value.
func Call[T any](ctx context.Context, b *CircuitBreaker, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := b.Execute(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

func (b *CircuitBreaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		elapsed := b.clock().Sub(b.lastFailure)
		if elapsed < b.cfg.Timeout {
			return core.NewCircuitOpenError(b.name, b.cfg.Timeout-elapsed)
		}
		b.state = StateHalfOpen
		b.trial = true
		b.logger.Info("circuit half-open, admitting trial call")
	case StateHalfOpen:
		if b.trial {
			return core.NewCircuitOpenError(b.name, 0)
		}
		b.trial = true
	}
	return nil
}

func (b *CircuitBreaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if b.state != StateClosed {
			b.logger.Info("circuit closed")
		}
		b.state = StateClosed
		b.failures = 0
		b.trial = false
		return
	}

	if errors.Is(err, context.Canceled) {
		if b.state == StateHalfOpen {
			b.trial = false
		}
		return
	}

	b.failures++
	b.lastFailure = b.clock()

	switch {
	case b.state == StateHalfOpen:
		b.state = StateOpen
		b.trial = false
		b.logger.Warn("trial call failed, circuit re-opened", "err", err)
	case b.state == StateClosed && b.failures >= b.cfg.FailureThreshold:
		b.state = StateOpen
		b.logger.Warn("circuit opened", "failures", b.failures, "timeout", b.cfg.Timeout, "err", err)
	}
}

// State returns the current state. An open circuit whose timeout has
// elapsed reports StateOpen until the next call moves it to half-open.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns the breaker's counters.
func (b *CircuitBreaker) Snapshot() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return CircuitState{
		State:            b.state,
		Failures:         b.failures,
		LastFailure:      b.lastFailure,
		FailureThreshold: b.cfg.FailureThreshold,
		Timeout:          b.cfg.Timeout,
	}
}

// Reset closes the circuit and clears the failure counter.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.trial = false
	b.lastFailure = time.Time{}
}
