// Package resilience guards calls to remote dependencies.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state
type State int

const (
	// StateClosed allows all calls through
	StateClosed State = iota
	// StateOpen rejects all calls until the cooldown elapses
	StateOpen
	// StateHalfOpen lets one probe call through
	StateHalfOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned without calling the guarded function while the
// breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig configures a CircuitBreaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Zero defaults to 5.
	MaxFailures int
	// Cooldown is how long the breaker stays open before probing. Zero
	// defaults to 30s.
	Cooldown time.Duration
}

// CircuitBreaker fails fast after repeated failures of the guarded call.
// Cancellation of the caller's context is not counted as a failure.
type CircuitBreaker struct {
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
	// generation advances on every state change; outcomes of calls admitted
	// under an earlier generation are ignored.
	generation uint64
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &CircuitBreaker{
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		now:         time.Now,
	}
}

// Execute calls fn unless the breaker is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	generation, err := cb.acquire()
	if err != nil {
		return err
	}
	err = fn(ctx)
	cb.record(ctx, generation, err)
	return err
}

func (cb *CircuitBreaker) acquire() (uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return 0, ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
		cb.probing = true
	case StateHalfOpen:
		// one probe at a time
		if cb.probing {
			return 0, ErrCircuitOpen
		}
		cb.probing = true
	}
	return cb.generation, nil
}

func (cb *CircuitBreaker) record(ctx context.Context, generation uint64, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if generation != cb.generation {
		return
	}
	wasProbe := cb.state == StateHalfOpen
	cb.probing = false

	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		// caller gave up; a half-open probe is retried by the next call
		return
	}
	if err == nil {
		cb.setState(StateClosed)
		cb.failures = 0
		return
	}

	cb.failures++
	if wasProbe || cb.failures >= cb.maxFailures {
		cb.setState(StateOpen)
		cb.openedAt = cb.now()
		cb.failures = 0
	}
}

// setState must be called with mu held.
func (cb *CircuitBreaker) setState(state State) {
	if cb.state != state {
		cb.state = state
		cb.generation++
	}
}

// State returns the current state. An open breaker whose cooldown elapsed is
// reported as half-open.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cooldown {
		return StateHalfOpen
	}
	return cb.state
}

// Reset closes the breaker.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(StateClosed)
	cb.failures = 0
	cb.probing = false
}
