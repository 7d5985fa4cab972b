package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var errBroker = errors.New("broker unavailable")

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(maxFailures int, cooldown time.Duration) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(BreakerConfig{MaxFailures: maxFailures, Cooldown: cooldown})
	cb.now = clock.now
	return cb, clock
}

func fail(context.Context) error    { return errBroker }
func succeed(context.Context) error { return nil }

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{})
	if cb.maxFailures != 5 || cb.cooldown != 30*time.Second || cb.State() != StateClosed {
		t.Errorf("breaker = %+v", cb)
	}
}

func TestCircuitBreaker_Transitions(t *testing.T) {
	ctx := context.Background()
	cb, clock := newTestBreaker(2, time.Minute)

	if err := cb.Execute(ctx, fail); !errors.Is(err, errBroker) {
		t.Fatalf("first failure error = %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("state after one failure = %s", cb.State())
	}
	_ = cb.Execute(ctx, fail)
	if cb.State() != StateOpen {
		t.Fatalf("state after threshold = %s", cb.State())
	}

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("open breaker error = %v, called = %v", err, called)
	}

	clock.advance(time.Minute)
	if cb.State() != StateHalfOpen {
		t.Fatalf("state after cooldown = %s", cb.State())
	}
	if err := cb.Execute(ctx, fail); !errors.Is(err, errBroker) {
		t.Fatalf("probe error = %v", err)
	}
	if cb.State() != StateOpen {
		t.Fatalf("failed probe must reopen, state = %s", cb.State())
	}

	clock.advance(time.Minute)
	if err := cb.Execute(ctx, succeed); err != nil {
		t.Fatalf("probe error = %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("successful probe must close, state = %s", cb.State())
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	ctx := context.Background()
	cb, _ := newTestBreaker(2, time.Minute)
	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, succeed)
	_ = cb.Execute(ctx, fail)
	if cb.State() != StateClosed {
		t.Errorf("non-consecutive failures opened the breaker")
	}
}

func TestCircuitBreaker_CancellationNotCounted(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := cb.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("cancellation opened the breaker")
	}
}

func TestCircuitBreaker_SingleProbe(t *testing.T) {
	ctx := context.Background()
	cb, clock := newTestBreaker(1, time.Second)
	_ = cb.Execute(ctx, fail)
	clock.advance(time.Second)

	err := cb.Execute(ctx, func(ctx context.Context) error {
		if inner := cb.Execute(ctx, succeed); !errors.Is(inner, ErrCircuitOpen) {
			t.Errorf("concurrent probe error = %v", inner)
		}
		return nil
	})
	if err != nil || cb.State() != StateClosed {
		t.Errorf("probe = %v, state = %s", err, cb.State())
	}
}

func TestCircuitBreaker_StaleSuccessKeepsOpen(t *testing.T) {
	ctx := context.Background()
	cb, _ := newTestBreaker(1, time.Minute)

	// a slow call admitted while closed finishes after another call opened the breaker
	err := cb.Execute(ctx, func(ctx context.Context) error {
		_ = cb.Execute(ctx, fail)
		return nil
	})
	if err != nil {
		t.Fatalf("slow call error = %v", err)
	}
	if cb.State() != StateOpen {
		t.Errorf("stale success closed the breaker, state = %s", cb.State())
	}
}

func TestCircuitBreaker_StaleFailureIgnoredByProbe(t *testing.T) {
	ctx := context.Background()
	cb, clock := newTestBreaker(2, time.Minute)
	_ = cb.Execute(ctx, fail)

	// opens the breaker, lets a probe close it, then fails late
	_ = cb.Execute(ctx, func(ctx context.Context) error {
		_ = cb.Execute(ctx, fail)
		clock.advance(time.Minute)
		if err := cb.Execute(ctx, succeed); err != nil {
			t.Errorf("probe error = %v", err)
		}
		return errBroker
	})
	if cb.State() != StateClosed {
		t.Errorf("stale failure changed the breaker, state = %s", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Hour)
	_ = cb.Execute(context.Background(), fail)
	cb.Reset()
	if cb.State() != StateClosed {
		t.Errorf("state after reset = %s", cb.State())
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{StateClosed: "closed", StateOpen: "open", StateHalfOpen: "half-open", State(9): "unknown"}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("%d.String() = %s, want %s", s, s.String(), want)
		}
	}
}

func TestProperty_OpensAfterConsecutiveFailures(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("breaker opens exactly at the failure threshold", prop.ForAll(
		func(maxFailures int) bool {
			cb, _ := newTestBreaker(maxFailures, time.Minute)
			ctx := context.Background()
			for i := 0; i < maxFailures-1; i++ {
				_ = cb.Execute(ctx, fail)
				if cb.State() != StateClosed {
					return false
				}
			}
			_ = cb.Execute(ctx, fail)
			return cb.State() == StateOpen && errors.Is(cb.Execute(ctx, succeed), ErrCircuitOpen)
		},
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}
