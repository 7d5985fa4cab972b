package eventbus

import (
	"context"

	"github.com/nimburion/entitykit/pkg/resilience"
)

// GuardedProducer fails fast with resilience.ErrCircuitOpen while its
// breaker is open instead of waiting on an unreachable broker.
type GuardedProducer struct {
	Producer
	breaker *resilience.CircuitBreaker
}

var _ Producer = (*GuardedProducer)(nil)

// NewGuardedProducer wraps p with breaker.
func NewGuardedProducer(p Producer, breaker *resilience.CircuitBreaker) *GuardedProducer {
	return &GuardedProducer{Producer: p, breaker: breaker}
}

// Publish forwards to the wrapped producer through the breaker.
func (g *GuardedProducer) Publish(ctx context.Context, topic string, message *Message) error {
	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.Producer.Publish(ctx, topic, message)
	})
}

// PublishBatch forwards to the wrapped producer through the breaker.
func (g *GuardedProducer) PublishBatch(ctx context.Context, topic string, messages []*Message) error {
	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.Producer.PublishBatch(ctx, topic, messages)
	})
}

// State reports the breaker state.
func (g *GuardedProducer) State() resilience.State {
	return g.breaker.State()
}
