// Package membroker is an in-memory reference implementation of
// pubsub.Transport: a mutex-guarded subscriber registry with a
// route-then-fanout publish path. Production deployments can swap it out
// for a real broker without touching internal/fleet or internal/dispatch.
package membroker

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aegis-fleet/orchestrator/internal/pubsub"
)

// bufferSize bounds each subscriber's backlog. A slow subscriber drops
// messages rather than blocking the publisher.
const bufferSize = 64

type subscriber struct {
	id      string
	pattern string // "" for an exact-topic subscription
	topic   string // "" for a pattern subscription
	ch      chan pubsub.Message
	once    sync.Once
	broker  *Broker
}

func (s *subscriber) C() <-chan pubsub.Message { return s.ch }

func (s *subscriber) Unsubscribe() error {
	s.broker.remove(s)
	return nil
}

// Broker is a goroutine-safe, process-local pub/sub hub.
type Broker struct {
	mu          sync.Mutex
	subscribers map[string]*subscriber
	logger      zerolog.Logger
	closed      bool
}

// New constructs an empty Broker.
func New(logger zerolog.Logger) *Broker {
	return &Broker{
		subscribers: make(map[string]*subscriber),
		logger:      logger.With().Str("component", "membroker").Logger(),
	}
}

// Publish fans the payload out to every subscription whose topic or
// pattern matches. The routing match and the fan-out send run under the
// same write lock as remove/Close's channel teardown, so a subscriber's
// channel can never close between the match and the send.
func (b *Broker) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}

	msg := pubsub.Message{Topic: topic, Payload: payload}
	for _, s := range b.subscribers {
		if !((s.topic != "" && s.topic == topic) || (s.pattern != "" && pubsub.MatchPattern(s.pattern, topic))) {
			continue
		}
		select {
		case s.ch <- msg:
		case <-ctx.Done():
			return ctx.Err()
		default:
			b.logger.Warn().Str("topic", topic).Str("subscriber", s.id).Msg("dropping message: subscriber backlog full")
		}
	}
	return nil
}

// Subscribe returns a stream of messages published to the exact topic.
func (b *Broker) Subscribe(ctx context.Context, topic string) (pubsub.Subscription, error) {
	return b.add("", topic)
}

// PSubscribe returns a stream of messages published to any topic matching
// pattern.
func (b *Broker) PSubscribe(ctx context.Context, pattern string) (pubsub.Subscription, error) {
	return b.add(pattern, "")
}

func (b *Broker) add(pattern, topic string) (*subscriber, error) {
	s := &subscriber{
		id:      uuid.NewString(),
		pattern: pattern,
		topic:   topic,
		ch:      make(chan pubsub.Message, bufferSize),
		broker:  b,
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		return s, nil
	}
	b.subscribers[s.id] = s
	return s, nil
}

// remove deletes s from the registry and closes its channel under the
// same lock Publish holds while sending, so Publish never observes a
// subscriber mid-teardown.
func (b *Broker) remove(s *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, s.id)
	s.once.Do(func() { close(s.ch) })
}

// Close releases every subscription. Idempotent.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, s := range b.subscribers {
		s.once.Do(func() { close(s.ch) })
	}
	b.subscribers = make(map[string]*subscriber)
	return nil
}

var _ pubsub.Transport = (*Broker)(nil)
