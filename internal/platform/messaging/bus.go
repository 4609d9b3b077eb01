package messaging

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"newsfinder/internal/shared/events"
)

// Bus fans relayed outbox events out to in-process subscriptions. Publish
// waits for every matching subscription to accept the event, so a row the
// relay marks published has reached each live consumer's buffer.
type Bus struct {
	mu      sync.RWMutex
	subs    []*Subscription
	brokers []string
	logger  *slog.Logger
}

// Subscription receives every event published on its topics, in publish
// order, on C. C is closed once Close returns.
type Subscription struct {
	C      <-chan events.Envelope
	ch     chan events.Envelope
	topics []string
	done   chan struct{}
	once   sync.Once
	bus    *Bus
}

func NewBus(brokers []string, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("event bus ready",
		"event", "event_bus_ready",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"brokers", brokers,
	)
	return &Bus{brokers: slices.Clone(brokers), logger: logger}
}

// Subscribe registers a subscription with the given buffer for one or more
// topics.
func (b *Bus) Subscribe(buffer int, topics ...string) *Subscription {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan events.Envelope, buffer)
	sub := &Subscription{
		C:      ch,
		ch:     ch,
		topics: slices.Clone(topics),
		done:   make(chan struct{}),
		bus:    b,
	}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	b.logger.Debug("event bus subscription added",
		"event", "event_bus_subscribed",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"topics", topics,
	)
	return sub
}

// Publish delivers event to each subscription on topic. It returns ctx's
// error if a subscriber is still full when ctx ends; the caller should then
// treat the event as undelivered.
func (b *Bus) Publish(ctx context.Context, topic string, event events.Envelope) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, sub := range b.subs {
		if !slices.Contains(sub.topics, topic) {
			continue
		}
		select {
		case sub.ch <- event:
			delivered++
		case <-sub.done:
		case <-ctx.Done():
			b.logger.Warn("event publish interrupted",
				"event", "event_bus_publish_interrupted",
				"module", "internal/platform/messaging",
				"layer", "platform",
				"topic", topic,
				"event_id", event.EventID,
				"error", ctx.Err().Error(),
			)
			return ctx.Err()
		}
	}

	b.logger.Debug("event published",
		"event", "event_bus_published",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"topic", topic,
		"event_id", event.EventID,
		"partition_key", event.PartitionKey,
		"subscribers", delivered,
	)
	return nil
}

// Close detaches the subscription. A Publish blocked on it moves on.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		b := s.bus
		b.mu.Lock()
		defer b.mu.Unlock()
		b.subs = slices.DeleteFunc(b.subs, func(item *Subscription) bool { return item == s })
		close(s.ch)
	})
}
