package message_broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"characterchat/domain"
	"characterchat/utils/log"
)

// topicBuffer bounds each topic channel. Snapshot traffic is bursty while a
// reply streams; a full channel drops the publish rather than blocking the
// assembler.
const topicBuffer = 100

// ChannelMessageBroker implements domain.MessageBroker on Go channels.
type ChannelMessageBroker struct {
	topics map[string]chan domain.Event
	mu     sync.RWMutex
	closed bool
}

// NewChannelMessageBroker creates a new channel-based message broker.
func NewChannelMessageBroker() *ChannelMessageBroker {
	return &ChannelMessageBroker{
		topics: make(map[string]chan domain.Event),
	}
}

var _ domain.MessageBroker = (*ChannelMessageBroker)(nil)

func makeKey(topic, routingKey string) string {
	return topic + ":" + routingKey
}

// channel returns the channel for topic/routingKey, creating it if needed.
func (b *ChannelMessageBroker) channel(topic, routingKey string) (chan domain.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("message broker is closed")
	}

	key := makeKey(topic, routingKey)
	ch, ok := b.topics[key]
	if !ok {
		ch = make(chan domain.Event, topicBuffer)
		b.topics[key] = ch
	}
	return ch, nil
}

// Publish sends a payload to a specific topic and routing key. A full topic
// channel fails the publish instead of blocking.
func (b *ChannelMessageBroker) Publish(ctx context.Context, topic string, routingKey string, payload []byte) error {
	ch, err := b.channel(topic, routingKey)
	if err != nil {
		return err
	}

	event := domain.Event{
		Topic:      topic,
		RoutingKey: routingKey,
		Payload:    payload,
		Timestamp:  time.Now(),
	}

	// The read lock must cover the send: Close closes every topic channel
	// under the write lock, and sending on a closed channel panics.
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("message broker is closed")
	}

	select {
	case ch <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("topic channel is full: %s:%s", topic, routingKey)
	}
}

// Subscribe listens for events on a specific topic and routing key.
func (b *ChannelMessageBroker) Subscribe(ctx context.Context, topic string, routingKey string) (<-chan domain.Event, error) {
	ch, err := b.channel(topic, routingKey)
	if err != nil {
		return nil, err
	}

	log.WithCtx(ctx).Info("📡 Subscribed to topic", zap.String("topic", topic), zap.String("routingKey", routingKey))
	return ch, nil
}

// Close closes the message broker and all topic channels.
func (b *ChannelMessageBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, ch := range b.topics {
		close(ch)
	}
	b.topics = make(map[string]chan domain.Event)

	log.With().Info("🔒 Message broker closed")
	return nil
}

// TopicCount returns the number of active topics.
func (b *ChannelMessageBroker) TopicCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics)
}
