package domain

import (
	"context"
	"time"
)

// Broker topics wired through the process.
const (
	// SnapshotTopic carries Snapshot payloads while a reply is streaming.
	SnapshotTopic = "chat.snapshots"

	// CharacterTopic carries CharacterEvent payloads when character state
	// changes, either through the core or underneath it on disk.
	CharacterTopic = "character.updated"
)

// MessageBroker defines the interface for in-process event fan-out.
type MessageBroker interface {
	// Publish sends a payload to a specific topic with a routing key.
	Publish(ctx context.Context, topic string, routingKey string, payload []byte) error

	// Subscribe listens for events on a specific topic and routing key.
	Subscribe(ctx context.Context, topic string, routingKey string) (<-chan Event, error)

	// Close closes the broker and all topic channels.
	Close() error
}

// Event is a message received from the broker.
type Event struct {
	Topic      string
	RoutingKey string
	Payload    []byte
	Timestamp  time.Time
}

// CharacterEvent describes a change to a character's persisted state.
type CharacterEvent struct {
	Character string    `json:"character"`
	Change    string    `json:"change"` // "metadata", "avatar", "removed"
	Timestamp time.Time `json:"timestamp"`
}
