package queue

import (
	"context"
	"errors"
)

// Queue defines the interface for message queue operations
type Queue interface {
	// Publish publishes a message to the specified topic
	Publish(ctx context.Context, topic string, message []byte) error

	// Subscribe subscribes to messages from the specified topic
	Subscribe(ctx context.Context, topic string, handler MessageHandler) error

	// Close closes the queue connections
	Close() error

	// Health checks the health of the queue
	Health() error
}

// MessageHandler handles incoming messages
type MessageHandler func(ctx context.Context, topic string, message []byte) error

// Stats represents queue statistics
type Stats struct {
	Topic        string `json:"topic"`
	Depth        int    `json:"depth"`
	MessagesSent int64  `json:"messages_sent"`
	MessagesRecv int64  `json:"messages_received"`
}

// Common errors
var (
	ErrQueueClosed       = errors.New("queue is closed")
	ErrPublishTimeout    = errors.New("publish timeout")
	ErrTopicUnsubscribed = errors.New("topic has no subscriber")
)
