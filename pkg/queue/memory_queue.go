package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryQueue memory-based queue implementation
type MemoryQueue struct {
	topics map[string]*topic
	config *MemoryQueueConfig
	mu     sync.RWMutex
	closed bool
}

// topic represents a message topic
type topic struct {
	name     string
	messages chan []byte
	sent     atomic.Int64
	recv     atomic.Int64
}

// MemoryQueueConfig memory queue configuration
type MemoryQueueConfig struct {
	BufferSize int           `json:"buffer_size"`
	Timeout    time.Duration `json:"timeout"`
}

// NewMemoryQueue creates a new memory queue instance
func NewMemoryQueue(config *MemoryQueueConfig) *MemoryQueue {
	if config == nil {
		config = &MemoryQueueConfig{}
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 1000
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &MemoryQueue{
		topics: make(map[string]*topic),
		config: config,
	}
}

func (mq *MemoryQueue) getTopic(name string) (*topic, error) {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.closed {
		return nil, ErrQueueClosed
	}

	t, exists := mq.topics[name]
	if !exists {
		t = &topic{
			name:     name,
			messages: make(chan []byte, mq.config.BufferSize),
		}
		mq.topics[name] = t
	}
	return t, nil
}

// Publish publishes a message to the queue
func (mq *MemoryQueue) Publish(ctx context.Context, name string, message []byte) error {
	t, err := mq.getTopic(name)
	if err != nil {
		return err
	}

	select {
	case t.messages <- message:
		t.sent.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(mq.config.Timeout):
		return ErrPublishTimeout
	}
}

// Subscribe consumes messages from the topic until the context is done.
// The handler runs on a single goroutine per subscription so delivery
// order within a topic is preserved.
func (mq *MemoryQueue) Subscribe(ctx context.Context, name string, handler MessageHandler) error {
	t, err := mq.getTopic(name)
	if err != nil {
		return err
	}

	go func() {
		for {
			select {
			case message, ok := <-t.messages:
				if !ok {
					return
				}
				t.recv.Add(1)
				// Handler errors are the handler's problem to report;
				// the subscription keeps draining.
				_ = handler(ctx, name, message)
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stats returns per-topic statistics
func (mq *MemoryQueue) Stats() []Stats {
	mq.mu.RLock()
	defer mq.mu.RUnlock()

	stats := make([]Stats, 0, len(mq.topics))
	for _, t := range mq.topics {
		stats = append(stats, Stats{
			Topic:        t.name,
			Depth:        len(t.messages),
			MessagesSent: t.sent.Load(),
			MessagesRecv: t.recv.Load(),
		})
	}
	return stats
}

// Close closes the queue connections
func (mq *MemoryQueue) Close() error {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.closed {
		return nil
	}
	mq.closed = true

	for _, t := range mq.topics {
		close(t.messages)
	}
	return nil
}

// Health checks the health of the queue
func (mq *MemoryQueue) Health() error {
	mq.mu.RLock()
	defer mq.mu.RUnlock()

	if mq.closed {
		return ErrQueueClosed
	}
	return nil
}
