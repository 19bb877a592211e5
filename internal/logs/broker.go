// Package logs provides real-time build log streaming.
package logs

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thakurlabs/thakur/internal/models"
)

// Subscriber represents a log stream subscriber. A subscriber with an empty
// BuildID receives every build's entries.
type Subscriber struct {
	ID        string
	BuildID   string
	Ch        chan *models.LogEntry
	CreatedAt time.Time
}

// Broker fans build log entries out to WebSocket subscribers. Slow
// subscribers are never allowed to stall ingestion: entries to a full
// channel are dropped.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	logger      *slog.Logger
}

// NewBroker creates a new log broker.
func NewBroker(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		subscribers: make(map[string]*Subscriber),
		logger:      logger,
	}
}

// Subscribe creates a new subscription for the given build's log entries.
func (b *Broker) Subscribe(buildID string) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscriber{
		ID:        uuid.New().String(),
		BuildID:   buildID,
		Ch:        make(chan *models.LogEntry, 100),
		CreatedAt: time.Now(),
	}

	b.subscribers[sub.ID] = sub
	b.logger.Debug("subscriber added",
		"subscriber_id", sub.ID,
		"build_id", buildID,
	)

	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broker) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[sub.ID]; exists {
		close(sub.Ch)
		delete(b.subscribers, sub.ID)
		b.logger.Debug("subscriber removed", "subscriber_id", sub.ID)
	}
}

// Publish sends a log entry to all matching subscribers.
func (b *Broker) Publish(entry *models.LogEntry) {
	if entry == nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if sub.BuildID != "" && sub.BuildID != entry.BuildID {
			continue
		}

		select {
		case sub.Ch <- entry:
		default:
			// Channel full, skip this entry for this subscriber
			b.logger.Warn("subscriber channel full, dropping log entry",
				"subscriber_id", sub.ID,
				"build_id", entry.BuildID,
			)
		}
	}
}

// PublishBatch sends multiple log entries to all matching subscribers.
func (b *Broker) PublishBatch(entries []*models.LogEntry) {
	for _, entry := range entries {
		b.Publish(entry)
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
