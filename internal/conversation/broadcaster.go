// ABOUTME: In-memory fan-out broadcaster for conversation State snapshots
// ABOUTME: Publishes every store mutation to all subscribed renderers

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	// Snapshots carry the full state, so dropped intermediates are
	// recovered by the next delivery (64 events of headroom).
	subscriberBufferSize = 64
)

// StateBroadcaster provides in-memory pub/sub for conversation State
// snapshots. Renderers subscribe once and receive a snapshot per store
// mutation. This enables reactive rendering without polling.
type StateBroadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan State // subID -> ch
	logger      *slog.Logger
}

// NewStateBroadcaster creates a broadcaster. Pass nil logger for default.
func NewStateBroadcaster(logger *slog.Logger) *StateBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateBroadcaster{
		subscribers: make(map[string]chan State),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for state snapshots. Returns a channel
// that receives snapshots and a subscription ID for later unsubscription.
// The subscription is automatically cleaned up when ctx is cancelled.
func (b *StateBroadcaster) Subscribe(ctx context.Context) (<-chan State, string) {
	subID := uuid.New().String()
	ch := make(chan State, subscriberBufferSize)

	b.mu.Lock()
	b.subscribers[subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		b.Unsubscribe(subID)
	}()

	return ch, subID
}

// Publish sends a snapshot to all subscribers.
// Non-blocking: snapshots are dropped for subscribers whose channels are
// full. Because every snapshot is self-contained, a dropped version is
// superseded by the next one delivered.
func (b *StateBroadcaster) Publish(state State) {
	// Sends stay under the read lock. They cannot block (drop-on-full),
	// and Unsubscribe/Close close channels only under the write lock, so
	// a send can never race a close. Renderers churn subscriptions per
	// request, so that race is reachable in normal operation otherwise.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- state:
			// Sent
		default:
			// Subscriber channel full — drop snapshot for this subscriber
			b.logger.Debug("dropped snapshot for slow subscriber",
				"version", state.Version)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *StateBroadcaster) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, exists := b.subscribers[subID]
	if !exists {
		return
	}

	delete(b.subscribers, subID)
	close(ch)

	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *StateBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subID, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, subID)
	}

	b.logger.Debug("broadcaster closed")
}
