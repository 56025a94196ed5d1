// ABOUTME: In-memory fan-out for push delivery of chat events
// ABOUTME: Publishes store-confirmed events to all subscribers of an audience key

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/corretora/chat-gateway/internal/store"
)

// subscriberBufferSize is the channel buffer for each subscriber. Slow
// consumers drop events past this depth rather than stalling writers.
const subscriberBufferSize = 64

// Event kinds delivered over the push channel.
const (
	EventMessageReceived = "message-received"
	EventMessageRead     = "message-read"
)

// Audience keys. AudienceStaff reaches every connected staff session;
// AudienceContact reaches the sessions of one contact.
const AudienceStaff = "staff"

// AudienceContact returns the audience key for one contact's sessions.
func AudienceContact(contactID int64) string {
	return fmt.Sprintf("contact:%d", contactID)
}

// Event is a store-confirmed change fanned out to push subscribers.
// Message is set for message-received; MessageID for message-read.
type Event struct {
	Kind      string
	Message   *store.Message
	MessageID int64
}

// Broadcaster provides in-memory pub/sub for chat events. Subscribers
// register for an audience key and receive events as they are persisted.
// Delivery is best-effort; missed events are recovered via pull.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *Event // audience -> subID -> ch
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan *Event),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for events on the given audience key.
// Returns a channel that receives events and a subscription ID for later
// unsubscription. The subscription is automatically cleaned up when ctx
// is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, audience string) (<-chan *Event, string) {
	subID := uuid.New().String()
	ch := make(chan *Event, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[audience]; !ok {
		b.subscribers[audience] = make(map[string]chan *Event)
	}
	b.subscribers[audience][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "audience", audience, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(audience, subID)
	}()

	return ch, subID
}

// Publish sends an event to all subscribers of the given audience key.
// If excludeSubID is non-empty, that subscriber is skipped (the
// originating session gets a direct confirmation instead).
// Non-blocking: events are dropped for subscribers whose channels are full.
//
// The read lock is held across the sends. Unsubscribe and Close close
// subscriber channels under the write lock, so a held read lock is what
// keeps a disconnecting subscriber from closing a channel mid-send. The
// sends never block, so the lock is held only briefly.
func (b *Broadcaster) Publish(audience string, event *Event, excludeSubID string) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subs, ok := b.subscribers[audience]
	if !ok || len(subs) == 0 {
		return
	}

	for id, ch := range subs {
		if excludeSubID != "" && id == excludeSubID {
			continue
		}
		select {
		case ch <- event:
		default:
			b.logger.Debug("dropped event for slow subscriber",
				"audience", audience,
				"kind", event.Kind)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(audience, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[audience]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, audience)
	}

	b.logger.Debug("subscriber removed", "audience", audience, "sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for audience, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, audience)
	}

	b.logger.Debug("broadcaster closed")
}
