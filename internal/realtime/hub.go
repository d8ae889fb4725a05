package realtime

import (
	"sync"

	"amora/internal/domain"
)

// subscriptionBuffer bounds how many undelivered events a subscriber may
// accumulate before further events are dropped for it.
const subscriptionBuffer = 64

// MessageInsert is the event emitted when a message row has been stored.
type MessageInsert struct {
	Message domain.Message
}

// Subscription receives insert events for a single conversation. Events
// arrive on C until Unsubscribe closes it.
type Subscription struct {
	C chan MessageInsert

	conversationID string
}

// ConversationID returns the conversation this subscription is scoped to.
func (s *Subscription) ConversationID() string {
	return s.conversationID
}

// Hub fans message-insert events out to per-conversation subscribers. It is
// the in-process realtime channel: subscribe, receive typed events, and
// unsubscribe explicitly when switching conversations.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe registers a subscriber for the given conversation.
func (h *Hub) Subscribe(conversationID string) *Subscription {
	sub := &Subscription{
		C:              make(chan MessageInsert, subscriptionBuffer),
		conversationID: conversationID,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs[conversationID] == nil {
		h.subs[conversationID] = make(map[*Subscription]struct{})
	}
	h.subs[conversationID][sub] = struct{}{}
	return sub
}

// Unsubscribe removes the subscription and closes its channel. It is safe to
// call more than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.subs[sub.conversationID]
	if !ok {
		return
	}
	if _, ok := conns[sub]; !ok {
		return
	}
	delete(conns, sub)
	if len(conns) == 0 {
		delete(h.subs, sub.conversationID)
	}
	// Publish holds the read lock while sending, so closing under the write
	// lock cannot race a send.
	close(sub.C)
}

// Publish delivers the event to every subscriber of its conversation. A
// subscriber whose buffer is full misses the event rather than blocking the
// publisher.
func (h *Hub) Publish(ev MessageInsert) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[ev.Message.ConversationID] {
		select {
		case sub.C <- ev:
		default:
		}
	}
}
