package fanout

import "sync"

// Subscription is one observer's buffered event feed. A subscription may
// be bound to a participant id for targeted events; spectators stay
// unbound.
type Subscription struct {
	hub           *Hub
	ch            chan Event
	mu            sync.Mutex
	participantID string
}

// C returns the receive side of the subscription.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Bind associates the subscription with a participant so targeted events
// (player_state, final_score) reach it.
func (s *Subscription) Bind(participantID string) {
	s.mu.Lock()
	s.participantID = participantID
	s.mu.Unlock()
}

// ParticipantID returns the bound participant id, or empty for spectators.
func (s *Subscription) ParticipantID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participantID
}

// Hub fans events out to subscriptions. Sends never block: a subscription
// whose buffer is full misses the event and catches up on the next
// snapshot, which is safe because every event is a full projection.
type Hub struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a new observer with the given buffer size.
func (h *Hub) Subscribe(buffer int) *Subscription {
	sub := &Subscription{hub: h, ch: make(chan Event, buffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes the observer and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	_, ok := h.subs[sub]
	delete(h.subs, sub)
	h.mu.Unlock()
	if ok {
		close(sub.ch)
	}
}

// Broadcast delivers an event to every subscription.
func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// SendTo delivers an event to every subscription bound to participantID.
func (h *Hub) SendTo(participantID string, ev Event) {
	if participantID == "" {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if sub.ParticipantID() != participantID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
