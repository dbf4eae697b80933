package fanout

import (
	"testing"
)

func TestHub_BroadcastReachesAllSubscribers(t *testing.T) {
	h := NewHub()
	a := h.Subscribe(4)
	b := h.Subscribe(4)
	defer h.Unsubscribe(a)
	defer h.Unsubscribe(b)

	h.Broadcast(Event{Type: EventTimer, Data: TimerPayload{RemainingSeconds: 10}})

	for name, sub := range map[string]*Subscription{"a": a, "b": b} {
		select {
		case ev := <-sub.C():
			if ev.Type != EventTimer {
				t.Errorf("%s: unexpected event type %s", name, ev.Type)
			}
		default:
			t.Errorf("%s: expected a buffered event", name)
		}
	}
}

func TestHub_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe(1)
	defer h.Unsubscribe(sub)

	// Both sends must return immediately; the second is dropped.
	h.Broadcast(Event{Type: EventTimer, Data: TimerPayload{RemainingSeconds: 2}})
	h.Broadcast(Event{Type: EventTimer, Data: TimerPayload{RemainingSeconds: 1}})

	ev := <-sub.C()
	if ev.Data.(TimerPayload).RemainingSeconds != 2 {
		t.Errorf("expected the first event to survive, got %+v", ev.Data)
	}
	select {
	case ev := <-sub.C():
		t.Errorf("expected dropped second event, got %+v", ev)
	default:
	}
}

func TestHub_SendToTargetsBoundSubscription(t *testing.T) {
	h := NewHub()
	player := h.Subscribe(4)
	spectator := h.Subscribe(4)
	defer h.Unsubscribe(player)
	defer h.Unsubscribe(spectator)

	player.Bind("p1")
	h.SendTo("p1", Event{Type: EventPlayerState})

	select {
	case ev := <-player.C():
		if ev.Type != EventPlayerState {
			t.Errorf("unexpected event type %s", ev.Type)
		}
	default:
		t.Error("expected targeted event for bound subscription")
	}
	select {
	case ev := <-spectator.C():
		t.Errorf("spectator received targeted event %+v", ev)
	default:
	}

	// Targeting an empty id is a no-op even with unbound subscriptions.
	h.SendTo("", Event{Type: EventPlayerState})
	select {
	case ev := <-spectator.C():
		t.Errorf("unexpected event %+v", ev)
	default:
	}
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe(1)

	h.Unsubscribe(sub)
	if _, ok := <-sub.C(); ok {
		t.Error("expected closed channel after unsubscribe")
	}
	if h.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", h.SubscriberCount())
	}

	// Double unsubscribe must not panic.
	h.Unsubscribe(sub)
}

func TestSubscription_Rebind(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe(1)
	defer h.Unsubscribe(sub)

	if sub.ParticipantID() != "" {
		t.Error("expected unbound subscription")
	}
	sub.Bind("p1")
	if sub.ParticipantID() != "p1" {
		t.Errorf("expected p1, got %s", sub.ParticipantID())
	}
	sub.Bind("")
	if sub.ParticipantID() != "" {
		t.Error("expected unbound after rebind to empty")
	}
}
