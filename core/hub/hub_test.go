package hub

import (
	"sync"
	"testing"

	"incidentpulse/core/logging"
)

type fakeSubscriber struct {
	id       string
	mu       sync.Mutex
	received []string
	full     bool
}

func (f *fakeSubscriber) SessionID() string { return f.id }

func (f *fakeSubscriber) Deliver(event string, payload any) bool {
	if f.full {
		return false
	}
	f.mu.Lock()
	f.received = append(f.received, event)
	f.mu.Unlock()
	return true
}

func TestBroadcastDeliversToAllExceptExcluded(t *testing.T) {
	h := New(logging.NewLogger())
	a := &fakeSubscriber{id: "a"}
	b := &fakeSubscriber{id: "b"}
	h.Subscribe("inc-1", a)
	h.Subscribe("inc-1", b)

	h.Broadcast("inc-1", "presence:joined", nil, "a")

	if len(a.received) != 0 {
		t.Fatalf("excluded subscriber should not receive, got %v", a.received)
	}
	if len(b.received) != 1 || b.received[0] != "presence:joined" {
		t.Fatalf("expected b to receive one event, got %v", b.received)
	}
}

func TestBroadcastToUnknownRoomIsNoop(t *testing.T) {
	h := New(logging.NewLogger())
	h.Broadcast("missing-room", "event", nil, "")
}

func TestBroadcastDropsSubscriberWithFullQueue(t *testing.T) {
	h := New(logging.NewLogger())
	full := &fakeSubscriber{id: "full", full: true}
	h.Subscribe("inc-1", full)

	h.Broadcast("inc-1", "event", nil, "")

	h.mu.RLock()
	_, stillPresent := h.rooms["inc-1"]
	h.mu.RUnlock()
	if stillPresent {
		t.Fatal("expected the full-queue subscriber's room to be pruned")
	}
}

func TestUnsubscribePrunesEmptyRoom(t *testing.T) {
	h := New(logging.NewLogger())
	a := &fakeSubscriber{id: "a"}
	h.Subscribe("inc-1", a)
	h.Unsubscribe("inc-1", "a")

	h.mu.RLock()
	_, ok := h.rooms["inc-1"]
	h.mu.RUnlock()
	if ok {
		t.Fatal("expected room to be pruned after last subscriber leaves")
	}
}

func TestRemoveSessionAcrossRooms(t *testing.T) {
	h := New(logging.NewLogger())
	a := &fakeSubscriber{id: "a"}
	h.Subscribe("inc-1", a)
	h.Subscribe("inc-2", a)

	h.RemoveSession("a")

	h.mu.RLock()
	_, ok1 := h.rooms["inc-1"]
	_, ok2 := h.rooms["inc-2"]
	h.mu.RUnlock()
	if ok1 || ok2 {
		t.Fatal("expected session removed from every room")
	}
}

func TestSendToUnicast(t *testing.T) {
	h := New(logging.NewLogger())
	a := &fakeSubscriber{id: "a"}
	b := &fakeSubscriber{id: "b"}
	h.Subscribe("inc-1", a)
	h.Subscribe("inc-1", b)

	h.SendTo("inc-1", "a", "presence:list", nil)

	if len(a.received) != 1 {
		t.Fatalf("expected a to receive the unicast, got %v", a.received)
	}
	if len(b.received) != 0 {
		t.Fatalf("expected b to receive nothing, got %v", b.received)
	}
}
