// Package hub implements the Room Hub of spec §4.7: per-incident
// subscriber sets and a snapshot-then-deliver broadcast so a slow or
// disconnecting subscriber never blocks the publisher. Grounded on the
// teacher's in-memory connection registry shape (api/middleware.go's
// rate-limiter map: one mutex, one map, copy-then-iterate on read).
package hub

import (
	"sync"

	"incidentpulse/core/logging"
)

// Subscriber is the minimal session surface the hub delivers to.
// core/realtime's session type implements this by wrapping its
// bounded outbound channel.
type Subscriber interface {
	SessionID() string
	Deliver(event string, payload any) bool // false => queue full; the hub drops it from every room
}

type Hub struct {
	logger *logging.Logger

	mu    sync.RWMutex
	rooms map[string]map[string]Subscriber // incidentID -> sessionID -> subscriber
}

func New(logger *logging.Logger) *Hub {
	return &Hub{
		logger: logger,
		rooms:  make(map[string]map[string]Subscriber),
	}
}

// Subscribe adds sub to room's subscriber set.
func (h *Hub) Subscribe(room string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.rooms[room]
	if !ok {
		set = make(map[string]Subscriber)
		h.rooms[room] = set
	}
	set[sub.SessionID()] = sub
}

// Unsubscribe removes sessionID from room, pruning the room entry if
// it becomes empty.
func (h *Hub) Unsubscribe(room, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(set, sessionID)
	if len(set) == 0 {
		delete(h.rooms, room)
	}
}

// RemoveSession removes sessionID from every room it is subscribed to
// — called once when a transport closes.
func (h *Hub) RemoveSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room, set := range h.rooms {
		if _, ok := set[sessionID]; ok {
			delete(set, sessionID)
			if len(set) == 0 {
				delete(h.rooms, room)
			}
		}
	}
}

// Broadcast delivers event/payload to every subscriber of room except
// excludeSession (pass "" to exclude none). Subscribers are snapshotted
// under the read lock and delivered to outside it, so a blocked
// Deliver call never holds up other rooms or a concurrent
// Subscribe/Unsubscribe.
func (h *Hub) Broadcast(room, event string, payload any, excludeSession string) {
	h.mu.RLock()
	set, ok := h.rooms[room]
	if !ok {
		h.mu.RUnlock()
		return
	}
	snapshot := make([]Subscriber, 0, len(set))
	for id, sub := range set {
		if id == excludeSession {
			continue
		}
		snapshot = append(snapshot, sub)
	}
	h.mu.RUnlock()

	for _, sub := range snapshot {
		if !sub.Deliver(event, payload) {
			h.logger.Warnf("hub: dropping subscriber %s from %s, outbound queue full", sub.SessionID(), room)
			h.RemoveSession(sub.SessionID())
		}
	}
}

// SendTo delivers event/payload to exactly one subscriber of room, by
// session id — the unicast counterpart of Broadcast.
func (h *Hub) SendTo(room, sessionID, event string, payload any) {
	h.mu.RLock()
	set, ok := h.rooms[room]
	var sub Subscriber
	if ok {
		sub = set[sessionID]
	}
	h.mu.RUnlock()
	if sub == nil {
		return
	}
	if !sub.Deliver(event, payload) {
		h.RemoveSession(sessionID)
	}
}
