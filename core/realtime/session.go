// Package realtime implements the Session Endpoint and Command
// Dispatcher of spec §4.8: one goroutine pair (read pump, write pump)
// per websocket connection, a bounded outbound queue enforcing the
// Room Hub's non-blocking broadcast contract, and a fixed per-command
// pipeline (authorize -> validate -> invoke service -> record ->
// broadcast). The read/write-pump split and ping/pong keepalive follow
// gorilla/websocket's own documented chat-server example, adapted to
// this module's envelope and dispatcher shape since no pack example
// exercises the library directly (see DESIGN.md).
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/websocket"

	"incidentpulse/core/apperr"
	"incidentpulse/core/domain"
	"incidentpulse/core/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// envelope is the wire shape of every inbound command and outbound
// event, per spec §6: {"event": "...", "data": {...}}.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Session wraps one websocket connection. It implements hub.Subscriber.
type Session struct {
	id        string
	conn      *websocket.Conn
	principal domain.Principal
	logger    *logging.Logger

	send chan envelope

	mu         sync.Mutex
	incidentID string // room currently joined; "" if none
	closeOnce  sync.Once
	closed     chan struct{}
}

func NewSession(conn *websocket.Conn, principal domain.Principal, queueSize int, logger *logging.Logger) *Session {
	return &Session{
		id:        uuid.Must(uuid.NewV4()).String(),
		conn:      conn,
		principal: principal,
		logger:    logger,
		send:      make(chan envelope, queueSize),
		closed:    make(chan struct{}),
	}
}

func (s *Session) SessionID() string { return s.id }

func (s *Session) Principal() domain.Principal { return s.principal }

func (s *Session) JoinedIncident() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incidentID
}

func (s *Session) SetJoinedIncident(incidentID string) {
	s.mu.Lock()
	s.incidentID = incidentID
	s.mu.Unlock()
}

// Deliver enqueues event/payload for the write pump. If the outbound
// queue is full it closes the session, so the endpoint runs the same
// cleanup as for a transport disconnect, and returns false so the hub
// drops it from its rooms rather than block the broadcaster.
func (s *Session) Deliver(event string, payload any) bool {
	raw, err := json.Marshal(payload)
	if err != nil {
		if s.logger != nil {
			s.logger.Errorf("realtime: marshal event %s for session %s: %v", event, s.id, err)
		}
		return true // not a queue-capacity failure; don't punish the subscriber
	}
	select {
	case s.send <- envelope{Event: event, Data: raw}:
		return true
	default:
		s.Close()
		return false
	}
}

// SendError delivers the standard error event for err.
func (s *Session) SendError(err error, devMode bool) {
	payload := apperr.EventPayload(err, devMode)
	s.Deliver("error", payload["data"])
}

// Close shuts down the write pump and underlying connection exactly
// once; safe to call from either pump or from hub cleanup.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}

// ReadPump blocks reading inbound frames and invokes handle for each
// decoded envelope, until the connection closes or ctx-equivalent
// shutdown via Close. Must run in its own goroutine; returns when the
// connection is gone.
func (s *Session) ReadPump(handle func(*Session, string, json.RawMessage)) {
	defer s.Close()
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.SendError(apperr.Validation("envelope.malformed", "malformed message envelope"), false)
			continue
		}
		handle(s, env.Event, env.Data)
	}
}

// WritePump drains the outbound queue to the socket and sends periodic
// pings, until Close is called or a write fails. Must run in its own
// goroutine.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
	}()
	for {
		select {
		case env, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.closed:
			return
		}
	}
}
