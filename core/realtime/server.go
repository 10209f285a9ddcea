package realtime

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"incidentpulse/config"
	"incidentpulse/core/apperr"
	"incidentpulse/core/auth"
	"incidentpulse/core/domain"
	"incidentpulse/core/focus"
	"incidentpulse/core/hub"
	"incidentpulse/core/logging"
	"incidentpulse/core/presence"
)

// Endpoint is the http.HandlerFunc-shaped websocket upgrade entry
// point of spec §4.8, wired into the router at GET /ws.
type Endpoint struct {
	upgrader   websocket.Upgrader
	issuer     *auth.Issuer
	dispatcher *Dispatcher
	hub        *hub.Hub
	presence   *presence.Registry
	focus      *focus.Registry
	cfg        *config.AppConfig
	logger     *logging.Logger
}

func NewEndpoint(
	issuer *auth.Issuer,
	dispatcher *Dispatcher,
	h *hub.Hub,
	presenceReg *presence.Registry,
	focusReg *focus.Registry,
	cfg *config.AppConfig,
	logger *logging.Logger,
) *Endpoint {
	return &Endpoint{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return cfg.CORSOrigin == "*" || r.Header.Get("Origin") == cfg.CORSOrigin
			},
		},
		issuer:     issuer,
		dispatcher: dispatcher,
		hub:        h,
		presence:   presenceReg,
		focus:      focusReg,
		cfg:        cfg,
		logger:     logger,
	}
}

// ServeHTTP authenticates the upgrade request via bearer token (header
// or ?token= query param, since browser websocket clients cannot set
// Authorization headers), then runs the read/write pumps until the
// connection closes, cleaning up hub/presence/focus state on exit.
func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if bearer := r.Header.Get("Authorization"); token == "" && len(bearer) > 7 && bearer[:7] == "Bearer " {
		token = bearer[7:]
	}
	principal, err := e.issuer.Verify(token)
	if err != nil {
		apperr.WriteHTTP(w, err, e.cfg.IsDevelopment())
		return
	}

	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if e.logger != nil {
			e.logger.Errorf("realtime: upgrade failed: %v", err)
		}
		return
	}

	session := NewSession(conn, principal, e.cfg.EffectiveOutboundQueueSize(), e.logger)
	go session.WritePump()
	e.runAndCleanup(session, principal)
}

func (e *Endpoint) runAndCleanup(session *Session, principal domain.Principal) {
	defer e.cleanup(session, principal)
	session.ReadPump(e.dispatcher.Handle)
}

func (e *Endpoint) cleanup(session *Session, principal domain.Principal) {
	e.hub.RemoveSession(session.id)
	if removed, err := e.presence.RemoveBySession(context.Background(), session.id); err == nil {
		for _, entry := range removed {
			e.hub.Broadcast(entry.IncidentID, "presence:left", map[string]any{
				"incidentId":  entry.IncidentID,
				"principalId": entry.PrincipalID,
			}, "")
		}
	} else if e.logger != nil {
		e.logger.Errorf("realtime: presence cleanup for session %s: %v", session.id, err)
	}
	for _, incidentID := range e.focus.RemoveByPrincipal(principal.ID) {
		e.hub.Broadcast(incidentID, "focus:cleared", map[string]any{
			"incidentId":  incidentID,
			"principalId": principal.ID,
		}, "")
	}
}
