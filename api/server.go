// Package api is the HTTP composition layer: a chi router, the
// bearer-token/rbac middleware chain, and the REST handlers of spec
// §6. Grounded on the teacher's api package (Server struct plus
// newRouteHandlers) with the docs/monitoring/backups surfaces dropped.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"incidentpulse/config"
	"incidentpulse/core/auth"
	"incidentpulse/core/focus"
	"incidentpulse/core/hub"
	"incidentpulse/core/incidents"
	"incidentpulse/core/logging"
	"incidentpulse/core/presence"
	"incidentpulse/core/rbac"
	"incidentpulse/core/realtime"
	"incidentpulse/core/store"
)

// BackgroundWorker is a Start/Stop-shaped long-running subsystem,
// matching the teacher's monitoring.Engine life cycle.
type BackgroundWorker interface {
	Start(ctx context.Context)
	Stop()
}

// ServerDeps bundles every dependency the composition root builds.
type ServerDeps struct {
	Principals   store.PrincipalsStore
	IncidentsSvc *incidents.Service
	Policy       *rbac.Policy
	Issuer       *auth.Issuer
	Presence     *presence.Registry
	Focus        *focus.Registry
	Hub          *hub.Hub
	Realtime     *realtime.Endpoint
	Workers      []BackgroundWorker
}

type Server struct {
	cfg      *config.AppConfig
	logger   *logging.Logger
	policy   *rbac.Policy
	issuer   *auth.Issuer
	deps     ServerDeps
	handlers routeHandlers
}

func NewServer(cfg *config.AppConfig, logger *logging.Logger, deps ServerDeps) *Server {
	s := &Server{cfg: cfg, logger: logger, policy: deps.Policy, issuer: deps.Issuer, deps: deps}
	s.handlers = s.newRouteHandlers()
	return s
}

// Router builds the chi mux: ambient middleware first, then public
// auth routes, then bearer-token-guarded API routes, then the
// websocket upgrade endpoint.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recoverMiddleware)
	r.Use(s.securityHeadersMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(chimw.Timeout(30 * time.Second))

	r.Route("/api/auth", func(r chi.Router) {
		r.With(s.rateLimitMiddleware).Post("/register", s.handlers.auth.Register)
		r.With(s.rateLimitMiddleware).Post("/login", s.handlers.auth.Login)
		r.With(s.withAuth).Get("/me", s.handlers.auth.Me)
	})

	r.Route("/api/users", func(r chi.Router) {
		r.Use(s.withAuth)
		r.Get("/", s.handlers.users.List)
		r.Get("/{id}", s.handlers.users.Get)
		r.With(s.requirePermission(rbac.PermUserManage)).Patch("/{id}/role", s.handlers.users.UpdateRole)
	})

	r.Route("/api/incidents", func(r chi.Router) {
		r.Use(s.withAuth)
		r.Get("/", s.handlers.incidents.List)
		r.With(s.requirePermission(rbac.PermIncidentCreate)).Post("/", s.handlers.incidents.Create)
		r.Get("/{id}", s.handlers.incidents.Get)
		r.Get("/{id}/timeline", s.handlers.incidents.Timeline)
		r.Get("/{id}/presence", s.handlers.incidents.Presence)
		r.With(s.requirePermission(rbac.PermIncidentUpdate)).Patch("/{id}/status", s.handlers.incidents.UpdateStatus)
		r.With(s.requirePermission(rbac.PermIncidentAssign)).Post("/{id}/assignees", s.handlers.incidents.Assign)
		r.With(s.requirePermission(rbac.PermIncidentAssign)).Delete("/{id}/assignees/{userId}", s.handlers.incidents.Unassign)
		r.With(s.requirePermission(rbac.PermIncidentNote)).Post("/{id}/notes", s.handlers.incidents.AddNote)
		r.With(s.requirePermission(rbac.PermIncidentActionItem)).Post("/{id}/action-items", s.handlers.incidents.AddActionItem)
		r.With(s.requirePermission(rbac.PermIncidentActionItem)).Patch("/{id}/action-items/{updateId}/toggle", s.handlers.incidents.ToggleActionItem)
	})

	r.Get("/ws", s.deps.Realtime.ServeHTTP)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
