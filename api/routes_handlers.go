package api

import "incidentpulse/api/handlers"

type routeHandlers struct {
	auth      *handlers.AuthHandler
	users     *handlers.UsersHandler
	incidents *handlers.IncidentsHandler
}

func (s *Server) newRouteHandlers() routeHandlers {
	return routeHandlers{
		auth:      handlers.NewAuthHandler(s.cfg, s.deps.Principals, s.deps.Issuer, s.logger),
		users:     handlers.NewUsersHandler(s.cfg, s.deps.Principals, s.logger),
		incidents: handlers.NewIncidentsHandler(s.deps.IncidentsSvc, s.deps.Presence, s.cfg, s.logger),
	}
}
