// Package appbootstrap is the composition root: it wires the store
// layer, services, and registries into one api.ServerDeps, the way the
// teacher's core/appbootstrap/compose.go builds one api.ServerDeps plus
// a []api.BackgroundWorker from a shared database handle.
package appbootstrap

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"incidentpulse/api"
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

// Runtime bundles the built server with the background workers the
// caller (cmd/server/main.go) is responsible for starting and
// stopping around the HTTP server's life cycle.
type Runtime struct {
	Server  *api.Server
	Workers []api.BackgroundWorker
}

// Compose builds every component needed to serve traffic, given an
// already-connected and migrated pool (see store.Open).
func Compose(cfg *config.AppConfig, db *pgxpool.Pool, logger *logging.Logger) (*Runtime, error) {
	principals := store.NewPrincipalsStore(db)
	incidentsStore := store.NewIncidentsStore(db)
	updatesStore := store.NewUpdatesStore(db)
	presenceStore := store.NewPresenceStore(db)

	policy, err := rbac.NewPolicy()
	if err != nil {
		return nil, err
	}
	issuer := auth.NewIssuer(cfg.SigningSecret, cfg.EffectiveTokenTTL())

	roomHub := hub.New(logger)
	presenceReg := presence.NewRegistry(presenceStore, cfg, logger, roomHub)
	focusReg := focus.NewRegistry(cfg)
	incidentSvc := incidents.NewService(incidentsStore, updatesStore)

	dispatcher := realtime.NewDispatcher(roomHub, incidentSvc, presenceReg, focusReg, policy, cfg, logger)
	endpoint := realtime.NewEndpoint(issuer, dispatcher, roomHub, presenceReg, focusReg, cfg, logger)

	deps := api.ServerDeps{
		Principals:   principals,
		IncidentsSvc: incidentSvc,
		Policy:       policy,
		Issuer:       issuer,
		Presence:     presenceReg,
		Focus:        focusReg,
		Hub:          roomHub,
		Realtime:     endpoint,
		Workers:      []api.BackgroundWorker{presenceReg},
	}

	return &Runtime{
		Server:  api.NewServer(cfg, logger, deps),
		Workers: deps.Workers,
	}, nil
}
