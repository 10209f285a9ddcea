// Package presence implements the Presence Registry of spec §4.5: a
// durable store.PresenceStore row per (principal, incident) plus an
// in-memory sessionId -> incidentIds reverse index kept in step with
// it (disconnect cleanup deletes by session id in the store), with a
// background sweeper for TTL expiry. The
// Start/Stop/background-loop shape is grounded on the teacher's
// core/monitoring/engine.go Engine (context.CancelFunc + sync.WaitGroup
// guarded by a mutex-protected running flag); the periodic trigger uses
// robfig/cron instead of the teacher's raw ticker, since the pack
// carries that dependency without the teacher code itself exercising
// it.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"incidentpulse/config"
	"incidentpulse/core/domain"
	"incidentpulse/core/logging"
	"incidentpulse/core/store"
)

// Broadcaster is the minimal hub surface the registry needs to
// announce presence changes; satisfied by *hub.Hub.
type Broadcaster interface {
	Broadcast(room, event string, payload any, excludeSession string)
}

type Registry struct {
	store    store.PresenceStore
	logger   *logging.Logger
	ttl      time.Duration
	interval time.Duration
	hub      Broadcaster

	mu        sync.Mutex
	bySession map[string]map[string]struct{} // sessionID -> set of incidentIDs
	cronSched *cron.Cron
	cancel    context.CancelFunc
	running   bool
	wg        sync.WaitGroup
}

// NewRegistry builds a Registry. hub may be nil in tests that never
// call Start; in production it receives presence:left broadcasts for
// entries the background sweep expires.
func NewRegistry(ps store.PresenceStore, cfg *config.AppConfig, logger *logging.Logger, hub Broadcaster) *Registry {
	return &Registry{
		store:     ps,
		logger:    logger,
		ttl:       cfg.EffectivePresenceTTL(),
		interval:  cfg.EffectiveSweepInterval(),
		hub:       hub,
		bySession: make(map[string]map[string]struct{}),
	}
}

// Join records a principal as present on an incident from sessionID,
// per spec §4.5's join protocol.
func (r *Registry) Join(ctx context.Context, principalID, incidentID, sessionID, displayName string) (domain.PresenceEntry, error) {
	entry := domain.PresenceEntry{
		PrincipalID:  principalID,
		IncidentID:   incidentID,
		SessionID:    sessionID,
		DisplayName:  displayName,
		LastActiveAt: time.Now().UTC(),
	}
	if err := r.store.Upsert(ctx, entry); err != nil {
		return domain.PresenceEntry{}, err
	}
	r.mu.Lock()
	set, ok := r.bySession[sessionID]
	if !ok {
		set = make(map[string]struct{})
		r.bySession[sessionID] = set
	}
	set[incidentID] = struct{}{}
	r.mu.Unlock()
	return entry, nil
}

// Heartbeat refreshes last-active-at for an already-joined session.
func (r *Registry) Heartbeat(ctx context.Context, principalID, incidentID string) error {
	return r.store.Touch(ctx, principalID, incidentID)
}

// Leave removes one (principal, incident) presence row explicitly.
func (r *Registry) Leave(ctx context.Context, principalID, incidentID, sessionID string) error {
	if err := r.store.Remove(ctx, principalID, incidentID); err != nil {
		return err
	}
	r.mu.Lock()
	if set, ok := r.bySession[sessionID]; ok {
		delete(set, incidentID)
		if len(set) == 0 {
			delete(r.bySession, sessionID)
		}
	}
	r.mu.Unlock()
	return nil
}

// RemoveBySession tears down every presence row owned by sessionID —
// called when a session's transport closes, regardless of how many
// incident rooms it had joined.
func (r *Registry) RemoveBySession(ctx context.Context, sessionID string) ([]domain.PresenceEntry, error) {
	removed, err := r.store.RemoveBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	delete(r.bySession, sessionID)
	r.mu.Unlock()
	return removed, nil
}

func (r *Registry) ListForIncident(ctx context.Context, incidentID string) ([]domain.PresenceEntry, error) {
	return r.store.ListForIncident(ctx, incidentID)
}

// Start launches the background sweep on a cron schedule computed
// from cfg.Realtime.SweepInterval; Broadcast is called per expired
// entry so subscribed sessions learn of the implicit leave. Matches
// the teacher's Engine.Start(ctx)/Stop() BackgroundWorker shape.
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.wg.Add(1)
	r.mu.Unlock()

	spec := "@every " + r.interval.String()
	c := cron.New()
	_, err := c.AddFunc(spec, func() { r.sweepOnce(runCtx, r.hub) })
	if err != nil {
		if r.logger != nil {
			r.logger.Errorf("presence: invalid sweep schedule %q: %v", spec, err)
		}
		r.wg.Done()
		return
	}
	r.cronSched = c
	c.Start()

	go func() {
		defer r.wg.Done()
		<-runCtx.Done()
		stopCtx := c.Stop()
		<-stopCtx.Done()
	}()
}

func (r *Registry) Stop() {
	r.mu.Lock()
	if r.cancel == nil || !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	cancel()
	r.wg.Wait()
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

func (r *Registry) sweepOnce(ctx context.Context, hub Broadcaster) {
	expired, err := r.store.SweepExpired(ctx, r.ttl)
	if err != nil {
		if r.logger != nil {
			r.logger.Errorf("presence: sweep: %v", err)
		}
		return
	}
	for _, e := range expired {
		r.mu.Lock()
		if set, ok := r.bySession[e.SessionID]; ok {
			delete(set, e.IncidentID)
			if len(set) == 0 {
				delete(r.bySession, e.SessionID)
			}
		}
		r.mu.Unlock()
		if hub != nil {
			hub.Broadcast(e.IncidentID, "presence:left", map[string]any{
				"incidentId":  e.IncidentID,
				"principalId": e.PrincipalID,
			}, "")
		}
	}
}
