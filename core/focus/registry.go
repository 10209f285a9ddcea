// Package focus implements the Focus Registry of spec §4.6: a
// purely in-memory, single-mutex map of who is looking at what field,
// with per-(principal, session) throttling and deterministic color
// assignment. Grounded on the teacher's in-memory rate-limiter shape
// in api/middleware.go (a mutex-guarded map keyed by actor, pruned on
// read) generalized from request throttling to focus-update throttling.
//
// Entries are keyed by principalID alone, per spec §3: a principal
// holds at most one focus entry at any time, across all incidents.
// Moving focus to a different incident replaces the existing entry
// rather than adding a second one.
package focus

import (
	"hash/fnv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"incidentpulse/config"
	"incidentpulse/core/domain"
)

// palette is the fixed set of colors handed out for cursor/focus
// highlighting, cycled deterministically by principal id.
var palette = []string{
	"#e57373", "#64b5f6", "#81c784", "#ffd54f",
	"#ba68c8", "#4db6ac", "#f06292", "#a1887f",
}

type throttleKey struct {
	principalID string
	sessionID   string
}

type Registry struct {
	mu        sync.Mutex
	entries   map[string]domain.FocusEntry // principalID -> current entry
	lastMoved map[throttleKey]time.Time
	throttle  time.Duration
	colors    *lru.Cache[string, string]
}

func NewRegistry(cfg *config.AppConfig) *Registry {
	colors, _ := lru.New[string, string](4096)
	return &Registry{
		entries:   make(map[string]domain.FocusEntry),
		lastMoved: make(map[throttleKey]time.Time),
		throttle:  cfg.EffectiveFocusThrottle(),
		colors:    colors,
	}
}

// Update records principal's focus on section/fieldId within
// incidentID, from sessionID, replacing any existing entry for that
// principal regardless of which incident it pointed to. Returns
// ok=false if the update was dropped by the per-(principal, session)
// throttle window, per spec §9 Open Question #2. staleIncidentID is
// non-empty when the principal's previous entry pointed at a
// different incident, so the caller can broadcast focus:cleared there.
func (r *Registry) Update(principalID, incidentID, sessionID string, section domain.FocusSection, fieldID string) (entry domain.FocusEntry, ok bool, staleIncidentID string) {
	now := time.Now().UTC()
	tk := throttleKey{principalID: principalID, sessionID: sessionID}

	r.mu.Lock()
	defer r.mu.Unlock()

	if last, ok := r.lastMoved[tk]; ok && now.Sub(last) < r.throttle {
		return domain.FocusEntry{}, false, ""
	}
	r.lastMoved[tk] = now

	if prev, had := r.entries[principalID]; had && prev.IncidentID != incidentID {
		staleIncidentID = prev.IncidentID
	}

	entry = domain.FocusEntry{
		PrincipalID: principalID,
		IncidentID:  incidentID,
		Section:     section,
		FieldID:     fieldID,
		Color:       r.colorFor(principalID),
		LastUpdate:  now,
	}
	r.entries[principalID] = entry
	return entry, true, staleIncidentID
}

// Clear removes principal's focus entry, but only if it currently
// points at incidentID — a stale leaveRoom cleanup for a room the
// principal has since moved away from must not clobber a newer entry.
func (r *Registry) Clear(principalID, incidentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[principalID]; ok && e.IncidentID == incidentID {
		delete(r.entries, principalID)
	}
}

// ListForIncident returns every active focus entry on incidentID.
func (r *Registry) ListForIncident(incidentID string) []domain.FocusEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.FocusEntry
	for _, e := range r.entries {
		if e.IncidentID == incidentID {
			out = append(out, e)
		}
	}
	return out
}

// RemoveByPrincipal drops principalID's focus entry, if any — called
// when a session fully disconnects. Returns the incident it was
// pointing at, if any, so the caller can broadcast focus:cleared.
// The throttle's session-scoped reset (Open Question #2) happens
// implicitly because sessionID changes on reconnect, never reusing
// a stale lastMoved entry.
func (r *Registry) RemoveByPrincipal(principalID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[principalID]
	if !ok {
		return nil
	}
	delete(r.entries, principalID)
	return []string{e.IncidentID}
}

func (r *Registry) colorFor(principalID string) string {
	if c, ok := r.colors.Get(principalID); ok {
		return c
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(principalID))
	c := palette[int(h.Sum32())%len(palette)]
	r.colors.Add(principalID, c)
	return c
}
