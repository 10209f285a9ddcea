package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"incidentpulse/core/domain"
)

// PresenceStore is the durable half of the Presence Registry (§4.5):
// one row per (principal, incident), refreshed on heartbeat and swept
// when stale. The in-memory sessionId reverse index lives in
// core/presence, not here.
type PresenceStore interface {
	Upsert(ctx context.Context, e domain.PresenceEntry) error
	Touch(ctx context.Context, principalID, incidentID string) error
	Remove(ctx context.Context, principalID, incidentID string) error
	RemoveBySession(ctx context.Context, sessionID string) ([]domain.PresenceEntry, error)
	ListForIncident(ctx context.Context, incidentID string) ([]domain.PresenceEntry, error)
	SweepExpired(ctx context.Context, olderThan time.Duration) ([]domain.PresenceEntry, error)
}

type presenceStore struct {
	db *pgxpool.Pool
}

func NewPresenceStore(db *pgxpool.Pool) PresenceStore {
	return &presenceStore{db: db}
}

func (s *presenceStore) Upsert(ctx context.Context, e domain.PresenceEntry) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO presence_entries(principal_id, incident_id, session_id, last_active_at)
		VALUES ($1,$2,$3, now())
		ON CONFLICT (principal_id, incident_id)
		DO UPDATE SET session_id=$3, last_active_at=now()`,
		e.PrincipalID, e.IncidentID, e.SessionID)
	return err
}

func (s *presenceStore) Touch(ctx context.Context, principalID, incidentID string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE presence_entries SET last_active_at=now()
		WHERE principal_id=$1 AND incident_id=$2`, principalID, incidentID)
	return err
}

func (s *presenceStore) Remove(ctx context.Context, principalID, incidentID string) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM presence_entries WHERE principal_id=$1 AND incident_id=$2`,
		principalID, incidentID)
	return err
}

func (s *presenceStore) RemoveBySession(ctx context.Context, sessionID string) ([]domain.PresenceEntry, error) {
	rows, err := s.db.Query(ctx, `
		DELETE FROM presence_entries WHERE session_id=$1
		RETURNING principal_id, incident_id, session_id, last_active_at`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPresenceRows(rows)
}

func (s *presenceStore) ListForIncident(ctx context.Context, incidentID string) ([]domain.PresenceEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT pe.principal_id, pe.incident_id, pe.session_id, pe.last_active_at, p.display_name
		FROM presence_entries pe
		JOIN principals p ON p.id = pe.principal_id
		WHERE pe.incident_id=$1`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPresenceRowsWithName(rows)
}

func (s *presenceStore) SweepExpired(ctx context.Context, olderThan time.Duration) ([]domain.PresenceEntry, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	rows, err := s.db.Query(ctx, `
		DELETE FROM presence_entries WHERE last_active_at < $1
		RETURNING principal_id, incident_id, session_id, last_active_at`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPresenceRows(rows)
}

type presenceRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanPresenceRows(rows presenceRows) ([]domain.PresenceEntry, error) {
	var out []domain.PresenceEntry
	for rows.Next() {
		var e domain.PresenceEntry
		if err := rows.Scan(&e.PrincipalID, &e.IncidentID, &e.SessionID, &e.LastActiveAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// scanPresenceRowsWithName is scanPresenceRows plus the joined
// principals.display_name column, for listings rendered to clients.
func scanPresenceRowsWithName(rows presenceRows) ([]domain.PresenceEntry, error) {
	var out []domain.PresenceEntry
	for rows.Next() {
		var e domain.PresenceEntry
		if err := rows.Scan(&e.PrincipalID, &e.IncidentID, &e.SessionID, &e.LastActiveAt, &e.DisplayName); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
