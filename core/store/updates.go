package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"incidentpulse/core/domain"
)

type UpdatesStore interface {
	// Timeline returns all updates for incidentID, ordered by
	// (createdAt, id) ascending per spec §3's ownership/ordering
	// invariant for the audit log.
	Timeline(ctx context.Context, incidentID string) ([]domain.Update, error)
}

type updatesStore struct {
	db *pgxpool.Pool
}

func NewUpdatesStore(db *pgxpool.Pool) UpdatesStore {
	return &updatesStore{db: db}
}

func (s *updatesStore) Timeline(ctx context.Context, incidentID string) ([]domain.Update, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, incident_id, author_id, kind, content, created_at
		FROM updates WHERE incident_id=$1
		ORDER BY created_at ASC, id ASC`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Update
	for rows.Next() {
		var u domain.Update
		var kind string
		var raw []byte
		if err := rows.Scan(&u.ID, &u.IncidentID, &u.AuthorID, &kind, &raw, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.Kind = domain.UpdateKind(kind)
		if err := u.Content.DecodeInto(u.Kind, raw); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
