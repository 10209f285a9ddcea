// incidents.go supersedes the teacher's core/store/incidents_store.go:
// same one-file-per-entity, interface-per-store shape, rebuilt for the
// incident/update domain of spec §3/§4.4 with atomic mutation+audit
// writes and optimistic-concurrency retry (sethvargo/go-retry), instead
// of the teacher's sqlite single-row-update pattern.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"

	"incidentpulse/core/apperr"
	"incidentpulse/core/domain"
)

// ErrVersionConflict signals a failed optimistic-concurrency check;
// Mutate retries its transaction on this error and reports a Conflict
// once the retries are used up.
var ErrVersionConflict = errors.New("incidents: version conflict")

type IncidentsStore interface {
	Create(ctx context.Context, inc domain.Incident) (domain.Incident, error)
	Get(ctx context.Context, id string) (domain.Incident, error)
	List(ctx context.Context, status domain.Status) ([]domain.Incident, error)

	// Mutate loads the incident by id, lets fn compute the new state and
	// the audit update to append, then commits both inside one
	// transaction guarded by the version column — retried up to 5 times
	// on a concurrent writer per spec §9 ("never publish after only one
	// succeeds").
	Mutate(ctx context.Context, id string, fn MutateFunc) (domain.Incident, domain.Update, error)
}

// MutateFunc computes the next incident state and the audit Update to
// record for one command. Returning an *apperr.Error aborts the
// transaction and is returned unwrapped to the caller.
type MutateFunc func(current domain.Incident) (next domain.Incident, update domain.Update, err error)

type incidentsStore struct {
	db *pgxpool.Pool
}

func NewIncidentsStore(db *pgxpool.Pool) IncidentsStore {
	return &incidentsStore{db: db}
}

func (s *incidentsStore) Create(ctx context.Context, inc domain.Incident) (domain.Incident, error) {
	if inc.ID == "" {
		inc.ID = uuid.Must(uuid.NewV4()).String()
	}
	assignees, err := json.Marshal(inc.Assignees)
	if err != nil {
		return domain.Incident{}, err
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO incidents(id, title, description, severity, status, created_by, commander, assignees, created_at, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8, now(), 1)
		RETURNING created_at, version`,
		inc.ID, inc.Title, inc.Description, string(inc.Severity), string(inc.Status),
		inc.CreatedBy, inc.Commander, assignees)
	if err := row.Scan(&inc.CreatedAt, &inc.Version); err != nil {
		return domain.Incident{}, err
	}
	return inc, nil
}

func (s *incidentsStore) Get(ctx context.Context, id string) (domain.Incident, error) {
	return s.get(ctx, s.db, id)
}

func (s *incidentsStore) get(ctx context.Context, q queryer, id string) (domain.Incident, error) {
	row := q.QueryRow(ctx, `
		SELECT id, title, description, severity, status, created_by, commander, assignees, created_at, resolved_at, version
		FROM incidents WHERE id=$1`, id)
	return scanIncident(row)
}

func (s *incidentsStore) List(ctx context.Context, status domain.Status) ([]domain.Incident, error) {
	query := `SELECT id, title, description, severity, status, created_by, commander, assignees, created_at, resolved_at, version FROM incidents`
	var rows pgx.Rows
	var err error
	if status != "" {
		query += ` WHERE status=$1 ORDER BY created_at DESC`
		rows, err = s.db.Query(ctx, query, string(status))
	} else {
		query += ` ORDER BY created_at DESC`
		rows, err = s.db.Query(ctx, query)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanIncident(row rowScanner) (domain.Incident, error) {
	var inc domain.Incident
	var severity, status string
	var assignees []byte
	if err := row.Scan(&inc.ID, &inc.Title, &inc.Description, &severity, &status,
		&inc.CreatedBy, &inc.Commander, &assignees, &inc.CreatedAt, &inc.ResolvedAt, &inc.Version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Incident{}, apperr.NotFound("incident.not_found", "incident not found")
		}
		return domain.Incident{}, err
	}
	inc.Severity = domain.Severity(severity)
	inc.Status = domain.Status(status)
	if len(assignees) > 0 {
		if err := json.Unmarshal(assignees, &inc.Assignees); err != nil {
			return domain.Incident{}, err
		}
	}
	return inc, nil
}

const maxMutateRetries = 5

func (s *incidentsStore) Mutate(ctx context.Context, id string, fn MutateFunc) (domain.Incident, domain.Update, error) {
	var resultInc domain.Incident
	var resultUpd domain.Update

	b := retry.WithMaxRetries(maxMutateRetries, retry.NewConstant(10*time.Millisecond))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		tx, err := s.db.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		current, err := s.get(ctx, tx, id)
		if err != nil {
			return err // not found is terminal: retry.Do only retries RetryableError
		}

		next, upd, err := fn(current)
		if err != nil {
			return err
		}

		assignees, err := json.Marshal(next.Assignees)
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `
			UPDATE incidents
			SET title=$1, description=$2, severity=$3, status=$4, commander=$5,
			    assignees=$6, resolved_at=$7, version=version+1
			WHERE id=$8 AND version=$9`,
			next.Title, next.Description, string(next.Severity), string(next.Status), next.Commander,
			assignees, next.ResolvedAt, id, current.Version)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return retry.RetryableError(ErrVersionConflict)
		}

		if upd.ID == "" {
			upd.ID = uuid.Must(uuid.NewV4()).String()
		}
		upd.IncidentID = id
		content, err := json.Marshal(upd.Content)
		if err != nil {
			return err
		}
		row := tx.QueryRow(ctx, `
			INSERT INTO updates(id, incident_id, author_id, kind, content, created_at)
			VALUES ($1,$2,$3,$4,$5, now())
			RETURNING created_at`,
			upd.ID, upd.IncidentID, upd.AuthorID, string(upd.Kind), content)
		if err := row.Scan(&upd.CreatedAt); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		next.Version = current.Version + 1
		resultInc = next
		resultUpd = upd
		return nil
	})
	if errors.Is(err, ErrVersionConflict) {
		return domain.Incident{}, domain.Update{}, apperr.Conflict("incident.version_conflict", "incident was modified concurrently, try again")
	}
	if err != nil {
		return domain.Incident{}, domain.Update{}, err
	}
	return resultInc, resultUpd, nil
}
