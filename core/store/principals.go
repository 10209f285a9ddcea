package store

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"incidentpulse/core/apperr"
	"incidentpulse/core/domain"
)

type PrincipalsStore interface {
	Create(ctx context.Context, p domain.Principal, passwordHash string) error
	FindByEmail(ctx context.Context, email string) (domain.Principal, string, error)
	Get(ctx context.Context, id string) (domain.Principal, error)
	List(ctx context.Context, role string) ([]domain.Principal, error)
	UpdateRole(ctx context.Context, id string, role domain.Role) error
}

type principalsStore struct {
	db *pgxpool.Pool
}

func NewPrincipalsStore(db *pgxpool.Pool) PrincipalsStore {
	return &principalsStore{db: db}
}

func (s *principalsStore) Create(ctx context.Context, p domain.Principal, passwordHash string) error {
	id := p.ID
	if id == "" {
		id = uuid.Must(uuid.NewV4()).String()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO principals(id, display_name, email, password_hash, role, created_at)
		VALUES ($1,$2,$3,$4,$5, now())`,
		id, p.DisplayName, p.Email, passwordHash, string(p.Role))
	if isUniqueViolation(err) {
		return apperr.Conflict("auth.email_taken", "email already registered")
	}
	return err
}

func (s *principalsStore) FindByEmail(ctx context.Context, email string) (domain.Principal, string, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, display_name, email, password_hash, role, created_at
		FROM principals WHERE email=$1`, email)
	var p domain.Principal
	var hash, role string
	if err := row.Scan(&p.ID, &p.DisplayName, &p.Email, &hash, &role, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Principal{}, "", apperr.NotFound("auth.not_found", "no such principal")
		}
		return domain.Principal{}, "", err
	}
	p.Role = domain.Role(role)
	return p, hash, nil
}

func (s *principalsStore) Get(ctx context.Context, id string) (domain.Principal, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, display_name, email, role, created_at FROM principals WHERE id=$1`, id)
	var p domain.Principal
	var role string
	if err := row.Scan(&p.ID, &p.DisplayName, &p.Email, &role, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Principal{}, apperr.NotFound("principal.not_found", "principal not found")
		}
		return domain.Principal{}, err
	}
	p.Role = domain.Role(role)
	return p, nil
}

func (s *principalsStore) List(ctx context.Context, role string) ([]domain.Principal, error) {
	query := `SELECT id, display_name, email, role, created_at FROM principals`
	var rows pgx.Rows
	var err error
	if role != "" {
		query += ` WHERE role=$1 ORDER BY display_name ASC`
		rows, err = s.db.Query(ctx, query, role)
	} else {
		query += ` ORDER BY display_name ASC`
		rows, err = s.db.Query(ctx, query)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Principal
	for rows.Next() {
		var p domain.Principal
		var r string
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.Email, &r, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Role = domain.Role(r)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *principalsStore) UpdateRole(ctx context.Context, id string, role domain.Role) error {
	tag, err := s.db.Exec(ctx, `UPDATE principals SET role=$1 WHERE id=$2`, string(role), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("principal.not_found", "principal not found")
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && pgErrCode(err) == "23505"
}
