// Package postgres provides the PostgreSQL implementation of the agency
// repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stafflink/shift-digest/internal/agency"
	"github.com/stafflink/shift-digest/internal/domain"
)

// Repository implements agency.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const agencyColumns = `
	id::text,
	name,
	COALESCE(logo_url, ''),
	COALESCE(contact_email, ''),
	COALESCE(contact_phone, ''),
	created_at,
	updated_at`

// CreateAgency inserts a new agency.
func (r *Repository) CreateAgency(ctx context.Context, a *domain.Agency) error {
	query := `
		INSERT INTO agencies (name, logo_url, contact_email, contact_phone)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''))
		RETURNING id::text, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		a.Name, a.LogoURL, a.ContactEmail, a.ContactPhone,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create agency: %w", err)
	}
	return nil
}

// GetAgency retrieves an agency by id.
func (r *Repository) GetAgency(ctx context.Context, id string) (*domain.Agency, error) {
	query := `SELECT` + agencyColumns + ` FROM agencies WHERE id = $1::uuid`

	var a domain.Agency
	err := r.db.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.Name, &a.LogoURL, &a.ContactEmail, &a.ContactPhone,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, agency.ErrAgencyNotFound
		}
		return nil, fmt.Errorf("get agency: %w", err)
	}
	return &a, nil
}

// ListAgencies retrieves all agencies ordered by name.
func (r *Repository) ListAgencies(ctx context.Context) ([]domain.Agency, error) {
	query := `SELECT` + agencyColumns + ` FROM agencies ORDER BY name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list agencies: %w", err)
	}
	defer rows.Close()

	agencies := make([]domain.Agency, 0)
	for rows.Next() {
		var a domain.Agency
		if err := rows.Scan(
			&a.ID, &a.Name, &a.LogoURL, &a.ContactEmail, &a.ContactPhone,
			&a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan agency: %w", err)
		}
		agencies = append(agencies, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list agencies: %w", err)
	}

	return agencies, nil
}

// UpdateAgency updates an agency's branding fields.
func (r *Repository) UpdateAgency(ctx context.Context, a *domain.Agency) error {
	query := `
		UPDATE agencies
		SET name = $2,
		    logo_url = NULLIF($3, ''),
		    contact_email = NULLIF($4, ''),
		    contact_phone = NULLIF($5, ''),
		    updated_at = NOW()
		WHERE id = $1::uuid
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		a.ID, a.Name, a.LogoURL, a.ContactEmail, a.ContactPhone,
	).Scan(&a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return agency.ErrAgencyNotFound
		}
		return fmt.Errorf("update agency: %w", err)
	}
	return nil
}
