// Package postgres provides the PostgreSQL implementation of the disasters repository.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/reliefgrid/sos-engine/internal/domain"
)

// Repository implements disasters.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Insert creates a new disaster record.
func (r *Repository) Insert(ctx context.Context, disaster *domain.Disaster) error {
	query := `
		INSERT INTO disasters (type, severity, description, lat, lng, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query,
		disaster.Type,
		disaster.Severity,
		disaster.Description,
		disaster.Location.Lat,
		disaster.Location.Lng,
		disaster.Status,
	).Scan(&disaster.ID, &disaster.CreatedAt)

	if err != nil {
		return fmt.Errorf("insert disaster: %w", err)
	}
	return nil
}
