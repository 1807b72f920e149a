// Package postgres provides the PostgreSQL implementation of the signals repository.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/reliefgrid/sos-engine/internal/domain"
	"github.com/reliefgrid/sos-engine/internal/geo"
	"github.com/reliefgrid/sos-engine/internal/signals"
)

const signalColumns = `
	id, lat, lng, message, priority, status, escalation_level,
	assigned_responder, notes, cluster_id,
	auto_escalated_at, response_time, resolution_time,
	created_at, updated_at, version
`

// Repository implements signals.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a new signal. A non-zero CreatedAt is honored so the
// intake layer (and tests) can record the citizen's submission time.
func (r *Repository) Create(ctx context.Context, signal *domain.Signal) error {
	notes, err := marshalNotes(signal.Notes)
	if err != nil {
		return err
	}

	createdAt := signal.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO sos_signals (
			lat, lng, message, priority, status, escalation_level,
			assigned_responder, notes, cluster_id,
			auto_escalated_at, response_time, resolution_time, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at, version
	`
	err = r.db.QueryRow(ctx, query,
		signal.Location.Lat,
		signal.Location.Lng,
		signal.Message,
		signal.Priority,
		signal.Status,
		signal.EscalationLevel,
		signal.AssignedResponder,
		notes,
		signal.ClusterID,
		signal.AutoEscalatedAt,
		signal.ResponseTime,
		signal.ResolutionTime,
		createdAt,
	).Scan(&signal.ID, &signal.CreatedAt, &signal.UpdatedAt, &signal.Version)

	if err != nil {
		return fmt.Errorf("create signal: %w", err)
	}
	signal.ClearPendingNotes()
	return nil
}

// GetSignal retrieves a signal by ID.
func (r *Repository) GetSignal(ctx context.Context, id string) (*domain.Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM sos_signals WHERE id = $1`

	signal, err := scanSignal(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, signals.ErrSignalNotFound
		}
		return nil, fmt.Errorf("get signal: %w", err)
	}
	return signal, nil
}

// FindEscalationCandidates returns unresolved signals below the maximum
// escalation level created at or before the cutoff, oldest first.
func (r *Repository) FindEscalationCandidates(ctx context.Context, createdBefore time.Time) ([]*domain.Signal, error) {
	query := `
		SELECT ` + signalColumns + `
		FROM sos_signals
		WHERE status IN ($1, $2)
		  AND escalation_level < $3
		  AND created_at <= $4
		ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query,
		domain.StatusPending,
		domain.StatusAcknowledged,
		domain.EscalationCritical,
		createdBefore,
	)
	if err != nil {
		return nil, fmt.Errorf("find escalation candidates: %w", err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

// FindActive returns all signals with an active status, oldest first.
func (r *Repository) FindActive(ctx context.Context) ([]*domain.Signal, error) {
	query := `
		SELECT ` + signalColumns + `
		FROM sos_signals
		WHERE status IN ($1, $2, $3)
		ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query,
		domain.StatusPending,
		domain.StatusAcknowledged,
		domain.StatusResponding,
	)
	if err != nil {
		return nil, fmt.Errorf("find active signals: %w", err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

// FindActiveNear returns high/critical active signals created at or after
// since, within a bounding box of radiusKM around center. The box uses the
// degree-delta approximation; callers apply the exact distance check.
func (r *Repository) FindActiveNear(ctx context.Context, center domain.Location, radiusKM float64, since time.Time) ([]*domain.Signal, error) {
	box := geo.BoxAround(center.Lat, center.Lng, radiusKM)

	query := `
		SELECT ` + signalColumns + `
		FROM sos_signals
		WHERE priority IN ($1, $2)
		  AND status IN ($3, $4, $5)
		  AND created_at >= $6
		  AND lat BETWEEN $7 AND $8
		  AND lng BETWEEN $9 AND $10
		ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query,
		domain.PriorityHigh,
		domain.PriorityCritical,
		domain.StatusPending,
		domain.StatusAcknowledged,
		domain.StatusResponding,
		since,
		box.MinLat, box.MaxLat,
		box.MinLng, box.MaxLng,
	)
	if err != nil {
		return nil, fmt.Errorf("find active signals near point: %w", err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

// FindEscalatedSince returns auto-escalated signals with auto_escalated_at
// at or after since. A zero since returns all of them.
func (r *Repository) FindEscalatedSince(ctx context.Context, since time.Time) ([]*domain.Signal, error) {
	query := `
		SELECT ` + signalColumns + `
		FROM sos_signals
		WHERE auto_escalated_at IS NOT NULL
		  AND ($1::timestamptz IS NULL OR auto_escalated_at >= $1)
		ORDER BY auto_escalated_at
	`
	var sinceArg *time.Time
	if !since.IsZero() {
		sinceArg = &since
	}

	rows, err := r.db.Query(ctx, query, sinceArg)
	if err != nil {
		return nil, fmt.Errorf("find escalated signals: %w", err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

// Save persists mutated fields with an optimistic version check. Notes
// appended since the signal was loaded are concatenated onto the stored
// JSONB array so concurrent writers cannot lose audit entries.
func (r *Repository) Save(ctx context.Context, signal *domain.Signal) error {
	newNotes, err := marshalNotes(signal.PendingNotes())
	if err != nil {
		return err
	}

	query := `
		UPDATE sos_signals SET
			priority = $2,
			status = $3,
			escalation_level = $4,
			assigned_responder = $5,
			cluster_id = $6,
			auto_escalated_at = $7,
			response_time = $8,
			resolution_time = $9,
			notes = notes || $10::jsonb,
			updated_at = now(),
			version = version + 1
		WHERE id = $1 AND version = $11
		RETURNING updated_at, version
	`
	err = r.db.QueryRow(ctx, query,
		signal.ID,
		signal.Priority,
		signal.Status,
		signal.EscalationLevel,
		signal.AssignedResponder,
		signal.ClusterID,
		signal.AutoEscalatedAt,
		signal.ResponseTime,
		signal.ResolutionTime,
		newNotes,
		signal.Version,
	).Scan(&signal.UpdatedAt, &signal.Version)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.classifySaveConflict(ctx, signal.ID)
		}
		return fmt.Errorf("save signal: %w", err)
	}

	signal.ClearPendingNotes()
	return nil
}

// classifySaveConflict distinguishes a missing row from a version mismatch.
func (r *Repository) classifySaveConflict(ctx context.Context, id string) error {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM sos_signals WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check signal existence: %w", err)
	}
	if !exists {
		return signals.ErrSignalNotFound
	}
	return signals.ErrVersionConflict
}

// AppendNote appends a single audit note without a version check. Pure
// append semantics make this safe against concurrent field updates.
func (r *Repository) AppendNote(ctx context.Context, signalID string, note domain.Note) error {
	payload, err := marshalNotes([]domain.Note{note})
	if err != nil {
		return err
	}

	query := `
		UPDATE sos_signals
		SET notes = notes || $2::jsonb, updated_at = now(), version = version + 1
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, signalID, payload)
	if err != nil {
		return fmt.Errorf("append note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return signals.ErrSignalNotFound
	}
	return nil
}

func marshalNotes(notes []domain.Note) ([]byte, error) {
	if notes == nil {
		notes = []domain.Note{}
	}
	data, err := json.Marshal(notes)
	if err != nil {
		return nil, fmt.Errorf("marshal notes: %w", err)
	}
	return data, nil
}

func scanSignal(row pgx.Row) (*domain.Signal, error) {
	var signal domain.Signal
	var notes []byte

	err := row.Scan(
		&signal.ID,
		&signal.Location.Lat,
		&signal.Location.Lng,
		&signal.Message,
		&signal.Priority,
		&signal.Status,
		&signal.EscalationLevel,
		&signal.AssignedResponder,
		&notes,
		&signal.ClusterID,
		&signal.AutoEscalatedAt,
		&signal.ResponseTime,
		&signal.ResolutionTime,
		&signal.CreatedAt,
		&signal.UpdatedAt,
		&signal.Version,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(notes, &signal.Notes); err != nil {
		return nil, fmt.Errorf("unmarshal notes: %w", err)
	}
	return &signal, nil
}

func scanSignals(rows pgx.Rows) ([]*domain.Signal, error) {
	var result []*domain.Signal
	for rows.Next() {
		signal, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		result = append(result, signal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signals: %w", err)
	}
	return result, nil
}
