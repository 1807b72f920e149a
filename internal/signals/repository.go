// Package signals defines the storage port for SOS signal records.
package signals

import (
	"context"
	"errors"
	"time"

	"github.com/reliefgrid/sos-engine/internal/domain"
)

var (
	// ErrSignalNotFound is returned when a signal does not exist.
	ErrSignalNotFound = errors.New("signal not found")

	// ErrVersionConflict is returned by Save when the record changed since
	// it was read. Callers must re-read instead of overwriting.
	ErrVersionConflict = errors.New("signal modified concurrently")
)

// Repository defines the interface for SOS signal storage.
type Repository interface {
	// Create inserts a new signal. Signal intake lives outside the engine;
	// this is the write path used by that layer and by tests.
	Create(ctx context.Context, signal *domain.Signal) error

	// GetSignal retrieves a signal by ID.
	GetSignal(ctx context.Context, id string) (*domain.Signal, error)

	// FindEscalationCandidates returns unresolved signals below the maximum
	// escalation level created at or before the given cutoff, oldest first.
	FindEscalationCandidates(ctx context.Context, createdBefore time.Time) ([]*domain.Signal, error)

	// FindActive returns all signals with an active status.
	FindActive(ctx context.Context) ([]*domain.Signal, error)

	// FindActiveNear returns high/critical active signals created at or
	// after since, pre-filtered to a bounding box of radiusKM around
	// center. Callers apply the exact distance check.
	FindActiveNear(ctx context.Context, center domain.Location, radiusKM float64, since time.Time) ([]*domain.Signal, error)

	// FindEscalatedSince returns signals auto-escalated at or after since.
	// A zero since returns all auto-escalated signals.
	FindEscalatedSince(ctx context.Context, since time.Time) ([]*domain.Signal, error)

	// Save persists the signal's mutated fields. Notes are appended, never
	// overwritten. Returns ErrVersionConflict if the record changed since
	// it was loaded.
	Save(ctx context.Context, signal *domain.Signal) error

	// AppendNote appends a single audit note without touching any other
	// field and without a version check.
	AppendNote(ctx context.Context, signalID string, note domain.Note) error
}
