//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/reliefgrid/sos-engine/internal/domain"
	signalspostgres "github.com/reliefgrid/sos-engine/internal/signals/postgres"
	"github.com/stretchr/testify/require"
)

// clearData truncates the mutable tables so tests do not see each other's
// signals. Escalation passes and cluster queries are global scans, so
// isolation by ID filtering is not enough.
func clearData(t *testing.T) {
	t.Helper()
	_, err := testDB.Exec(context.Background(), `TRUNCATE sos_signals, disasters`)
	require.NoError(t, err)
}

// signalOption mutates a seed signal before insertion.
type signalOption func(*domain.Signal)

func withPriority(p domain.SignalPriority) signalOption {
	return func(s *domain.Signal) { s.Priority = p }
}

func withStatus(status domain.SignalStatus) signalOption {
	return func(s *domain.Signal) { s.Status = status }
}

func withMessage(msg string) signalOption {
	return func(s *domain.Signal) { s.Message = msg }
}

func withEscalation(level int, escalatedAt time.Time) signalOption {
	return func(s *domain.Signal) {
		s.EscalationLevel = level
		s.AutoEscalatedAt = &escalatedAt
	}
}

// seedSignal inserts a signal directly through the repository, backdating
// CreatedAt by age. Returns the generated ID.
func seedSignal(t *testing.T, lat, lng float64, age time.Duration, opts ...signalOption) string {
	t.Helper()

	signal := &domain.Signal{
		Location:  domain.Location{Lat: lat, Lng: lng},
		Message:   "Test SOS signal",
		Priority:  domain.PriorityMedium,
		Status:    domain.StatusPending,
		CreatedAt: time.Now().Add(-age),
	}
	for _, opt := range opts {
		opt(signal)
	}

	repo := signalspostgres.NewRepository(testDB)
	require.NoError(t, repo.Create(context.Background(), signal))
	return signal.ID
}

// getSignal reloads a signal by ID.
func getSignal(t *testing.T, id string) *domain.Signal {
	t.Helper()
	repo := signalspostgres.NewRepository(testDB)
	signal, err := repo.GetSignal(context.Background(), id)
	require.NoError(t, err)
	return signal
}

// countDisasters returns the number of disaster records.
func countDisasters(t *testing.T) int {
	t.Helper()
	var count int
	err := testDB.QueryRow(context.Background(), `SELECT count(*) FROM disasters`).Scan(&count)
	require.NoError(t, err)
	return count
}
