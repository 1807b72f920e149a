package escalation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/reliefgrid/sos-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepo implements signals.Repository in memory for engine tests.
type fakeRepo struct {
	signals  []*domain.Signal
	saves    int
	saveErr  map[string]error
	saveHook func(*domain.Signal)
	findErr  error
}

func (f *fakeRepo) Create(_ context.Context, _ *domain.Signal) error { return nil }

func (f *fakeRepo) GetSignal(_ context.Context, id string) (*domain.Signal, error) {
	for _, s := range f.signals {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeRepo) FindEscalationCandidates(_ context.Context, createdBefore time.Time) ([]*domain.Signal, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []*domain.Signal
	for _, s := range f.signals {
		if (s.Status == domain.StatusPending || s.Status == domain.StatusAcknowledged) &&
			s.EscalationLevel < domain.EscalationCritical &&
			!s.CreatedAt.After(createdBefore) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeRepo) FindActive(_ context.Context) ([]*domain.Signal, error) { return nil, nil }

func (f *fakeRepo) FindActiveNear(_ context.Context, _ domain.Location, _ float64, _ time.Time) ([]*domain.Signal, error) {
	return nil, nil
}

func (f *fakeRepo) FindEscalatedSince(_ context.Context, _ time.Time) ([]*domain.Signal, error) {
	return nil, nil
}

func (f *fakeRepo) Save(_ context.Context, s *domain.Signal) error {
	if err := f.saveErr[s.ID]; err != nil {
		return err
	}
	f.saves++
	s.Version++
	s.ClearPendingNotes()
	if f.saveHook != nil {
		f.saveHook(s)
	}
	return nil
}

func (f *fakeRepo) AppendNote(_ context.Context, _ string, _ domain.Note) error { return nil }

// fakeSynth records synthesis triggers.
type fakeSynth struct {
	triggers []string
	err      error
}

func (f *fakeSynth) SynthesizeFromSignal(_ context.Context, trigger *domain.Signal) (*domain.Disaster, error) {
	f.triggers = append(f.triggers, trigger.ID)
	return nil, f.err
}

// fakeNotifier records escalation announcements.
type fakeNotifier struct {
	escalations []struct {
		id             string
		previous, next int
	}
}

func (f *fakeNotifier) NotifyEscalation(_ context.Context, signal *domain.Signal, previousLevel, newLevel int, _ string) {
	f.escalations = append(f.escalations, struct {
		id             string
		previous, next int
	}{signal.ID, previousLevel, newLevel})
}

func (f *fakeNotifier) NotifyStatusUpdate(context.Context, *domain.Signal, domain.SignalStatus, domain.SignalStatus, string) {
}
func (f *fakeNotifier) NotifyResponderAssignment(context.Context, *domain.Signal, string, string) {}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newCandidate(id string, age time.Duration, priority domain.SignalPriority, level int) *domain.Signal {
	return &domain.Signal{
		ID:              id,
		Location:        domain.Location{Lat: 6.9271, Lng: 79.8612},
		Message:         "help",
		Priority:        priority,
		Status:          domain.StatusPending,
		EscalationLevel: level,
		CreatedAt:       testNow.Add(-age),
		Version:         1,
	}
}

func newTestEngine(repo *fakeRepo, synth DisasterSynthesizer, notifier *fakeNotifier) *Engine {
	engine := NewEngine(EngineConfig{}, repo, synth, notifier)
	engine.now = func() time.Time { return testNow }
	return engine
}

func TestRunPass_FirstEscalation(t *testing.T) {
	signal := newCandidate("s1", 16*time.Minute, domain.PriorityLow, 0)
	repo := &fakeRepo{signals: []*domain.Signal{signal}}
	engine := newTestEngine(repo, nil, &fakeNotifier{})

	result, err := engine.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.EscalatedCount)

	assert.Equal(t, domain.EscalationRaised, signal.EscalationLevel)
	assert.Equal(t, domain.PriorityHigh, signal.Priority)
	require.NotNil(t, signal.AutoEscalatedAt)
	assert.Equal(t, testNow, *signal.AutoEscalatedAt)

	require.Len(t, signal.Notes, 1)
	assert.Equal(t, domain.SystemAuthorID, signal.Notes[0].AuthorID)
	assert.Equal(t, "First escalation: no acknowledgment after 15 minutes", signal.Notes[0].Text)
	assert.Equal(t, testNow, signal.Notes[0].Timestamp)
}

func TestRunPass_ThresholdBoundary(t *testing.T) {
	tests := []struct {
		name      string
		age       time.Duration
		wantLevel int
	}{
		{"just below first threshold", 15*time.Minute - time.Second, domain.EscalationNone},
		{"exactly at first threshold", 15 * time.Minute, domain.EscalationRaised},
		{"just below critical threshold", 45*time.Minute - time.Second, domain.EscalationRaised},
		{"exactly at critical threshold", 45 * time.Minute, domain.EscalationCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signal := newCandidate("s1", tt.age, domain.PriorityMedium, 0)
			repo := &fakeRepo{signals: []*domain.Signal{signal}}
			engine := newTestEngine(repo, nil, &fakeNotifier{})

			_, err := engine.RunPass(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantLevel, signal.EscalationLevel)
		})
	}
}

func TestRunPass_CriticalIsSingleStep(t *testing.T) {
	// A signal first seen at 46 minutes jumps straight to the critical
	// level with exactly one audit note, not one per crossed threshold.
	signal := newCandidate("s1", 46*time.Minute, domain.PriorityLow, 0)
	repo := &fakeRepo{signals: []*domain.Signal{signal}}
	engine := newTestEngine(repo, nil, &fakeNotifier{})

	result, err := engine.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.EscalatedCount)

	assert.Equal(t, domain.EscalationCritical, signal.EscalationLevel)
	assert.Equal(t, domain.PriorityCritical, signal.Priority)
	require.Len(t, signal.Notes, 1)
	assert.Equal(t, "Critical escalation: no resolution after 45 minutes", signal.Notes[0].Text)
}

func TestRunPass_SecondEscalationAfterMissedWindow(t *testing.T) {
	// A stalled scheduler can leave a level-0 signal older than the second
	// threshold but younger than the critical one.
	signal := newCandidate("s1", 31*time.Minute, domain.PriorityMedium, 0)
	repo := &fakeRepo{signals: []*domain.Signal{signal}}
	engine := newTestEngine(repo, nil, &fakeNotifier{})

	_, err := engine.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.EscalationRaised, signal.EscalationLevel)
	assert.Equal(t, domain.PriorityHigh, signal.Priority)
	require.Len(t, signal.Notes, 1)
	assert.Equal(t, "Second escalation: no response after 30 minutes", signal.Notes[0].Text)
}

func TestRunPass_LevelOneAdvancesToCritical(t *testing.T) {
	signal := newCandidate("s1", 50*time.Minute, domain.PriorityHigh, domain.EscalationRaised)
	repo := &fakeRepo{signals: []*domain.Signal{signal}}
	engine := newTestEngine(repo, nil, &fakeNotifier{})

	_, err := engine.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.EscalationCritical, signal.EscalationLevel)
	assert.Equal(t, domain.PriorityCritical, signal.Priority)
}

func TestRunPass_LevelOneNotReapplied(t *testing.T) {
	// Already at level 1 and only past the first/second thresholds: nothing
	// to do until the critical threshold.
	signal := newCandidate("s1", 35*time.Minute, domain.PriorityHigh, domain.EscalationRaised)
	repo := &fakeRepo{signals: []*domain.Signal{signal}}
	engine := newTestEngine(repo, nil, &fakeNotifier{})

	result, err := engine.RunPass(context.Background())
	require.NoError(t, err)

	assert.Zero(t, result.EscalatedCount)
	assert.Equal(t, domain.EscalationRaised, signal.EscalationLevel)
	assert.Empty(t, signal.Notes)
}

func TestRunPass_PriorityNeverLowered(t *testing.T) {
	signal := newCandidate("s1", 16*time.Minute, domain.PriorityCritical, 0)
	repo := &fakeRepo{signals: []*domain.Signal{signal}}
	engine := newTestEngine(repo, nil, &fakeNotifier{})

	_, err := engine.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.EscalationRaised, signal.EscalationLevel)
	assert.Equal(t, domain.PriorityCritical, signal.Priority)
}

func TestRunPass_PartialFailureIsolation(t *testing.T) {
	var candidates []*domain.Signal
	for i := 0; i < 5; i++ {
		candidates = append(candidates, newCandidate(fmt.Sprintf("s%d", i), 20*time.Minute, domain.PriorityLow, 0))
	}
	repo := &fakeRepo{
		signals: candidates,
		saveErr: map[string]error{"s2": errors.New("connection reset")},
	}
	engine := newTestEngine(repo, nil, &fakeNotifier{})

	result, err := engine.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, result.EscalatedCount)
	assert.Equal(t, 4, repo.saves)
}

func TestRunPass_InvalidSignalSkipped(t *testing.T) {
	bad := newCandidate("bad", 20*time.Minute, domain.PriorityLow, 0)
	bad.Location.Lat = 200
	good := newCandidate("good", 20*time.Minute, domain.PriorityLow, 0)
	repo := &fakeRepo{signals: []*domain.Signal{bad, good}}
	engine := newTestEngine(repo, nil, &fakeNotifier{})

	result, err := engine.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.EscalatedCount)
	assert.Equal(t, domain.EscalationNone, bad.EscalationLevel)
	assert.Equal(t, domain.EscalationRaised, good.EscalationLevel)
}

func TestRunPass_SynthesizerOnlyOnCritical(t *testing.T) {
	raised := newCandidate("raised", 20*time.Minute, domain.PriorityLow, 0)
	critical := newCandidate("critical", 50*time.Minute, domain.PriorityLow, 0)
	repo := &fakeRepo{signals: []*domain.Signal{raised, critical}}
	synth := &fakeSynth{}
	engine := newTestEngine(repo, synth, &fakeNotifier{})

	_, err := engine.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"critical"}, synth.triggers)
}

func TestRunPass_SynthesisFailureDoesNotAbortPass(t *testing.T) {
	first := newCandidate("a", 50*time.Minute, domain.PriorityLow, 0)
	second := newCandidate("b", 50*time.Minute, domain.PriorityLow, 0)
	repo := &fakeRepo{signals: []*domain.Signal{first, second}}
	synth := &fakeSynth{err: errors.New("insert failed")}
	engine := newTestEngine(repo, synth, &fakeNotifier{})

	result, err := engine.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.EscalatedCount)
	assert.Len(t, synth.triggers, 2)
}

func TestRunPass_NotifierSeesTransition(t *testing.T) {
	signal := newCandidate("s1", 16*time.Minute, domain.PriorityLow, 0)
	repo := &fakeRepo{signals: []*domain.Signal{signal}}
	notifier := &fakeNotifier{}
	engine := newTestEngine(repo, nil, notifier)

	_, err := engine.RunPass(context.Background())
	require.NoError(t, err)

	require.Len(t, notifier.escalations, 1)
	assert.Equal(t, "s1", notifier.escalations[0].id)
	assert.Equal(t, domain.EscalationNone, notifier.escalations[0].previous)
	assert.Equal(t, domain.EscalationRaised, notifier.escalations[0].next)
}

func TestRunPass_CancelledMidPass(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	var candidates []*domain.Signal
	for i := 0; i < 4; i++ {
		candidates = append(candidates, newCandidate(fmt.Sprintf("s%d", i), 20*time.Minute, domain.PriorityLow, 0))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repo := &fakeRepo{
		signals:  candidates,
		saveHook: func(*domain.Signal) { cancel() },
	}
	engine := newTestEngine(repo, nil, &fakeNotifier{})

	result, err := engine.RunPass(ctx)
	require.NoError(t, err)

	// The first save cancels the context; the pass stops before signal two.
	assert.Equal(t, 1, result.EscalatedCount)
	assert.Equal(t, 1, repo.saves)

	// The cancellation log reports the unprocessed tail, not the full
	// candidate count.
	assert.Contains(t, buf.String(), `"processed":1`)
	assert.Contains(t, buf.String(), `"remaining":3`)
}

func TestRunPass_QueryFailure(t *testing.T) {
	repo := &fakeRepo{findErr: errors.New("db down")}
	engine := newTestEngine(repo, nil, &fakeNotifier{})

	_, err := engine.RunPass(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "find escalation candidates")
}

func TestRunPass_Idempotent(t *testing.T) {
	signal := newCandidate("s1", 16*time.Minute, domain.PriorityLow, 0)
	repo := &fakeRepo{signals: []*domain.Signal{signal}}
	engine := newTestEngine(repo, nil, &fakeNotifier{})

	first, err := engine.RunPass(context.Background())
	require.NoError(t, err)
	second, err := engine.RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, first.EscalatedCount)
	assert.Zero(t, second.EscalatedCount)
	assert.Len(t, signal.Notes, 1)
}
