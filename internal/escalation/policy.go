// Package escalation implements the time-threshold escalation engine for
// SOS signals, its recurring scheduler, and escalation statistics.
package escalation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/reliefgrid/sos-engine/internal/domain"
	"github.com/reliefgrid/sos-engine/internal/notify"
	"github.com/reliefgrid/sos-engine/internal/signals"
)

// Thresholds holds the escalation time thresholds, measured from a
// signal's creation time. Immutable once injected into an Engine.
type Thresholds struct {
	First    time.Duration
	Second   time.Duration
	Critical time.Duration
}

// DefaultThresholds returns the production thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		First:    15 * time.Minute,
		Second:   30 * time.Minute,
		Critical: 45 * time.Minute,
	}
}

// DisasterSynthesizer correlates a critically-escalated signal with its
// spatial neighbors and synthesizes a disaster record when warranted.
type DisasterSynthesizer interface {
	SynthesizeFromSignal(ctx context.Context, trigger *domain.Signal) (*domain.Disaster, error)
}

// PassResult is the aggregate outcome of one escalation pass.
type PassResult struct {
	EscalatedCount int `json:"escalated_count"`
}

// EngineConfig contains engine configuration.
type EngineConfig struct {
	Thresholds   Thresholds
	QueryTimeout time.Duration
}

// Engine evaluates candidate signals against the thresholds and persists
// escalations. It is safe to run repeatedly: escalation is idempotent per
// signal because the candidate query excludes signals already at the
// maximum level and evaluation never re-applies a reached level.
type Engine struct {
	config   EngineConfig
	repo     signals.Repository
	synth    DisasterSynthesizer
	notifier notify.Notifier
	now      func() time.Time
}

// NewEngine creates a new escalation engine. synth may be nil to disable
// disaster synthesis.
func NewEngine(config EngineConfig, repo signals.Repository, synth DisasterSynthesizer, notifier notify.Notifier) *Engine {
	if config.Thresholds == (Thresholds{}) {
		config.Thresholds = DefaultThresholds()
	}
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = 10 * time.Second
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Engine{
		config:   config,
		repo:     repo,
		synth:    synth,
		notifier: notifier,
		now:      time.Now,
	}
}

// escalationStep is the transition evaluate decided on for one signal.
type escalationStep struct {
	level    int
	priority domain.SignalPriority
	note     string
}

// RunPass executes one escalation pass over all candidates. Per-signal
// failures are logged and counted but never abort the pass; only a failure
// to query candidates at all surfaces as an error.
func (e *Engine) RunPass(ctx context.Context) (PassResult, error) {
	now := e.now()
	start := time.Now()

	queryCtx, cancel := context.WithTimeout(ctx, e.config.QueryTimeout)
	defer cancel()

	candidates, err := e.repo.FindEscalationCandidates(queryCtx, now.Add(-e.config.Thresholds.First))
	if err != nil {
		return PassResult{}, fmt.Errorf("find escalation candidates: %w", err)
	}

	recordPassCandidates(len(candidates))

	var result PassResult
	for i, signal := range candidates {
		if ctx.Err() != nil {
			slog.Info("escalation pass cancelled",
				"processed", result.EscalatedCount,
				"remaining", len(candidates)-i,
			)
			break
		}

		if err := signal.Validate(); err != nil {
			slog.Warn("skipping malformed signal", "signal_id", signal.ID, "error", err)
			recordSignalSkipped("invalid")
			continue
		}

		step, ok := e.evaluate(signal, now)
		if !ok {
			continue
		}

		previousLevel := signal.EscalationLevel
		e.apply(signal, step, now)

		if err := e.repo.Save(ctx, signal); err != nil {
			slog.Error("failed to persist escalation",
				"signal_id", signal.ID,
				"level", step.level,
				"error", err,
			)
			recordSignalSkipped("save_failed")
			continue
		}

		recordEscalation(step.level)
		result.EscalatedCount++

		slog.Info("signal escalated",
			"signal_id", signal.ID,
			"previous_level", previousLevel,
			"level", signal.EscalationLevel,
			"priority", signal.Priority,
			"elapsed_minutes", int(now.Sub(signal.CreatedAt).Minutes()),
		)

		// Best-effort announcement; delivery failures are the notifier's
		// problem and never roll back the persisted escalation.
		e.notifier.NotifyEscalation(ctx, signal, previousLevel, signal.EscalationLevel, domain.SystemAuthorID)

		if signal.EscalationLevel == domain.EscalationCritical && e.synth != nil {
			if _, err := e.synth.SynthesizeFromSignal(ctx, signal); err != nil {
				slog.Error("disaster synthesis failed",
					"signal_id", signal.ID,
					"error", err,
				)
			}
		}
	}

	recordPassDuration(time.Since(start))

	slog.Info("escalation pass complete",
		"candidates", len(candidates),
		"escalated", result.EscalatedCount,
	)
	return result, nil
}

// evaluate decides the highest escalation step the signal qualifies for,
// checking thresholds in descending order. Returns false when no threshold
// above the signal's current level has been crossed.
func (e *Engine) evaluate(signal *domain.Signal, now time.Time) (escalationStep, bool) {
	t := e.config.Thresholds
	elapsed := now.Sub(signal.CreatedAt)

	switch {
	case elapsed >= t.Critical && signal.EscalationLevel < domain.EscalationCritical:
		return escalationStep{
			level:    domain.EscalationCritical,
			priority: domain.PriorityCritical,
			note:     fmt.Sprintf("Critical escalation: no resolution after %d minutes", int(t.Critical.Minutes())),
		}, true

	// Reached only when a delayed scheduler skipped the first window;
	// under a healthy tick interval the first-threshold branch fires
	// before a signal ages past the second threshold.
	case elapsed >= t.Second && signal.EscalationLevel < domain.EscalationRaised:
		return escalationStep{
			level:    domain.EscalationRaised,
			priority: raisedPriority(signal.Priority),
			note:     fmt.Sprintf("Second escalation: no response after %d minutes", int(t.Second.Minutes())),
		}, true

	case elapsed >= t.First && signal.EscalationLevel < domain.EscalationRaised:
		return escalationStep{
			level:    domain.EscalationRaised,
			priority: raisedPriority(signal.Priority),
			note:     fmt.Sprintf("First escalation: no acknowledgment after %d minutes", int(t.First.Minutes())),
		}, true
	}

	return escalationStep{}, false
}

// raisedPriority returns the priority a level-1 escalation implies: low
// and medium are raised to high, anything higher is left as is.
func raisedPriority(current domain.SignalPriority) domain.SignalPriority {
	if current == domain.PriorityLow || current == domain.PriorityMedium {
		return domain.PriorityHigh
	}
	return current
}

// apply mutates the signal for the decided step and appends the audit note.
func (e *Engine) apply(signal *domain.Signal, step escalationStep, now time.Time) {
	signal.EscalationLevel = step.level
	signal.RaisePriority(step.priority)
	escalatedAt := now
	signal.AutoEscalatedAt = &escalatedAt
	signal.AppendNote(domain.Note{
		AuthorID:  domain.SystemAuthorID,
		Text:      step.note,
		Timestamp: now,
	})
}
