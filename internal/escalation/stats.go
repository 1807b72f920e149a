package escalation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/reliefgrid/sos-engine/internal/domain"
	"github.com/reliefgrid/sos-engine/internal/signals"
)

// ErrUnknownRange is returned for a range preset outside the supported set.
var ErrUnknownRange = errors.New("unsupported time range")

// TimeRange is a supported stats window preset.
type TimeRange string

const (
	Range1h  TimeRange = "1h"
	Range6h  TimeRange = "6h"
	Range24h TimeRange = "24h"
	Range7d  TimeRange = "7d"
	RangeAll TimeRange = "all"
)

var rangeDurations = map[TimeRange]time.Duration{
	Range1h:  time.Hour,
	Range6h:  6 * time.Hour,
	Range24h: 24 * time.Hour,
	Range7d:  7 * 24 * time.Hour,
}

// ParseTimeRange validates a raw range string. Empty defaults to 24h.
func ParseTimeRange(raw string) (TimeRange, error) {
	if raw == "" {
		return Range24h, nil
	}
	tr := TimeRange(raw)
	if tr != RangeAll {
		if _, ok := rangeDurations[tr]; !ok {
			return "", fmt.Errorf("%w %q", ErrUnknownRange, raw)
		}
	}
	return tr, nil
}

// LevelStats aggregates escalations for one level.
type LevelStats struct {
	Count      int     `json:"count"`
	AvgMinutes float64 `json:"avg_minutes"`
}

// StatsReporter aggregates escalation counts and timing per level.
type StatsReporter struct {
	repo signals.Repository
	now  func() time.Time
}

// NewStatsReporter creates a new stats reporter.
func NewStatsReporter(repo signals.Repository) *StatsReporter {
	return &StatsReporter{repo: repo, now: time.Now}
}

// Stats returns per-level escalation counts and the mean minutes between
// signal creation and auto-escalation inside the window. Levels 1 and 2
// are always present so consumers get a stable shape; empty groups report
// zero, not an error.
func (s *StatsReporter) Stats(ctx context.Context, timeRange TimeRange) (map[int]LevelStats, error) {
	var since time.Time
	if d, ok := rangeDurations[timeRange]; ok {
		since = s.now().Add(-d)
	} else if timeRange != RangeAll {
		return nil, fmt.Errorf("%w %q", ErrUnknownRange, timeRange)
	}

	escalated, err := s.repo.FindEscalatedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("find escalated signals: %w", err)
	}

	counts := make(map[int]int)
	totals := make(map[int]float64)
	for _, signal := range escalated {
		if signal.AutoEscalatedAt == nil {
			continue
		}
		counts[signal.EscalationLevel]++
		totals[signal.EscalationLevel] += signal.AutoEscalatedAt.Sub(signal.CreatedAt).Minutes()
	}

	result := map[int]LevelStats{
		domain.EscalationRaised:   {},
		domain.EscalationCritical: {},
	}
	for level, count := range counts {
		stats := LevelStats{Count: count}
		if count > 0 {
			stats.AvgMinutes = totals[level] / float64(count)
		}
		result[level] = stats
	}
	return result, nil
}
