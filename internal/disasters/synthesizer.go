package disasters

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/reliefgrid/sos-engine/internal/domain"
	"github.com/reliefgrid/sos-engine/internal/geo"
	"github.com/reliefgrid/sos-engine/internal/signals"
	"golang.org/x/text/cases"
)

// SynthesizerConfig contains synthesis parameters.
type SynthesizerConfig struct {
	// RadiusKM is the corroboration radius around the trigger signal.
	RadiusKM float64
	// Lookback bounds how old a corroborating signal may be.
	Lookback time.Duration
	// MinNearby is the minimum count of corroborating signals, excluding
	// the trigger, required to synthesize a disaster.
	MinNearby int
	// HighSeverityTotal is the total contributing signal count (trigger
	// included) at which severity becomes high instead of medium.
	HighSeverityTotal int
}

// DefaultSynthesizerConfig returns the production synthesis parameters.
func DefaultSynthesizerConfig() SynthesizerConfig {
	return SynthesizerConfig{
		RadiusKM:          2,
		Lookback:          2 * time.Hour,
		MinNearby:         2,
		HighSeverityTotal: 5,
	}
}

// Synthesizer turns a critically-escalated signal plus its corroborating
// neighbors into a disaster record. It performs no deduplication against
// existing open disasters: every qualifying critical escalation in an area
// produces its own record within the lookback window.
type Synthesizer struct {
	config    SynthesizerConfig
	signals   signals.Repository
	disasters Repository
	now       func() time.Time
}

// NewSynthesizer creates a new synthesizer.
func NewSynthesizer(config SynthesizerConfig, signalRepo signals.Repository, disasterRepo Repository) *Synthesizer {
	if config.RadiusKM <= 0 {
		config.RadiusKM = 2
	}
	if config.Lookback <= 0 {
		config.Lookback = 2 * time.Hour
	}
	if config.MinNearby <= 0 {
		config.MinNearby = 2
	}
	if config.HighSeverityTotal <= 0 {
		config.HighSeverityTotal = 5
	}
	return &Synthesizer{
		config:    config,
		signals:   signalRepo,
		disasters: disasterRepo,
		now:       time.Now,
	}
}

// SynthesizeFromSignal evaluates the area around the trigger and creates a
// disaster when enough corroborating signals exist. Returns (nil, nil)
// when the threshold is not met. Note linkage failures after the insert
// are logged, not returned: the disaster record already exists.
func (s *Synthesizer) SynthesizeFromSignal(ctx context.Context, trigger *domain.Signal) (*domain.Disaster, error) {
	now := s.now()

	candidates, err := s.signals.FindActiveNear(ctx, trigger.Location, s.config.RadiusKM, now.Add(-s.config.Lookback))
	if err != nil {
		return nil, fmt.Errorf("find nearby signals: %w", err)
	}

	// The bounding-box query over-fetches; keep only signals truly within
	// the radius, and never count the trigger twice.
	nearby := make([]*domain.Signal, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.ID == trigger.ID {
			continue
		}
		dist := geo.DistanceKM(
			trigger.Location.Lat, trigger.Location.Lng,
			candidate.Location.Lat, candidate.Location.Lng,
		)
		if dist <= s.config.RadiusKM {
			nearby = append(nearby, candidate)
		}
	}

	if len(nearby) < s.config.MinNearby {
		slog.Debug("not enough corroborating signals for disaster synthesis",
			"trigger_id", trigger.ID,
			"nearby", len(nearby),
			"required", s.config.MinNearby,
		)
		return nil, nil
	}

	total := len(nearby) + 1
	severity := domain.DisasterSeverityMedium
	if total >= s.config.HighSeverityTotal {
		severity = domain.DisasterSeverityHigh
	}

	disaster := &domain.Disaster{
		Type:     inferType(trigger, nearby),
		Severity: severity,
		Description: fmt.Sprintf(
			"Auto-created from %d correlated SOS signals. Trigger signal: %s",
			total, trigger.Message,
		),
		Location: trigger.Location,
		Status:   domain.DisasterStatusActive,
	}

	if err := s.disasters.Insert(ctx, disaster); err != nil {
		return nil, fmt.Errorf("insert disaster: %w", err)
	}

	recordDisasterSynthesized(string(disaster.Type), string(disaster.Severity))

	slog.Info("disaster synthesized",
		"disaster_id", disaster.ID,
		"type", disaster.Type,
		"severity", disaster.Severity,
		"contributing_signals", total,
		"trigger_id", trigger.ID,
	)

	s.linkContributors(ctx, disaster, trigger, nearby, now)

	return disaster, nil
}

// linkContributors appends an audit note to every contributing signal
// referencing the new disaster. Status and escalation level are left
// untouched.
func (s *Synthesizer) linkContributors(ctx context.Context, disaster *domain.Disaster, trigger *domain.Signal, nearby []*domain.Signal, now time.Time) {
	note := domain.Note{
		AuthorID:  domain.SystemAuthorID,
		Text:      fmt.Sprintf("Linked to auto-created disaster %s (%s)", disaster.ID, disaster.Type),
		Timestamp: now,
	}

	contributors := append([]*domain.Signal{trigger}, nearby...)
	for _, contributor := range contributors {
		if err := s.signals.AppendNote(ctx, contributor.ID, note); err != nil {
			slog.Error("failed to link signal to disaster",
				"signal_id", contributor.ID,
				"disaster_id", disaster.ID,
				"error", err,
			)
		}
	}
}

var foldCaser = cases.Fold()

// inferType keyword-matches the combined free-text messages of the trigger
// and its neighbors, in fixed priority order. Unmatched text defaults to
// flood.
func inferType(trigger *domain.Signal, nearby []*domain.Signal) domain.DisasterType {
	var b strings.Builder
	b.WriteString(trigger.Message)
	for _, signal := range nearby {
		b.WriteString(" ")
		b.WriteString(signal.Message)
	}
	text := foldCaser.String(b.String())

	switch {
	case containsAny(text, "flood", "water", "rain"):
		return domain.DisasterFlood
	case containsAny(text, "landslide", "slide", "mud"):
		return domain.DisasterLandslide
	case containsAny(text, "cyclone", "storm", "wind"):
		return domain.DisasterCyclone
	default:
		return domain.DisasterFlood
	}
}

func containsAny(text string, keywords ...string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}
