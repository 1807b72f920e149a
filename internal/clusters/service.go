package clusters

import (
	"context"
	"fmt"

	"github.com/reliefgrid/sos-engine/internal/domain"
	"github.com/reliefgrid/sos-engine/internal/signals"
)

// Service computes clusters over the currently active signals.
type Service struct {
	repo            signals.Repository
	defaultRadiusKM float64
}

// NewService creates a new cluster service.
func NewService(repo signals.Repository, defaultRadiusKM float64) *Service {
	if defaultRadiusKM <= 0 {
		defaultRadiusKM = DefaultRadiusKM
	}
	return &Service{repo: repo, defaultRadiusKM: defaultRadiusKM}
}

// ComputeClusters fetches all active signals and groups them spatially.
// A non-positive radius falls back to the configured default.
func (s *Service) ComputeClusters(ctx context.Context, radiusKM float64) ([]domain.Cluster, error) {
	if radiusKM <= 0 {
		radiusKM = s.defaultRadiusKM
	}

	active, err := s.repo.FindActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("find active signals: %w", err)
	}

	return Detect(active, radiusKM), nil
}
