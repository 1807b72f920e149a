// Package disasters synthesizes disaster records from correlated SOS
// signal activity.
package disasters

import (
	"context"

	"github.com/reliefgrid/sos-engine/internal/domain"
)

// Repository defines the interface for disaster storage. The engine only
// inserts; disaster lifecycle management lives elsewhere.
type Repository interface {
	Insert(ctx context.Context, disaster *domain.Disaster) error
}
