// Package clusters computes ephemeral spatial clusters of active SOS
// signals for dashboard views.
package clusters

import (
	"sort"

	"github.com/google/uuid"
	"github.com/reliefgrid/sos-engine/internal/domain"
	"github.com/reliefgrid/sos-engine/internal/geo"
)

// DefaultRadiusKM is the clustering radius used when callers pass none.
const DefaultRadiusKM = 2.0

// Detect partitions signals into spatial clusters using single-pass greedy
// grouping in input order. Membership is decided against each cluster's
// seed signal, not transitively: two signals both within radius of the
// seed land in the same cluster even when they are further than radius
// from each other. That chaining behavior is part of the observable
// contract and must not be replaced with connected-components clustering.
//
// Output is ordered by priority descending, ties broken by member count
// descending. Deterministic for a fixed input order and radius.
func Detect(sigs []*domain.Signal, radiusKM float64) []domain.Cluster {
	if radiusKM <= 0 {
		radiusKM = DefaultRadiusKM
	}

	processed := make(map[string]bool, len(sigs))
	var result []domain.Cluster

	for _, seed := range sigs {
		if processed[seed.ID] {
			continue
		}

		cluster := domain.Cluster{
			ID:        uuid.New().String(),
			Center:    seed.Location,
			SignalIDs: []string{seed.ID},
			Priority:  seed.Priority,
			RadiusKM:  radiusKM,
		}
		members := []*domain.Signal{seed}

		for _, other := range sigs {
			if other.ID == seed.ID || processed[other.ID] {
				continue
			}
			dist := geo.DistanceKM(
				seed.Location.Lat, seed.Location.Lng,
				other.Location.Lat, other.Location.Lng,
			)
			if dist <= radiusKM {
				cluster.SignalIDs = append(cluster.SignalIDs, other.ID)
				members = append(members, other)
				processed[other.ID] = true
				if other.Priority.Rank() > cluster.Priority.Rank() {
					cluster.Priority = other.Priority
				}
			}
		}
		processed[seed.ID] = true

		if len(members) > 1 {
			cluster.Center = centroid(members)
		}

		result = append(result, cluster)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Priority.Rank() != result[j].Priority.Rank() {
			return result[i].Priority.Rank() > result[j].Priority.Rank()
		}
		return result[i].Size() > result[j].Size()
	})

	return result
}

// centroid returns the arithmetic mean of the member locations.
func centroid(members []*domain.Signal) domain.Location {
	var lat, lng float64
	for _, m := range members {
		lat += m.Location.Lat
		lng += m.Location.Lng
	}
	n := float64(len(members))
	return domain.Location{Lat: lat / n, Lng: lng / n}
}
