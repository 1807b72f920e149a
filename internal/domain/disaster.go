package domain

import "time"

type DisasterType string

const (
	DisasterFlood     DisasterType = "flood"
	DisasterLandslide DisasterType = "landslide"
	DisasterCyclone   DisasterType = "cyclone"
)

type DisasterSeverity string

const (
	DisasterSeverityMedium DisasterSeverity = "medium"
	DisasterSeverityHigh   DisasterSeverity = "high"
)

type DisasterStatus string

const (
	DisasterStatusActive DisasterStatus = "active"
)

// Disaster is a record synthesized from a cluster of correlated SOS
// signals. The engine only ever creates disasters, never updates them.
type Disaster struct {
	ID          string
	Type        DisasterType
	Severity    DisasterSeverity
	Description string
	Location    Location
	Status      DisasterStatus
	CreatedAt   time.Time
}
