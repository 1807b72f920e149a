package domain

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// SystemAuthorID identifies the engine as the author of automated audit notes.
const SystemAuthorID = "system:auto-escalation"

// Escalation levels. A signal crosses them one-directionally; the engine
// never lowers the level once set.
const (
	EscalationNone     = 0
	EscalationRaised   = 1
	EscalationCritical = 2
)

type SignalPriority string

const (
	PriorityLow      SignalPriority = "low"
	PriorityMedium   SignalPriority = "medium"
	PriorityHigh     SignalPriority = "high"
	PriorityCritical SignalPriority = "critical"
)

var priorityRanks = map[SignalPriority]int{
	PriorityLow:      0,
	PriorityMedium:   1,
	PriorityHigh:     2,
	PriorityCritical: 3,
}

// Rank returns the ordinal rank of the priority (low < medium < high < critical).
// Unknown priorities rank below low.
func (p SignalPriority) Rank() int {
	if r, ok := priorityRanks[p]; ok {
		return r
	}
	return -1
}

func (p SignalPriority) IsValid() bool {
	_, ok := priorityRanks[p]
	return ok
}

type SignalStatus string

const (
	StatusPending      SignalStatus = "pending"
	StatusAcknowledged SignalStatus = "acknowledged"
	StatusResponding   SignalStatus = "responding"
	StatusResolved     SignalStatus = "resolved"
	StatusFalseAlarm   SignalStatus = "false_alarm"
)

// IsTerminal reports whether the status excludes the signal from any
// further escalation scans.
func (s SignalStatus) IsTerminal() bool {
	return s == StatusResolved || s == StatusFalseAlarm
}

// IsActive reports whether the signal still represents an open emergency
// (eligible for dashboard clustering and disaster correlation).
func (s SignalStatus) IsActive() bool {
	return s == StatusPending || s == StatusAcknowledged || s == StatusResponding
}

// Location is a WGS84 coordinate pair in decimal degrees.
type Location struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lng float64 `json:"lng" validate:"longitude"`
}

// Note is a single append-only audit trail entry. Every automated state
// change appends exactly one note.
type Note struct {
	AuthorID  string    `json:"author_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Signal is a citizen-submitted SOS record, the mutable unit of work for
// the escalation engine.
type Signal struct {
	ID                string
	Location          Location
	Message           string
	Priority          SignalPriority
	Status            SignalStatus
	EscalationLevel   int
	AssignedResponder *string
	Notes             []Note
	ClusterID         *string
	AutoEscalatedAt   *time.Time
	ResponseTime      *time.Time
	ResolutionTime    *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time

	// Version is the optimistic concurrency token maintained by the store.
	Version int64

	pendingNotes []Note
}

var validate = validator.New()

// Validate checks that the signal carries the fields the engine depends on.
// Malformed records are skipped by the escalation pass, not escalated blindly.
func (s *Signal) Validate() error {
	if err := validate.Struct(s); err != nil {
		return err
	}
	return nil
}

// AppendNote records an audit note on the signal. Appended notes are kept
// separately until persisted so that a save only ever appends, never
// rewrites, the stored trail.
func (s *Signal) AppendNote(n Note) {
	s.Notes = append(s.Notes, n)
	s.pendingNotes = append(s.pendingNotes, n)
}

// PendingNotes returns notes appended since the signal was loaded.
func (s *Signal) PendingNotes() []Note {
	return s.pendingNotes
}

// ClearPendingNotes is called by the repository after a successful save.
func (s *Signal) ClearPendingNotes() {
	s.pendingNotes = nil
}

// RaisePriority raises the signal's priority to p if p ranks higher.
// Priority is never lowered by the engine.
func (s *Signal) RaisePriority(p SignalPriority) {
	if p.Rank() > s.Priority.Rank() {
		s.Priority = p
	}
}
