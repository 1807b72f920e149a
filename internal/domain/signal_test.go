package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalPriorityRank(t *testing.T) {
	assert.Less(t, PriorityLow.Rank(), PriorityMedium.Rank())
	assert.Less(t, PriorityMedium.Rank(), PriorityHigh.Rank())
	assert.Less(t, PriorityHigh.Rank(), PriorityCritical.Rank())
	assert.Equal(t, -1, SignalPriority("urgent").Rank())
}

func TestSignalStatusClassification(t *testing.T) {
	for _, s := range []SignalStatus{StatusPending, StatusAcknowledged, StatusResponding} {
		assert.True(t, s.IsActive(), "%s", s)
		assert.False(t, s.IsTerminal(), "%s", s)
	}
	for _, s := range []SignalStatus{StatusResolved, StatusFalseAlarm} {
		assert.False(t, s.IsActive(), "%s", s)
		assert.True(t, s.IsTerminal(), "%s", s)
	}
}

func TestSignalRaisePriority(t *testing.T) {
	s := &Signal{Priority: PriorityMedium}

	s.RaisePriority(PriorityHigh)
	assert.Equal(t, PriorityHigh, s.Priority)

	// Never lowered
	s.RaisePriority(PriorityLow)
	assert.Equal(t, PriorityHigh, s.Priority)

	s.RaisePriority(PriorityCritical)
	assert.Equal(t, PriorityCritical, s.Priority)
}

func TestSignalAppendNoteTracksPending(t *testing.T) {
	s := &Signal{}
	note := Note{AuthorID: SystemAuthorID, Text: "escalated", Timestamp: time.Now()}

	s.AppendNote(note)
	assert.Equal(t, []Note{note}, s.Notes)
	assert.Equal(t, []Note{note}, s.PendingNotes())

	s.ClearPendingNotes()
	assert.Empty(t, s.PendingNotes())
	// The full trail is untouched
	require.Len(t, s.Notes, 1)
}

func TestSignalValidate(t *testing.T) {
	valid := &Signal{Location: Location{Lat: 6.9271, Lng: 79.8612}}
	assert.NoError(t, valid.Validate())

	// A zero coordinate pair is odd but geographically valid
	zero := &Signal{}
	assert.NoError(t, zero.Validate())

	badLat := &Signal{Location: Location{Lat: 91, Lng: 0}}
	assert.Error(t, badLat.Validate())

	badLng := &Signal{Location: Location{Lat: 0, Lng: 181}}
	assert.Error(t, badLng.Validate())
}
