//go:build integration

package integration

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/reliefgrid/sos-engine/internal/domain"
	"github.com/reliefgrid/sos-engine/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type passResponse struct {
	Data struct {
		EscalatedCount int `json:"escalated_count"`
	} `json:"data"`
}

func runPass(t *testing.T, client *testutil.Client) int {
	t.Helper()
	resp, err := client.POST("/api/v1/escalations/run", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result passResponse
	testutil.DecodeJSON(t, resp, &result)
	return result.Data.EscalatedCount
}

func TestEscalationPassFirstThreshold(t *testing.T) {
	clearData(t)
	client := newTestClient(t)

	id := seedSignal(t, 6.9271, 79.8612, 16*time.Minute, withPriority(domain.PriorityLow))

	assert.Equal(t, 1, runPass(t, client))

	signal := getSignal(t, id)
	assert.Equal(t, domain.EscalationRaised, signal.EscalationLevel)
	assert.Equal(t, domain.PriorityHigh, signal.Priority)
	assert.Equal(t, domain.StatusPending, signal.Status)
	require.NotNil(t, signal.AutoEscalatedAt)

	require.Len(t, signal.Notes, 1)
	assert.Equal(t, domain.SystemAuthorID, signal.Notes[0].AuthorID)
	assert.True(t, strings.HasPrefix(signal.Notes[0].Text, "First escalation"), "note %q", signal.Notes[0].Text)
}

func TestEscalationPassCriticalThreshold(t *testing.T) {
	clearData(t)
	client := newTestClient(t)

	id := seedSignal(t, 6.9271, 79.8612, 46*time.Minute, withPriority(domain.PriorityMedium))

	assert.Equal(t, 1, runPass(t, client))

	signal := getSignal(t, id)
	assert.Equal(t, domain.EscalationCritical, signal.EscalationLevel)
	assert.Equal(t, domain.PriorityCritical, signal.Priority)

	// One transition per pass, one audit note
	require.Len(t, signal.Notes, 1)
	assert.True(t, strings.HasPrefix(signal.Notes[0].Text, "Critical escalation"), "note %q", signal.Notes[0].Text)
}

func TestEscalationPassIdempotent(t *testing.T) {
	clearData(t)
	client := newTestClient(t)

	id := seedSignal(t, 6.9271, 79.8612, 50*time.Minute)

	assert.Equal(t, 1, runPass(t, client))
	assert.Equal(t, 0, runPass(t, client), "second pass must not re-escalate")

	signal := getSignal(t, id)
	assert.Equal(t, domain.EscalationCritical, signal.EscalationLevel)
	assert.Len(t, signal.Notes, 1)
}

func TestEscalationPassBelowThreshold(t *testing.T) {
	clearData(t)
	client := newTestClient(t)

	id := seedSignal(t, 6.9271, 79.8612, 14*time.Minute)

	assert.Equal(t, 0, runPass(t, client))

	signal := getSignal(t, id)
	assert.Equal(t, domain.EscalationNone, signal.EscalationLevel)
	assert.Equal(t, domain.PriorityMedium, signal.Priority)
	assert.Empty(t, signal.Notes)
	assert.Nil(t, signal.AutoEscalatedAt)
}

func TestEscalationPassAcknowledgedStillEscalates(t *testing.T) {
	clearData(t)
	client := newTestClient(t)

	id := seedSignal(t, 6.9271, 79.8612, 20*time.Minute, withStatus(domain.StatusAcknowledged))

	assert.Equal(t, 1, runPass(t, client))
	assert.Equal(t, domain.EscalationRaised, getSignal(t, id).EscalationLevel)
}

func TestEscalationPassSkipsTerminalStatuses(t *testing.T) {
	clearData(t)
	client := newTestClient(t)

	resolved := seedSignal(t, 6.9271, 79.8612, time.Hour, withStatus(domain.StatusResolved))
	falseAlarm := seedSignal(t, 6.9280, 79.8620, time.Hour, withStatus(domain.StatusFalseAlarm))

	assert.Equal(t, 0, runPass(t, client))
	assert.Equal(t, domain.EscalationNone, getSignal(t, resolved).EscalationLevel)
	assert.Equal(t, domain.EscalationNone, getSignal(t, falseAlarm).EscalationLevel)
}

func TestEscalationStats(t *testing.T) {
	clearData(t)
	client := newTestClient(t)

	now := time.Now()

	// Two level-1 escalations 15 and 25 minutes after creation, one level-2
	seedSignal(t, 6.9, 79.8, 30*time.Minute, withEscalation(1, now.Add(-15*time.Minute)))
	seedSignal(t, 6.9, 79.8, 40*time.Minute, withEscalation(1, now.Add(-15*time.Minute)))
	seedSignal(t, 6.9, 79.8, 60*time.Minute, withEscalation(2, now.Add(-15*time.Minute)))

	resp, err := client.GET("/api/v1/escalations/stats?range=24h")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data map[string]struct {
			Count      int     `json:"count"`
			AvgMinutes float64 `json:"avg_minutes"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)

	require.Contains(t, result.Data, "1")
	require.Contains(t, result.Data, "2")
	assert.Equal(t, 2, result.Data["1"].Count)
	assert.InDelta(t, 20, result.Data["1"].AvgMinutes, 1)
	assert.Equal(t, 1, result.Data["2"].Count)
	assert.InDelta(t, 45, result.Data["2"].AvgMinutes, 1)
}

func TestEscalationStatsEmpty(t *testing.T) {
	clearData(t)
	client := newTestClient(t)

	resp, err := client.GET("/api/v1/escalations/stats")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data map[string]struct {
			Count      int     `json:"count"`
			AvgMinutes float64 `json:"avg_minutes"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)

	// Levels 1 and 2 are always present, zero-valued
	require.Contains(t, result.Data, "1")
	require.Contains(t, result.Data, "2")
	assert.Zero(t, result.Data["1"].Count)
	assert.Zero(t, result.Data["2"].Count)
}

func TestEscalationStatsInvalidRange(t *testing.T) {
	clearData(t)
	client := newTestClientWithoutValidation()

	resp, err := client.GET("/api/v1/escalations/stats?range=3days")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
