package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lessonloop/lessonloop-api/internal/models"
)

func ts(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return parsed
}

func slotStarts(slots []models.Slot) []string {
	starts := make([]string, 0, len(slots))
	for _, s := range slots {
		starts = append(starts, s.Start.UTC().Format("15:04"))
	}
	return starts
}

// Monday window 09:00-11:00, one booking 09:30-10:00, 30-minute lessons.
// The 09:30 candidate is blocked; everything else is offered.
func TestSlotPlannerSkipsBusyInterval(t *testing.T) {
	planner := NewSlotPlanner(30 * time.Minute)
	date := ts(t, "2026-09-07T00:00:00Z")

	windows := []models.AvailabilityWindow{{DayOfWeek: 1, StartMinute: 540, EndMinute: 660}}
	busy := []models.Interval{{Start: ts(t, "2026-09-07T09:30:00Z"), End: ts(t, "2026-09-07T10:00:00Z")}}

	slots := planner.Plan(windows, busy, date, 30*time.Minute, ts(t, "2026-09-01T00:00:00Z"), 0)
	assert.Equal(t, []string{"09:00", "10:00", "10:30"}, slotStarts(slots))
}

// A 60-minute lesson over the same inputs: candidates start every 30 minutes
// but need a free hour, and the last start leaving room is 10:00.
func TestSlotPlannerDurationIndependentGranularity(t *testing.T) {
	planner := NewSlotPlanner(30 * time.Minute)
	date := ts(t, "2026-09-07T00:00:00Z")

	windows := []models.AvailabilityWindow{{DayOfWeek: 1, StartMinute: 540, EndMinute: 660}}
	busy := []models.Interval{{Start: ts(t, "2026-09-07T09:30:00Z"), End: ts(t, "2026-09-07T10:00:00Z")}}

	slots := planner.Plan(windows, busy, date, time.Hour, ts(t, "2026-09-01T00:00:00Z"), 0)
	assert.Equal(t, []string{"10:00"}, slotStarts(slots))
}

// The walk start is clipped to now+buffer literally, without re-aligning to
// the granularity grid.
func TestSlotPlannerClipsToBufferWithoutRealigning(t *testing.T) {
	planner := NewSlotPlanner(30 * time.Minute)
	date := ts(t, "2026-09-07T00:00:00Z")

	windows := []models.AvailabilityWindow{{DayOfWeek: 1, StartMinute: 540, EndMinute: 660}}

	now := ts(t, "2026-09-07T09:00:00Z")
	slots := planner.Plan(windows, nil, date, 30*time.Minute, now, 10*time.Minute)
	assert.Equal(t, []string{"09:10", "09:40", "10:10"}, slotStarts(slots))
}

func TestSlotPlannerPastWindowYieldsNothing(t *testing.T) {
	planner := NewSlotPlanner(30 * time.Minute)
	date := ts(t, "2026-09-07T00:00:00Z")

	windows := []models.AvailabilityWindow{{DayOfWeek: 1, StartMinute: 540, EndMinute: 660}}

	slots := planner.Plan(windows, nil, date, 30*time.Minute, ts(t, "2026-09-07T11:00:00Z"), 0)
	assert.Empty(t, slots)
}

// Touching busy intervals merge into one block, so no slot slips into the
// zero-length seam between them.
func TestSlotPlannerMergesTouchingBusyBlocks(t *testing.T) {
	planner := NewSlotPlanner(30 * time.Minute)
	date := ts(t, "2026-09-07T00:00:00Z")

	windows := []models.AvailabilityWindow{{DayOfWeek: 1, StartMinute: 540, EndMinute: 660}}
	busy := []models.Interval{
		{Start: ts(t, "2026-09-07T09:00:00Z"), End: ts(t, "2026-09-07T09:30:00Z")},
		{Start: ts(t, "2026-09-07T09:30:00Z"), End: ts(t, "2026-09-07T10:00:00Z")},
	}

	slots := planner.Plan(windows, busy, date, 30*time.Minute, ts(t, "2026-09-01T00:00:00Z"), 0)
	assert.Equal(t, []string{"10:00", "10:30"}, slotStarts(slots))
}

// Windows are walked independently; overlapping windows may duplicate offers.
func TestSlotPlannerWindowsIndependent(t *testing.T) {
	planner := NewSlotPlanner(30 * time.Minute)
	date := ts(t, "2026-09-07T00:00:00Z")

	windows := []models.AvailabilityWindow{
		{DayOfWeek: 1, StartMinute: 540, EndMinute: 600},
		{DayOfWeek: 1, StartMinute: 570, EndMinute: 630},
	}

	slots := planner.Plan(windows, nil, date, 30*time.Minute, ts(t, "2026-09-01T00:00:00Z"), 0)
	assert.Equal(t, []string{"09:00", "09:30", "09:30", "10:00"}, slotStarts(slots))
}

func TestSlotPlannerNoInputs(t *testing.T) {
	planner := NewSlotPlanner(0)
	assert.Equal(t, 30*time.Minute, planner.Granularity)
	assert.Nil(t, planner.Plan(nil, nil, time.Now(), 30*time.Minute, time.Now(), 0))
}
