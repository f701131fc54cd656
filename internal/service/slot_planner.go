package service

import (
	"time"

	"github.com/lessonloop/lessonloop-api/internal/models"
)

// SlotPlanner computes offerable slots from availability windows and busy
// intervals. It is a pure calculator: no I/O, deterministic for its inputs.
type SlotPlanner struct {
	// Granularity is the fixed step between candidate slot starts. It is
	// deliberately independent of the requested duration: only the end
	// boundary is duration-sensitive. Coarse durations can therefore
	// produce sparse offers near window ends; that behaviour is part of
	// the offered-slot contract and kept stable.
	Granularity time.Duration
}

// NewSlotPlanner returns a planner with the given walk granularity,
// defaulting to 30 minutes.
func NewSlotPlanner(granularity time.Duration) *SlotPlanner {
	if granularity <= 0 {
		granularity = 30 * time.Minute
	}
	return &SlotPlanner{Granularity: granularity}
}

// Plan walks each availability window projected onto date and returns every
// candidate [t, t+duration) that fits the window and intersects no busy
// block. Windows are handled independently and in the given order, so
// overlapping windows may yield duplicate slots; results are ordered by
// start within each window. The cursor always advances by the granularity,
// even past rejected candidates.
func (p *SlotPlanner) Plan(windows []models.AvailabilityWindow, busy []models.Interval, date time.Time, duration time.Duration, now time.Time, buffer time.Duration) []models.Slot {
	if len(windows) == 0 || duration <= 0 {
		return nil
	}

	blocks := models.MergeIntervals(busy)
	earliest := now.Add(buffer)

	var slots []models.Slot
	for _, window := range windows {
		iv := window.OnDate(date)

		// Clip to max(windowStart, now+buffer); past windows yield nothing.
		start := iv.Start
		if start.Before(earliest) {
			start = earliest
		}
		if !start.Before(iv.End) {
			continue
		}

		for t := start; ; t = t.Add(p.Granularity) {
			end := t.Add(duration)
			if end.After(iv.End) {
				break
			}
			candidate := models.Interval{Start: t, End: end}
			if !intersectsAny(candidate, blocks) {
				slots = append(slots, models.Slot{Start: t, End: end})
			}
		}
	}
	return slots
}

func intersectsAny(candidate models.Interval, blocks []models.Interval) bool {
	for _, block := range blocks {
		if block.Start.Compare(candidate.End) >= 0 {
			break
		}
		if candidate.Overlaps(block) {
			return true
		}
	}
	return false
}
