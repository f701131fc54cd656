package models

import "time"

// AvailabilityWindow is a recurring weekly time range during which a teacher
// is willing to teach. StartMinute/EndMinute are minutes since midnight on
// the window's weekday; windows never cross midnight.
type AvailabilityWindow struct {
	ID          string    `db:"id" json:"id"`
	TeacherID   string    `db:"teacher_id" json:"teacher_id"`
	DayOfWeek   int       `db:"day_of_week" json:"day_of_week"`
	StartMinute int       `db:"start_minute" json:"start_minute"`
	EndMinute   int       `db:"end_minute" json:"end_minute"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// OnDate projects the recurring window onto a concrete date in the date's
// location. The caller is responsible for matching DayOfWeek first.
func (w AvailabilityWindow) OnDate(date time.Time) Interval {
	midnight := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return Interval{
		Start: midnight.Add(time.Duration(w.StartMinute) * time.Minute),
		End:   midnight.Add(time.Duration(w.EndMinute) * time.Minute),
	}
}
