package models

import "time"

// AttendanceAction distinguishes log entries.
type AttendanceAction string

const (
	AttendanceMarkedPresent AttendanceAction = "marked_present"
	AttendanceMarkedAbsent  AttendanceAction = "marked_absent"
)

// Valid returns true when the action is a supported value.
func (a AttendanceAction) Valid() bool {
	return a == AttendanceMarkedPresent || a == AttendanceMarkedAbsent
}

// AttendanceLogEntry is an append-only record of one attendance decision.
type AttendanceLogEntry struct {
	ID        string           `db:"id" json:"id"`
	BookingID string           `db:"booking_id" json:"booking_id"`
	StudentID string           `db:"student_id" json:"student_id"`
	Action    AttendanceAction `db:"action" json:"action"`
	Source    string           `db:"source" json:"source"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

// StudentStats aggregates a student's attendance. Recomputed in full after
// each attendance event rather than patched incrementally.
type StudentStats struct {
	StudentID       string    `db:"student_id" json:"student_id"`
	TotalClasses    int       `db:"total_classes" json:"total_classes"`
	AttendedClasses int       `db:"attended_classes" json:"attended_classes"`
	AttendanceRate  float64   `db:"attendance_rate" json:"attendance_rate"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}
