package models

import "time"

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingStatusScheduled BookingStatus = "SCHEDULED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
	BookingStatusNoShow    BookingStatus = "NO_SHOW"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

// Valid returns true when the status is a supported value.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusScheduled, BookingStatusCompleted, BookingStatusNoShow, BookingStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions are accepted from s.
func (s BookingStatus) Terminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusNoShow || s == BookingStatusCancelled
}

// Booking is a reserved lesson. Rows are never deleted; cancellation is a
// status change.
type Booking struct {
	ID                  string        `db:"id" json:"id"`
	StudentID           string        `db:"student_id" json:"student_id"`
	TeacherID           string        `db:"teacher_id" json:"teacher_id"`
	TopicID             string        `db:"topic_id" json:"topic_id"`
	ScheduledAt         time.Time     `db:"scheduled_at" json:"scheduled_at"`
	DurationMinutes     int           `db:"duration_minutes" json:"duration_minutes"`
	Status              BookingStatus `db:"status" json:"status"`
	PackageID           *string       `db:"package_id" json:"package_id,omitempty"`
	ExternalEventRef    *string       `db:"external_event_ref" json:"external_event_ref,omitempty"`
	ExternalMeetingLink *string       `db:"external_meeting_link" json:"external_meeting_link,omitempty"`
	CancelledAt         *time.Time    `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancelledBy         *string       `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancelReason        *string       `db:"cancel_reason" json:"cancel_reason,omitempty"`
	AttendedAt          *time.Time    `db:"attended_at" json:"attended_at,omitempty"`
	CreatedAt           time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time     `db:"updated_at" json:"updated_at"`
}

// Interval returns the booking's occupied half-open time range.
func (b Booking) Interval() Interval {
	return Interval{
		Start: b.ScheduledAt,
		End:   b.ScheduledAt.Add(time.Duration(b.DurationMinutes) * time.Minute),
	}
}

// BookingFilter scopes booking list queries.
type BookingFilter struct {
	TeacherID string
	StudentID string
	Status    *BookingStatus
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
