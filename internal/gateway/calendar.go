package gateway

import (
	"context"
	"time"

	"github.com/lessonloop/lessonloop-api/internal/models"
)

// CalendarEvent is the external calendar's view of a booking.
type CalendarEvent struct {
	EventRef    string `json:"event_ref"`
	MeetingLink string `json:"meeting_link"`
}

// EventDetails carries everything the calendar provider needs to create or
// update a meeting event.
type EventDetails struct {
	BookingID   string    `json:"booking_id"`
	TeacherID   string    `json:"teacher_id"`
	StudentID   string    `json:"student_id"`
	TopicID     string    `json:"topic_id"`
	StartsAt    time.Time `json:"starts_at"`
	DurationMin int       `json:"duration_min"`
}

// CalendarGateway talks to the teacher's external calendar. Every method may
// fail with ErrExternalService; callers decide whether that failure is fatal
// (slot planning) or merely logged (post-commit sync).
type CalendarGateway interface {
	ListBusy(ctx context.Context, teacherRef string, from, to time.Time) ([]models.Interval, error)
	CreateEvent(ctx context.Context, details EventDetails) (*CalendarEvent, error)
	UpdateEvent(ctx context.Context, eventRef string, details EventDetails) error
	CancelEvent(ctx context.Context, eventRef string) error
}

// NopCalendar is a no-op gateway for local development and tests. It reports
// no busy time and fabricates no events.
type NopCalendar struct{}

func (NopCalendar) ListBusy(context.Context, string, time.Time, time.Time) ([]models.Interval, error) {
	return nil, nil
}

func (NopCalendar) CreateEvent(context.Context, EventDetails) (*CalendarEvent, error) {
	return &CalendarEvent{}, nil
}

func (NopCalendar) UpdateEvent(context.Context, string, EventDetails) error { return nil }

func (NopCalendar) CancelEvent(context.Context, string) error { return nil }
