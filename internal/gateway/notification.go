package gateway

import (
	"context"
	"time"
)

// NotificationKind distinguishes outbound notices.
type NotificationKind string

const (
	NotificationBookingConfirmed   NotificationKind = "booking_confirmed"
	NotificationBookingCancelled   NotificationKind = "booking_cancelled"
	NotificationBookingRescheduled NotificationKind = "booking_rescheduled"
)

// BookingSnapshot is the immutable view of a booking sent to notification
// consumers. It carries values, not references, so later booking mutations
// cannot leak into an already-dispatched notice.
type BookingSnapshot struct {
	BookingID   string    `json:"booking_id"`
	StudentID   string    `json:"student_id"`
	TeacherID   string    `json:"teacher_id"`
	TopicID     string    `json:"topic_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	DurationMin int       `json:"duration_min"`
	MeetingLink string    `json:"meeting_link,omitempty"`
}

// NotificationGateway dispatches best-effort notices. Failures are reported
// to the caller for logging and retry but never block a booking flow.
type NotificationGateway interface {
	SendBookingConfirmation(ctx context.Context, snapshot BookingSnapshot) error
	SendBookingCancellation(ctx context.Context, snapshot BookingSnapshot, reason string) error
	SendBookingReschedule(ctx context.Context, previous, current BookingSnapshot) error
}

// NopNotifier drops all notices. Used when notifications are disabled.
type NopNotifier struct{}

func (NopNotifier) SendBookingConfirmation(context.Context, BookingSnapshot) error { return nil }

func (NopNotifier) SendBookingCancellation(context.Context, BookingSnapshot, string) error {
	return nil
}

func (NopNotifier) SendBookingReschedule(context.Context, BookingSnapshot, BookingSnapshot) error {
	return nil
}
