package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lessonloop/lessonloop-api/internal/gateway"
	"github.com/lessonloop/lessonloop-api/internal/models"
	"github.com/lessonloop/lessonloop-api/pkg/config"
	"github.com/lessonloop/lessonloop-api/pkg/jobs"
)

// Outbound task types. Each payload below is a distinct typed variant so a
// handler never has to guess at an opaque blob's shape.
const (
	taskCalendarCreate = "calendar.create"
	taskCalendarUpdate = "calendar.update"
	taskCalendarCancel = "calendar.cancel"
	taskNotifyConfirm  = "notify.confirmation"
	taskNotifyCancel   = "notify.cancellation"
	taskNotifyMove     = "notify.reschedule"
)

type calendarCreatePayload struct {
	Details gateway.EventDetails
}

type calendarUpdatePayload struct {
	EventRef string
	Details  gateway.EventDetails
}

type calendarCancelPayload struct {
	EventRef string
}

type notifyConfirmPayload struct {
	Snapshot gateway.BookingSnapshot
}

type notifyCancelPayload struct {
	Snapshot gateway.BookingSnapshot
	Reason   string
}

type notifyMovePayload struct {
	Previous gateway.BookingSnapshot
	Current  gateway.BookingSnapshot
}

type externalEventWriter interface {
	SetExternalEvent(ctx context.Context, id, eventRef, meetingLink string) error
}

// OutboundDispatcher runs the best-effort side effects of committed booking
// transitions on background worker queues. Task failures are retried with
// backoff and finally logged; they never touch authoritative booking or
// credit state.
type OutboundDispatcher struct {
	calendar gateway.CalendarGateway
	notifier gateway.NotificationGateway
	bookings externalEventWriter
	metrics  *MetricsService
	logger   *zap.Logger

	calendarQueue *jobs.Queue
	notifyQueue   *jobs.Queue
}

// NewOutboundDispatcher constructs the dispatcher and its two queues.
// metrics may be nil in tests.
func NewOutboundDispatcher(calendar gateway.CalendarGateway, notifier gateway.NotificationGateway, bookings externalEventWriter, cfg config.JobsConfig, metrics *MetricsService, logger *zap.Logger) *OutboundDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &OutboundDispatcher{
		calendar: calendar,
		notifier: notifier,
		bookings: bookings,
		metrics:  metrics,
		logger:   logger,
	}

	queueCfg := jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	}
	d.calendarQueue = jobs.NewQueue("calendar-sync", d.counted("calendar-sync", d.handleCalendarTask), queueCfg)
	d.notifyQueue = jobs.NewQueue("notifications", d.counted("notifications", d.handleNotifyTask), queueCfg)
	return d
}

// counted wraps a queue handler so every task attempt lands in the outbound
// task counters, including retried attempts.
func (d *OutboundDispatcher) counted(queue string, handler jobs.Handler) jobs.Handler {
	return func(ctx context.Context, task jobs.Task) error {
		err := handler(ctx, task)
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		d.metrics.RecordOutboundTask(queue, outcome)
		return err
	}
}

// Start launches the queue workers.
func (d *OutboundDispatcher) Start(ctx context.Context) {
	d.calendarQueue.Start(ctx)
	d.notifyQueue.Start(ctx)
}

// Stop drains the queue workers.
func (d *OutboundDispatcher) Stop() {
	d.calendarQueue.Stop()
	d.notifyQueue.Stop()
}

// CalendarCreate schedules event creation for a committed booking.
func (d *OutboundDispatcher) CalendarCreate(booking models.Booking) {
	d.enqueue(d.calendarQueue, taskCalendarCreate, calendarCreatePayload{Details: eventDetails(booking)})
}

// CalendarUpdate schedules an event move after a reschedule.
func (d *OutboundDispatcher) CalendarUpdate(eventRef string, booking models.Booking) {
	d.enqueue(d.calendarQueue, taskCalendarUpdate, calendarUpdatePayload{EventRef: eventRef, Details: eventDetails(booking)})
}

// CalendarCancel schedules event removal after a cancellation.
func (d *OutboundDispatcher) CalendarCancel(eventRef string) {
	d.enqueue(d.calendarQueue, taskCalendarCancel, calendarCancelPayload{EventRef: eventRef})
}

// NotifyConfirmation schedules a booking confirmation notice.
func (d *OutboundDispatcher) NotifyConfirmation(booking models.Booking) {
	d.enqueue(d.notifyQueue, taskNotifyConfirm, notifyConfirmPayload{Snapshot: snapshot(booking)})
}

// NotifyCancellation schedules a cancellation notice.
func (d *OutboundDispatcher) NotifyCancellation(booking models.Booking, reason string) {
	d.enqueue(d.notifyQueue, taskNotifyCancel, notifyCancelPayload{Snapshot: snapshot(booking), Reason: reason})
}

// NotifyReschedule schedules a reschedule notice with before/after views.
func (d *OutboundDispatcher) NotifyReschedule(previous, current models.Booking) {
	d.enqueue(d.notifyQueue, taskNotifyMove, notifyMovePayload{Previous: snapshot(previous), Current: snapshot(current)})
}

func (d *OutboundDispatcher) enqueue(queue *jobs.Queue, taskType string, payload interface{}) {
	task := jobs.Task{ID: uuid.NewString(), Type: taskType, Payload: payload}
	if err := queue.Enqueue(task); err != nil {
		d.logger.Error("failed to enqueue outbound task",
			zap.String("type", taskType),
			zap.Error(err),
		)
	}
}

func (d *OutboundDispatcher) handleCalendarTask(ctx context.Context, task jobs.Task) error {
	switch payload := task.Payload.(type) {
	case calendarCreatePayload:
		event, err := d.calendar.CreateEvent(ctx, payload.Details)
		if err != nil {
			return err
		}
		// The booking committed before this task existed; only the
		// external linkage is patched on.
		if err := d.bookings.SetExternalEvent(ctx, payload.Details.BookingID, event.EventRef, event.MeetingLink); err != nil {
			return err
		}
		d.logger.Info("calendar event created",
			zap.String("booking_id", payload.Details.BookingID),
			zap.String("event_ref", event.EventRef),
		)
		return nil
	case calendarUpdatePayload:
		return d.calendar.UpdateEvent(ctx, payload.EventRef, payload.Details)
	case calendarCancelPayload:
		return d.calendar.CancelEvent(ctx, payload.EventRef)
	default:
		return fmt.Errorf("unknown calendar task %s", task.Type)
	}
}

func (d *OutboundDispatcher) handleNotifyTask(ctx context.Context, task jobs.Task) error {
	switch payload := task.Payload.(type) {
	case notifyConfirmPayload:
		return d.notifier.SendBookingConfirmation(ctx, payload.Snapshot)
	case notifyCancelPayload:
		return d.notifier.SendBookingCancellation(ctx, payload.Snapshot, payload.Reason)
	case notifyMovePayload:
		return d.notifier.SendBookingReschedule(ctx, payload.Previous, payload.Current)
	default:
		return fmt.Errorf("unknown notify task %s", task.Type)
	}
}

func eventDetails(booking models.Booking) gateway.EventDetails {
	return gateway.EventDetails{
		BookingID:   booking.ID,
		TeacherID:   booking.TeacherID,
		StudentID:   booking.StudentID,
		TopicID:     booking.TopicID,
		StartsAt:    booking.ScheduledAt,
		DurationMin: booking.DurationMinutes,
	}
}

func snapshot(booking models.Booking) gateway.BookingSnapshot {
	link := ""
	if booking.ExternalMeetingLink != nil {
		link = *booking.ExternalMeetingLink
	}
	return gateway.BookingSnapshot{
		BookingID:   booking.ID,
		StudentID:   booking.StudentID,
		TeacherID:   booking.TeacherID,
		TopicID:     booking.TopicID,
		ScheduledAt: booking.ScheduledAt,
		DurationMin: booking.DurationMinutes,
		MeetingLink: link,
	}
}
