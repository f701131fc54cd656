package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/lessonloop/lessonloop-api/internal/models"
	appErrors "github.com/lessonloop/lessonloop-api/pkg/errors"
)

type bookingRepository interface {
	LockTeacher(ctx context.Context, tx *sqlx.Tx, teacherID string) error
	OverlapExists(ctx context.Context, tx *sqlx.Tx, teacherID string, interval models.Interval, excludeID string) (bool, error)
	Insert(ctx context.Context, tx *sqlx.Tx, booking *models.Booking) error
	FindByID(ctx context.Context, id string) (*models.Booking, error)
	FindByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Booking, error)
	List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error)
	MarkCancelled(ctx context.Context, tx *sqlx.Tx, id, cancelledBy string, reason *string, at time.Time) error
	UpdateSchedule(ctx context.Context, tx *sqlx.Tx, id string, scheduledAt time.Time, durationMinutes int) error
	MarkAttendance(ctx context.Context, tx *sqlx.Tx, id string, status models.BookingStatus, attendedAt *time.Time) error
}

type creditLedger interface {
	Debit(ctx context.Context, tx *sqlx.Tx, studentID string, now time.Time) (string, error)
	Credit(ctx context.Context, tx *sqlx.Tx, studentID string, preferredPackageID *string, now time.Time) error
}

type attendanceTracker interface {
	AppendLog(ctx context.Context, tx *sqlx.Tx, entry *models.AttendanceLogEntry) error
	RecomputeStats(ctx context.Context, studentID string) error
}

type outboundDispatcher interface {
	CalendarCreate(booking models.Booking)
	CalendarUpdate(eventRef string, booking models.Booking)
	CalendarCancel(eventRef string)
	NotifyConfirmation(booking models.Booking)
	NotifyCancellation(booking models.Booking, reason string)
	NotifyReschedule(previous, current models.Booking)
}

type slotInvalidator interface {
	InvalidatePlans(ctx context.Context, teacherID string)
}

// BookingService owns the booking lifecycle. Every state change commits in
// one local transaction together with its credit movement; external calendar
// and notification work is handed to the outbound dispatcher only after the
// commit, so a gateway failure can never corrupt a booking.
type BookingService struct {
	db         *sqlx.DB
	bookings   bookingRepository
	windows    availabilityReader
	ledger     creditLedger
	attendance attendanceTracker
	outbound   outboundDispatcher
	slots      slotInvalidator
	validator  *validator.Validate
	logger     *zap.Logger

	now func() time.Time
}

// NewBookingService constructs the booking service. slots may be nil when
// the slot-plan cache is disabled.
func NewBookingService(db *sqlx.DB, bookings bookingRepository, windows availabilityReader, ledger creditLedger, attendance attendanceTracker, outbound outboundDispatcher, slots slotInvalidator, validate *validator.Validate, logger *zap.Logger) *BookingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingService{
		db:         db,
		bookings:   bookings,
		windows:    windows,
		ledger:     ledger,
		attendance: attendance,
		outbound:   outbound,
		slots:      slots,
		validator:  validate,
		logger:     logger,
		now:        time.Now,
	}
}

// CreateBookingRequest is the payload for reserving a lesson.
type CreateBookingRequest struct {
	StudentID       string    `json:"student_id" validate:"required"`
	TeacherID       string    `json:"teacher_id" validate:"required"`
	TopicID         string    `json:"topic_id" validate:"required"`
	ScheduledAt     time.Time `json:"scheduled_at" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,gt=0"`
}

// CancelBookingRequest is the payload for cancelling a lesson.
type CancelBookingRequest struct {
	CancelledBy string  `json:"cancelled_by" validate:"required"`
	Reason      *string `json:"reason"`
}

// RescheduleBookingRequest moves a lesson to a new interval.
type RescheduleBookingRequest struct {
	ScheduledAt     time.Time `json:"scheduled_at" validate:"required"`
	DurationMinutes *int      `json:"duration_minutes" validate:"omitempty,gt=0"`
}

// MarkAttendanceRequest records whether the student showed up.
type MarkAttendanceRequest struct {
	Attended bool   `json:"attended"`
	Source   string `json:"source"`
}

// Create reserves a lesson. The overlap re-check, the booking insert and the
// credit debit are one atomic unit; a concurrent request for the same
// interval or the last credit loses with ErrConflict or ErrCreditExhausted
// and leaves no trace.
func (s *BookingService) Create(ctx context.Context, req CreateBookingRequest) (*models.Booking, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}
	now := s.now()
	if !req.ScheduledAt.After(now) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "scheduled_at must be in the future")
	}

	interval := models.Interval{
		Start: req.ScheduledAt,
		End:   req.ScheduledAt.Add(time.Duration(req.DurationMinutes) * time.Minute),
	}

	// Point check against the teacher's recurring availability. The slot
	// list the student saw may be stale; conflicts with other bookings
	// are re-checked under lock inside the transaction below.
	inWindow, err := s.withinActiveWindow(ctx, req.TeacherID, interval)
	if err != nil {
		return nil, err
	}
	if !inWindow {
		return nil, appErrors.Clone(appErrors.ErrConflict, "interval is outside the teacher's availability")
	}

	booking := &models.Booking{
		StudentID:       req.StudentID,
		TeacherID:       req.TeacherID,
		TopicID:         req.TopicID,
		ScheduledAt:     req.ScheduledAt,
		DurationMinutes: req.DurationMinutes,
		Status:          models.BookingStatusScheduled,
	}

	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.bookings.LockTeacher(ctx, tx, req.TeacherID); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to serialise teacher")
		}
		taken, err := s.bookings.OverlapExists(ctx, tx, req.TeacherID, interval, "")
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check conflicts")
		}
		if taken {
			return appErrors.Clone(appErrors.ErrConflict, "")
		}

		packageID, err := s.ledger.Debit(ctx, tx, req.StudentID, now)
		if err != nil {
			return err
		}
		booking.PackageID = &packageID

		if err := s.bookings.Insert(ctx, tx, booking); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to insert booking")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("booking created",
		zap.String("booking_id", booking.ID),
		zap.String("teacher_id", booking.TeacherID),
		zap.String("student_id", booking.StudentID),
		zap.Time("scheduled_at", booking.ScheduledAt),
	)

	s.invalidateSlots(ctx, booking.TeacherID)
	s.outbound.CalendarCreate(*booking)
	s.outbound.NotifyConfirmation(*booking)

	return booking, nil
}

// Cancel flips a SCHEDULED booking to CANCELLED and restores one credit in
// the same transaction. Cancelling twice fails with ErrInvalidState and
// never credits twice.
func (s *BookingService) Cancel(ctx context.Context, bookingID string, req CancelBookingRequest) (*models.Booking, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cancel payload")
	}
	now := s.now()

	var booking *models.Booking
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		booking, err = s.lockScheduled(ctx, tx, bookingID)
		if err != nil {
			return err
		}

		if err := s.bookings.MarkCancelled(ctx, tx, bookingID, req.CancelledBy, req.Reason, now); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel booking")
		}
		if err := s.ledger.Credit(ctx, tx, booking.StudentID, booking.PackageID, now); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	booking.Status = models.BookingStatusCancelled
	booking.CancelledAt = &now
	booking.CancelledBy = &req.CancelledBy
	booking.CancelReason = req.Reason

	s.logger.Info("booking cancelled",
		zap.String("booking_id", booking.ID),
		zap.String("cancelled_by", req.CancelledBy),
	)

	s.invalidateSlots(ctx, booking.TeacherID)
	if booking.ExternalEventRef != nil {
		s.outbound.CalendarCancel(*booking.ExternalEventRef)
	}
	reason := ""
	if req.Reason != nil {
		reason = *req.Reason
	}
	s.outbound.NotifyCancellation(*booking, reason)

	return booking, nil
}

// Reschedule moves a SCHEDULED booking to a new interval on the same row.
// The conflict check excludes the booking's own current interval, so moving
// within or adjacent to it is allowed. No credit moves.
func (s *BookingService) Reschedule(ctx context.Context, bookingID string, req RescheduleBookingRequest) (*models.Booking, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reschedule payload")
	}
	now := s.now()
	if !req.ScheduledAt.After(now) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "scheduled_at must be in the future")
	}

	var previous models.Booking
	var booking *models.Booking
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		booking, err = s.lockScheduled(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		previous = *booking

		duration := booking.DurationMinutes
		if req.DurationMinutes != nil {
			duration = *req.DurationMinutes
		}
		interval := models.Interval{
			Start: req.ScheduledAt,
			End:   req.ScheduledAt.Add(time.Duration(duration) * time.Minute),
		}

		inWindow, err := s.withinActiveWindow(ctx, booking.TeacherID, interval)
		if err != nil {
			return err
		}
		if !inWindow {
			return appErrors.Clone(appErrors.ErrConflict, "interval is outside the teacher's availability")
		}

		if err := s.bookings.LockTeacher(ctx, tx, booking.TeacherID); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to serialise teacher")
		}
		taken, err := s.bookings.OverlapExists(ctx, tx, booking.TeacherID, interval, bookingID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check conflicts")
		}
		if taken {
			return appErrors.Clone(appErrors.ErrConflict, "")
		}

		if err := s.bookings.UpdateSchedule(ctx, tx, bookingID, req.ScheduledAt, duration); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reschedule booking")
		}
		booking.ScheduledAt = req.ScheduledAt
		booking.DurationMinutes = duration
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("booking rescheduled",
		zap.String("booking_id", booking.ID),
		zap.Time("from", previous.ScheduledAt),
		zap.Time("to", booking.ScheduledAt),
	)

	s.invalidateSlots(ctx, booking.TeacherID)
	if booking.ExternalEventRef != nil {
		s.outbound.CalendarUpdate(*booking.ExternalEventRef, *booking)
	}
	s.outbound.NotifyReschedule(previous, *booking)

	return booking, nil
}

// MarkAttendance closes a SCHEDULED booking as COMPLETED or NO_SHOW, appends
// the attendance log entry in the same transaction, then triggers a full
// stats recompute. Early marking is allowed; timing policy belongs to the
// caller.
func (s *BookingService) MarkAttendance(ctx context.Context, bookingID string, req MarkAttendanceRequest) (*models.Booking, error) {
	now := s.now()
	source := req.Source
	if source == "" {
		source = "api"
	}

	var booking *models.Booking
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		booking, err = s.lockScheduled(ctx, tx, bookingID)
		if err != nil {
			return err
		}

		status := models.BookingStatusNoShow
		action := models.AttendanceMarkedAbsent
		var attendedAt *time.Time
		if req.Attended {
			status = models.BookingStatusCompleted
			action = models.AttendanceMarkedPresent
			attendedAt = &now
		}

		if err := s.bookings.MarkAttendance(ctx, tx, bookingID, status, attendedAt); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark attendance")
		}
		entry := &models.AttendanceLogEntry{
			BookingID: bookingID,
			StudentID: booking.StudentID,
			Action:    action,
			Source:    source,
			CreatedAt: now,
		}
		if err := s.attendance.AppendLog(ctx, tx, entry); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to log attendance")
		}

		booking.Status = status
		booking.AttendedAt = attendedAt
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Full recompute keeps the stats correct even under duplicate or
	// concurrent attendance events; a failure here only delays them.
	if err := s.attendance.RecomputeStats(ctx, booking.StudentID); err != nil {
		s.logger.Error("stats recompute failed",
			zap.String("student_id", booking.StudentID),
			zap.Error(err),
		)
	}

	return booking, nil
}

// RetryCalendarSync re-issues calendar event creation for a SCHEDULED
// booking that never got its external linkage. Credits are untouched.
func (s *BookingService) RetryCalendarSync(ctx context.Context, bookingID string) error {
	booking, err := s.Get(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking.Status != models.BookingStatusScheduled {
		return appErrors.Clone(appErrors.ErrInvalidState, "only scheduled bookings can be synced")
	}
	if booking.ExternalEventRef != nil {
		return appErrors.Clone(appErrors.ErrInvalidState, "booking already has a calendar event")
	}
	s.outbound.CalendarCreate(*booking)
	return nil
}

// Get fetches one booking.
func (s *BookingService) Get(ctx context.Context, bookingID string) (*models.Booking, error) {
	if bookingID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "booking id required")
	}
	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking")
	}
	return booking, nil
}

// List returns bookings matching the filter.
func (s *BookingService) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, *models.Pagination, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown booking status")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	filter.Page = page
	filter.PageSize = size

	bookings, total, err := s.bookings.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bookings")
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return bookings, pagination, nil
}

// lockScheduled loads and row-locks a booking, requiring SCHEDULED status.
func (s *BookingService) lockScheduled(ctx context.Context, tx *sqlx.Tx, bookingID string) (*models.Booking, error) {
	booking, err := s.bookings.FindByIDForUpdate(ctx, tx, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking")
	}
	if booking.Status != models.BookingStatusScheduled {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "booking is "+string(booking.Status))
	}
	return booking, nil
}

// inTx runs fn inside one transaction; any error aborts the whole unit.
func (s *BookingService) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit transaction")
	}
	return nil
}

// withinActiveWindow reports whether the interval fits entirely inside one
// of the teacher's active windows on that weekday.
func (s *BookingService) withinActiveWindow(ctx context.Context, teacherID string, interval models.Interval) (bool, error) {
	windows, err := s.windows.ListActiveByTeacherDay(ctx, teacherID, int(interval.Start.Weekday()))
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability")
	}
	for _, window := range windows {
		iv := window.OnDate(interval.Start)
		if !interval.Start.Before(iv.Start) && !interval.End.After(iv.End) {
			return true, nil
		}
	}
	return false, nil
}

func (s *BookingService) invalidateSlots(ctx context.Context, teacherID string) {
	if s.slots != nil {
		s.slots.InvalidatePlans(ctx, teacherID)
	}
}
