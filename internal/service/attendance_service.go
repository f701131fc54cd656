package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/lessonloop/lessonloop-api/internal/models"
	appErrors "github.com/lessonloop/lessonloop-api/pkg/errors"
)

type attendanceRepository interface {
	AppendLog(ctx context.Context, tx *sqlx.Tx, entry *models.AttendanceLogEntry) error
	ListLogByBooking(ctx context.Context, bookingID string) ([]models.AttendanceLogEntry, error)
	UpsertStats(ctx context.Context, stats *models.StudentStats) error
	FindStats(ctx context.Context, studentID string) (*models.StudentStats, error)
}

type studentBookingCounter interface {
	CountByStudent(ctx context.Context, studentID string) (total int, attended int, err error)
}

// AttendanceService maintains the attendance audit log and per-student
// aggregates. Stats are always recomputed from the full booking history
// rather than incremented, so replays and races converge to the truth.
type AttendanceService struct {
	attendance attendanceRepository
	bookings   studentBookingCounter
	logger     *zap.Logger
}

func NewAttendanceService(attendance attendanceRepository, bookings studentBookingCounter, logger *zap.Logger) *AttendanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{attendance: attendance, bookings: bookings, logger: logger}
}

// AppendLog writes one audit entry inside the caller's transaction.
func (s *AttendanceService) AppendLog(ctx context.Context, tx *sqlx.Tx, entry *models.AttendanceLogEntry) error {
	return s.attendance.AppendLog(ctx, tx, entry)
}

// RecomputeStats rebuilds the student's aggregates from scratch. Only
// COMPLETED and NO_SHOW bookings count towards the totals.
func (s *AttendanceService) RecomputeStats(ctx context.Context, studentID string) error {
	total, attended, err := s.bookings.CountByStudent(ctx, studentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count bookings")
	}

	stats := &models.StudentStats{
		StudentID:       studentID,
		TotalClasses:    total,
		AttendedClasses: attended,
	}
	if total > 0 {
		stats.AttendanceRate = float64(attended) / float64(total)
	}

	if err := s.attendance.UpsertStats(ctx, stats); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store stats")
	}

	s.logger.Debug("student stats recomputed",
		zap.String("student_id", studentID),
		zap.Int("total", total),
		zap.Int("attended", attended),
	)
	return nil
}

// Stats returns the student's aggregates, zero-valued when the student has
// no closed bookings yet.
func (s *AttendanceService) Stats(ctx context.Context, studentID string) (*models.StudentStats, error) {
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id required")
	}
	stats, err := s.attendance.FindStats(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.StudentStats{StudentID: studentID}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stats")
	}
	return stats, nil
}

// Log returns the audit trail of attendance actions for a booking.
func (s *AttendanceService) Log(ctx context.Context, bookingID string) ([]models.AttendanceLogEntry, error) {
	if bookingID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "booking id required")
	}
	entries, err := s.attendance.ListLogByBooking(ctx, bookingID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance log")
	}
	return entries, nil
}
