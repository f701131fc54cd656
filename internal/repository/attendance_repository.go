package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lessonloop/lessonloop-api/internal/models"
)

// AttendanceRepository persists the append-only attendance log and the
// derived per-student stats.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs an AttendanceRepository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// AppendLog writes one attendance decision inside the transaction.
func (r *AttendanceRepository) AppendLog(ctx context.Context, tx *sqlx.Tx, entry *models.AttendanceLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO attendance_log (id, booking_id, student_id, action, source, created_at)
		VALUES (:id, :booking_id, :student_id, :action, :source, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("append attendance log: %w", err)
	}
	return nil
}

// ListLogByBooking returns the booking's attendance decisions, oldest first.
func (r *AttendanceRepository) ListLogByBooking(ctx context.Context, bookingID string) ([]models.AttendanceLogEntry, error) {
	const query = `SELECT id, booking_id, student_id, action, source, created_at
		FROM attendance_log WHERE booking_id = $1 ORDER BY created_at ASC`
	var entries []models.AttendanceLogEntry
	if err := r.db.SelectContext(ctx, &entries, query, bookingID); err != nil {
		return nil, fmt.Errorf("list attendance log: %w", err)
	}
	return entries, nil
}

// UpsertStats replaces the student's aggregate row with freshly recomputed
// values.
func (r *AttendanceRepository) UpsertStats(ctx context.Context, stats *models.StudentStats) error {
	stats.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO student_stats (student_id, total_classes, attended_classes, attendance_rate, updated_at)
		VALUES (:student_id, :total_classes, :attended_classes, :attendance_rate, :updated_at)
		ON CONFLICT (student_id) DO UPDATE SET
			total_classes = EXCLUDED.total_classes,
			attended_classes = EXCLUDED.attended_classes,
			attendance_rate = EXCLUDED.attendance_rate,
			updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, stats); err != nil {
		return fmt.Errorf("upsert student stats: %w", err)
	}
	return nil
}

// FindStats fetches the student's aggregate row.
func (r *AttendanceRepository) FindStats(ctx context.Context, studentID string) (*models.StudentStats, error) {
	const query = `SELECT student_id, total_classes, attended_classes, attendance_rate, updated_at
		FROM student_stats WHERE student_id = $1`
	var stats models.StudentStats
	if err := r.db.GetContext(ctx, &stats, query, studentID); err != nil {
		return nil, err
	}
	return &stats, nil
}
