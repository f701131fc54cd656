package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lessonloop/lessonloop-api/internal/models"
)

const bookingColumns = `id, student_id, teacher_id, topic_id, scheduled_at, duration_minutes, status, package_id, external_event_ref, external_meeting_link, cancelled_at, cancelled_by, cancel_reason, attended_at, created_at, updated_at`

// BookingRepository manages persistence for bookings.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository constructs a BookingRepository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// LockTeacher serialises writers for one teacher inside the current
// transaction. Two concurrent create/reschedule calls for the same teacher
// cannot both observe a free interval and both commit.
func (r *BookingRepository) LockTeacher(ctx context.Context, tx *sqlx.Tx, teacherID string) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, teacherID); err != nil {
		return fmt.Errorf("lock teacher: %w", err)
	}
	return nil
}

// OverlapExists reports whether any non-cancelled booking for the teacher
// intersects the half-open interval. excludeID removes the booking's own row
// from the conflict set during reschedule.
func (r *BookingRepository) OverlapExists(ctx context.Context, tx *sqlx.Tx, teacherID string, interval models.Interval, excludeID string) (bool, error) {
	query := `SELECT 1 FROM bookings
		WHERE teacher_id = $1
		  AND status <> 'CANCELLED'
		  AND scheduled_at < $3
		  AND scheduled_at + make_interval(mins => duration_minutes) > $2`
	args := []interface{}{teacherID, interval.Start, interval.End}
	if excludeID != "" {
		query += " AND id <> $4"
		args = append(args, excludeID)
	}
	var exists int
	if err := sqlx.GetContext(ctx, tx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check booking overlap: %w", err)
	}
	return true, nil
}

// Insert creates a new booking row inside the transaction.
func (r *BookingRepository) Insert(ctx context.Context, tx *sqlx.Tx, booking *models.Booking) error {
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	booking.CreatedAt = now
	booking.UpdatedAt = now

	const query = `INSERT INTO bookings (id, student_id, teacher_id, topic_id, scheduled_at, duration_minutes, status, package_id, created_at, updated_at)
		VALUES (:id, :student_id, :teacher_id, :topic_id, :scheduled_at, :duration_minutes, :status, :package_id, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, booking); err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

// FindByID fetches a booking by ID.
func (r *BookingRepository) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	query := fmt.Sprintf(`SELECT %s FROM bookings WHERE id = $1`, bookingColumns)
	var booking models.Booking
	if err := r.db.GetContext(ctx, &booking, query, id); err != nil {
		return nil, err
	}
	return &booking, nil
}

// FindByIDForUpdate fetches and row-locks a booking inside the transaction.
func (r *BookingRepository) FindByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Booking, error) {
	query := fmt.Sprintf(`SELECT %s FROM bookings WHERE id = $1 FOR UPDATE`, bookingColumns)
	var booking models.Booking
	if err := sqlx.GetContext(ctx, tx, &booking, query, id); err != nil {
		return nil, err
	}
	return &booking, nil
}

// ListActiveByTeacherRange returns the teacher's non-cancelled bookings whose
// intervals intersect [from, to).
func (r *BookingRepository) ListActiveByTeacherRange(ctx context.Context, teacherID string, from, to time.Time) ([]models.Booking, error) {
	query := fmt.Sprintf(`SELECT %s FROM bookings
		WHERE teacher_id = $1
		  AND status <> 'CANCELLED'
		  AND scheduled_at < $3
		  AND scheduled_at + make_interval(mins => duration_minutes) > $2
		ORDER BY scheduled_at ASC`, bookingColumns)
	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, teacherID, from, to); err != nil {
		return nil, fmt.Errorf("list teacher bookings: %w", err)
	}
	return bookings, nil
}

// List returns bookings matching filters along with total count.
func (r *BookingRepository) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error) {
	base := "FROM bookings WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("scheduled_at >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("scheduled_at < $%d", len(args)+1))
		args = append(args, *filter.To)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"scheduled_at": "scheduled_at",
		"created_at":   "created_at",
		"updated_at":   "updated_at",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "scheduled_at"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", bookingColumns, base, column, order, size, offset)
	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list bookings: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count bookings: %w", err)
	}

	return bookings, total, nil
}

// MarkCancelled flips the booking to CANCELLED inside the transaction.
func (r *BookingRepository) MarkCancelled(ctx context.Context, tx *sqlx.Tx, id, cancelledBy string, reason *string, at time.Time) error {
	const query = `UPDATE bookings SET status = 'CANCELLED', cancelled_at = $2, cancelled_by = $3, cancel_reason = $4, updated_at = $5 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, id, at, cancelledBy, reason, time.Now().UTC()); err != nil {
		return fmt.Errorf("cancel booking: %w", err)
	}
	return nil
}

// UpdateSchedule moves the booking to a new interval inside the transaction.
func (r *BookingRepository) UpdateSchedule(ctx context.Context, tx *sqlx.Tx, id string, scheduledAt time.Time, durationMinutes int) error {
	const query = `UPDATE bookings SET scheduled_at = $2, duration_minutes = $3, updated_at = $4 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, id, scheduledAt, durationMinutes, time.Now().UTC()); err != nil {
		return fmt.Errorf("update booking schedule: %w", err)
	}
	return nil
}

// MarkAttendance records the terminal COMPLETED/NO_SHOW status.
func (r *BookingRepository) MarkAttendance(ctx context.Context, tx *sqlx.Tx, id string, status models.BookingStatus, attendedAt *time.Time) error {
	const query = `UPDATE bookings SET status = $2, attended_at = $3, updated_at = $4 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, id, status, attendedAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark attendance: %w", err)
	}
	return nil
}

// SetExternalEvent persists the calendar linkage after a successful sync.
// Runs outside the booking transaction; the booking is already committed.
func (r *BookingRepository) SetExternalEvent(ctx context.Context, id, eventRef, meetingLink string) error {
	const query = `UPDATE bookings SET external_event_ref = $2, external_meeting_link = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, eventRef, meetingLink, time.Now().UTC()); err != nil {
		return fmt.Errorf("set external event: %w", err)
	}
	return nil
}

// CountByStudent returns the finished-class counters used for stats: total is
// COMPLETED plus NO_SHOW, attended is COMPLETED only.
func (r *BookingRepository) CountByStudent(ctx context.Context, studentID string) (total int, attended int, err error) {
	const query = `SELECT
		COUNT(*) FILTER (WHERE status IN ('COMPLETED', 'NO_SHOW')) AS total,
		COUNT(*) FILTER (WHERE status = 'COMPLETED') AS attended
		FROM bookings WHERE student_id = $1`
	row := r.db.QueryRowxContext(ctx, query, studentID)
	if err := row.Scan(&total, &attended); err != nil {
		return 0, 0, fmt.Errorf("count student bookings: %w", err)
	}
	return total, attended, nil
}
