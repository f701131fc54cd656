package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lessonloop/lessonloop-api/internal/models"
)

const windowColumns = `id, teacher_id, day_of_week, start_minute, end_minute, is_active, created_at, updated_at`

// AvailabilityRepository manages recurring weekly availability windows.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository constructs an AvailabilityRepository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// ListActiveByTeacherDay returns active windows for one weekday, ordered by
// start time.
func (r *AvailabilityRepository) ListActiveByTeacherDay(ctx context.Context, teacherID string, dayOfWeek int) ([]models.AvailabilityWindow, error) {
	query := fmt.Sprintf(`SELECT %s FROM availability_windows
		WHERE teacher_id = $1 AND day_of_week = $2 AND is_active = TRUE
		ORDER BY start_minute ASC`, windowColumns)
	var windows []models.AvailabilityWindow
	if err := r.db.SelectContext(ctx, &windows, query, teacherID, dayOfWeek); err != nil {
		return nil, fmt.Errorf("list active windows: %w", err)
	}
	return windows, nil
}

// ListByTeacher returns all of a teacher's windows, weekday then start order.
func (r *AvailabilityRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.AvailabilityWindow, error) {
	query := fmt.Sprintf(`SELECT %s FROM availability_windows
		WHERE teacher_id = $1 ORDER BY day_of_week ASC, start_minute ASC`, windowColumns)
	var windows []models.AvailabilityWindow
	if err := r.db.SelectContext(ctx, &windows, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher windows: %w", err)
	}
	return windows, nil
}

// FindByID fetches a window by ID.
func (r *AvailabilityRepository) FindByID(ctx context.Context, id string) (*models.AvailabilityWindow, error) {
	query := fmt.Sprintf(`SELECT %s FROM availability_windows WHERE id = $1`, windowColumns)
	var window models.AvailabilityWindow
	if err := r.db.GetContext(ctx, &window, query, id); err != nil {
		return nil, err
	}
	return &window, nil
}

// ExistsOverlapping reports whether another active window of the teacher on
// the same weekday intersects [startMinute, endMinute).
func (r *AvailabilityRepository) ExistsOverlapping(ctx context.Context, teacherID string, dayOfWeek, startMinute, endMinute int, excludeID string) (bool, error) {
	query := `SELECT 1 FROM availability_windows
		WHERE teacher_id = $1 AND day_of_week = $2 AND is_active = TRUE
		  AND start_minute < $4 AND end_minute > $3`
	args := []interface{}{teacherID, dayOfWeek, startMinute, endMinute}
	if excludeID != "" {
		query += " AND id <> $5"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check window overlap: %w", err)
	}
	return true, nil
}

// Create inserts a new availability window.
func (r *AvailabilityRepository) Create(ctx context.Context, window *models.AvailabilityWindow) error {
	if window.ID == "" {
		window.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	window.CreatedAt = now
	window.UpdatedAt = now

	const query = `INSERT INTO availability_windows (id, teacher_id, day_of_week, start_minute, end_minute, is_active, created_at, updated_at)
		VALUES (:id, :teacher_id, :day_of_week, :start_minute, :end_minute, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, window); err != nil {
		return fmt.Errorf("create window: %w", err)
	}
	return nil
}

// Update modifies an existing availability window.
func (r *AvailabilityRepository) Update(ctx context.Context, window *models.AvailabilityWindow) error {
	window.UpdatedAt = time.Now().UTC()
	const query = `UPDATE availability_windows SET day_of_week = :day_of_week, start_minute = :start_minute, end_minute = :end_minute, is_active = :is_active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, window); err != nil {
		return fmt.Errorf("update window: %w", err)
	}
	return nil
}

// Deactivate clears a window's active flag without deleting history.
func (r *AvailabilityRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE availability_windows SET is_active = FALSE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate window: %w", err)
	}
	return nil
}
