package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lessonloop/lessonloop-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func bookingRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "student_id", "teacher_id", "topic_id", "scheduled_at", "duration_minutes",
		"status", "package_id", "external_event_ref", "external_meeting_link",
		"cancelled_at", "cancelled_by", "cancel_reason", "attended_at", "created_at", "updated_at",
	})
}

func TestBookingRepositoryOverlapExists(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	start := time.Date(2026, time.September, 7, 9, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	mock.ExpectBegin()
	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT 1 FROM bookings`).
		WithArgs("t1", start, end).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	taken, err := repo.OverlapExists(context.Background(), tx, "t1", models.Interval{Start: start, End: end}, "")
	require.NoError(t, err)
	assert.True(t, taken)

	mock.ExpectQuery(`SELECT 1 FROM bookings`).
		WithArgs("t1", start, end, "b1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	taken, err = repo.OverlapExists(context.Background(), tx, "t1", models.Interval{Start: start, End: end}, "b1")
	require.NoError(t, err)
	assert.False(t, taken)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryInsert(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectBegin()
	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO bookings").
		WillReturnResult(sqlmock.NewResult(1, 1))

	booking := &models.Booking{
		StudentID:       "s1",
		TeacherID:       "t1",
		TopicID:         "topic1",
		ScheduledAt:     time.Date(2026, time.September, 7, 9, 0, 0, 0, time.UTC),
		DurationMinutes: 30,
		Status:          models.BookingStatusScheduled,
	}
	require.NoError(t, repo.Insert(context.Background(), tx, booking))
	assert.NotEmpty(t, booking.ID)
	assert.False(t, booking.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryLockTeacher(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectBegin()
	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("t1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.LockTeacher(context.Background(), tx, "t1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	now := time.Now()
	rows := bookingRows().AddRow(
		"b1", "s1", "t1", "topic1", now, 30,
		"SCHEDULED", nil, nil, nil,
		nil, nil, nil, nil, now, now,
	)

	mock.ExpectQuery(`SELECT id, .+ FROM bookings WHERE 1=1 AND teacher_id = \$1 ORDER BY scheduled_at ASC LIMIT 20 OFFSET 0`).
		WithArgs("t1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM bookings WHERE 1=1 AND teacher_id = $1")).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	list, total, err := repo.List(context.Background(), models.BookingFilter{TeacherID: "t1"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryCountByStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectQuery(`SELECT\s+COUNT\(\*\) FILTER`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"total", "attended"}).AddRow(5, 4))

	total, attended, err := repo.CountByStudent(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, 4, attended)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositorySetExternalEvent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectExec("UPDATE bookings SET external_event_ref").
		WithArgs("b1", "evt-1", "https://meet.example/evt-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetExternalEvent(context.Background(), "b1", "evt-1", "https://meet.example/evt-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
