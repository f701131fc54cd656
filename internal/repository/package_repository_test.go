package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func packageRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "student_id", "total_lessons", "used_lessons", "remaining_lessons",
		"valid_until", "created_at", "updated_at",
	})
}

func beginTx(t *testing.T, db *sqlx.DB, mock sqlmock.Sqlmock) *sqlx.Tx {
	t.Helper()
	mock.ExpectBegin()
	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	return tx
}

func TestPackageRepositoryFindEarliestUsableForUpdate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPackageRepository(db)
	tx := beginTx(t, db, mock)

	now := time.Date(2026, time.September, 1, 12, 0, 0, 0, time.UTC)
	until := now.AddDate(0, 1, 0)

	mock.ExpectQuery(`SELECT id, .+ FROM packages\s+WHERE student_id = \$1 AND remaining_lessons > 0 AND valid_until >= \$2\s+ORDER BY valid_until ASC LIMIT 1 FOR UPDATE`).
		WithArgs("s1", now).
		WillReturnRows(packageRows().AddRow("p1", "s1", 10, 2, 8, until, now, now))

	pkg, err := repo.FindEarliestUsableForUpdate(context.Background(), tx, "s1", now)
	require.NoError(t, err)
	assert.Equal(t, "p1", pkg.ID)
	assert.Equal(t, 8, pkg.RemainingLessons)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPackageRepositoryFindEarliestUsableNoRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPackageRepository(db)
	tx := beginTx(t, db, mock)

	now := time.Now()
	mock.ExpectQuery(`SELECT id, .+ FROM packages`).
		WithArgs("s1", now).
		WillReturnRows(packageRows())

	_, err := repo.FindEarliestUsableForUpdate(context.Background(), tx, "s1", now)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPackageRepositoryDebit(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPackageRepository(db)
	tx := beginTx(t, db, mock)

	mock.ExpectExec(`UPDATE packages\s+SET used_lessons = used_lessons \+ 1`).
		WithArgs("p1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.Debit(context.Background(), tx, "p1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPackageRepositoryDebitGuardRejectsEmptyPackage(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPackageRepository(db)
	tx := beginTx(t, db, mock)

	mock.ExpectExec(`UPDATE packages\s+SET used_lessons = used_lessons \+ 1`).
		WithArgs("p1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Debit(context.Background(), tx, "p1")
	assert.ErrorContains(t, err, "no lessons remaining")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPackageRepositoryCreditGuardRejectsUnusedPackage(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPackageRepository(db)
	tx := beginTx(t, db, mock)

	mock.ExpectExec(`UPDATE packages\s+SET used_lessons = used_lessons - 1`).
		WithArgs("p1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Credit(context.Background(), tx, "p1")
	assert.ErrorContains(t, err, "nothing to restore")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPackageRepositoryListByStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPackageRepository(db)

	now := time.Now()
	mock.ExpectQuery(`SELECT id, .+ FROM packages WHERE student_id = \$1 ORDER BY valid_until ASC`).
		WithArgs("s1").
		WillReturnRows(packageRows().
			AddRow("p1", "s1", 10, 10, 0, now.AddDate(0, 1, 0), now, now).
			AddRow("p2", "s1", 20, 3, 17, now.AddDate(0, 3, 0), now, now))

	packages, err := repo.ListByStudent(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, packages, 2)
	assert.Equal(t, "p2", packages[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
