package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/lessonloop/lessonloop-api/internal/models"
)

const packageColumns = `id, student_id, total_lessons, used_lessons, remaining_lessons, valid_until, created_at, updated_at`

// PackageRepository manages persistence for prepaid lesson packages. All
// mutating access goes through the credit ledger within a booking
// transaction.
type PackageRepository struct {
	db *sqlx.DB
}

// NewPackageRepository constructs a PackageRepository.
func NewPackageRepository(db *sqlx.DB) *PackageRepository {
	return &PackageRepository{db: db}
}

// FindEarliestUsableForUpdate row-locks and returns the student's
// soonest-expiring package that still has lessons and has not expired.
// sql.ErrNoRows when the student has no usable package.
func (r *PackageRepository) FindEarliestUsableForUpdate(ctx context.Context, tx *sqlx.Tx, studentID string, now time.Time) (*models.Package, error) {
	query := fmt.Sprintf(`SELECT %s FROM packages
		WHERE student_id = $1 AND remaining_lessons > 0 AND valid_until >= $2
		ORDER BY valid_until ASC LIMIT 1 FOR UPDATE`, packageColumns)
	var pkg models.Package
	if err := sqlx.GetContext(ctx, tx, &pkg, query, studentID, now); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// FindForStudentForUpdate row-locks a specific package, verifying ownership.
func (r *PackageRepository) FindForStudentForUpdate(ctx context.Context, tx *sqlx.Tx, id, studentID string) (*models.Package, error) {
	query := fmt.Sprintf(`SELECT %s FROM packages WHERE id = $1 AND student_id = $2 FOR UPDATE`, packageColumns)
	var pkg models.Package
	if err := sqlx.GetContext(ctx, tx, &pkg, query, id, studentID); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// FindLatestActiveForUpdate row-locks the student's most-recently-expiring
// package that is still active and has at least one used lesson to restore.
func (r *PackageRepository) FindLatestActiveForUpdate(ctx context.Context, tx *sqlx.Tx, studentID string, now time.Time) (*models.Package, error) {
	query := fmt.Sprintf(`SELECT %s FROM packages
		WHERE student_id = $1 AND valid_until >= $2 AND used_lessons > 0
		ORDER BY valid_until DESC LIMIT 1 FOR UPDATE`, packageColumns)
	var pkg models.Package
	if err := sqlx.GetContext(ctx, tx, &pkg, query, studentID, now); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// Debit consumes one lesson. The guard repeats the remaining check so a
// stale row can never push remaining below zero.
func (r *PackageRepository) Debit(ctx context.Context, tx *sqlx.Tx, id string) error {
	const query = `UPDATE packages
		SET used_lessons = used_lessons + 1, remaining_lessons = remaining_lessons - 1, updated_at = $2
		WHERE id = $1 AND remaining_lessons > 0`
	res, err := tx.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("debit package: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("debit package: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("debit package %s: no lessons remaining", id)
	}
	return nil
}

// Credit restores one lesson. The used_lessons guard keeps the row from
// exceeding total_lessons or dropping used below zero.
func (r *PackageRepository) Credit(ctx context.Context, tx *sqlx.Tx, id string) error {
	const query = `UPDATE packages
		SET used_lessons = used_lessons - 1, remaining_lessons = remaining_lessons + 1, updated_at = $2
		WHERE id = $1 AND used_lessons > 0`
	res, err := tx.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("credit package: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("credit package: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("credit package %s: nothing to restore", id)
	}
	return nil
}

// ListByStudent returns all packages for a student, soonest expiry first.
func (r *PackageRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Package, error) {
	query := fmt.Sprintf(`SELECT %s FROM packages WHERE student_id = $1 ORDER BY valid_until ASC`, packageColumns)
	var packages []models.Package
	if err := r.db.SelectContext(ctx, &packages, query, studentID); err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	return packages, nil
}
