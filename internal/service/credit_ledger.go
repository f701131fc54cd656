package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/lessonloop/lessonloop-api/internal/models"
	appErrors "github.com/lessonloop/lessonloop-api/pkg/errors"
)

type packageRepository interface {
	FindEarliestUsableForUpdate(ctx context.Context, tx *sqlx.Tx, studentID string, now time.Time) (*models.Package, error)
	FindForStudentForUpdate(ctx context.Context, tx *sqlx.Tx, id, studentID string) (*models.Package, error)
	FindLatestActiveForUpdate(ctx context.Context, tx *sqlx.Tx, studentID string, now time.Time) (*models.Package, error)
	Debit(ctx context.Context, tx *sqlx.Tx, id string) error
	Credit(ctx context.Context, tx *sqlx.Tx, id string) error
	ListByStudent(ctx context.Context, studentID string) ([]models.Package, error)
}

// CreditLedger owns all prepaid-package mutation. Debit and Credit run
// inside the caller's booking transaction so the remaining+used=total
// invariant holds under concurrent bookings and cancellations.
type CreditLedger struct {
	packages packageRepository
	// preferOriginal controls whether a refund first targets the package
	// the booking was debited from. The fallback target (latest-expiring
	// active package) is policy, not verified business intent, so both
	// halves stay configurable.
	preferOriginal bool
	logger         *zap.Logger
}

// NewCreditLedger constructs a CreditLedger.
func NewCreditLedger(packages packageRepository, preferOriginal bool, logger *zap.Logger) *CreditLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CreditLedger{packages: packages, preferOriginal: preferOriginal, logger: logger}
}

// Debit consumes one lesson from the student's soonest-expiring usable
// package and returns its id. ErrCreditExhausted when no package qualifies.
func (l *CreditLedger) Debit(ctx context.Context, tx *sqlx.Tx, studentID string, now time.Time) (string, error) {
	pkg, err := l.packages.FindEarliestUsableForUpdate(ctx, tx, studentID, now)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrCreditExhausted, "")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to select package")
	}
	if err := l.packages.Debit(ctx, tx, pkg.ID); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to debit package")
	}
	return pkg.ID, nil
}

// Credit restores one lesson after a cancellation. The original package is
// preferred when it is still resolvable and has a lesson to restore;
// otherwise the student's most-recently-expiring active package takes the
// refund. When no package can absorb it the refund is dropped with a log
// line rather than failing the cancellation.
func (l *CreditLedger) Credit(ctx context.Context, tx *sqlx.Tx, studentID string, preferredPackageID *string, now time.Time) error {
	if l.preferOriginal && preferredPackageID != nil && *preferredPackageID != "" {
		pkg, err := l.packages.FindForStudentForUpdate(ctx, tx, *preferredPackageID, studentID)
		switch {
		case err == nil && pkg.UsedLessons > 0:
			if err := l.packages.Credit(ctx, tx, pkg.ID); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to credit package")
			}
			return nil
		case err != nil && !errors.Is(err, sql.ErrNoRows):
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve package")
		}
	}

	pkg, err := l.packages.FindLatestActiveForUpdate(ctx, tx, studentID, now)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			l.logger.Warn("no package can absorb refund",
				zap.String("student_id", studentID),
			)
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to select refund package")
	}
	if err := l.packages.Credit(ctx, tx, pkg.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to credit package")
	}
	return nil
}

// ListPackages returns the student's packages, soonest expiry first.
func (l *CreditLedger) ListPackages(ctx context.Context, studentID string) ([]models.Package, error) {
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id required")
	}
	packages, err := l.packages.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list packages")
	}
	return packages, nil
}
