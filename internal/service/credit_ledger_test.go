package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lessonloop/lessonloop-api/internal/models"
	appErrors "github.com/lessonloop/lessonloop-api/pkg/errors"
)

type mockPackageRepo struct {
	earliest *models.Package
	byID     map[string]*models.Package
	latest   *models.Package

	debited  []string
	credited []string
}

func (m *mockPackageRepo) FindEarliestUsableForUpdate(ctx context.Context, tx *sqlx.Tx, studentID string, now time.Time) (*models.Package, error) {
	if m.earliest == nil {
		return nil, sql.ErrNoRows
	}
	cp := *m.earliest
	return &cp, nil
}

func (m *mockPackageRepo) FindForStudentForUpdate(ctx context.Context, tx *sqlx.Tx, id, studentID string) (*models.Package, error) {
	if pkg, ok := m.byID[id]; ok && pkg.StudentID == studentID {
		cp := *pkg
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockPackageRepo) FindLatestActiveForUpdate(ctx context.Context, tx *sqlx.Tx, studentID string, now time.Time) (*models.Package, error) {
	if m.latest == nil {
		return nil, sql.ErrNoRows
	}
	cp := *m.latest
	return &cp, nil
}

func (m *mockPackageRepo) Debit(ctx context.Context, tx *sqlx.Tx, id string) error {
	m.debited = append(m.debited, id)
	return nil
}

func (m *mockPackageRepo) Credit(ctx context.Context, tx *sqlx.Tx, id string) error {
	m.credited = append(m.credited, id)
	return nil
}

func (m *mockPackageRepo) ListByStudent(ctx context.Context, studentID string) ([]models.Package, error) {
	var out []models.Package
	for _, pkg := range m.byID {
		out = append(out, *pkg)
	}
	return out, nil
}

func TestCreditLedgerDebitEarliestExpiring(t *testing.T) {
	repo := &mockPackageRepo{earliest: &models.Package{ID: "p1", StudentID: "s1", RemainingLessons: 3}}
	ledger := NewCreditLedger(repo, true, zap.NewNop())

	packageID, err := ledger.Debit(context.Background(), nil, "s1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "p1", packageID)
	assert.Equal(t, []string{"p1"}, repo.debited)
}

func TestCreditLedgerDebitExhausted(t *testing.T) {
	repo := &mockPackageRepo{}
	ledger := NewCreditLedger(repo, true, zap.NewNop())

	_, err := ledger.Debit(context.Background(), nil, "s1", time.Now())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrCreditExhausted))
	assert.Empty(t, repo.debited)
}

func TestCreditLedgerCreditPrefersOriginalPackage(t *testing.T) {
	original := "p1"
	repo := &mockPackageRepo{
		byID:   map[string]*models.Package{"p1": {ID: "p1", StudentID: "s1", UsedLessons: 2}},
		latest: &models.Package{ID: "p2", StudentID: "s1", UsedLessons: 1},
	}
	ledger := NewCreditLedger(repo, true, zap.NewNop())

	require.NoError(t, ledger.Credit(context.Background(), nil, "s1", &original, time.Now()))
	assert.Equal(t, []string{"p1"}, repo.credited)
}

// When the original package has nothing to restore the refund falls through
// to the latest-expiring active package.
func TestCreditLedgerCreditFallsBack(t *testing.T) {
	original := "p1"
	repo := &mockPackageRepo{
		byID:   map[string]*models.Package{"p1": {ID: "p1", StudentID: "s1", UsedLessons: 0}},
		latest: &models.Package{ID: "p2", StudentID: "s1", UsedLessons: 1},
	}
	ledger := NewCreditLedger(repo, true, zap.NewNop())

	require.NoError(t, ledger.Credit(context.Background(), nil, "s1", &original, time.Now()))
	assert.Equal(t, []string{"p2"}, repo.credited)
}

// An unabsorbable refund is dropped, not turned into a cancellation failure.
func TestCreditLedgerCreditDropsWhenNoCandidate(t *testing.T) {
	repo := &mockPackageRepo{}
	ledger := NewCreditLedger(repo, true, zap.NewNop())

	require.NoError(t, ledger.Credit(context.Background(), nil, "s1", nil, time.Now()))
	assert.Empty(t, repo.credited)
}

func TestCreditLedgerCreditIgnoresOriginalWhenDisabled(t *testing.T) {
	original := "p1"
	repo := &mockPackageRepo{
		byID:   map[string]*models.Package{"p1": {ID: "p1", StudentID: "s1", UsedLessons: 2}},
		latest: &models.Package{ID: "p2", StudentID: "s1", UsedLessons: 1},
	}
	ledger := NewCreditLedger(repo, false, zap.NewNop())

	require.NoError(t, ledger.Credit(context.Background(), nil, "s1", &original, time.Now()))
	assert.Equal(t, []string{"p2"}, repo.credited)
}
