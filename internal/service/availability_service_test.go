package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lessonloop/lessonloop-api/internal/models"
	appErrors "github.com/lessonloop/lessonloop-api/pkg/errors"
)

type availabilityStoreStub struct {
	items       map[string]*models.AvailabilityWindow
	overlap     bool
	deactivated []string
}

func (m *availabilityStoreStub) ListByTeacher(ctx context.Context, teacherID string) ([]models.AvailabilityWindow, error) {
	var out []models.AvailabilityWindow
	for _, w := range m.items {
		if w.TeacherID == teacherID {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (m *availabilityStoreStub) FindByID(ctx context.Context, id string) (*models.AvailabilityWindow, error) {
	if w, ok := m.items[id]; ok {
		cp := *w
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *availabilityStoreStub) ExistsOverlapping(ctx context.Context, teacherID string, dayOfWeek, startMinute, endMinute int, excludeID string) (bool, error) {
	return m.overlap, nil
}

func (m *availabilityStoreStub) Create(ctx context.Context, window *models.AvailabilityWindow) error {
	if m.items == nil {
		m.items = map[string]*models.AvailabilityWindow{}
	}
	if window.ID == "" {
		window.ID = "w-new"
	}
	cp := *window
	m.items[window.ID] = &cp
	return nil
}

func (m *availabilityStoreStub) Update(ctx context.Context, window *models.AvailabilityWindow) error {
	cp := *window
	m.items[window.ID] = &cp
	return nil
}

func (m *availabilityStoreStub) Deactivate(ctx context.Context, id string) error {
	m.deactivated = append(m.deactivated, id)
	return nil
}

func TestAvailabilityServiceCreate(t *testing.T) {
	store := &availabilityStoreStub{}
	slots := &invalidatorStub{}
	svc := NewAvailabilityService(store, slots, validator.New(), zap.NewNop())

	window, err := svc.Create(context.Background(), "t1", UpsertWindowRequest{
		DayOfWeek:   1,
		StartMinute: 540,
		EndMinute:   660,
		IsActive:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "t1", window.TeacherID)
	assert.Equal(t, []string{"t1"}, slots.teachers)
}

func TestAvailabilityServiceCreateInvertedRange(t *testing.T) {
	svc := NewAvailabilityService(&availabilityStoreStub{}, nil, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), "t1", UpsertWindowRequest{
		DayOfWeek:   1,
		StartMinute: 660,
		EndMinute:   540,
		IsActive:    true,
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestAvailabilityServiceCreateOverlap(t *testing.T) {
	svc := NewAvailabilityService(&availabilityStoreStub{overlap: true}, nil, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), "t1", UpsertWindowRequest{
		DayOfWeek:   1,
		StartMinute: 540,
		EndMinute:   660,
		IsActive:    true,
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestAvailabilityServiceUpdateWrongTeacher(t *testing.T) {
	store := &availabilityStoreStub{items: map[string]*models.AvailabilityWindow{
		"w1": {ID: "w1", TeacherID: "other"},
	}}
	svc := NewAvailabilityService(store, nil, validator.New(), zap.NewNop())

	_, err := svc.Update(context.Background(), "t1", "w1", UpsertWindowRequest{
		DayOfWeek:   1,
		StartMinute: 540,
		EndMinute:   660,
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestAvailabilityServiceDeactivate(t *testing.T) {
	store := &availabilityStoreStub{items: map[string]*models.AvailabilityWindow{
		"w1": {ID: "w1", TeacherID: "t1", IsActive: true},
	}}
	slots := &invalidatorStub{}
	svc := NewAvailabilityService(store, slots, validator.New(), zap.NewNop())

	require.NoError(t, svc.Deactivate(context.Background(), "t1", "w1"))
	assert.Equal(t, []string{"w1"}, store.deactivated)
	assert.Equal(t, []string{"t1"}, slots.teachers)
}
