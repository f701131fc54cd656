package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lessonloop/lessonloop-api/internal/models"
	appErrors "github.com/lessonloop/lessonloop-api/pkg/errors"
)

type availabilityStore interface {
	ListByTeacher(ctx context.Context, teacherID string) ([]models.AvailabilityWindow, error)
	FindByID(ctx context.Context, id string) (*models.AvailabilityWindow, error)
	ExistsOverlapping(ctx context.Context, teacherID string, dayOfWeek, startMinute, endMinute int, excludeID string) (bool, error)
	Create(ctx context.Context, window *models.AvailabilityWindow) error
	Update(ctx context.Context, window *models.AvailabilityWindow) error
	Deactivate(ctx context.Context, id string) error
}

// AvailabilityService manages teachers' recurring weekly windows. Windows
// must fit inside a single day and may not overlap another active window of
// the same teacher on the same weekday.
type AvailabilityService struct {
	windows   availabilityStore
	slots     slotInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

func NewAvailabilityService(windows availabilityStore, slots slotInvalidator, validate *validator.Validate, logger *zap.Logger) *AvailabilityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{windows: windows, slots: slots, validator: validate, logger: logger}
}

// UpsertWindowRequest carries a window definition. Minutes are counted from
// local midnight, so 540 is 09:00 and 1020 is 17:00.
type UpsertWindowRequest struct {
	DayOfWeek   int  `json:"day_of_week" validate:"min=0,max=6"`
	StartMinute int  `json:"start_minute" validate:"min=0,max=1439"`
	EndMinute   int  `json:"end_minute" validate:"min=1,max=1440"`
	IsActive    bool `json:"is_active"`
}

// List returns all windows for one teacher, inactive ones included.
func (s *AvailabilityService) List(ctx context.Context, teacherID string) ([]models.AvailabilityWindow, error) {
	if teacherID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacher id required")
	}
	windows, err := s.windows.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list windows")
	}
	if windows == nil {
		windows = []models.AvailabilityWindow{}
	}
	return windows, nil
}

// Create adds a window for the teacher.
func (s *AvailabilityService) Create(ctx context.Context, teacherID string, req UpsertWindowRequest) (*models.AvailabilityWindow, error) {
	if teacherID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacher id required")
	}
	if err := s.checkWindow(ctx, teacherID, req, ""); err != nil {
		return nil, err
	}

	window := &models.AvailabilityWindow{
		TeacherID:   teacherID,
		DayOfWeek:   req.DayOfWeek,
		StartMinute: req.StartMinute,
		EndMinute:   req.EndMinute,
		IsActive:    req.IsActive,
	}
	if err := s.windows.Create(ctx, window); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create window")
	}

	s.logger.Info("availability window created",
		zap.String("teacher_id", teacherID),
		zap.Int("day_of_week", window.DayOfWeek),
		zap.Int("start_minute", window.StartMinute),
		zap.Int("end_minute", window.EndMinute),
	)
	s.invalidate(ctx, teacherID)
	return window, nil
}

// Update replaces a window's definition.
func (s *AvailabilityService) Update(ctx context.Context, teacherID, windowID string, req UpsertWindowRequest) (*models.AvailabilityWindow, error) {
	window, err := s.ownedWindow(ctx, teacherID, windowID)
	if err != nil {
		return nil, err
	}
	if err := s.checkWindow(ctx, teacherID, req, windowID); err != nil {
		return nil, err
	}

	window.DayOfWeek = req.DayOfWeek
	window.StartMinute = req.StartMinute
	window.EndMinute = req.EndMinute
	window.IsActive = req.IsActive
	if err := s.windows.Update(ctx, window); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update window")
	}

	s.invalidate(ctx, teacherID)
	return window, nil
}

// Deactivate retires a window. Existing bookings inside it are untouched;
// only future slot plans stop offering it.
func (s *AvailabilityService) Deactivate(ctx context.Context, teacherID, windowID string) error {
	if _, err := s.ownedWindow(ctx, teacherID, windowID); err != nil {
		return err
	}
	if err := s.windows.Deactivate(ctx, windowID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate window")
	}
	s.invalidate(ctx, teacherID)
	return nil
}

func (s *AvailabilityService) checkWindow(ctx context.Context, teacherID string, req UpsertWindowRequest, excludeID string) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid window payload")
	}
	if req.StartMinute >= req.EndMinute {
		return appErrors.Clone(appErrors.ErrValidation, "start_minute must be before end_minute")
	}
	if req.IsActive {
		taken, err := s.windows.ExistsOverlapping(ctx, teacherID, req.DayOfWeek, req.StartMinute, req.EndMinute, excludeID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check window overlap")
		}
		if taken {
			return appErrors.Clone(appErrors.ErrConflict, "window overlaps an existing active window")
		}
	}
	return nil
}

func (s *AvailabilityService) ownedWindow(ctx context.Context, teacherID, windowID string) (*models.AvailabilityWindow, error) {
	if teacherID == "" || windowID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacher id and window id required")
	}
	window, err := s.windows.FindByID(ctx, windowID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "window not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load window")
	}
	if window.TeacherID != teacherID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "window not found")
	}
	return window, nil
}

func (s *AvailabilityService) invalidate(ctx context.Context, teacherID string) {
	if s.slots != nil {
		s.slots.InvalidatePlans(ctx, teacherID)
	}
}
