package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lessonloop/lessonloop-api/internal/gateway"
	"github.com/lessonloop/lessonloop-api/internal/models"
	"github.com/lessonloop/lessonloop-api/pkg/config"
	appErrors "github.com/lessonloop/lessonloop-api/pkg/errors"
)

type availabilityReader interface {
	ListActiveByTeacherDay(ctx context.Context, teacherID string, dayOfWeek int) ([]models.AvailabilityWindow, error)
}

type teacherBookingReader interface {
	ListActiveByTeacherRange(ctx context.Context, teacherID string, from, to time.Time) ([]models.Booking, error)
}

// SlotService assembles planner inputs and produces offerable slots for one
// teacher and day.
type SlotService struct {
	windows  availabilityReader
	bookings teacherBookingReader
	calendar gateway.CalendarGateway
	planner  *SlotPlanner
	cache    *redis.Client
	cacheCfg config.SlotCacheConfig
	buffer   time.Duration
	metrics  *MetricsService
	logger   *zap.Logger

	now func() time.Time
}

// NewSlotService constructs the slot service. cache may be nil when the
// slot-plan cache is disabled, and metrics may be nil in tests.
func NewSlotService(windows availabilityReader, bookings teacherBookingReader, calendar gateway.CalendarGateway, planner *SlotPlanner, cache *redis.Client, cacheCfg config.SlotCacheConfig, buffer time.Duration, metrics *MetricsService, logger *zap.Logger) *SlotService {
	if planner == nil {
		planner = NewSlotPlanner(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlotService{
		windows:  windows,
		bookings: bookings,
		calendar: calendar,
		planner:  planner,
		cache:    cache,
		cacheCfg: cacheCfg,
		buffer:   buffer,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// PlanSlots returns the teacher's offerable slots of the given duration on
// the given date. An external calendar failure aborts the whole plan:
// assuming "no external busy time" could offer a slot that double-books the
// teacher on their own calendar.
func (s *SlotService) PlanSlots(ctx context.Context, teacherID string, date time.Time, durationMinutes int) ([]models.Slot, error) {
	if teacherID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacher id required")
	}
	if durationMinutes <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "duration must be positive")
	}

	if slots, ok := s.cachedPlan(ctx, teacherID, date, durationMinutes); ok {
		s.metrics.RecordSlotPlanLookup(true)
		return slots, nil
	}
	s.metrics.RecordSlotPlanLookup(false)

	windows, err := s.windows.ListActiveByTeacherDay(ctx, teacherID, int(date.Weekday()))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability")
	}
	if len(windows) == 0 {
		return []models.Slot{}, nil
	}

	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	busy, err := s.calendar.ListBusy(ctx, teacherID, dayStart, dayEnd)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrExternalService.Code, appErrors.ErrExternalService.Status, "calendar busy lookup failed")
	}

	booked, err := s.bookings.ListActiveByTeacherRange(ctx, teacherID, dayStart, dayEnd)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load bookings")
	}
	for _, b := range booked {
		busy = append(busy, b.Interval())
	}

	duration := time.Duration(durationMinutes) * time.Minute
	slots := s.planner.Plan(windows, busy, date, duration, s.now(), s.buffer)
	if slots == nil {
		slots = []models.Slot{}
	}

	s.storePlan(ctx, teacherID, date, durationMinutes, slots)
	return slots, nil
}

// InvalidatePlans drops cached plans for a teacher by bumping the teacher's
// cache version; stale keys expire on their own TTL.
func (s *SlotService) InvalidatePlans(ctx context.Context, teacherID string) {
	if s.cache == nil || !s.cacheCfg.Enabled {
		return
	}
	if err := s.cache.Incr(ctx, slotVersionKey(teacherID)).Err(); err != nil {
		s.logger.Warn("slot cache invalidation failed", zap.String("teacher_id", teacherID), zap.Error(err))
	}
}

func (s *SlotService) cachedPlan(ctx context.Context, teacherID string, date time.Time, durationMinutes int) ([]models.Slot, bool) {
	if s.cache == nil || !s.cacheCfg.Enabled {
		return nil, false
	}
	key, err := s.planKey(ctx, teacherID, date, durationMinutes)
	if err != nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var slots []models.Slot
	if err := json.Unmarshal(raw, &slots); err != nil {
		return nil, false
	}
	// A plan cached earlier in the TTL window may contain starts that have
	// since slipped inside the notice buffer; those are no longer offerable.
	return pruneElapsedSlots(slots, s.now().Add(s.buffer)), true
}

func pruneElapsedSlots(slots []models.Slot, cutoff time.Time) []models.Slot {
	kept := make([]models.Slot, 0, len(slots))
	for _, slot := range slots {
		if !slot.Start.Before(cutoff) {
			kept = append(kept, slot)
		}
	}
	return kept
}

func (s *SlotService) storePlan(ctx context.Context, teacherID string, date time.Time, durationMinutes int, slots []models.Slot) {
	if s.cache == nil || !s.cacheCfg.Enabled {
		return
	}
	key, err := s.planKey(ctx, teacherID, date, durationMinutes)
	if err != nil {
		return
	}
	raw, err := json.Marshal(slots)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.cacheCfg.TTL).Err(); err != nil {
		s.logger.Warn("slot cache write failed", zap.String("teacher_id", teacherID), zap.Error(err))
	}
}

func (s *SlotService) planKey(ctx context.Context, teacherID string, date time.Time, durationMinutes int) (string, error) {
	version, err := s.cache.Get(ctx, slotVersionKey(teacherID)).Int64()
	if err != nil && err != redis.Nil {
		return "", err
	}
	return fmt.Sprintf("slots:%s:v%d:%s:%d", teacherID, version, date.Format("2006-01-02"), durationMinutes), nil
}

func slotVersionKey(teacherID string) string {
	return "slots:version:" + teacherID
}
