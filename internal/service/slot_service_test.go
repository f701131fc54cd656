package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lessonloop/lessonloop-api/internal/gateway"
	"github.com/lessonloop/lessonloop-api/internal/models"
	"github.com/lessonloop/lessonloop-api/pkg/config"
	appErrors "github.com/lessonloop/lessonloop-api/pkg/errors"
)

type bookingReaderStub struct {
	bookings []models.Booking
	err      error
}

func (m *bookingReaderStub) ListActiveByTeacherRange(ctx context.Context, teacherID string, from, to time.Time) ([]models.Booking, error) {
	return m.bookings, m.err
}

type calendarStub struct {
	busy []models.Interval
	err  error
}

func (m *calendarStub) ListBusy(ctx context.Context, teacherRef string, from, to time.Time) ([]models.Interval, error) {
	return m.busy, m.err
}

func (m *calendarStub) CreateEvent(ctx context.Context, details gateway.EventDetails) (*gateway.CalendarEvent, error) {
	return &gateway.CalendarEvent{}, nil
}

func (m *calendarStub) UpdateEvent(ctx context.Context, eventRef string, details gateway.EventDetails) error {
	return nil
}

func (m *calendarStub) CancelEvent(ctx context.Context, eventRef string) error {
	return nil
}

func newSlotService(windows *windowsStub, bookings *bookingReaderStub, calendar *calendarStub) *SlotService {
	svc := NewSlotService(windows, bookings, calendar, NewSlotPlanner(30*time.Minute), nil, config.SlotCacheConfig{}, 0, nil, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2026, time.September, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestSlotServicePlanCombinesBusySources(t *testing.T) {
	windows := &windowsStub{windows: []models.AvailabilityWindow{{DayOfWeek: 1, StartMinute: 540, EndMinute: 660}}}
	bookings := &bookingReaderStub{bookings: []models.Booking{{
		ScheduledAt:     time.Date(2026, time.September, 7, 9, 30, 0, 0, time.UTC),
		DurationMinutes: 30,
	}}}
	calendar := &calendarStub{busy: []models.Interval{{
		Start: time.Date(2026, time.September, 7, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2026, time.September, 7, 10, 30, 0, 0, time.UTC),
	}}}

	svc := newSlotService(windows, bookings, calendar)

	slots, err := svc.PlanSlots(context.Background(), "t1", time.Date(2026, time.September, 7, 0, 0, 0, 0, time.UTC), 30)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, time.Date(2026, time.September, 7, 9, 0, 0, 0, time.UTC), slots[0].Start)
	assert.Equal(t, time.Date(2026, time.September, 7, 10, 30, 0, 0, time.UTC), slots[1].Start)
}

// A calendar failure is a hard error: guessing "no busy time" could offer
// slots that double-book the teacher externally.
func TestSlotServicePlanCalendarFailure(t *testing.T) {
	windows := &windowsStub{windows: []models.AvailabilityWindow{{DayOfWeek: 1, StartMinute: 540, EndMinute: 660}}}
	calendar := &calendarStub{err: appErrors.Clone(appErrors.ErrExternalService, "")}

	svc := newSlotService(windows, &bookingReaderStub{}, calendar)

	_, err := svc.PlanSlots(context.Background(), "t1", time.Date(2026, time.September, 7, 0, 0, 0, 0, time.UTC), 30)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrExternalService))
}

func TestSlotServicePlanNoWindows(t *testing.T) {
	svc := newSlotService(&windowsStub{}, &bookingReaderStub{}, &calendarStub{})

	slots, err := svc.PlanSlots(context.Background(), "t1", time.Date(2026, time.September, 6, 0, 0, 0, 0, time.UTC), 30)
	require.NoError(t, err)
	assert.Empty(t, slots)
	assert.NotNil(t, slots)
}

// A cached plan may outlive the notice buffer: starts that have slipped
// inside now+buffer since the plan was stored are no longer offerable.
func TestPruneElapsedSlots(t *testing.T) {
	cutoff := time.Date(2026, time.September, 7, 9, 30, 0, 0, time.UTC)
	slots := []models.Slot{
		{Start: cutoff.Add(-30 * time.Minute), End: cutoff},
		{Start: cutoff, End: cutoff.Add(30 * time.Minute)},
		{Start: cutoff.Add(time.Hour), End: cutoff.Add(90 * time.Minute)},
	}

	kept := pruneElapsedSlots(slots, cutoff)
	require.Len(t, kept, 2)
	assert.Equal(t, cutoff, kept[0].Start)
	assert.Equal(t, cutoff.Add(time.Hour), kept[1].Start)
}

func TestSlotServicePlanCountsCacheMiss(t *testing.T) {
	windows := &windowsStub{windows: []models.AvailabilityWindow{{DayOfWeek: 1, StartMinute: 540, EndMinute: 660}}}
	svc := newSlotService(windows, &bookingReaderStub{}, &calendarStub{})
	metrics := NewMetricsService()
	svc.metrics = metrics

	_, err := svc.PlanSlots(context.Background(), "t1", time.Date(2026, time.September, 7, 0, 0, 0, 0, time.UTC), 30)
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.slotPlanMisses))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.slotPlanHits))
}

func TestSlotServicePlanValidation(t *testing.T) {
	svc := newSlotService(&windowsStub{}, &bookingReaderStub{}, &calendarStub{})

	_, err := svc.PlanSlots(context.Background(), "", time.Now(), 30)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.PlanSlots(context.Background(), "t1", time.Now(), 0)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}
