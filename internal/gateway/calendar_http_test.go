package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lessonloop/lessonloop-api/pkg/config"
	appErrors "github.com/lessonloop/lessonloop-api/pkg/errors"
)

func newTestCalendar(baseURL string) *HTTPCalendar {
	return NewHTTPCalendar(config.CalendarConfig{
		BaseURL: baseURL,
		APIKey:  "secret",
		Timeout: 2 * time.Second,
	})
}

func TestHTTPCalendarListBusy(t *testing.T) {
	start := time.Date(2026, time.September, 7, 9, 30, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/calendars/teacher-1/busy", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.URL.Query().Get("from"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"busy": []map[string]string{
				{"start": start.Format(time.RFC3339), "end": start.Add(30 * time.Minute).Format(time.RFC3339)},
			},
		})
	}))
	defer server.Close()

	busy, err := newTestCalendar(server.URL).ListBusy(context.Background(), "teacher-1", start.Add(-time.Hour), start.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, busy, 1)
	assert.True(t, busy[0].Start.Equal(start))
}

func TestHTTPCalendarCreateEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/events", r.URL.Path)

		var details EventDetails
		require.NoError(t, json.NewDecoder(r.Body).Decode(&details))
		assert.Equal(t, "b1", details.BookingID)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(CalendarEvent{EventRef: "evt-1", MeetingLink: "https://meet.example/evt-1"})
	}))
	defer server.Close()

	event, err := newTestCalendar(server.URL).CreateEvent(context.Background(), EventDetails{
		BookingID:   "b1",
		TeacherID:   "t1",
		StudentID:   "s1",
		StartsAt:    time.Now(),
		DurationMin: 30,
	})
	require.NoError(t, err)
	assert.Equal(t, "evt-1", event.EventRef)
	assert.Equal(t, "https://meet.example/evt-1", event.MeetingLink)
}

func TestHTTPCalendarCancelEvent(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	require.NoError(t, newTestCalendar(server.URL).CancelEvent(context.Background(), "evt-1"))
	assert.Equal(t, "/v1/events/evt-1", gotPath)
}

func TestHTTPCalendarRejectedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestCalendar(server.URL).ListBusy(context.Background(), "teacher-1", time.Now(), time.Now().Add(time.Hour))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrExternalService))
}

func TestHTTPCalendarConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	err := newTestCalendar(server.URL).CancelEvent(context.Background(), "evt-1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrExternalService))
}
