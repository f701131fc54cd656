package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/lessonloop/lessonloop-api/internal/models"
	"github.com/lessonloop/lessonloop-api/pkg/config"
	appErrors "github.com/lessonloop/lessonloop-api/pkg/errors"
)

// HTTPCalendar is a JSON-over-HTTP CalendarGateway against the meetings
// provider configured in CalendarConfig.
type HTTPCalendar struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPCalendar constructs an HTTPCalendar.
func NewHTTPCalendar(cfg config.CalendarConfig) *HTTPCalendar {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPCalendar{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type busyInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type busyResponse struct {
	Busy []busyInterval `json:"busy"`
}

// ListBusy fetches the teacher's busy intervals in [from, to).
func (g *HTTPCalendar) ListBusy(ctx context.Context, teacherRef string, from, to time.Time) ([]models.Interval, error) {
	endpoint := fmt.Sprintf("%s/v1/calendars/%s/busy?from=%s&to=%s",
		g.baseURL,
		url.PathEscape(teacherRef),
		url.QueryEscape(from.Format(time.RFC3339)),
		url.QueryEscape(to.Format(time.RFC3339)),
	)

	var payload busyResponse
	if err := g.do(ctx, http.MethodGet, endpoint, nil, &payload); err != nil {
		return nil, err
	}

	intervals := make([]models.Interval, 0, len(payload.Busy))
	for _, b := range payload.Busy {
		intervals = append(intervals, models.Interval{Start: b.Start, End: b.End})
	}
	return intervals, nil
}

// CreateEvent creates a meeting event and returns its reference and link.
func (g *HTTPCalendar) CreateEvent(ctx context.Context, details EventDetails) (*CalendarEvent, error) {
	endpoint := g.baseURL + "/v1/events"
	var event CalendarEvent
	if err := g.do(ctx, http.MethodPost, endpoint, details, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// UpdateEvent moves an existing meeting event.
func (g *HTTPCalendar) UpdateEvent(ctx context.Context, eventRef string, details EventDetails) error {
	endpoint := g.baseURL + "/v1/events/" + url.PathEscape(eventRef)
	return g.do(ctx, http.MethodPut, endpoint, details, nil)
}

// CancelEvent removes a meeting event.
func (g *HTTPCalendar) CancelEvent(ctx context.Context, eventRef string) error {
	endpoint := g.baseURL + "/v1/events/" + url.PathEscape(eventRef)
	return g.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

func (g *HTTPCalendar) do(ctx context.Context, method, endpoint string, body interface{}, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrExternalService.Code, appErrors.ErrExternalService.Status, "encode calendar request")
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrExternalService.Code, appErrors.ErrExternalService.Status, "build calendar request")
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrExternalService.Code, appErrors.ErrExternalService.Status, "calendar request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return appErrors.Wrap(
			fmt.Errorf("calendar responded %d", resp.StatusCode),
			appErrors.ErrExternalService.Code,
			appErrors.ErrExternalService.Status,
			"calendar request rejected",
		)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return appErrors.Wrap(err, appErrors.ErrExternalService.Code, appErrors.ErrExternalService.Status, "decode calendar response")
		}
	}
	return nil
}
