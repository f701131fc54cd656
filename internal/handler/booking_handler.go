package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lessonloop/lessonloop-api/internal/models"
	"github.com/lessonloop/lessonloop-api/internal/service"
	appErrors "github.com/lessonloop/lessonloop-api/pkg/errors"
	"github.com/lessonloop/lessonloop-api/pkg/response"
)

// BookingHandler manages booking lifecycle endpoints.
type BookingHandler struct {
	service    *service.BookingService
	attendance *service.AttendanceService
	metrics    *service.MetricsService
}

// NewBookingHandler constructs handler.
func NewBookingHandler(svc *service.BookingService, attendance *service.AttendanceService, metrics *service.MetricsService) *BookingHandler {
	return &BookingHandler{service: svc, attendance: attendance, metrics: metrics}
}

// Create godoc
// @Summary Book a lesson
// @Tags Bookings
// @Accept json
// @Produce json
// @Param payload body service.CreateBookingRequest true "Booking payload"
// @Success 201 {object} response.Envelope
// @Failure 402 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /bookings [post]
func (h *BookingHandler) Create(c *gin.Context) {
	var req service.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	booking, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		h.record("create", err)
		response.Error(c, err)
		return
	}
	h.record("create", nil)
	response.Created(c, booking)
}

// Get godoc
// @Summary Get a booking
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id} [get]
func (h *BookingHandler) Get(c *gin.Context) {
	booking, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// List godoc
// @Summary List bookings
// @Tags Bookings
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param teacherId query string false "Filter by teacher"
// @Param status query string false "Filter by status"
// @Param from query string false "Scheduled from (RFC3339)"
// @Param to query string false "Scheduled before (RFC3339)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /bookings [get]
func (h *BookingHandler) List(c *gin.Context) {
	var filter models.BookingFilter
	filter.StudentID = c.Query("studentId")
	filter.TeacherID = c.Query("teacherId")
	if raw := strings.ToUpper(c.Query("status")); raw != "" {
		status := models.BookingStatus(raw)
		filter.Status = &status
	}
	if raw := c.Query("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "from must be RFC3339"))
			return
		}
		filter.From = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "to must be RFC3339"))
			return
		}
		filter.To = &to
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = limit
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	bookings, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bookings, pagination)
}

// Cancel godoc
// @Summary Cancel a booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body service.CancelBookingRequest true "Cancellation payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /bookings/{id}/cancel [post]
func (h *BookingHandler) Cancel(c *gin.Context) {
	var req service.CancelBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	booking, err := h.service.Cancel(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.record("cancel", err)
		response.Error(c, err)
		return
	}
	h.record("cancel", nil)
	response.JSON(c, http.StatusOK, booking, nil)
}

// Reschedule godoc
// @Summary Reschedule a booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body service.RescheduleBookingRequest true "Reschedule payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /bookings/{id}/reschedule [post]
func (h *BookingHandler) Reschedule(c *gin.Context) {
	var req service.RescheduleBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	booking, err := h.service.Reschedule(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.record("reschedule", err)
		response.Error(c, err)
		return
	}
	h.record("reschedule", nil)
	response.JSON(c, http.StatusOK, booking, nil)
}

// MarkAttendance godoc
// @Summary Mark attendance for a booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body service.MarkAttendanceRequest true "Attendance payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /bookings/{id}/attendance [post]
func (h *BookingHandler) MarkAttendance(c *gin.Context) {
	var req service.MarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	booking, err := h.service.MarkAttendance(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.record("attendance", err)
		response.Error(c, err)
		return
	}
	h.record("attendance", nil)
	response.JSON(c, http.StatusOK, booking, nil)
}

// AttendanceLog godoc
// @Summary List attendance log entries for a booking
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id}/attendance [get]
func (h *BookingHandler) AttendanceLog(c *gin.Context) {
	entries, err := h.attendance.Log(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// RetryCalendarSync godoc
// @Summary Re-issue calendar event creation for a booking
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /bookings/{id}/calendar-sync [post]
func (h *BookingHandler) RetryCalendarSync(c *gin.Context) {
	if err := h.service.RetryCalendarSync(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"status": "queued"}, nil)
}

func (h *BookingHandler) record(operation string, err error) {
	if h.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case appErrors.Is(err, appErrors.ErrConflict):
		outcome = "conflict"
	case appErrors.Is(err, appErrors.ErrCreditExhausted):
		outcome = "credit_exhausted"
	case appErrors.Is(err, appErrors.ErrInvalidState):
		outcome = "invalid_state"
	case appErrors.Is(err, appErrors.ErrValidation):
		outcome = "invalid"
	default:
		outcome = "error"
	}
	h.metrics.RecordBookingOperation(operation, outcome)
}
