package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lessonloop/lessonloop-api/internal/service"
	appErrors "github.com/lessonloop/lessonloop-api/pkg/errors"
	"github.com/lessonloop/lessonloop-api/pkg/response"
)

// SlotHandler exposes bookable slot plans.
type SlotHandler struct {
	service *service.SlotService
}

// NewSlotHandler constructs handler.
func NewSlotHandler(svc *service.SlotService) *SlotHandler {
	return &SlotHandler{service: svc}
}

// Plan godoc
// @Summary List bookable slots for a teacher on a date
// @Tags Slots
// @Produce json
// @Param id path string true "Teacher ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param duration query int true "Lesson duration in minutes"
// @Success 200 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /teachers/{id}/slots [get]
func (h *SlotHandler) Plan(c *gin.Context) {
	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
		return
	}
	duration, err := strconv.Atoi(c.Query("duration"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "duration must be an integer number of minutes"))
		return
	}

	slots, err := h.service.PlanSlots(c.Request.Context(), c.Param("id"), date, duration)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}
