package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lessonloop/lessonloop-api/internal/service"
	"github.com/lessonloop/lessonloop-api/pkg/response"
)

// StudentHandler exposes per-student credit and attendance views.
type StudentHandler struct {
	ledger     *service.CreditLedger
	attendance *service.AttendanceService
}

// NewStudentHandler constructs handler.
func NewStudentHandler(ledger *service.CreditLedger, attendance *service.AttendanceService) *StudentHandler {
	return &StudentHandler{ledger: ledger, attendance: attendance}
}

// Packages godoc
// @Summary List a student's lesson packages
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/packages [get]
func (h *StudentHandler) Packages(c *gin.Context) {
	packages, err := h.ledger.ListPackages(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, packages, nil)
}

// Stats godoc
// @Summary Get a student's attendance statistics
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/stats [get]
func (h *StudentHandler) Stats(c *gin.Context) {
	stats, err := h.attendance.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}
