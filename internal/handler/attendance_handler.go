package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gym-class-api/internal/models"
	"github.com/noah-isme/gym-class-api/pkg/response"
)

type attendanceService interface {
	CheckIn(ctx context.Context, enrollmentID string) (*models.ClassEnrollment, error)
	MarkNoShow(ctx context.Context, enrollmentID string) (*models.ClassEnrollment, error)
	CloseRoster(ctx context.Context, sessionID string) (*models.RosterCloseResult, error)
}

// AttendanceHandler exposes staff attendance actions.
type AttendanceHandler struct {
	attendance attendanceService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance attendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

// CheckIn godoc
// @Summary Check a student in
// @Tags Attendance
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/check-in [post]
func (h *AttendanceHandler) CheckIn(c *gin.Context) {
	item, err := h.attendance.CheckIn(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, item)
}

// MarkNoShow godoc
// @Summary Mark a student as no-show
// @Tags Attendance
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/no-show [post]
func (h *AttendanceHandler) MarkNoShow(c *gin.Context) {
	item, err := h.attendance.MarkNoShow(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, item)
}

// CloseRoster godoc
// @Summary Mark every remaining active enrollment as no-show
// @Tags Attendance
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/close-roster [post]
func (h *AttendanceHandler) CloseRoster(c *gin.Context) {
	result, err := h.attendance.CloseRoster(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}
