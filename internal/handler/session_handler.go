package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gym-class-api/internal/dto"
	"github.com/noah-isme/gym-class-api/internal/middleware"
	"github.com/noah-isme/gym-class-api/internal/models"
	"github.com/noah-isme/gym-class-api/pkg/response"
)

type sessionService interface {
	Get(ctx context.Context, id string) (*models.ClassSessionDetail, error)
	List(ctx context.Context, query dto.SessionListQuery) ([]models.ClassSessionDetail, *models.Pagination, error)
	Start(ctx context.Context, id string) (*models.ClassSessionDetail, error)
	Complete(ctx context.Context, id string) (*models.ClassSessionDetail, error)
	Cancel(ctx context.Context, id string, req dto.CancelSessionRequest) (*models.ClassSessionDetail, error)
}

type sessionGenerator interface {
	Generate(ctx context.Context, req dto.GenerateSessionsRequest) (*models.GenerationReport, error)
}

// SessionHandler exposes dated class sessions and their lifecycle.
type SessionHandler struct {
	sessions  sessionService
	generator sessionGenerator
}

// NewSessionHandler constructs SessionHandler.
func NewSessionHandler(sessions sessionService, generator sessionGenerator) *SessionHandler {
	return &SessionHandler{sessions: sessions, generator: generator}
}

// List godoc
// @Summary List sessions
// @Tags Sessions
// @Produce json
// @Param from query string false "First date (YYYY-MM-DD)"
// @Param to query string false "Last date (YYYY-MM-DD)"
// @Param classTypeId query string false "Class type"
// @Param professorId query string false "Professor"
// @Param status query string false "scheduled|in_progress|completed|cancelled"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	var query dto.SessionListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err))
		return
	}
	items, pagination, err := h.sessions.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination, middleware.ExtractMeta(c))
}

// Get godoc
// @Summary Get session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	item, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, item)
}

// Generate godoc
// @Summary Generate sessions from schedules
// @Description Idempotent per schedule and date. Omit scheduleId to expand every active schedule.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body dto.GenerateSessionsRequest true "Window"
// @Success 200 {object} response.Envelope
// @Router /sessions/generate [post]
func (h *SessionHandler) Generate(c *gin.Context) {
	var req dto.GenerateSessionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	report, err := h.generator.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, report)
}

// Start godoc
// @Summary Mark a session in progress
// @Tags Sessions
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/start [post]
func (h *SessionHandler) Start(c *gin.Context) {
	item, err := h.sessions.Start(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, item)
}

// Complete godoc
// @Summary Mark a session completed
// @Tags Sessions
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/complete [post]
func (h *SessionHandler) Complete(c *gin.Context) {
	item, err := h.sessions.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, item)
}

// Cancel godoc
// @Summary Cancel a scheduled session
// @Description Cancels every active enrollment and waitlist entry on the session.
// @Tags Sessions
// @Accept json
// @Param id path string true "Session ID"
// @Param payload body dto.CancelSessionRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/cancel [post]
func (h *SessionHandler) Cancel(c *gin.Context) {
	var req dto.CancelSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	item, err := h.sessions.Cancel(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, item)
}
