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

type enrollmentService interface {
	Enroll(ctx context.Context, req dto.EnrollRequest) (*models.EnrollResult, error)
	Confirm(ctx context.Context, enrollmentID string) (*models.ClassEnrollment, error)
	CancelEnrollment(ctx context.Context, enrollmentID string, req dto.CancelEnrollmentRequest) (*models.ClassEnrollment, error)
	GetEnrollment(ctx context.Context, id string) (*models.ClassEnrollment, error)
	ListEnrollments(ctx context.Context, sessionID string) ([]models.ClassEnrollment, error)
	ListWaitlist(ctx context.Context, sessionID string) ([]models.ClassWaitlistEntry, error)
	ListMyActiveClaims(ctx context.Context, studentID string) (*models.StudentClaims, error)
	GetWaitlistEntry(ctx context.Context, id string) (*models.ClassWaitlistEntry, error)
	CancelWaitlistEntry(ctx context.Context, entryID string) (*models.ClassWaitlistEntry, error)
	ClaimWaitlistSlot(ctx context.Context, entryID string) (*models.ClassEnrollment, error)
}

// EnrollmentHandler exposes enrollment and waitlist endpoints.
type EnrollmentHandler struct {
	enrollments enrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// Enroll godoc
// @Summary Enroll in a session
// @Description Takes a free seat (201) or joins the waitlist when the session is full (202).
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body dto.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	var req dto.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	studentID, err := resolveStudent(c, req.StudentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	req.StudentID = studentID

	result, err := h.enrollments.Enroll(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusCreated
	if result.Outcome == models.EnrollOutcomeWaitlisted {
		status = http.StatusAccepted
	}
	response.JSON(c, status, result, nil)
}

// Get godoc
// @Summary Get enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	item, ok := h.ownedEnrollment(c)
	if !ok {
		return
	}
	response.OK(c, item)
}

// Confirm godoc
// @Summary Confirm an enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/confirm [post]
func (h *EnrollmentHandler) Confirm(c *gin.Context) {
	if _, ok := h.ownedEnrollment(c); !ok {
		return
	}
	item, err := h.enrollments.Confirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, item)
}

// Cancel godoc
// @Summary Cancel an enrollment
// @Description Releases the seat and promotes the head of the waitlist.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body dto.CancelEnrollmentRequest false "Reason"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/cancel [post]
func (h *EnrollmentHandler) Cancel(c *gin.Context) {
	var req dto.CancelEnrollmentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, bindError(err))
			return
		}
	}
	if _, ok := h.ownedEnrollment(c); !ok {
		return
	}
	item, err := h.enrollments.CancelEnrollment(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, item)
}

// ListBySession godoc
// @Summary Session roster
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/enrollments [get]
func (h *EnrollmentHandler) ListBySession(c *gin.Context) {
	items, err := h.enrollments.ListEnrollments(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil, middleware.ExtractMeta(c))
}

// Waitlist godoc
// @Summary Session waitlist ordered by position
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/waitlist [get]
func (h *EnrollmentHandler) Waitlist(c *gin.Context) {
	items, err := h.enrollments.ListWaitlist(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil, middleware.ExtractMeta(c))
}

// MyClaims godoc
// @Summary Active enrollments and waitlist entries of the caller
// @Tags Enrollments
// @Produce json
// @Param studentId query string false "Student (staff only)"
// @Success 200 {object} response.Envelope
// @Router /me/claims [get]
func (h *EnrollmentHandler) MyClaims(c *gin.Context) {
	studentID, err := resolveStudent(c, c.Query("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	claims, err := h.enrollments.ListMyActiveClaims(c.Request.Context(), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, claims)
}

// GetWaitlistEntry godoc
// @Summary Get waitlist entry
// @Tags Waitlist
// @Produce json
// @Param id path string true "Waitlist entry ID"
// @Success 200 {object} response.Envelope
// @Router /waitlist/{id} [get]
func (h *EnrollmentHandler) GetWaitlistEntry(c *gin.Context) {
	entry, ok := h.ownedEntry(c)
	if !ok {
		return
	}
	response.OK(c, entry)
}

// CancelWaitlistEntry godoc
// @Summary Leave the waitlist
// @Tags Waitlist
// @Produce json
// @Param id path string true "Waitlist entry ID"
// @Success 200 {object} response.Envelope
// @Router /waitlist/{id}/cancel [post]
func (h *EnrollmentHandler) CancelWaitlistEntry(c *gin.Context) {
	if _, ok := h.ownedEntry(c); !ok {
		return
	}
	entry, err := h.enrollments.CancelWaitlistEntry(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, entry)
}

// ClaimWaitlistSlot godoc
// @Summary Claim the seat held for a notified entry
// @Tags Waitlist
// @Produce json
// @Param id path string true "Waitlist entry ID"
// @Success 201 {object} response.Envelope
// @Router /waitlist/{id}/claim [post]
func (h *EnrollmentHandler) ClaimWaitlistSlot(c *gin.Context) {
	if _, ok := h.ownedEntry(c); !ok {
		return
	}
	enrollment, err := h.enrollments.ClaimWaitlistSlot(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

func (h *EnrollmentHandler) ownedEnrollment(c *gin.Context) (*models.ClassEnrollment, bool) {
	item, err := h.enrollments.GetEnrollment(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	if err := authorizeOwner(c, item.StudentID); err != nil {
		response.Error(c, err)
		return nil, false
	}
	return item, true
}

func (h *EnrollmentHandler) ownedEntry(c *gin.Context) (*models.ClassWaitlistEntry, bool) {
	entry, err := h.enrollments.GetWaitlistEntry(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	if err := authorizeOwner(c, entry.StudentID); err != nil {
		response.Error(c, err)
		return nil, false
	}
	return entry, true
}
