package handler

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gym-class-api/internal/dto"
	"github.com/noah-isme/gym-class-api/internal/models"
	appErrors "github.com/noah-isme/gym-class-api/pkg/errors"
	"github.com/noah-isme/gym-class-api/pkg/response"
)

type catalogService interface {
	ListClassTypes(ctx context.Context, filter models.ClassTypeFilter) ([]models.ClassType, error)
	GetClassType(ctx context.Context, id string) (*models.ClassType, error)
	CreateClassType(ctx context.Context, req dto.CreateClassTypeRequest) (*models.ClassType, error)
	UpdateClassType(ctx context.Context, id string, req dto.UpdateClassTypeRequest) (*models.ClassType, error)
	DeleteClassType(ctx context.Context, id string) error
	ListSchedules(ctx context.Context, filter models.ClassScheduleFilter) ([]models.ClassScheduleDetail, error)
	GetSchedule(ctx context.Context, id string) (*models.ClassScheduleDetail, error)
	CreateSchedule(ctx context.Context, req dto.CreateClassScheduleRequest) (*models.ClassScheduleDetail, error)
	UpdateSchedule(ctx context.Context, id string, req dto.UpdateClassScheduleRequest) (*models.ClassScheduleDetail, error)
	DeactivateSchedule(ctx context.Context, id string) error
}

// CatalogHandler exposes class type and schedule endpoints.
type CatalogHandler struct {
	catalog catalogService
}

// NewCatalogHandler constructs CatalogHandler.
func NewCatalogHandler(catalog catalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// ListClassTypes godoc
// @Summary List class types
// @Tags ClassTypes
// @Produce json
// @Param active query bool false "Filter by active flag"
// @Param search query string false "Name contains"
// @Success 200 {object} response.Envelope
// @Router /class-types [get]
func (h *CatalogHandler) ListClassTypes(c *gin.Context) {
	filter := models.ClassTypeFilter{Search: strings.TrimSpace(c.Query("search"))}
	active, err := optionalBool(c, "active")
	if err != nil {
		response.Error(c, err)
		return
	}
	filter.Active = active

	items, err := h.catalog.ListClassTypes(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// GetClassType godoc
// @Summary Get class type
// @Tags ClassTypes
// @Produce json
// @Param id path string true "Class type ID"
// @Success 200 {object} response.Envelope
// @Router /class-types/{id} [get]
func (h *CatalogHandler) GetClassType(c *gin.Context) {
	item, err := h.catalog.GetClassType(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, item)
}

// CreateClassType godoc
// @Summary Create class type
// @Tags ClassTypes
// @Accept json
// @Produce json
// @Param payload body dto.CreateClassTypeRequest true "Class type payload"
// @Success 201 {object} response.Envelope
// @Router /class-types [post]
func (h *CatalogHandler) CreateClassType(c *gin.Context) {
	var req dto.CreateClassTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	item, err := h.catalog.CreateClassType(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// UpdateClassType godoc
// @Summary Update class type
// @Tags ClassTypes
// @Accept json
// @Produce json
// @Param id path string true "Class type ID"
// @Param payload body dto.UpdateClassTypeRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Router /class-types/{id} [put]
func (h *CatalogHandler) UpdateClassType(c *gin.Context) {
	var req dto.UpdateClassTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	item, err := h.catalog.UpdateClassType(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, item)
}

// DeleteClassType godoc
// @Summary Delete an unreferenced class type
// @Tags ClassTypes
// @Param id path string true "Class type ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /class-types/{id} [delete]
func (h *CatalogHandler) DeleteClassType(c *gin.Context) {
	if err := h.catalog.DeleteClassType(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListSchedules godoc
// @Summary List schedules
// @Tags Schedules
// @Produce json
// @Param classTypeId query string false "Class type"
// @Param professorId query string false "Professor"
// @Param dayOfWeek query int false "0 = Sunday"
// @Param active query bool false "Active flag"
// @Success 200 {object} response.Envelope
// @Router /schedules [get]
func (h *CatalogHandler) ListSchedules(c *gin.Context) {
	filter := models.ClassScheduleFilter{
		ClassTypeID: c.Query("classTypeId"),
		ProfessorID: c.Query("professorId"),
	}
	if raw := c.Query("dayOfWeek"); raw != "" {
		day, err := strconv.Atoi(raw)
		if err != nil || day < 0 || day > 6 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "dayOfWeek must be between 0 and 6"))
			return
		}
		filter.DayOfWeek = &day
	}
	active, err := optionalBool(c, "active")
	if err != nil {
		response.Error(c, err)
		return
	}
	filter.Active = active

	items, err := h.catalog.ListSchedules(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// GetSchedule godoc
// @Summary Get schedule
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id} [get]
func (h *CatalogHandler) GetSchedule(c *gin.Context) {
	item, err := h.catalog.GetSchedule(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, item)
}

// CreateSchedule godoc
// @Summary Create schedule
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body dto.CreateClassScheduleRequest true "Schedule payload"
// @Success 201 {object} response.Envelope
// @Router /schedules [post]
func (h *CatalogHandler) CreateSchedule(c *gin.Context) {
	var req dto.CreateClassScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	item, err := h.catalog.CreateSchedule(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// UpdateSchedule godoc
// @Summary Update schedule
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param payload body dto.UpdateClassScheduleRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id} [put]
func (h *CatalogHandler) UpdateSchedule(c *gin.Context) {
	var req dto.UpdateClassScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err))
		return
	}
	item, err := h.catalog.UpdateSchedule(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, item)
}

// DeactivateSchedule godoc
// @Summary Stop generating sessions from a schedule
// @Tags Schedules
// @Param id path string true "Schedule ID"
// @Success 204
// @Router /schedules/{id}/deactivate [post]
func (h *CatalogHandler) DeactivateSchedule(c *gin.Context) {
	if err := h.catalog.DeactivateSchedule(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func optionalBool(c *gin.Context, key string) (*bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, key+" must be true or false")
	}
	return &value, nil
}
