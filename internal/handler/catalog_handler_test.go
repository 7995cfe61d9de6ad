package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gym-class-api/internal/dto"
	"github.com/noah-isme/gym-class-api/internal/models"
	"github.com/noah-isme/gym-class-api/internal/service"
	appErrors "github.com/noah-isme/gym-class-api/pkg/errors"
)

type catalogServiceMock struct {
	typeFilter     models.ClassTypeFilter
	scheduleFilter models.ClassScheduleFilter
	created        dto.CreateClassTypeRequest
	deleteErr      error
	deactivated    string
}

func (m *catalogServiceMock) ListClassTypes(ctx context.Context, filter models.ClassTypeFilter) ([]models.ClassType, error) {
	m.typeFilter = filter
	return []models.ClassType{{ID: "ct1", Name: "Yoga"}}, nil
}

func (m *catalogServiceMock) GetClassType(ctx context.Context, id string) (*models.ClassType, error) {
	return &models.ClassType{ID: id}, nil
}

func (m *catalogServiceMock) CreateClassType(ctx context.Context, req dto.CreateClassTypeRequest) (*models.ClassType, error) {
	m.created = req
	return &models.ClassType{ID: "ct2", Name: req.Name, MaxCapacity: req.MaxCapacity}, nil
}

func (m *catalogServiceMock) UpdateClassType(ctx context.Context, id string, req dto.UpdateClassTypeRequest) (*models.ClassType, error) {
	return &models.ClassType{ID: id}, nil
}

func (m *catalogServiceMock) DeleteClassType(ctx context.Context, id string) error {
	return m.deleteErr
}

func (m *catalogServiceMock) ListSchedules(ctx context.Context, filter models.ClassScheduleFilter) ([]models.ClassScheduleDetail, error) {
	m.scheduleFilter = filter
	return []models.ClassScheduleDetail{}, nil
}

func (m *catalogServiceMock) GetSchedule(ctx context.Context, id string) (*models.ClassScheduleDetail, error) {
	return &models.ClassScheduleDetail{}, nil
}

func (m *catalogServiceMock) CreateSchedule(ctx context.Context, req dto.CreateClassScheduleRequest) (*models.ClassScheduleDetail, error) {
	return &models.ClassScheduleDetail{}, nil
}

func (m *catalogServiceMock) UpdateSchedule(ctx context.Context, id string, req dto.UpdateClassScheduleRequest) (*models.ClassScheduleDetail, error) {
	return &models.ClassScheduleDetail{}, nil
}

func (m *catalogServiceMock) DeactivateSchedule(ctx context.Context, id string) error {
	m.deactivated = id
	return nil
}

func TestCatalogListClassTypesFilters(t *testing.T) {
	mockSvc := &catalogServiceMock{}
	handler := NewCatalogHandler(mockSvc)

	c, w := newTestContext(http.MethodGet, "/class-types?active=true&search=yo", "", studentClaims)
	handler.ListClassTypes(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mockSvc.typeFilter.Active)
	assert.True(t, *mockSvc.typeFilter.Active)
	assert.Equal(t, "yo", mockSvc.typeFilter.Search)

	c, w = newTestContext(http.MethodGet, "/class-types?active=maybe", "", studentClaims)
	handler.ListClassTypes(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCatalogListSchedulesDayFilter(t *testing.T) {
	mockSvc := &catalogServiceMock{}
	handler := NewCatalogHandler(mockSvc)

	c, w := newTestContext(http.MethodGet, "/schedules?dayOfWeek=0&classTypeId=ct1", "", staffClaims)
	handler.ListSchedules(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mockSvc.scheduleFilter.DayOfWeek)
	assert.Equal(t, 0, *mockSvc.scheduleFilter.DayOfWeek)
	assert.Equal(t, "ct1", mockSvc.scheduleFilter.ClassTypeID)

	c, w = newTestContext(http.MethodGet, "/schedules?dayOfWeek=9", "", staffClaims)
	handler.ListSchedules(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCatalogCreateClassType(t *testing.T) {
	mockSvc := &catalogServiceMock{}
	handler := NewCatalogHandler(mockSvc)

	c, w := newTestContext(http.MethodPost, "/class-types", `{"name":"Spin","durationMinutes":45,"maxCapacity":12}`, staffClaims)
	handler.CreateClassType(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 12, mockSvc.created.MaxCapacity)
}

func TestCatalogDeleteClassTypeConflict(t *testing.T) {
	handler := NewCatalogHandler(&catalogServiceMock{deleteErr: appErrors.Clone(appErrors.ErrConflict, "class type is referenced")})

	c, w := newTestContext(http.MethodDelete, "/class-types/ct1", "", staffClaims)
	c.Params = gin.Params{{Key: "id", Value: "ct1"}}
	handler.DeleteClassType(c)
	assert.Equal(t, http.StatusConflict, w.Code)

	handler = NewCatalogHandler(&catalogServiceMock{})
	c, w = newTestContext(http.MethodDelete, "/class-types/ct1", "", staffClaims)
	c.Params = gin.Params{{Key: "id", Value: "ct1"}}
	handler.DeleteClassType(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestCatalogDeactivateSchedule(t *testing.T) {
	mockSvc := &catalogServiceMock{}
	handler := NewCatalogHandler(mockSvc)

	c, w := newTestContext(http.MethodPost, "/schedules/sch-1/deactivate", "", staffClaims)
	c.Params = gin.Params{{Key: "id", Value: "sch-1"}}
	handler.DeactivateSchedule(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "sch-1", mockSvc.deactivated)
}

func TestMetricsSummary(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.RecordEnrollOutcome(models.EnrollOutcomeEnrolled)
	handler := NewMetricsHandler(metrics)

	c, w := newTestContext(http.MethodGet, "/metrics/summary", "", staffClaims)
	handler.Summary(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"enrolled":1`)

	c, w = newTestContext(http.MethodGet, "/health", "", nil)
	handler.Health(c)
	assert.Equal(t, http.StatusOK, w.Code)
}
