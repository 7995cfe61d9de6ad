package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/gym-class-api/internal/dto"
	"github.com/noah-isme/gym-class-api/internal/models"
	appErrors "github.com/noah-isme/gym-class-api/pkg/errors"
)

const defaultClassColor = "#3b82f6"

type classTypeRepository interface {
	List(ctx context.Context, filter models.ClassTypeFilter) ([]models.ClassType, error)
	FindByID(ctx context.Context, id string) (*models.ClassType, error)
	Create(ctx context.Context, item *models.ClassType) error
	Update(ctx context.Context, item *models.ClassType) error
	DeleteUnreferenced(ctx context.Context, id string) error
}

type classScheduleRepository interface {
	List(ctx context.Context, filter models.ClassScheduleFilter) ([]models.ClassScheduleDetail, error)
	FindByID(ctx context.Context, id string) (*models.ClassScheduleDetail, error)
	Create(ctx context.Context, item *models.ClassSchedule) error
	Update(ctx context.Context, item *models.ClassSchedule) error
	SetActive(ctx context.Context, id string, active bool) error
}

// CatalogService manages class types and their recurring schedules.
type CatalogService struct {
	types     classTypeRepository
	schedules classScheduleRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCatalogService constructs CatalogService.
func NewCatalogService(types classTypeRepository, schedules classScheduleRepository, validate *validator.Validate, logger *zap.Logger) *CatalogService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{types: types, schedules: schedules, validator: validate, logger: logger}
}

// ListClassTypes returns class types filtered by activity and name.
func (s *CatalogService) ListClassTypes(ctx context.Context, filter models.ClassTypeFilter) ([]models.ClassType, error) {
	items, err := s.types.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class types")
	}
	return items, nil
}

// GetClassType returns a class type by id.
func (s *CatalogService) GetClassType(ctx context.Context, id string) (*models.ClassType, error) {
	if err := validID(id, "class type"); err != nil {
		return nil, err
	}
	item, err := s.types.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class type not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch class type")
	}
	return item, nil
}

// CreateClassType adds a new bookable modality.
func (s *CatalogService) CreateClassType(ctx context.Context, req dto.CreateClassTypeRequest) (*models.ClassType, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class type payload")
	}
	item := &models.ClassType{
		Name:            strings.TrimSpace(req.Name),
		Description:     req.Description,
		DurationMinutes: req.DurationMinutes,
		MaxCapacity:     req.MaxCapacity,
		Color:           req.Color,
		Active:          true,
	}
	if item.Color == "" {
		item.Color = defaultClassColor
	}
	if req.Active != nil {
		item.Active = *req.Active
	}
	if err := s.types.Create(ctx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class type")
	}
	s.logger.Info("class type created", zap.String("class_type_id", item.ID), zap.String("name", item.Name))
	return item, nil
}

// UpdateClassType applies administrative edits. Sessions already generated
// keep the capacity they were published with.
func (s *CatalogService) UpdateClassType(ctx context.Context, id string, req dto.UpdateClassTypeRequest) (*models.ClassType, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class type payload")
	}
	item, err := s.GetClassType(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "name cannot be empty")
		}
		item.Name = name
	}
	if req.Description != nil {
		item.Description = req.Description
	}
	if req.DurationMinutes != nil {
		item.DurationMinutes = *req.DurationMinutes
	}
	if req.MaxCapacity != nil {
		item.MaxCapacity = *req.MaxCapacity
	}
	if req.Color != nil {
		item.Color = *req.Color
	}
	if req.Active != nil {
		item.Active = *req.Active
	}
	if err := s.types.Update(ctx, item); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class type not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class type")
	}
	return item, nil
}

// DeleteClassType removes a class type that nothing references.
func (s *CatalogService) DeleteClassType(ctx context.Context, id string) error {
	if _, err := s.GetClassType(ctx, id); err != nil {
		return err
	}
	if err := s.types.DeleteUnreferenced(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrConflict, "class type is referenced by schedules or sessions; deactivate it instead")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete class type")
	}
	s.logger.Info("class type deleted", zap.String("class_type_id", id))
	return nil
}

// ListSchedules returns recurring slots with their class type.
func (s *CatalogService) ListSchedules(ctx context.Context, filter models.ClassScheduleFilter) ([]models.ClassScheduleDetail, error) {
	items, err := s.schedules.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedules")
	}
	return items, nil
}

// GetSchedule returns a schedule by id.
func (s *CatalogService) GetSchedule(ctx context.Context, id string) (*models.ClassScheduleDetail, error) {
	if err := validID(id, "schedule"); err != nil {
		return nil, err
	}
	item, err := s.schedules.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch schedule")
	}
	return item, nil
}

// CreateSchedule adds a recurring weekly slot for a class type.
func (s *CatalogService) CreateSchedule(ctx context.Context, req dto.CreateClassScheduleRequest) (*models.ClassScheduleDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}
	if _, err := s.GetClassType(ctx, req.ClassTypeID); err != nil {
		return nil, err
	}
	start, end, err := normaliseSlot(req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}
	item := &models.ClassSchedule{
		ClassTypeID:      req.ClassTypeID,
		ProfessorID:      req.ProfessorID,
		DayOfWeek:        *req.DayOfWeek,
		StartTime:        start,
		EndTime:          end,
		Location:         req.Location,
		CapacityOverride: req.CapacityOverride,
		Active:           true,
	}
	if err := s.schedules.Create(ctx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create schedule")
	}
	s.logger.Info("schedule created", zap.String("schedule_id", item.ID), zap.Int("day_of_week", item.DayOfWeek))
	return s.GetSchedule(ctx, item.ID)
}

// UpdateSchedule edits a schedule. Only sessions generated afterwards see the change.
func (s *CatalogService) UpdateSchedule(ctx context.Context, id string, req dto.UpdateClassScheduleRequest) (*models.ClassScheduleDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}
	detail, err := s.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	item := detail.ClassSchedule
	if req.ProfessorID != nil {
		item.ProfessorID = req.ProfessorID
	}
	if req.DayOfWeek != nil {
		item.DayOfWeek = *req.DayOfWeek
	}
	start, end := item.StartTime, item.EndTime
	if req.StartTime != nil {
		start = *req.StartTime
	}
	if req.EndTime != nil {
		end = *req.EndTime
	}
	if item.StartTime, item.EndTime, err = normaliseSlot(start, end); err != nil {
		return nil, err
	}
	if req.Location != nil {
		item.Location = req.Location
	}
	if req.CapacityOverride != nil {
		item.CapacityOverride = req.CapacityOverride
	}
	if req.Active != nil {
		item.Active = *req.Active
	}
	if err := s.schedules.Update(ctx, &item); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update schedule")
	}
	return s.GetSchedule(ctx, id)
}

// DeactivateSchedule stops future generation without touching existing sessions.
func (s *CatalogService) DeactivateSchedule(ctx context.Context, id string) error {
	if err := validID(id, "schedule"); err != nil {
		return err
	}
	if err := s.schedules.SetActive(ctx, id, false); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate schedule")
	}
	s.logger.Info("schedule deactivated", zap.String("schedule_id", id))
	return nil
}

// normaliseSlot validates a start/end pair and returns them as HH:MM.
func normaliseSlot(start, end string) (string, string, error) {
	startMin, err := models.ClockMinutes(start)
	if err != nil {
		return "", "", appErrors.Clone(appErrors.ErrValidation, "startTime must be HH:MM")
	}
	endMin, err := models.ClockMinutes(end)
	if err != nil {
		return "", "", appErrors.Clone(appErrors.ErrValidation, "endTime must be HH:MM")
	}
	if startMin >= endMin {
		return "", "", appErrors.Clone(appErrors.ErrValidation, "startTime must be before endTime")
	}
	return formatClock(startMin), formatClock(endMin), nil
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
