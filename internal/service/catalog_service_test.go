package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gym-class-api/internal/dto"
	"github.com/noah-isme/gym-class-api/internal/models"
	appErrors "github.com/noah-isme/gym-class-api/pkg/errors"
)

type classTypeRepoStub struct {
	items      map[string]*models.ClassType
	referenced map[string]bool
	deleted    []string
}

func newClassTypeRepoStub() *classTypeRepoStub {
	return &classTypeRepoStub{items: map[string]*models.ClassType{}, referenced: map[string]bool{}}
}

func (s *classTypeRepoStub) List(ctx context.Context, filter models.ClassTypeFilter) ([]models.ClassType, error) {
	var out []models.ClassType
	for _, item := range s.items {
		if filter.Active != nil && item.Active != *filter.Active {
			continue
		}
		out = append(out, *item)
	}
	return out, nil
}

func (s *classTypeRepoStub) FindByID(ctx context.Context, id string) (*models.ClassType, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *item
	return &clone, nil
}

func (s *classTypeRepoStub) Create(ctx context.Context, item *models.ClassType) error {
	item.ID = uuid.NewString()
	clone := *item
	s.items[item.ID] = &clone
	return nil
}

func (s *classTypeRepoStub) Update(ctx context.Context, item *models.ClassType) error {
	if _, ok := s.items[item.ID]; !ok {
		return sql.ErrNoRows
	}
	clone := *item
	s.items[item.ID] = &clone
	return nil
}

func (s *classTypeRepoStub) DeleteUnreferenced(ctx context.Context, id string) error {
	if _, ok := s.items[id]; !ok || s.referenced[id] {
		return sql.ErrNoRows
	}
	delete(s.items, id)
	s.deleted = append(s.deleted, id)
	return nil
}

type scheduleRepoStub struct {
	types *classTypeRepoStub
	items map[string]*models.ClassSchedule
	err   error
}

func (s *scheduleRepoStub) detail(item *models.ClassSchedule) models.ClassScheduleDetail {
	detail := models.ClassScheduleDetail{ClassSchedule: *item}
	if ct, ok := s.types.items[item.ClassTypeID]; ok {
		detail.ClassTypeName = ct.Name
		detail.ClassTypeCapacity = ct.MaxCapacity
		detail.ClassTypeActive = ct.Active
	}
	return detail
}

func (s *scheduleRepoStub) List(ctx context.Context, filter models.ClassScheduleFilter) ([]models.ClassScheduleDetail, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []models.ClassScheduleDetail
	for _, item := range s.items {
		if filter.Active != nil && item.Active != *filter.Active {
			continue
		}
		out = append(out, s.detail(item))
	}
	return out, nil
}

func (s *scheduleRepoStub) FindByID(ctx context.Context, id string) (*models.ClassScheduleDetail, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	detail := s.detail(item)
	return &detail, nil
}

func (s *scheduleRepoStub) Create(ctx context.Context, item *models.ClassSchedule) error {
	item.ID = uuid.NewString()
	clone := *item
	s.items[item.ID] = &clone
	return nil
}

func (s *scheduleRepoStub) Update(ctx context.Context, item *models.ClassSchedule) error {
	if _, ok := s.items[item.ID]; !ok {
		return sql.ErrNoRows
	}
	clone := *item
	s.items[item.ID] = &clone
	return nil
}

func (s *scheduleRepoStub) SetActive(ctx context.Context, id string, active bool) error {
	item, ok := s.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	item.Active = active
	return nil
}

func newCatalogFixture() (*CatalogService, *classTypeRepoStub, *scheduleRepoStub) {
	types := newClassTypeRepoStub()
	schedules := &scheduleRepoStub{types: types, items: map[string]*models.ClassSchedule{}}
	return NewCatalogService(types, schedules, nil, nil), types, schedules
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func TestCatalogCreateClassTypeDefaults(t *testing.T) {
	svc, _, _ := newCatalogFixture()

	item, err := svc.CreateClassType(context.Background(), dto.CreateClassTypeRequest{
		Name: "  Spinning ", DurationMinutes: 45, MaxCapacity: 12,
	})
	require.NoError(t, err)
	assert.Equal(t, "Spinning", item.Name)
	assert.Equal(t, defaultClassColor, item.Color)
	assert.True(t, item.Active)

	_, err = svc.CreateClassType(context.Background(), dto.CreateClassTypeRequest{Name: "Yoga", DurationMinutes: 60})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestCatalogUpdateClassType(t *testing.T) {
	svc, types, _ := newCatalogFixture()
	item, err := svc.CreateClassType(context.Background(), dto.CreateClassTypeRequest{Name: "Yoga", DurationMinutes: 60, MaxCapacity: 10})
	require.NoError(t, err)

	inactive := false
	updated, err := svc.UpdateClassType(context.Background(), item.ID, dto.UpdateClassTypeRequest{
		MaxCapacity: intPtr(20),
		Active:      &inactive,
	})
	require.NoError(t, err)
	assert.Equal(t, 20, updated.MaxCapacity)
	assert.False(t, types.items[item.ID].Active)

	_, err = svc.UpdateClassType(context.Background(), item.ID, dto.UpdateClassTypeRequest{Name: strPtr("   ")})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.UpdateClassType(context.Background(), uuid.NewString(), dto.UpdateClassTypeRequest{})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestCatalogDeleteClassTypeRejectsReferenced(t *testing.T) {
	svc, types, _ := newCatalogFixture()
	used, err := svc.CreateClassType(context.Background(), dto.CreateClassTypeRequest{Name: "Pilates", DurationMinutes: 50, MaxCapacity: 8})
	require.NoError(t, err)
	unused, err := svc.CreateClassType(context.Background(), dto.CreateClassTypeRequest{Name: "Boxing", DurationMinutes: 60, MaxCapacity: 16})
	require.NoError(t, err)
	types.referenced[used.ID] = true

	err = svc.DeleteClassType(context.Background(), used.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
	assert.Contains(t, types.items, used.ID)

	require.NoError(t, svc.DeleteClassType(context.Background(), unused.ID))
	assert.Equal(t, []string{unused.ID}, types.deleted)

	err = svc.DeleteClassType(context.Background(), "not-a-uuid")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestCatalogCreateScheduleValidatesSlot(t *testing.T) {
	svc, _, schedules := newCatalogFixture()
	ct, err := svc.CreateClassType(context.Background(), dto.CreateClassTypeRequest{Name: "Yoga", DurationMinutes: 60, MaxCapacity: 10})
	require.NoError(t, err)

	_, err = svc.CreateSchedule(context.Background(), dto.CreateClassScheduleRequest{
		ClassTypeID: ct.ID, DayOfWeek: intPtr(2), StartTime: "09:00", EndTime: "08:00",
	})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.CreateSchedule(context.Background(), dto.CreateClassScheduleRequest{
		ClassTypeID: ct.ID, DayOfWeek: intPtr(7), StartTime: "07:00", EndTime: "08:00",
	})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.CreateSchedule(context.Background(), dto.CreateClassScheduleRequest{
		ClassTypeID: uuid.NewString(), DayOfWeek: intPtr(2), StartTime: "07:00", EndTime: "08:00",
	})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	created, err := svc.CreateSchedule(context.Background(), dto.CreateClassScheduleRequest{
		ClassTypeID: ct.ID, DayOfWeek: intPtr(0), StartTime: "7:05", EndTime: "08:00:00",
	})
	require.NoError(t, err)
	assert.Equal(t, "07:05", created.StartTime)
	assert.Equal(t, "08:00", created.EndTime)
	assert.Equal(t, 0, created.DayOfWeek)
	assert.Equal(t, 10, created.EffectiveCapacity())
	assert.Len(t, schedules.items, 1)
}

func TestCatalogUpdateAndDeactivateSchedule(t *testing.T) {
	svc, _, schedules := newCatalogFixture()
	ct, err := svc.CreateClassType(context.Background(), dto.CreateClassTypeRequest{Name: "Yoga", DurationMinutes: 60, MaxCapacity: 10})
	require.NoError(t, err)
	created, err := svc.CreateSchedule(context.Background(), dto.CreateClassScheduleRequest{
		ClassTypeID: ct.ID, DayOfWeek: intPtr(1), StartTime: "18:00", EndTime: "19:00",
	})
	require.NoError(t, err)

	updated, err := svc.UpdateSchedule(context.Background(), created.ID, dto.UpdateClassScheduleRequest{
		CapacityOverride: intPtr(4),
		EndTime:          strPtr("19:30"),
	})
	require.NoError(t, err)
	assert.Equal(t, 4, updated.EffectiveCapacity())
	assert.Equal(t, "19:30", updated.EndTime)

	_, err = svc.UpdateSchedule(context.Background(), created.ID, dto.UpdateClassScheduleRequest{StartTime: strPtr("20:00")})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	require.NoError(t, svc.DeactivateSchedule(context.Background(), created.ID))
	assert.False(t, schedules.items[created.ID].Active)

	err = svc.DeactivateSchedule(context.Background(), uuid.NewString())
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
