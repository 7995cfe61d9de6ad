package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gym-class-api/internal/models"
)

const scheduleDetailSelect = `SELECT cs.id, cs.class_type_id, cs.professor_id, cs.day_of_week,
       to_char(cs.start_time, 'HH24:MI') AS start_time, to_char(cs.end_time, 'HH24:MI') AS end_time,
       cs.location, cs.capacity_override, cs.active, cs.created_at, cs.updated_at,
       ct.name AS class_type_name, ct.color AS class_type_color, ct.max_capacity AS class_type_capacity,
       ct.active AS class_type_active
FROM class_schedules cs
JOIN class_types ct ON ct.id = cs.class_type_id`

// ClassScheduleRepository persists recurring weekly slots.
type ClassScheduleRepository struct {
	db *sqlx.DB
}

// NewClassScheduleRepository constructs the repository.
func NewClassScheduleRepository(db *sqlx.DB) *ClassScheduleRepository {
	return &ClassScheduleRepository{db: db}
}

// List returns schedules joined with their class type.
func (r *ClassScheduleRepository) List(ctx context.Context, filter models.ClassScheduleFilter) ([]models.ClassScheduleDetail, error) {
	var conditions []string
	var args []interface{}
	if filter.ClassTypeID != "" {
		conditions = append(conditions, fmt.Sprintf("cs.class_type_id = $%d", len(args)+1))
		args = append(args, filter.ClassTypeID)
	}
	if filter.ProfessorID != "" {
		conditions = append(conditions, fmt.Sprintf("cs.professor_id = $%d", len(args)+1))
		args = append(args, filter.ProfessorID)
	}
	if filter.DayOfWeek != nil {
		conditions = append(conditions, fmt.Sprintf("cs.day_of_week = $%d", len(args)+1))
		args = append(args, *filter.DayOfWeek)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("cs.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}
	query := scheduleDetailSelect + clause + " ORDER BY cs.day_of_week ASC, cs.start_time ASC"

	var items []models.ClassScheduleDetail
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list class schedules: %w", err)
	}
	return items, nil
}

// FindByID loads a schedule with its class type.
func (r *ClassScheduleRepository) FindByID(ctx context.Context, id string) (*models.ClassScheduleDetail, error) {
	var item models.ClassScheduleDetail
	if err := r.db.GetContext(ctx, &item, scheduleDetailSelect+" WHERE cs.id = $1", id); err != nil {
		return nil, err
	}
	return &item, nil
}

// Create persists a new schedule.
func (r *ClassScheduleRepository) Create(ctx context.Context, item *models.ClassSchedule) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	const query = `INSERT INTO class_schedules (id, class_type_id, professor_id, day_of_week, start_time, end_time, location, capacity_override, active, created_at, updated_at)
VALUES (:id, :class_type_id, :professor_id, :day_of_week, :start_time, :end_time, :location, :capacity_override, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("create class schedule: %w", err)
	}
	return nil
}

// Update stores edits to a schedule. Already generated sessions are untouched.
func (r *ClassScheduleRepository) Update(ctx context.Context, item *models.ClassSchedule) error {
	item.UpdatedAt = time.Now().UTC()
	const query = `UPDATE class_schedules SET professor_id = :professor_id, day_of_week = :day_of_week, start_time = :start_time,
end_time = :end_time, location = :location, capacity_override = :capacity_override, active = :active, updated_at = :updated_at
WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, item)
	if err != nil {
		return fmt.Errorf("update class schedule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("class schedule rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetActive toggles whether future sessions are generated for the schedule.
func (r *ClassScheduleRepository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE class_schedules SET active = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set class schedule active: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("class schedule rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
