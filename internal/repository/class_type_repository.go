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

const classTypeColumns = `id, name, description, duration_minutes, max_capacity, color, active, created_at, updated_at`

// ClassTypeRepository handles persistence of class types.
type ClassTypeRepository struct {
	db *sqlx.DB
}

// NewClassTypeRepository constructs the repository.
func NewClassTypeRepository(db *sqlx.DB) *ClassTypeRepository {
	return &ClassTypeRepository{db: db}
}

// List returns class types ordered by name.
func (r *ClassTypeRepository) List(ctx context.Context, filter models.ClassTypeFilter) ([]models.ClassType, error) {
	var conditions []string
	var args []interface{}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", len(args)+1))
		args = append(args, "%"+search+"%")
	}
	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}
	query := "SELECT " + classTypeColumns + " FROM class_types" + clause + " ORDER BY name ASC"

	var items []models.ClassType
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list class types: %w", err)
	}
	return items, nil
}

// FindByID returns a class type by its ID.
func (r *ClassTypeRepository) FindByID(ctx context.Context, id string) (*models.ClassType, error) {
	query := "SELECT " + classTypeColumns + " FROM class_types WHERE id = $1"
	var item models.ClassType
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// Create persists a new class type.
func (r *ClassTypeRepository) Create(ctx context.Context, item *models.ClassType) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	const query = `INSERT INTO class_types (id, name, description, duration_minutes, max_capacity, color, active, created_at, updated_at)
VALUES (:id, :name, :description, :duration_minutes, :max_capacity, :color, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("create class type: %w", err)
	}
	return nil
}

// Update stores administrative edits to a class type.
func (r *ClassTypeRepository) Update(ctx context.Context, item *models.ClassType) error {
	item.UpdatedAt = time.Now().UTC()
	const query = `UPDATE class_types SET name = :name, description = :description, duration_minutes = :duration_minutes,
max_capacity = :max_capacity, color = :color, active = :active, updated_at = :updated_at WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, item)
	if err != nil {
		return fmt.Errorf("update class type: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("class type rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteUnreferenced removes a class type only when no schedule or session
// points at it. It returns sql.ErrNoRows when nothing was deleted.
func (r *ClassTypeRepository) DeleteUnreferenced(ctx context.Context, id string) error {
	const query = `DELETE FROM class_types t WHERE t.id = $1
AND NOT EXISTS (SELECT 1 FROM class_sessions s WHERE s.class_type_id = t.id)
AND NOT EXISTS (SELECT 1 FROM class_schedules c WHERE c.class_type_id = t.id)`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete class type: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("class type rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
