package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gym-class-api/internal/models"
	appErrors "github.com/noah-isme/gym-class-api/pkg/errors"
)

const sessionColumns = `id, class_type_id, schedule_id, professor_id, session_date,
to_char(start_time, 'HH24:MI') AS start_time, to_char(end_time, 'HH24:MI') AS end_time, location,
max_capacity, current_enrollment_count, status, cancellation_reason, created_at, updated_at`

const sessionDetailSelect = `SELECT s.id, s.class_type_id, s.schedule_id, s.professor_id, s.session_date,
       to_char(s.start_time, 'HH24:MI') AS start_time, to_char(s.end_time, 'HH24:MI') AS end_time,
       s.location, s.max_capacity, s.current_enrollment_count, s.status, s.cancellation_reason, s.created_at, s.updated_at,
       ct.name AS class_type_name, ct.color AS class_type_color,
       (SELECT COUNT(*) FROM class_waitlist_entries w WHERE w.session_id = s.id AND w.status IN ('waiting', 'notified')) AS waitlist_count
FROM class_sessions s
JOIN class_types ct ON ct.id = s.class_type_id`

// ClassSessionRepository persists dated class occurrences and owns the
// authoritative seat counter.
type ClassSessionRepository struct {
	db *sqlx.DB
}

// NewClassSessionRepository constructs the repository.
func NewClassSessionRepository(db *sqlx.DB) *ClassSessionRepository {
	return &ClassSessionRepository{db: db}
}

func (r *ClassSessionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID returns a session with display data. It is not serialised with writers.
func (r *ClassSessionRepository) FindByID(ctx context.Context, id string) (*models.ClassSessionDetail, error) {
	var item models.ClassSessionDetail
	if err := r.db.GetContext(ctx, &item, sessionDetailSelect+" WHERE s.id = $1", id); err != nil {
		return nil, err
	}
	return &item, nil
}

// List returns sessions filtered by date window, type, professor and status.
func (r *ClassSessionRepository) List(ctx context.Context, filter models.ClassSessionFilter) ([]models.ClassSessionDetail, int, error) {
	var conditions []string
	var args []interface{}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("s.session_date >= $%d", len(args)+1))
		args = append(args, filter.From.Format("2006-01-02"))
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("s.session_date <= $%d", len(args)+1))
		args = append(args, filter.To.Format("2006-01-02"))
	}
	if filter.ClassTypeID != "" {
		conditions = append(conditions, fmt.Sprintf("s.class_type_id = $%d", len(args)+1))
		args = append(args, filter.ClassTypeID)
	}
	if filter.ProfessorID != "" {
		conditions = append(conditions, fmt.Sprintf("s.professor_id = $%d", len(args)+1))
		args = append(args, filter.ProfessorID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("s.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("%s%s ORDER BY s.session_date ASC, s.start_time ASC LIMIT %d OFFSET %d", sessionDetailSelect, clause, size, offset)
	var items []models.ClassSessionDetail
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list class sessions: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM class_sessions s"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count class sessions: %w", err)
	}
	return items, total, nil
}

// LockByID loads a session and holds its row lock until the transaction ends.
// Every write that touches a session's seats or waitlist goes through this
// lock, which serialises them per session while leaving other sessions free.
func (r *ClassSessionRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassSession, error) {
	var item models.ClassSession
	query := "SELECT " + sessionColumns + " FROM class_sessions WHERE id = $1 FOR UPDATE"
	if err := sqlx.GetContext(ctx, r.exec(exec), &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// InsertGenerated inserts a session materialised from a schedule. It reports
// false when the (schedule, date) pair already exists.
func (r *ClassSessionRepository) InsertGenerated(ctx context.Context, exec sqlx.ExtContext, item *models.ClassSession) (bool, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Status == "" {
		item.Status = models.SessionStatusScheduled
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	const query = `INSERT INTO class_sessions (id, class_type_id, schedule_id, professor_id, session_date, start_time, end_time, location,
max_capacity, current_enrollment_count, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10, $11, $12)
ON CONFLICT (schedule_id, session_date) WHERE schedule_id IS NOT NULL DO NOTHING
RETURNING id`
	var id string
	err := sqlx.GetContext(ctx, r.exec(exec), &id, query,
		item.ID, item.ClassTypeID, item.ScheduleID, item.ProfessorID, item.SessionDate.Format("2006-01-02"),
		item.StartTime, item.EndTime, item.Location, item.MaxCapacity, item.Status, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("insert class session: %w", err)
	}
	return true, nil
}

// ReserveSeat atomically takes one seat when the session is scheduled and has
// room. Seats held by notified waitlist entries whose claim window is still
// open at now count as taken, except for ownHolds of them which belong to the
// caller. When no seat is free it returns appErrors.ErrCapacityRaceLost.
func (r *ClassSessionRepository) ReserveSeat(ctx context.Context, exec sqlx.ExtContext, id string, ownHolds int, now time.Time) error {
	const query = `UPDATE class_sessions s
SET current_enrollment_count = s.current_enrollment_count + 1, updated_at = $3
WHERE s.id = $1 AND s.status = 'scheduled'
  AND s.current_enrollment_count
      + (SELECT COUNT(*) FROM class_waitlist_entries w WHERE w.session_id = s.id AND w.status = 'notified'
         AND (w.expires_at IS NULL OR w.expires_at > $3))
      - $2 < s.max_capacity`
	result, err := r.exec(exec).ExecContext(ctx, query, id, ownHolds, now.UTC())
	if err != nil {
		return fmt.Errorf("reserve seat: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserve seat rows affected: %w", err)
	}
	if affected == 0 {
		return appErrors.ErrCapacityRaceLost
	}
	return nil
}

// ReleaseSeat gives one seat back. The counter never goes below zero; it
// returns sql.ErrNoRows when there was nothing to release.
func (r *ClassSessionRepository) ReleaseSeat(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `UPDATE class_sessions SET current_enrollment_count = current_enrollment_count - 1, updated_at = $2
WHERE id = $1 AND current_enrollment_count > 0`
	result, err := r.exec(exec).ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("release seat: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("release seat rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetEnrollmentCount overwrites the cached counter. Callers hold the row lock.
func (r *ClassSessionRepository) SetEnrollmentCount(ctx context.Context, exec sqlx.ExtContext, id string, count int) error {
	const query = `UPDATE class_sessions SET current_enrollment_count = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, count, time.Now().UTC()); err != nil {
		return fmt.Errorf("set enrollment count: %w", err)
	}
	return nil
}

// UpdateStatus moves a session from one status to another. It returns
// sql.ErrNoRows when the session is no longer in the expected status.
func (r *ClassSessionRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, from, to models.SessionStatus, reason *string) error {
	const query = `UPDATE class_sessions SET status = $3, cancellation_reason = COALESCE($4, cancellation_reason), updated_at = $5
WHERE id = $1 AND status = $2`
	result, err := r.exec(exec).ExecContext(ctx, query, id, from, to, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("session status rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListByStatusUntil returns sessions in status dated on or before the given day.
func (r *ClassSessionRepository) ListByStatusUntil(ctx context.Context, status models.SessionStatus, until time.Time) ([]models.ClassSession, error) {
	query := "SELECT " + sessionColumns + " FROM class_sessions WHERE status = $1 AND session_date <= $2 ORDER BY session_date, start_time"
	var items []models.ClassSession
	if err := r.db.SelectContext(ctx, &items, query, status, until.Format("2006-01-02")); err != nil {
		return nil, fmt.Errorf("list sessions by status: %w", err)
	}
	return items, nil
}

// ListCountDrift returns sessions whose cached counter disagrees with the
// number of active enrollments. It is a read-only scan for the reconciliation job.
func (r *ClassSessionRepository) ListCountDrift(ctx context.Context) ([]models.CountDrift, error) {
	const query = `SELECT s.id AS session_id, s.current_enrollment_count AS cached, COALESCE(a.actual, 0) AS actual
FROM class_sessions s
LEFT JOIN (
    SELECT session_id, COUNT(*) AS actual FROM class_enrollments
    WHERE status IN ('enrolled', 'confirmed') GROUP BY session_id
) a ON a.session_id = s.id
WHERE s.current_enrollment_count <> COALESCE(a.actual, 0)`
	var items []models.CountDrift
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, fmt.Errorf("list count drift: %w", err)
	}
	return items, nil
}
