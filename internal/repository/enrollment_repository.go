package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gym-class-api/internal/models"
)

const enrollmentColumns = `id, session_id, student_id, status, enrolled_at, confirmed_at, checked_in_at, cancelled_at,
cancellation_reason, waitlist_entry_id`

// EnrollmentRepository handles persistence for class enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs a new repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

func (r *EnrollmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts an enrollment in status enrolled.
func (r *EnrollmentRepository) Create(ctx context.Context, exec sqlx.ExtContext, item *models.ClassEnrollment) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Status == "" {
		item.Status = models.EnrollmentStatusEnrolled
	}
	if item.EnrolledAt.IsZero() {
		item.EnrolledAt = time.Now().UTC()
	}
	const query = `INSERT INTO class_enrollments (id, session_id, student_id, status, enrolled_at, waitlist_entry_id)
VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.exec(exec).ExecContext(ctx, query, item.ID, item.SessionID, item.StudentID, item.Status, item.EnrolledAt, item.WaitlistEntryID); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// FindByID returns an enrollment without locking it.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.ClassEnrollment, error) {
	var item models.ClassEnrollment
	query := "SELECT " + enrollmentColumns + " FROM class_enrollments WHERE id = $1"
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// LockByID loads an enrollment row FOR UPDATE. Callers lock the owning session first.
func (r *EnrollmentRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassEnrollment, error) {
	var item models.ClassEnrollment
	query := "SELECT " + enrollmentColumns + " FROM class_enrollments WHERE id = $1 FOR UPDATE"
	if err := sqlx.GetContext(ctx, r.exec(exec), &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// ActiveClaimExists reports whether the student already holds an active
// enrollment or an active waitlist entry on the session.
func (r *EnrollmentRepository) ActiveClaimExists(ctx context.Context, exec sqlx.ExtContext, sessionID, studentID string) (bool, error) {
	const query = `SELECT EXISTS (
    SELECT 1 FROM class_enrollments WHERE session_id = $1 AND student_id = $2 AND status IN ('enrolled', 'confirmed')
) OR EXISTS (
    SELECT 1 FROM class_waitlist_entries WHERE session_id = $1 AND student_id = $2 AND status IN ('waiting', 'notified')
)`
	var exists bool
	if err := sqlx.GetContext(ctx, r.exec(exec), &exists, query, sessionID, studentID); err != nil {
		return false, fmt.Errorf("check active claim: %w", err)
	}
	return exists, nil
}

// UpdateStatus moves an enrollment from one status to another and stamps the
// matching timestamp. It returns sql.ErrNoRows when the row is no longer in from.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, from, to models.EnrollmentStatus, reason *string, at time.Time) error {
	var column string
	switch to {
	case models.EnrollmentStatusConfirmed:
		column = "confirmed_at"
	case models.EnrollmentStatusAttended:
		column = "checked_in_at"
	case models.EnrollmentStatusCancelled:
		column = "cancelled_at"
	case models.EnrollmentStatusNoShow:
		column = ""
	default:
		return fmt.Errorf("update enrollment status: unsupported target %q", to)
	}

	query := "UPDATE class_enrollments SET status = $3, cancellation_reason = COALESCE($4, cancellation_reason)"
	args := []interface{}{id, from, to, reason}
	if column != "" {
		query += fmt.Sprintf(", %s = $5", column)
		args = append(args, at)
	}
	query += " WHERE id = $1 AND status = $2"

	result, err := r.exec(exec).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("enrollment status rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CancelActiveBySession cancels every active enrollment of a session and
// returns how many were changed.
func (r *EnrollmentRepository) CancelActiveBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string, reason *string, at time.Time) (int64, error) {
	const query = `UPDATE class_enrollments SET status = 'cancelled', cancelled_at = $2, cancellation_reason = COALESCE($3, cancellation_reason)
WHERE session_id = $1 AND status IN ('enrolled', 'confirmed')`
	result, err := r.exec(exec).ExecContext(ctx, query, sessionID, at, reason)
	if err != nil {
		return 0, fmt.Errorf("cancel session enrollments: %w", err)
	}
	return result.RowsAffected()
}

// ListBySession returns every enrollment of a session in enrolment order.
func (r *EnrollmentRepository) ListBySession(ctx context.Context, sessionID string) ([]models.ClassEnrollment, error) {
	query := "SELECT " + enrollmentColumns + " FROM class_enrollments WHERE session_id = $1 ORDER BY enrolled_at ASC, id ASC"
	var items []models.ClassEnrollment
	if err := r.db.SelectContext(ctx, &items, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session enrollments: %w", err)
	}
	return items, nil
}

// ListActiveBySession returns the enrollments that occupy a seat.
func (r *EnrollmentRepository) ListActiveBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) ([]models.ClassEnrollment, error) {
	query := "SELECT " + enrollmentColumns + " FROM class_enrollments WHERE session_id = $1 AND status IN ('enrolled', 'confirmed') ORDER BY enrolled_at ASC"
	var items []models.ClassEnrollment
	if err := sqlx.SelectContext(ctx, r.exec(exec), &items, query, sessionID); err != nil {
		return nil, fmt.Errorf("list active session enrollments: %w", err)
	}
	return items, nil
}

// ListActiveByStudent returns the student's active enrollments across sessions.
func (r *EnrollmentRepository) ListActiveByStudent(ctx context.Context, studentID string) ([]models.ClassEnrollment, error) {
	query := "SELECT " + enrollmentColumns + " FROM class_enrollments WHERE student_id = $1 AND status IN ('enrolled', 'confirmed') ORDER BY enrolled_at ASC"
	var items []models.ClassEnrollment
	if err := r.db.SelectContext(ctx, &items, query, studentID); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return items, nil
}

// CountActive counts the seat-occupying enrollments of a session.
func (r *EnrollmentRepository) CountActive(ctx context.Context, exec sqlx.ExtContext, sessionID string) (int, error) {
	var count int
	const query = `SELECT COUNT(*) FROM class_enrollments WHERE session_id = $1 AND status IN ('enrolled', 'confirmed')`
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, sessionID); err != nil {
		return 0, fmt.Errorf("count active enrollments: %w", err)
	}
	return count, nil
}
