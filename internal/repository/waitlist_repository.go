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

const waitlistColumns = `id, session_id, student_id, position, status, added_at, notified_at, expires_at, resolved_at`

// WaitlistRepository persists ordered waitlist entries. Every write runs while
// the caller holds the owning session's row lock.
type WaitlistRepository struct {
	db *sqlx.DB
}

// NewWaitlistRepository constructs the repository.
func NewWaitlistRepository(db *sqlx.DB) *WaitlistRepository {
	return &WaitlistRepository{db: db}
}

func (r *WaitlistRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Append adds an entry at the tail of the session's active line and fills in
// its assigned position.
func (r *WaitlistRepository) Append(ctx context.Context, exec sqlx.ExtContext, item *models.ClassWaitlistEntry) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.Status = models.WaitlistStatusWaiting
	if item.AddedAt.IsZero() {
		item.AddedAt = time.Now().UTC()
	}
	const query = `INSERT INTO class_waitlist_entries (id, session_id, student_id, position, status, added_at)
SELECT $1, $2, $3, COALESCE(MAX(position), 0) + 1, $4, $5
FROM class_waitlist_entries WHERE session_id = $2 AND status IN ('waiting', 'notified')
RETURNING position`
	if err := sqlx.GetContext(ctx, r.exec(exec), &item.Position, query, item.ID, item.SessionID, item.StudentID, item.Status, item.AddedAt); err != nil {
		return fmt.Errorf("append waitlist entry: %w", err)
	}
	return nil
}

// FindByID returns an entry without locking it.
func (r *WaitlistRepository) FindByID(ctx context.Context, id string) (*models.ClassWaitlistEntry, error) {
	var item models.ClassWaitlistEntry
	query := "SELECT " + waitlistColumns + " FROM class_waitlist_entries WHERE id = $1"
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// LockByID loads an entry FOR UPDATE.
func (r *WaitlistRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassWaitlistEntry, error) {
	var item models.ClassWaitlistEntry
	query := "SELECT " + waitlistColumns + " FROM class_waitlist_entries WHERE id = $1 FOR UPDATE"
	if err := sqlx.GetContext(ctx, r.exec(exec), &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// NextWaiting returns the lowest-positioned waiting entry of a session, or
// sql.ErrNoRows when nobody is waiting.
func (r *WaitlistRepository) NextWaiting(ctx context.Context, exec sqlx.ExtContext, sessionID string) (*models.ClassWaitlistEntry, error) {
	var item models.ClassWaitlistEntry
	query := "SELECT " + waitlistColumns + " FROM class_waitlist_entries WHERE session_id = $1 AND status = 'waiting' ORDER BY position ASC LIMIT 1 FOR UPDATE"
	if err := sqlx.GetContext(ctx, r.exec(exec), &item, query, sessionID); err != nil {
		return nil, err
	}
	return &item, nil
}

// MarkNotified moves a waiting entry to notified with an expiry deadline.
func (r *WaitlistRepository) MarkNotified(ctx context.Context, exec sqlx.ExtContext, id string, at, expiresAt time.Time) error {
	const query = `UPDATE class_waitlist_entries SET status = 'notified', notified_at = $2, expires_at = $3
WHERE id = $1 AND status = 'waiting'`
	return r.expectOne(ctx, exec, "mark waitlist notified", query, id, at, expiresAt)
}

// Resolve moves an active entry to a terminal status. It returns sql.ErrNoRows
// when the entry is no longer in from.
func (r *WaitlistRepository) Resolve(ctx context.Context, exec sqlx.ExtContext, id string, from, to models.WaitlistStatus, at time.Time) error {
	const query = `UPDATE class_waitlist_entries SET status = $3, resolved_at = $4 WHERE id = $1 AND status = $2`
	return r.expectOne(ctx, exec, "resolve waitlist entry", query, id, from, to, at)
}

// CloseGap shifts every active entry behind position up by one, keeping
// positions dense after an entry leaves the line.
func (r *WaitlistRepository) CloseGap(ctx context.Context, exec sqlx.ExtContext, sessionID string, position int) error {
	const query = `UPDATE class_waitlist_entries SET position = position - 1
WHERE session_id = $1 AND position > $2 AND status IN ('waiting', 'notified')`
	if _, err := r.exec(exec).ExecContext(ctx, query, sessionID, position); err != nil {
		return fmt.Errorf("close waitlist gap: %w", err)
	}
	return nil
}

// CancelActiveBySession cancels every active entry of a session.
func (r *WaitlistRepository) CancelActiveBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string, at time.Time) (int64, error) {
	const query = `UPDATE class_waitlist_entries SET status = 'cancelled', resolved_at = $2
WHERE session_id = $1 AND status IN ('waiting', 'notified')`
	result, err := r.exec(exec).ExecContext(ctx, query, sessionID, at)
	if err != nil {
		return 0, fmt.Errorf("cancel session waitlist: %w", err)
	}
	return result.RowsAffected()
}

// CountNotified counts notified entries still holding a seat at now. Entries
// past their claim window no longer hold one, even before they are expired.
func (r *WaitlistRepository) CountNotified(ctx context.Context, exec sqlx.ExtContext, sessionID string, now time.Time) (int, error) {
	var count int
	const query = `SELECT COUNT(*) FROM class_waitlist_entries
WHERE session_id = $1 AND status = 'notified' AND (expires_at IS NULL OR expires_at > $2)`
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, sessionID, now.UTC()); err != nil {
		return 0, fmt.Errorf("count notified entries: %w", err)
	}
	return count, nil
}

// ListBySession returns the session's active line ordered by position.
func (r *WaitlistRepository) ListBySession(ctx context.Context, sessionID string) ([]models.ClassWaitlistEntry, error) {
	query := "SELECT " + waitlistColumns + " FROM class_waitlist_entries WHERE session_id = $1 AND status IN ('waiting', 'notified') ORDER BY position ASC"
	var items []models.ClassWaitlistEntry
	if err := r.db.SelectContext(ctx, &items, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session waitlist: %w", err)
	}
	return items, nil
}

// ListActiveByStudent returns the student's active entries across sessions.
func (r *WaitlistRepository) ListActiveByStudent(ctx context.Context, studentID string) ([]models.ClassWaitlistEntry, error) {
	query := "SELECT " + waitlistColumns + " FROM class_waitlist_entries WHERE student_id = $1 AND status IN ('waiting', 'notified') ORDER BY added_at ASC"
	var items []models.ClassWaitlistEntry
	if err := r.db.SelectContext(ctx, &items, query, studentID); err != nil {
		return nil, fmt.Errorf("list student waitlist: %w", err)
	}
	return items, nil
}

// ListExpiredNotified returns notified entries whose hold lapsed before now.
func (r *WaitlistRepository) ListExpiredNotified(ctx context.Context, now time.Time) ([]models.ClassWaitlistEntry, error) {
	query := "SELECT " + waitlistColumns + " FROM class_waitlist_entries WHERE status = 'notified' AND expires_at <= $1 ORDER BY expires_at ASC"
	var items []models.ClassWaitlistEntry
	if err := r.db.SelectContext(ctx, &items, query, now); err != nil {
		return nil, fmt.Errorf("list expired notifications: %w", err)
	}
	return items, nil
}

func (r *WaitlistRepository) expectOne(ctx context.Context, exec sqlx.ExtContext, op, query string, args ...interface{}) error {
	result, err := r.exec(exec).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
