package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gym-class-api/internal/models"
)

func newWaitlistRepoMock(t *testing.T) (*WaitlistRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewWaitlistRepository(sqlx.NewDb(db, "sqlmock")), mock, func() { db.Close() }
}

func TestWaitlistRepositoryAppendAssignsTailPosition(t *testing.T) {
	repo, mock, cleanup := newWaitlistRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("COALESCE(MAX(position), 0) + 1")).
		WithArgs(sqlmock.AnyArg(), "sess-1", "stu-9", models.WaitlistStatusWaiting, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"position"}).AddRow(3))

	entry := &models.ClassWaitlistEntry{SessionID: "sess-1", StudentID: "stu-9"}
	require.NoError(t, repo.Append(context.Background(), nil, entry))
	assert.Equal(t, 3, entry.Position)
	assert.Equal(t, models.WaitlistStatusWaiting, entry.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitlistRepositoryNextWaitingLocksHead(t *testing.T) {
	repo, mock, cleanup := newWaitlistRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("status = 'waiting' ORDER BY position ASC LIMIT 1 FOR UPDATE")).
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "student_id", "position", "status", "added_at", "notified_at", "expires_at", "resolved_at"}).
			AddRow("wl-1", "sess-1", "stu-2", 1, "waiting", time.Now(), nil, nil, nil))

	entry, err := repo.NextWaiting(context.Background(), nil, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "wl-1", entry.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitlistRepositoryCloseGap(t *testing.T) {
	repo, mock, cleanup := newWaitlistRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("SET position = position - 1")).
		WithArgs("sess-1", 2).
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, repo.CloseGap(context.Background(), nil, "sess-1", 2))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitlistRepositoryResolveReportsStaleState(t *testing.T) {
	repo, mock, cleanup := newWaitlistRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE class_waitlist_entries SET status = $3, resolved_at = $4")).
		WithArgs("wl-1", models.WaitlistStatusNotified, models.WaitlistStatusExpired, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Resolve(context.Background(), nil, "wl-1", models.WaitlistStatusNotified, models.WaitlistStatusExpired, time.Now())
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitlistRepositoryCountNotifiedIgnoresLapsedHolds(t *testing.T) {
	repo, mock, cleanup := newWaitlistRepoMock(t)
	defer cleanup()

	now := time.Date(2030, 1, 7, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("status = 'notified' AND (expires_at IS NULL OR expires_at > $2)")).
		WithArgs("sess-1", now).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	held, err := repo.CountNotified(context.Background(), nil, "sess-1", now)
	require.NoError(t, err)
	assert.Equal(t, 1, held)
	require.NoError(t, mock.ExpectationsWereMet())
}
