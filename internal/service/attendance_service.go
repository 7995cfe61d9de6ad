package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/gym-class-api/internal/models"
	appErrors "github.com/noah-isme/gym-class-api/pkg/errors"
)

type attendanceMarker interface {
	CheckIn(ctx context.Context, enrollmentID string) (*models.ClassEnrollment, error)
	MarkNoShow(ctx context.Context, enrollmentID string) (*models.ClassEnrollment, error)
}

type rosterSessionStore interface {
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassSession, error)
	SetEnrollmentCount(ctx context.Context, exec sqlx.ExtContext, id string, count int) error
}

type rosterEnrollmentStore interface {
	ListActiveBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) ([]models.ClassEnrollment, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, from, to models.EnrollmentStatus, reason *string, at time.Time) error
}

// AttendanceService records check-ins and no-shows once a session has started.
type AttendanceService struct {
	marker      attendanceMarker
	sessions    rosterSessionStore
	enrollments rosterEnrollmentStore
	tx          txRunner
	cache       *CacheService
	logger      *zap.Logger
	location    *time.Location
	now         func() time.Time
}

// NewAttendanceService constructs AttendanceService.
func NewAttendanceService(marker attendanceMarker, sessions rosterSessionStore, enrollments rosterEnrollmentStore, tx txRunner, cache *CacheService, logger *zap.Logger, location *time.Location, now func() time.Time) *AttendanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if location == nil {
		location = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &AttendanceService{
		marker:      marker,
		sessions:    sessions,
		enrollments: enrollments,
		tx:          tx,
		cache:       cache,
		logger:      logger,
		location:    location,
		now:         now,
	}
}

// CheckIn marks the enrollment attended.
func (s *AttendanceService) CheckIn(ctx context.Context, enrollmentID string) (*models.ClassEnrollment, error) {
	return s.marker.CheckIn(ctx, enrollmentID)
}

// MarkNoShow marks the enrollment no_show.
func (s *AttendanceService) MarkNoShow(ctx context.Context, enrollmentID string) (*models.ClassEnrollment, error) {
	return s.marker.MarkNoShow(ctx, enrollmentID)
}

// CloseRoster marks every enrollment still active on a started session as
// no_show and zeroes the seat counter.
func (s *AttendanceService) CloseRoster(ctx context.Context, sessionID string) (*models.RosterCloseResult, error) {
	if err := validID(sessionID, "session"); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	result := &models.RosterCloseResult{SessionID: sessionID, EnrollmentIDs: []string{}}
	err := s.tx.WithinTx(ctx, func(ctx context.Context, exec sqlx.ExtContext) error {
		session, err := s.sessions.LockByID(ctx, exec, sessionID)
		if err != nil {
			return storeError(err, "session not found")
		}
		if session.Status == models.SessionStatusCancelled {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "session is cancelled")
		}
		startAt, err := session.StartsAt(s.location)
		if err != nil {
			return err
		}
		if now.Before(startAt) {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "attendance opens when the session starts")
		}

		active, err := s.enrollments.ListActiveBySession(ctx, exec, sessionID)
		if err != nil {
			return err
		}
		for _, enrollment := range active {
			if err := s.enrollments.UpdateStatus(ctx, exec, enrollment.ID, enrollment.Status, models.EnrollmentStatusNoShow, nil, now); err != nil {
				return err
			}
			result.EnrollmentIDs = append(result.EnrollmentIDs, enrollment.ID)
		}
		result.MarkedNoShow = len(result.EnrollmentIDs)
		if result.MarkedNoShow == 0 {
			return nil
		}
		return s.sessions.SetEnrollmentCount(ctx, exec, sessionID, 0)
	})
	if err != nil {
		return nil, storeError(err, "session not found")
	}

	s.cache.InvalidateSession(ctx, sessionID)
	s.logger.Info("roster closed", zap.String("session_id", sessionID), zap.Int("no_show", result.MarkedNoShow))
	return result, nil
}
