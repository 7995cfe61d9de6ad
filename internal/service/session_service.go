package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/gym-class-api/internal/dto"
	"github.com/noah-isme/gym-class-api/internal/models"
	appErrors "github.com/noah-isme/gym-class-api/pkg/errors"
)

type sessionLifecycleStore interface {
	FindByID(ctx context.Context, id string) (*models.ClassSessionDetail, error)
	List(ctx context.Context, filter models.ClassSessionFilter) ([]models.ClassSessionDetail, int, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassSession, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, from, to models.SessionStatus, reason *string) error
	SetEnrollmentCount(ctx context.Context, exec sqlx.ExtContext, id string, count int) error
	ListByStatusUntil(ctx context.Context, status models.SessionStatus, until time.Time) ([]models.ClassSession, error)
}

type enrollmentCanceller interface {
	CancelActiveBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string, reason *string, at time.Time) (int64, error)
}

type waitlistCanceller interface {
	CancelActiveBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string, at time.Time) (int64, error)
}

// SessionService exposes session reads and the staff/clock driven lifecycle.
type SessionService struct {
	sessions    sessionLifecycleStore
	enrollments enrollmentCanceller
	waitlist    waitlistCanceller
	tx          txRunner
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
	location    *time.Location
	now         func() time.Time
}

// NewSessionService constructs SessionService.
func NewSessionService(
	sessions sessionLifecycleStore,
	enrollments enrollmentCanceller,
	waitlist waitlistCanceller,
	tx txRunner,
	cache *CacheService,
	validate *validator.Validate,
	logger *zap.Logger,
	location *time.Location,
	now func() time.Time,
) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if location == nil {
		location = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &SessionService{
		sessions:    sessions,
		enrollments: enrollments,
		waitlist:    waitlist,
		tx:          tx,
		cache:       cache,
		validator:   validate,
		logger:      logger,
		location:    location,
		now:         now,
	}
}

// Get returns a session with its class type and waitlist length.
func (s *SessionService) Get(ctx context.Context, id string) (*models.ClassSessionDetail, error) {
	if err := validID(id, "session"); err != nil {
		return nil, err
	}
	item, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "session not found")
	}
	return item, nil
}

// List returns a page of sessions matching the query.
func (s *SessionService) List(ctx context.Context, query dto.SessionListQuery) ([]models.ClassSessionDetail, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session filters")
	}
	filter := models.ClassSessionFilter{
		ClassTypeID: strings.TrimSpace(query.ClassTypeID),
		ProfessorID: strings.TrimSpace(query.ProfessorID),
		Status:      models.SessionStatus(query.Status),
		Page:        query.Page,
		PageSize:    query.PageSize,
	}
	if query.From != "" {
		from, err := time.Parse(dateLayout, query.From)
		if err != nil {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "from must be YYYY-MM-DD")
		}
		filter.From = &from
	}
	if query.To != "" {
		to, err := time.Parse(dateLayout, query.To)
		if err != nil {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "to must be YYYY-MM-DD")
		}
		filter.To = &to
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}
	if filter.PageSize > 200 {
		filter.PageSize = 200
	}

	items, total, err := s.sessions.List(ctx, filter)
	if err != nil {
		return nil, nil, storeError(err, "")
	}
	if items == nil {
		items = []models.ClassSessionDetail{}
	}
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Start moves a scheduled session to in_progress.
func (s *SessionService) Start(ctx context.Context, id string) (*models.ClassSessionDetail, error) {
	return s.transition(ctx, id, models.SessionStatusInProgress, nil)
}

// Complete moves an in-progress session to completed.
func (s *SessionService) Complete(ctx context.Context, id string) (*models.ClassSessionDetail, error) {
	return s.transition(ctx, id, models.SessionStatusCompleted, nil)
}

// Cancel cancels a scheduled session together with every active enrollment
// and waitlist entry on it.
func (s *SessionService) Cancel(ctx context.Context, id string, req dto.CancelSessionRequest) (*models.ClassSessionDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cancellation payload")
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "reason is required")
	}
	return s.transition(ctx, id, models.SessionStatusCancelled, &reason)
}

func (s *SessionService) transition(ctx context.Context, id string, target models.SessionStatus, reason *string) (*models.ClassSessionDetail, error) {
	if err := validID(id, "session"); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	var released, withdrawn int64
	err := s.tx.WithinTx(ctx, func(ctx context.Context, exec sqlx.ExtContext) error {
		session, err := s.sessions.LockByID(ctx, exec, id)
		if err != nil {
			return storeError(err, "session not found")
		}
		if !session.Status.CanTransitionTo(target) {
			return appErrors.Clone(appErrors.ErrInvalidTransition,
				"session cannot move from "+string(session.Status)+" to "+string(target))
		}
		if err := s.sessions.UpdateStatus(ctx, exec, id, session.Status, target, reason); err != nil {
			return err
		}
		if target != models.SessionStatusCancelled {
			return nil
		}
		if released, err = s.enrollments.CancelActiveBySession(ctx, exec, id, reason, now); err != nil {
			return err
		}
		if withdrawn, err = s.waitlist.CancelActiveBySession(ctx, exec, id, now); err != nil {
			return err
		}
		return s.sessions.SetEnrollmentCount(ctx, exec, id, 0)
	})
	if err != nil {
		return nil, storeError(err, "session not found")
	}

	s.cache.InvalidateSession(ctx, id)
	s.logger.Info("session transitioned",
		zap.String("session_id", id),
		zap.String("status", string(target)),
		zap.Int64("enrollments_cancelled", released),
		zap.Int64("waitlist_cancelled", withdrawn),
	)
	return s.Get(ctx, id)
}

// AdvanceByClock moves scheduled sessions that have started to in_progress and
// in-progress sessions that have ended to completed. It returns how many
// sessions it started and completed.
func (s *SessionService) AdvanceByClock(ctx context.Context) (started, completed int, err error) {
	now := s.now()
	today := dayOf(now.In(s.location))

	scheduled, err := s.sessions.ListByStatusUntil(ctx, models.SessionStatusScheduled, today)
	if err != nil {
		return 0, 0, storeError(err, "")
	}
	for _, session := range scheduled {
		startAt, err := session.StartsAt(s.location)
		if err != nil || now.Before(startAt) {
			continue
		}
		if s.advance(ctx, session.ID, models.SessionStatusScheduled, models.SessionStatusInProgress) {
			started++
		}
	}

	running, err := s.sessions.ListByStatusUntil(ctx, models.SessionStatusInProgress, today)
	if err != nil {
		return started, 0, storeError(err, "")
	}
	for _, session := range running {
		endAt, err := session.EndsAt(s.location)
		if err != nil || now.Before(endAt) {
			continue
		}
		if s.advance(ctx, session.ID, models.SessionStatusInProgress, models.SessionStatusCompleted) {
			completed++
		}
	}
	return started, completed, nil
}

func (s *SessionService) advance(ctx context.Context, id string, from, to models.SessionStatus) bool {
	err := s.tx.WithinTx(ctx, func(ctx context.Context, exec sqlx.ExtContext) error {
		if _, err := s.sessions.LockByID(ctx, exec, id); err != nil {
			return err
		}
		return s.sessions.UpdateStatus(ctx, exec, id, from, to, nil)
	})
	if err != nil {
		s.logger.Debug("session not advanced", zap.String("session_id", id), zap.String("to", string(to)), zap.Error(err))
		return false
	}
	s.cache.InvalidateSession(ctx, id)
	return true
}
