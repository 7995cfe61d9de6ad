package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/gym-class-api/internal/dto"
	"github.com/noah-isme/gym-class-api/internal/models"
	"github.com/noah-isme/gym-class-api/pkg/config"
	appErrors "github.com/noah-isme/gym-class-api/pkg/errors"
)

type sessionSeatStore interface {
	FindByID(ctx context.Context, id string) (*models.ClassSessionDetail, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassSession, error)
	ReserveSeat(ctx context.Context, exec sqlx.ExtContext, id string, ownHolds int, now time.Time) error
	ReleaseSeat(ctx context.Context, exec sqlx.ExtContext, id string) error
	SetEnrollmentCount(ctx context.Context, exec sqlx.ExtContext, id string, count int) error
	ListCountDrift(ctx context.Context) ([]models.CountDrift, error)
}

type enrollmentStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, item *models.ClassEnrollment) error
	FindByID(ctx context.Context, id string) (*models.ClassEnrollment, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassEnrollment, error)
	ActiveClaimExists(ctx context.Context, exec sqlx.ExtContext, sessionID, studentID string) (bool, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, from, to models.EnrollmentStatus, reason *string, at time.Time) error
	ListBySession(ctx context.Context, sessionID string) ([]models.ClassEnrollment, error)
	ListActiveByStudent(ctx context.Context, studentID string) ([]models.ClassEnrollment, error)
	CountActive(ctx context.Context, exec sqlx.ExtContext, sessionID string) (int, error)
}

type waitlistStore interface {
	Append(ctx context.Context, exec sqlx.ExtContext, item *models.ClassWaitlistEntry) error
	FindByID(ctx context.Context, id string) (*models.ClassWaitlistEntry, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassWaitlistEntry, error)
	NextWaiting(ctx context.Context, exec sqlx.ExtContext, sessionID string) (*models.ClassWaitlistEntry, error)
	MarkNotified(ctx context.Context, exec sqlx.ExtContext, id string, at, expiresAt time.Time) error
	Resolve(ctx context.Context, exec sqlx.ExtContext, id string, from, to models.WaitlistStatus, at time.Time) error
	CloseGap(ctx context.Context, exec sqlx.ExtContext, sessionID string, position int) error
	CountNotified(ctx context.Context, exec sqlx.ExtContext, sessionID string, now time.Time) (int, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.ClassWaitlistEntry, error)
	ListActiveByStudent(ctx context.Context, studentID string) ([]models.ClassWaitlistEntry, error)
	ListExpiredNotified(ctx context.Context, now time.Time) ([]models.ClassWaitlistEntry, error)
}

// EnrollmentConfig tunes waitlist promotion.
type EnrollmentConfig struct {
	PromotionMode string
	NotifyWindow  time.Duration
	Location      *time.Location
	Now           func() time.Time
}

// EnrollmentService enforces session capacity and keeps the waitlist ordered.
//
// Every mutation locks the session row first and then works inside that
// transaction, so writers on one session are serialised while different
// sessions proceed in parallel. Seats are taken with a conditional update
// that also counts seats held by notified waitlist entries.
type EnrollmentService struct {
	sessions    sessionSeatStore
	enrollments enrollmentStore
	waitlist    waitlistStore
	tx          txRunner
	notifier    WaitlistNotifier
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         EnrollmentConfig
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(
	sessions sessionSeatStore,
	enrollments enrollmentStore,
	waitlist waitlistStore,
	tx txRunner,
	notifier WaitlistNotifier,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg EnrollmentConfig,
) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PromotionMode != config.PromotionModeNotify {
		cfg.PromotionMode = config.PromotionModeAuto
	}
	if cfg.NotifyWindow <= 0 {
		cfg.NotifyWindow = 2 * time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &EnrollmentService{
		sessions:    sessions,
		enrollments: enrollments,
		waitlist:    waitlist,
		tx:          tx,
		notifier:    notifier,
		cache:       cache,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
	}
}

// Enroll takes a seat in the session when one is free and otherwise appends
// the student to the waitlist. Both outcomes come from one locked decision.
func (s *EnrollmentService) Enroll(ctx context.Context, req dto.EnrollRequest) (*models.EnrollResult, error) {
	req.StudentID = strings.TrimSpace(req.StudentID)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enroll payload")
	}
	if req.StudentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student is required")
	}
	if err := validID(req.SessionID, "session"); err != nil {
		return nil, err
	}

	now := s.now()
	var result *models.EnrollResult
	err := s.tx.WithinTx(ctx, func(ctx context.Context, exec sqlx.ExtContext) error {
		session, err := s.sessions.LockByID(ctx, exec, req.SessionID)
		if err != nil {
			return storeError(err, "session not found")
		}
		if err := s.ensureOpen(session, now); err != nil {
			return err
		}

		claimed, err := s.enrollments.ActiveClaimExists(ctx, exec, session.ID, req.StudentID)
		if err != nil {
			return err
		}
		if claimed {
			return appErrors.Clone(appErrors.ErrAlreadyClaimed, "")
		}

		err = s.sessions.ReserveSeat(ctx, exec, session.ID, 0, now)
		switch {
		case err == nil:
			enrollment := &models.ClassEnrollment{SessionID: session.ID, StudentID: req.StudentID, EnrolledAt: now}
			if err := s.enrollments.Create(ctx, exec, enrollment); err != nil {
				return err
			}
			result = &models.EnrollResult{Outcome: models.EnrollOutcomeEnrolled, Enrollment: enrollment}
			return nil
		case errors.Is(err, appErrors.ErrCapacityRaceLost):
			entry := &models.ClassWaitlistEntry{SessionID: session.ID, StudentID: req.StudentID, AddedAt: now}
			if err := s.waitlist.Append(ctx, exec, entry); err != nil {
				return err
			}
			result = &models.EnrollResult{Outcome: models.EnrollOutcomeWaitlisted, Position: entry.Position, WaitlistEntry: entry}
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return nil, storeError(err, "session not found")
	}

	s.metrics.RecordEnrollOutcome(result.Outcome)
	s.cache.InvalidateSession(ctx, req.SessionID)
	s.logger.Info("enroll decided",
		zap.String("session_id", req.SessionID),
		zap.String("student_id", req.StudentID),
		zap.String("outcome", string(result.Outcome)),
		zap.Int("position", result.Position),
	)
	return result, nil
}

// Confirm moves an enrollment from enrolled to confirmed. Confirming twice is a no-op.
func (s *EnrollmentService) Confirm(ctx context.Context, enrollmentID string) (*models.ClassEnrollment, error) {
	return s.transitionEnrollment(ctx, enrollmentID, models.EnrollmentStatusConfirmed, nil, false)
}

// CancelEnrollment cancels an active enrollment, releases its seat and
// promotes the head of the waitlist in the same transaction.
func (s *EnrollmentService) CancelEnrollment(ctx context.Context, enrollmentID string, req dto.CancelEnrollmentRequest) (*models.ClassEnrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cancellation payload")
	}
	return s.transitionEnrollment(ctx, enrollmentID, models.EnrollmentStatusCancelled, req.Reason, false)
}

// CheckIn marks an enrollment attended once the session has started.
func (s *EnrollmentService) CheckIn(ctx context.Context, enrollmentID string) (*models.ClassEnrollment, error) {
	return s.transitionEnrollment(ctx, enrollmentID, models.EnrollmentStatusAttended, nil, true)
}

// MarkNoShow marks an enrollment no_show once the session has started.
func (s *EnrollmentService) MarkNoShow(ctx context.Context, enrollmentID string) (*models.ClassEnrollment, error) {
	return s.transitionEnrollment(ctx, enrollmentID, models.EnrollmentStatusNoShow, nil, true)
}

func (s *EnrollmentService) transitionEnrollment(ctx context.Context, enrollmentID string, target models.EnrollmentStatus, reason *string, afterStart bool) (*models.ClassEnrollment, error) {
	if err := validID(enrollmentID, "enrollment"); err != nil {
		return nil, err
	}
	current, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		return nil, storeError(err, "enrollment not found")
	}

	now := s.now()
	var updated *models.ClassEnrollment
	var events []models.WaitlistEvent
	err = s.tx.WithinTx(ctx, func(ctx context.Context, exec sqlx.ExtContext) error {
		session, err := s.sessions.LockByID(ctx, exec, current.SessionID)
		if err != nil {
			return storeError(err, "session not found")
		}
		enrollment, err := s.enrollments.LockByID(ctx, exec, enrollmentID)
		if err != nil {
			return storeError(err, "enrollment not found")
		}

		if enrollment.Status == target && target != models.EnrollmentStatusCancelled {
			updated = enrollment
			return nil
		}
		if !enrollment.Status.CanTransitionTo(target) {
			return appErrors.Clone(appErrors.ErrInvalidTransition,
				"enrollment cannot move from "+string(enrollment.Status)+" to "+string(target))
		}
		if afterStart {
			if err := s.ensureStarted(session, now); err != nil {
				return err
			}
		} else if session.Status == models.SessionStatusCancelled {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "session is cancelled")
		}

		if err := s.enrollments.UpdateStatus(ctx, exec, enrollment.ID, enrollment.Status, target, reason, now); err != nil {
			return err
		}
		if !target.Active() {
			if err := s.releaseSeat(ctx, exec, session.ID); err != nil {
				return err
			}
		}
		if target == models.EnrollmentStatusCancelled && s.promotable(session, now) {
			promoted, err := s.promote(ctx, exec, session, now)
			if err != nil {
				return err
			}
			events = append(events, promoted...)
		}

		applyEnrollmentStatus(enrollment, target, reason, now)
		updated = enrollment
		return nil
	})
	if err != nil {
		return nil, storeError(err, "enrollment not found")
	}

	s.afterCommit(ctx, current.SessionID, events)
	s.logger.Info("enrollment transitioned",
		zap.String("enrollment_id", enrollmentID),
		zap.String("session_id", current.SessionID),
		zap.String("status", string(updated.Status)),
	)
	return updated, nil
}

// CancelWaitlistEntry withdraws a waiting or notified entry and closes the gap
// it leaves. A withdrawn notified entry hands its held seat to the next in line.
func (s *EnrollmentService) CancelWaitlistEntry(ctx context.Context, entryID string) (*models.ClassWaitlistEntry, error) {
	if err := validID(entryID, "waitlist entry"); err != nil {
		return nil, err
	}
	current, err := s.waitlist.FindByID(ctx, entryID)
	if err != nil {
		return nil, storeError(err, "waitlist entry not found")
	}

	now := s.now()
	var updated *models.ClassWaitlistEntry
	var events []models.WaitlistEvent
	err = s.tx.WithinTx(ctx, func(ctx context.Context, exec sqlx.ExtContext) error {
		session, err := s.sessions.LockByID(ctx, exec, current.SessionID)
		if err != nil {
			return storeError(err, "session not found")
		}
		entry, err := s.waitlist.LockByID(ctx, exec, entryID)
		if err != nil {
			return storeError(err, "waitlist entry not found")
		}
		if !entry.Status.CanTransitionTo(models.WaitlistStatusCancelled) {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "waitlist entry is already "+string(entry.Status))
		}

		if err := s.waitlist.Resolve(ctx, exec, entry.ID, entry.Status, models.WaitlistStatusCancelled, now); err != nil {
			return err
		}
		if err := s.waitlist.CloseGap(ctx, exec, entry.SessionID, entry.Position); err != nil {
			return err
		}
		if entry.Status == models.WaitlistStatusNotified && s.promotable(session, now) {
			promoted, err := s.promote(ctx, exec, session, now)
			if err != nil {
				return err
			}
			events = append(events, promoted...)
		}

		entry.Status = models.WaitlistStatusCancelled
		entry.ResolvedAt = &now
		updated = entry
		return nil
	})
	if err != nil {
		return nil, storeError(err, "waitlist entry not found")
	}

	s.afterCommit(ctx, current.SessionID, events)
	s.logger.Info("waitlist entry cancelled", zap.String("entry_id", entryID), zap.String("session_id", current.SessionID))
	return updated, nil
}

// ClaimWaitlistSlot converts a notified entry into an enrollment using the
// seat the entry has been holding.
func (s *EnrollmentService) ClaimWaitlistSlot(ctx context.Context, entryID string) (*models.ClassEnrollment, error) {
	if err := validID(entryID, "waitlist entry"); err != nil {
		return nil, err
	}
	current, err := s.waitlist.FindByID(ctx, entryID)
	if err != nil {
		return nil, storeError(err, "waitlist entry not found")
	}

	now := s.now()
	var enrollment *models.ClassEnrollment
	var events []models.WaitlistEvent
	err = s.tx.WithinTx(ctx, func(ctx context.Context, exec sqlx.ExtContext) error {
		session, err := s.sessions.LockByID(ctx, exec, current.SessionID)
		if err != nil {
			return storeError(err, "session not found")
		}
		if err := s.ensureOpen(session, now); err != nil {
			return err
		}
		entry, err := s.waitlist.LockByID(ctx, exec, entryID)
		if err != nil {
			return storeError(err, "waitlist entry not found")
		}
		if entry.Status != models.WaitlistStatusNotified {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "only notified entries can claim a seat")
		}
		if entry.ExpiresAt != nil && !now.Before(*entry.ExpiresAt) {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "claim window has elapsed")
		}

		if err := s.sessions.ReserveSeat(ctx, exec, session.ID, 1, now); err != nil {
			if errors.Is(err, appErrors.ErrCapacityRaceLost) {
				return appErrors.Clone(appErrors.ErrConflict, "held seat is no longer available")
			}
			return err
		}
		created, err := s.convertEntry(ctx, exec, entry, now)
		if err != nil {
			return err
		}
		enrollment = created
		events = append(events, promotedEvent(entry, created, now))
		return nil
	})
	if err != nil {
		return nil, storeError(err, "waitlist entry not found")
	}

	s.afterCommit(ctx, current.SessionID, events)
	return enrollment, nil
}

// ExpireNotifications expires notified entries whose claim window elapsed and
// passes each released seat to the next waiting entry. It returns how many
// entries expired.
func (s *EnrollmentService) ExpireNotifications(ctx context.Context) (int, error) {
	now := s.now()
	candidates, err := s.waitlist.ListExpiredNotified(ctx, now)
	if err != nil {
		return 0, storeError(err, "")
	}

	expired := 0
	for _, candidate := range candidates {
		var events []models.WaitlistEvent
		err := s.tx.WithinTx(ctx, func(ctx context.Context, exec sqlx.ExtContext) error {
			session, err := s.sessions.LockByID(ctx, exec, candidate.SessionID)
			if err != nil {
				return err
			}
			entry, err := s.waitlist.LockByID(ctx, exec, candidate.ID)
			if err != nil {
				return err
			}
			if entry.Status != models.WaitlistStatusNotified || entry.ExpiresAt == nil || entry.ExpiresAt.After(now) {
				return nil
			}
			if err := s.waitlist.Resolve(ctx, exec, entry.ID, models.WaitlistStatusNotified, models.WaitlistStatusExpired, now); err != nil {
				return err
			}
			if err := s.waitlist.CloseGap(ctx, exec, entry.SessionID, entry.Position); err != nil {
				return err
			}
			events = append(events, models.WaitlistEvent{
				Type:       models.WaitlistEventExpired,
				EntryID:    entry.ID,
				SessionID:  entry.SessionID,
				StudentID:  entry.StudentID,
				OccurredAt: now,
			})
			if s.promotable(session, now) {
				promoted, err := s.promote(ctx, exec, session, now)
				if err != nil {
					return err
				}
				events = append(events, promoted...)
			}
			return nil
		})
		if err != nil {
			s.logger.Warn("expire notification failed", zap.String("entry_id", candidate.ID), zap.Error(err))
			continue
		}
		if len(events) > 0 {
			expired++
		}
		s.afterCommit(ctx, candidate.SessionID, events)
	}
	return expired, nil
}

// ReconcileCounts recomputes each drifting session counter from its
// enrollment rows under the session lock and returns what was corrected.
func (s *EnrollmentService) ReconcileCounts(ctx context.Context) ([]models.CountDrift, error) {
	drifts, err := s.sessions.ListCountDrift(ctx)
	if err != nil {
		return nil, storeError(err, "")
	}

	var fixed []models.CountDrift
	for _, drift := range drifts {
		var repaired *models.CountDrift
		err := s.tx.WithinTx(ctx, func(ctx context.Context, exec sqlx.ExtContext) error {
			session, err := s.sessions.LockByID(ctx, exec, drift.SessionID)
			if err != nil {
				return err
			}
			actual, err := s.enrollments.CountActive(ctx, exec, session.ID)
			if err != nil {
				return err
			}
			if actual == session.CurrentEnrollmentCount {
				return nil
			}
			if err := s.sessions.SetEnrollmentCount(ctx, exec, session.ID, actual); err != nil {
				return err
			}
			repaired = &models.CountDrift{SessionID: session.ID, Cached: session.CurrentEnrollmentCount, Actual: actual}
			return nil
		})
		if err != nil {
			s.logger.Error("reconcile session count failed", zap.String("session_id", drift.SessionID), zap.Error(err))
			continue
		}
		if repaired != nil {
			s.metrics.RecordCountRepair()
			s.cache.InvalidateSession(ctx, repaired.SessionID)
			s.logger.Warn("session count drift repaired",
				zap.String("session_id", repaired.SessionID),
				zap.Int("cached", repaired.Cached),
				zap.Int("actual", repaired.Actual),
			)
			fixed = append(fixed, *repaired)
		}
	}
	return fixed, nil
}

// ListEnrollments returns a session's roster ordered by enrolment time.
func (s *EnrollmentService) ListEnrollments(ctx context.Context, sessionID string) ([]models.ClassEnrollment, error) {
	if err := s.ensureSession(ctx, sessionID); err != nil {
		return nil, err
	}
	var items []models.ClassEnrollment
	if s.cache.Get(ctx, RosterKey(sessionID), &items) {
		return items, nil
	}
	items, err := s.enrollments.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, storeError(err, "session not found")
	}
	if items == nil {
		items = []models.ClassEnrollment{}
	}
	s.cache.Set(ctx, RosterKey(sessionID), items)
	return items, nil
}

// ListWaitlist returns a session's active waitlist ordered by position.
func (s *EnrollmentService) ListWaitlist(ctx context.Context, sessionID string) ([]models.ClassWaitlistEntry, error) {
	if err := s.ensureSession(ctx, sessionID); err != nil {
		return nil, err
	}
	var items []models.ClassWaitlistEntry
	if s.cache.Get(ctx, WaitlistKey(sessionID), &items) {
		return items, nil
	}
	items, err := s.waitlist.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, storeError(err, "session not found")
	}
	if items == nil {
		items = []models.ClassWaitlistEntry{}
	}
	s.cache.Set(ctx, WaitlistKey(sessionID), items)
	return items, nil
}

// ListMyActiveClaims returns a student's active enrollments and waitlist entries.
func (s *EnrollmentService) ListMyActiveClaims(ctx context.Context, studentID string) (*models.StudentClaims, error) {
	if strings.TrimSpace(studentID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student is required")
	}
	enrollments, err := s.enrollments.ListActiveByStudent(ctx, studentID)
	if err != nil {
		return nil, storeError(err, "")
	}
	entries, err := s.waitlist.ListActiveByStudent(ctx, studentID)
	if err != nil {
		return nil, storeError(err, "")
	}
	if enrollments == nil {
		enrollments = []models.ClassEnrollment{}
	}
	if entries == nil {
		entries = []models.ClassWaitlistEntry{}
	}
	return &models.StudentClaims{StudentID: studentID, Enrollments: enrollments, WaitlistEntries: entries}, nil
}

// GetEnrollment returns one enrollment.
func (s *EnrollmentService) GetEnrollment(ctx context.Context, id string) (*models.ClassEnrollment, error) {
	if err := validID(id, "enrollment"); err != nil {
		return nil, err
	}
	item, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "enrollment not found")
	}
	return item, nil
}

// GetWaitlistEntry returns one waitlist entry.
func (s *EnrollmentService) GetWaitlistEntry(ctx context.Context, id string) (*models.ClassWaitlistEntry, error) {
	if err := validID(id, "waitlist entry"); err != nil {
		return nil, err
	}
	item, err := s.waitlist.FindByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "waitlist entry not found")
	}
	return item, nil
}

// promote hands one freed seat to the head of the waitlist. In auto mode the
// head becomes an enrollment immediately; in notify mode it becomes notified
// and holds the seat until claimed or expired.
func (s *EnrollmentService) promote(ctx context.Context, exec sqlx.ExtContext, session *models.ClassSession, now time.Time) ([]models.WaitlistEvent, error) {
	head, err := s.waitlist.NextWaiting(ctx, exec, session.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if s.cfg.PromotionMode == config.PromotionModeNotify {
		active, err := s.enrollments.CountActive(ctx, exec, session.ID)
		if err != nil {
			return nil, err
		}
		held, err := s.waitlist.CountNotified(ctx, exec, session.ID, now)
		if err != nil {
			return nil, err
		}
		if active+held >= session.MaxCapacity {
			return nil, nil
		}
		expiresAt := now.Add(s.cfg.NotifyWindow)
		if err := s.waitlist.MarkNotified(ctx, exec, head.ID, now, expiresAt); err != nil {
			return nil, err
		}
		return []models.WaitlistEvent{{
			Type:       models.WaitlistEventNotified,
			EntryID:    head.ID,
			SessionID:  head.SessionID,
			StudentID:  head.StudentID,
			ExpiresAt:  &expiresAt,
			OccurredAt: now,
		}}, nil
	}

	if err := s.sessions.ReserveSeat(ctx, exec, session.ID, 0, now); err != nil {
		if errors.Is(err, appErrors.ErrCapacityRaceLost) {
			return nil, nil
		}
		return nil, err
	}
	enrollment, err := s.convertEntry(ctx, exec, head, now)
	if err != nil {
		return nil, err
	}
	return []models.WaitlistEvent{promotedEvent(head, enrollment, now)}, nil
}

// convertEntry turns a waitlist entry into an enrollment. The caller has
// already reserved the seat.
func (s *EnrollmentService) convertEntry(ctx context.Context, exec sqlx.ExtContext, entry *models.ClassWaitlistEntry, now time.Time) (*models.ClassEnrollment, error) {
	if err := s.waitlist.Resolve(ctx, exec, entry.ID, entry.Status, models.WaitlistStatusEnrolled, now); err != nil {
		return nil, err
	}
	if err := s.waitlist.CloseGap(ctx, exec, entry.SessionID, entry.Position); err != nil {
		return nil, err
	}
	entryID := entry.ID
	enrollment := &models.ClassEnrollment{
		SessionID:       entry.SessionID,
		StudentID:       entry.StudentID,
		EnrolledAt:      now,
		WaitlistEntryID: &entryID,
	}
	if err := s.enrollments.Create(ctx, exec, enrollment); err != nil {
		return nil, err
	}
	entry.Status = models.WaitlistStatusEnrolled
	entry.ResolvedAt = &now
	return enrollment, nil
}

// releaseSeat decrements the session counter. A counter already at zero means
// it drifted, so it is recomputed from the rows instead.
func (s *EnrollmentService) releaseSeat(ctx context.Context, exec sqlx.ExtContext, sessionID string) error {
	err := s.sessions.ReleaseSeat(ctx, exec, sessionID)
	if err == nil || !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	actual, err := s.enrollments.CountActive(ctx, exec, sessionID)
	if err != nil {
		return err
	}
	s.logger.Warn("session count was already zero on release", zap.String("session_id", sessionID), zap.Int("actual", actual))
	return s.sessions.SetEnrollmentCount(ctx, exec, sessionID, actual)
}

func (s *EnrollmentService) ensureSession(ctx context.Context, sessionID string) error {
	if err := validID(sessionID, "session"); err != nil {
		return err
	}
	if _, err := s.sessions.FindByID(ctx, sessionID); err != nil {
		return storeError(err, "session not found")
	}
	return nil
}

// ensureOpen accepts new claims only on scheduled sessions that have not started.
func (s *EnrollmentService) ensureOpen(session *models.ClassSession, now time.Time) error {
	if session.Status != models.SessionStatusScheduled {
		return appErrors.Clone(appErrors.ErrSessionNotOpen, "session is "+string(session.Status))
	}
	start, err := session.StartsAt(s.cfg.Location)
	if err != nil {
		return err
	}
	if !now.Before(start) {
		return appErrors.Clone(appErrors.ErrSessionNotOpen, "session has already started")
	}
	return nil
}

// ensureStarted gates attendance marks to sessions at or past their start.
func (s *EnrollmentService) ensureStarted(session *models.ClassSession, now time.Time) error {
	if session.Status == models.SessionStatusCancelled {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "session is cancelled")
	}
	start, err := session.StartsAt(s.cfg.Location)
	if err != nil {
		return err
	}
	if now.Before(start) {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "attendance opens when the session starts")
	}
	return nil
}

// promotable reports whether a freed seat should pass to the waitlist.
func (s *EnrollmentService) promotable(session *models.ClassSession, now time.Time) bool {
	return s.ensureOpen(session, now) == nil
}

func (s *EnrollmentService) afterCommit(ctx context.Context, sessionID string, events []models.WaitlistEvent) {
	s.cache.InvalidateSession(ctx, sessionID)
	for _, event := range events {
		s.metrics.RecordWaitlistEvent(event.Type)
		s.logger.Info("waitlist event",
			zap.String("type", string(event.Type)),
			zap.String("entry_id", event.EntryID),
			zap.String("session_id", event.SessionID),
		)
		if s.notifier == nil {
			continue
		}
		if err := s.notifier.Notify(ctx, event); err != nil {
			s.logger.Warn("publish waitlist event failed", zap.String("type", string(event.Type)), zap.Error(err))
		}
	}
}

func (s *EnrollmentService) now() time.Time {
	return s.cfg.Now().UTC()
}

func promotedEvent(entry *models.ClassWaitlistEntry, enrollment *models.ClassEnrollment, now time.Time) models.WaitlistEvent {
	return models.WaitlistEvent{
		Type:         models.WaitlistEventPromoted,
		EntryID:      entry.ID,
		SessionID:    entry.SessionID,
		StudentID:    entry.StudentID,
		EnrollmentID: enrollment.ID,
		OccurredAt:   now,
	}
}

func applyEnrollmentStatus(item *models.ClassEnrollment, status models.EnrollmentStatus, reason *string, at time.Time) {
	item.Status = status
	if reason != nil {
		item.CancellationReason = reason
	}
	switch status {
	case models.EnrollmentStatusConfirmed:
		item.ConfirmedAt = &at
	case models.EnrollmentStatusAttended:
		item.CheckedInAt = &at
	case models.EnrollmentStatusCancelled:
		item.CancelledAt = &at
	}
}
