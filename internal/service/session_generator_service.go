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

const (
	dateLayout          = "2006-01-02"
	maxGenerationWindow = 92
)

type generationScheduleReader interface {
	List(ctx context.Context, filter models.ClassScheduleFilter) ([]models.ClassScheduleDetail, error)
	FindByID(ctx context.Context, id string) (*models.ClassScheduleDetail, error)
}

type generatedSessionWriter interface {
	InsertGenerated(ctx context.Context, exec sqlx.ExtContext, item *models.ClassSession) (bool, error)
}

// SessionGeneratorService materialises schedule templates into dated sessions.
// Generation is idempotent per (schedule, date).
type SessionGeneratorService struct {
	schedules generationScheduleReader
	sessions  generatedSessionWriter
	tx        txRunner
	validator *validator.Validate
	logger    *zap.Logger
	location  *time.Location
}

// NewSessionGeneratorService constructs SessionGeneratorService.
func NewSessionGeneratorService(schedules generationScheduleReader, sessions generatedSessionWriter, tx txRunner, validate *validator.Validate, logger *zap.Logger, location *time.Location) *SessionGeneratorService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if location == nil {
		location = time.UTC
	}
	return &SessionGeneratorService{
		schedules: schedules,
		sessions:  sessions,
		tx:        tx,
		validator: validate,
		logger:    logger,
		location:  location,
	}
}

// Generate expands one schedule, or every active schedule when no id is
// given, over the inclusive window in the request.
func (s *SessionGeneratorService) Generate(ctx context.Context, req dto.GenerateSessionsRequest) (*models.GenerationReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generation payload")
	}
	from, err := time.ParseInLocation(dateLayout, req.From, s.location)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "from must be YYYY-MM-DD")
	}
	to, err := time.ParseInLocation(dateLayout, req.To, s.location)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "to must be YYYY-MM-DD")
	}

	scheduleID := strings.TrimSpace(req.ScheduleID)
	if scheduleID == "" {
		return s.GenerateAll(ctx, from, to)
	}
	if err := validateWindow(from, to); err != nil {
		return nil, err
	}
	if err := validID(scheduleID, "schedule"); err != nil {
		return nil, err
	}
	schedule, err := s.schedules.FindByID(ctx, scheduleID)
	if err != nil {
		return nil, storeError(err, "schedule not found")
	}

	report := &models.GenerationReport{Results: []models.GenerationResult{}, Skipped: []models.GenerationSkip{}}
	if err := s.expandInto(ctx, report, *schedule, from, to); err != nil {
		return nil, err
	}
	return report, nil
}

// GenerateAll expands every active schedule over [from, to]. Schedules that
// cannot be expanded are reported in Skipped and do not fail the batch.
func (s *SessionGeneratorService) GenerateAll(ctx context.Context, from, to time.Time) (*models.GenerationReport, error) {
	if err := validateWindow(from, to); err != nil {
		return nil, err
	}
	active := true
	schedules, err := s.schedules.List(ctx, models.ClassScheduleFilter{Active: &active})
	if err != nil {
		return nil, storeError(err, "")
	}

	report := &models.GenerationReport{Results: []models.GenerationResult{}, Skipped: []models.GenerationSkip{}}
	for _, schedule := range schedules {
		if err := s.expandInto(ctx, report, schedule, from, to); err != nil {
			s.logger.Warn("schedule generation failed", zap.String("schedule_id", schedule.ID), zap.Error(err))
			report.Skipped = append(report.Skipped, models.GenerationSkip{ScheduleID: schedule.ID, Reason: err.Error()})
		}
	}

	created := 0
	for _, result := range report.Results {
		created += result.Created
	}
	s.logger.Info("session generation finished",
		zap.String("from", from.Format(dateLayout)),
		zap.String("to", to.Format(dateLayout)),
		zap.Int("schedules", len(report.Results)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("created", created),
	)
	return report, nil
}

// GenerateHorizon expands every active schedule from today up to horizon ahead.
func (s *SessionGeneratorService) GenerateHorizon(ctx context.Context, now time.Time, horizon time.Duration) (*models.GenerationReport, error) {
	from := dayOf(now.In(s.location))
	to := dayOf(now.In(s.location).Add(horizon))
	if to.Sub(from) > maxGenerationWindow*24*time.Hour {
		to = from.AddDate(0, 0, maxGenerationWindow)
	}
	return s.GenerateAll(ctx, from, to)
}

func (s *SessionGeneratorService) expandInto(ctx context.Context, report *models.GenerationReport, schedule models.ClassScheduleDetail, from, to time.Time) error {
	if !schedule.Active {
		report.Skipped = append(report.Skipped, models.GenerationSkip{ScheduleID: schedule.ID, Reason: "schedule is inactive"})
		return nil
	}
	if !schedule.ClassTypeActive {
		report.Skipped = append(report.Skipped, models.GenerationSkip{ScheduleID: schedule.ID, Reason: "class type is inactive"})
		return nil
	}
	result, err := s.expand(ctx, schedule, from, to)
	if err != nil {
		return err
	}
	report.Results = append(report.Results, *result)
	return nil
}

// expand inserts one session per matching weekday inside a single transaction.
// Capacity and professor are copied from the schedule as it is now.
func (s *SessionGeneratorService) expand(ctx context.Context, schedule models.ClassScheduleDetail, from, to time.Time) (*models.GenerationResult, error) {
	dates := matchingDates(schedule.DayOfWeek, from, to)
	result := &models.GenerationResult{ScheduleID: schedule.ID}
	if len(dates) == 0 {
		return result, nil
	}

	scheduleID := schedule.ID
	capacity := schedule.EffectiveCapacity()
	err := s.tx.WithinTx(ctx, func(ctx context.Context, exec sqlx.ExtContext) error {
		result.Created, result.Existing, result.SessionIDs = 0, 0, nil
		for _, date := range dates {
			item := &models.ClassSession{
				ClassTypeID: schedule.ClassTypeID,
				ScheduleID:  &scheduleID,
				ProfessorID: schedule.ProfessorID,
				SessionDate: date,
				StartTime:   schedule.StartTime,
				EndTime:     schedule.EndTime,
				Location:    schedule.Location,
				MaxCapacity: capacity,
				Status:      models.SessionStatusScheduled,
			}
			created, err := s.sessions.InsertGenerated(ctx, exec, item)
			if err != nil {
				return err
			}
			if created {
				result.Created++
				result.SessionIDs = append(result.SessionIDs, item.ID)
			} else {
				result.Existing++
			}
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err, "schedule not found")
	}
	return result, nil
}

func validateWindow(from, to time.Time) error {
	if to.Before(from) {
		return appErrors.Clone(appErrors.ErrValidation, "to must not be before from")
	}
	if to.Sub(from) > maxGenerationWindow*24*time.Hour {
		return appErrors.Clone(appErrors.ErrValidation, "generation window is limited to 92 days")
	}
	return nil
}

// matchingDates returns calendar days in [from, to] falling on weekday
// (0 = Sunday). Days are returned as UTC midnights so they compare as dates.
func matchingDates(weekday int, from, to time.Time) []time.Time {
	var dates []time.Time
	first, last := dayOf(from), dayOf(to)
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		if int(d.Weekday()) == weekday {
			dates = append(dates, d)
		}
	}
	return dates
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
