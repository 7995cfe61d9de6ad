package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/gym-class-api/internal/models"
	"github.com/noah-isme/gym-class-api/pkg/jobs"
)

// Maintenance job types.
const (
	JobGenerateSessions    = "generate_sessions"
	JobExpireNotifications = "expire_notifications"
	JobAdvanceSessions     = "advance_sessions"
	JobReconcileCounts     = "reconcile_counts"
)

// MaintenanceJobTypes lists every periodic job in the order they are enqueued.
var MaintenanceJobTypes = []string{
	JobExpireNotifications,
	JobAdvanceSessions,
	JobReconcileCounts,
	JobGenerateSessions,
}

type horizonGenerator interface {
	GenerateHorizon(ctx context.Context, now time.Time, horizon time.Duration) (*models.GenerationReport, error)
}

type notificationExpirer interface {
	ExpireNotifications(ctx context.Context) (int, error)
}

type countReconciler interface {
	ReconcileCounts(ctx context.Context) ([]models.CountDrift, error)
}

type clockAdvancer interface {
	AdvanceByClock(ctx context.Context) (started, completed int, err error)
}

// MaintenanceWorker runs the periodic upkeep jobs dispatched by the queue.
type MaintenanceWorker struct {
	generator  horizonGenerator
	expirer    notificationExpirer
	reconciler countReconciler
	advancer   clockAdvancer
	horizon    time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// NewMaintenanceWorker constructs a worker.
func NewMaintenanceWorker(generator horizonGenerator, expirer notificationExpirer, reconciler countReconciler, advancer clockAdvancer, horizon time.Duration, logger *zap.Logger) *MaintenanceWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if horizon <= 0 {
		horizon = 14 * 24 * time.Hour
	}
	return &MaintenanceWorker{
		generator:  generator,
		expirer:    expirer,
		reconciler: reconciler,
		advancer:   advancer,
		horizon:    horizon,
		now:        time.Now,
		logger:     logger,
	}
}

// Handle processes a queue job.
func (w *MaintenanceWorker) Handle(ctx context.Context, job jobs.Job) error {
	switch job.Type {
	case JobGenerateSessions:
		report, err := w.generator.GenerateHorizon(ctx, w.now(), w.horizon)
		if err != nil {
			return err
		}
		created := 0
		for _, r := range report.Results {
			created += r.Created
		}
		if created > 0 || len(report.Skipped) > 0 {
			w.logger.Info("sessions generated", zap.Int("created", created), zap.Int("skipped", len(report.Skipped)))
		}
	case JobExpireNotifications:
		expired, err := w.expirer.ExpireNotifications(ctx)
		if err != nil {
			return err
		}
		if expired > 0 {
			w.logger.Info("waitlist notifications expired", zap.Int("count", expired))
		}
	case JobAdvanceSessions:
		started, completed, err := w.advancer.AdvanceByClock(ctx)
		if err != nil {
			return err
		}
		if started > 0 || completed > 0 {
			w.logger.Info("sessions advanced", zap.Int("started", started), zap.Int("completed", completed))
		}
	case JobReconcileCounts:
		drift, err := w.reconciler.ReconcileCounts(ctx)
		if err != nil {
			return err
		}
		for _, d := range drift {
			w.logger.Warn("enrollment count repaired", zap.String("session_id", d.SessionID), zap.Int("cached", d.Cached), zap.Int("actual", d.Actual))
		}
	default:
		return fmt.Errorf("unknown maintenance job %q", job.Type)
	}
	return nil
}

// MaintenanceScheduler enqueues every maintenance job on a fixed interval.
type MaintenanceScheduler struct {
	queue    jobDispatcher
	interval time.Duration
	logger   *zap.Logger
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// NewMaintenanceScheduler constructs a scheduler feeding queue.
func NewMaintenanceScheduler(queue jobDispatcher, interval time.Duration, logger *zap.Logger) *MaintenanceScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &MaintenanceScheduler{queue: queue, interval: interval, logger: logger}
}

// Start enqueues one round immediately and then one per tick until ctx ends.
func (s *MaintenanceScheduler) Start(ctx context.Context) {
	s.enqueueAll()
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.enqueueAll()
			}
		}
	}()
}

func (s *MaintenanceScheduler) enqueueAll() {
	for _, jobType := range MaintenanceJobTypes {
		if err := s.queue.Enqueue(jobs.Job{Type: jobType}); err != nil {
			if errors.Is(err, jobs.ErrDuplicate) {
				continue
			}
			s.logger.Sugar().Warnw("failed to enqueue maintenance job", "type", jobType, "error", err)
		}
	}
}
