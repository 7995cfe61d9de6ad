package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/gym-class-api/api/swagger"
	"github.com/noah-isme/gym-class-api/internal/handler"
	"github.com/noah-isme/gym-class-api/internal/repository"
	"github.com/noah-isme/gym-class-api/internal/router"
	"github.com/noah-isme/gym-class-api/internal/service"
	"github.com/noah-isme/gym-class-api/pkg/cache"
	"github.com/noah-isme/gym-class-api/pkg/config"
	"github.com/noah-isme/gym-class-api/pkg/database"
	"github.com/noah-isme/gym-class-api/pkg/jobs"
	"github.com/noah-isme/gym-class-api/pkg/logger"
	"github.com/noah-isme/gym-class-api/pkg/messaging"
)

// @title Gym Class API
// @version 1.0.0
// @description Class sessions, capacity-safe enrollment and waitlists for a gym.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, list caching disabled", zap.Error(err))
		redisClient = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var notifier service.WaitlistNotifier
	if cfg.RabbitMQ.Enabled {
		publisher := messaging.NewPublisher(cfg.RabbitMQ, logr)
		defer publisher.Close()
		eventWorker := service.NewWaitlistEventWorker(service.NewBrokerNotifier(publisher), 2*cfg.RabbitMQ.DialTimeout, logr)
		eventQueue := jobs.NewQueue("waitlist-events", eventWorker.Handle, jobs.QueueConfig{
			Workers:    1,
			BufferSize: 256,
			MaxRetries: cfg.Maintenance.Retries,
			Logger:     logr,
		})
		eventQueue.Start(ctx)
		defer eventQueue.Stop()
		notifier = service.NewQueuedNotifier(eventQueue)
	}

	location := cfg.Generation.Location()
	validate := validator.New()
	txRunner := database.NewTxRunner(db, cfg.Database.TxTimeout)

	classTypeRepo := repository.NewClassTypeRepository(db)
	scheduleRepo := repository.NewClassScheduleRepository(db)
	sessionRepo := repository.NewClassSessionRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	waitlistRepo := repository.NewWaitlistRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close()

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.ListCache.TTL, logr, cfg.ListCache.Enabled && redisClient != nil)
	authSvc := service.NewAuthService(logr, service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret})
	catalogSvc := service.NewCatalogService(classTypeRepo, scheduleRepo, validate, logr)
	generatorSvc := service.NewSessionGeneratorService(scheduleRepo, sessionRepo, txRunner, validate, logr, location)
	sessionSvc := service.NewSessionService(sessionRepo, enrollmentRepo, waitlistRepo, txRunner, cacheSvc, validate, logr, location, time.Now)
	enrollmentSvc := service.NewEnrollmentService(sessionRepo, enrollmentRepo, waitlistRepo, txRunner, notifier, cacheSvc, metricsSvc, validate, logr, service.EnrollmentConfig{
		PromotionMode: cfg.Waitlist.PromotionMode,
		NotifyWindow:  cfg.Waitlist.NotifyWindow,
		Location:      location,
	})
	attendanceSvc := service.NewAttendanceService(enrollmentSvc, sessionRepo, enrollmentRepo, txRunner, cacheSvc, logr, location, time.Now)

	engine := router.New(cfg, logr, authSvc, metricsSvc, router.Handlers{
		Catalog:    handler.NewCatalogHandler(catalogSvc),
		Sessions:   handler.NewSessionHandler(sessionSvc, generatorSvc),
		Enrollment: handler.NewEnrollmentHandler(enrollmentSvc),
		Attendance: handler.NewAttendanceHandler(attendanceSvc),
		Metrics:    handler.NewMetricsHandler(metricsSvc),
	})

	if cfg.Maintenance.Enabled {
		worker := service.NewMaintenanceWorker(generatorSvc, enrollmentSvc, enrollmentSvc, sessionSvc, cfg.Generation.Horizon, logr)
		queue := jobs.NewQueue("maintenance", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Maintenance.Workers,
			MaxRetries: cfg.Maintenance.Retries,
			Logger:     logr,
		})
		queue.Start(ctx)
		defer queue.Stop()
		service.NewMaintenanceScheduler(queue, cfg.Maintenance.Interval, logr).Start(ctx)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "promotion_mode", cfg.Waitlist.PromotionMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("graceful shutdown failed", "error", err)
	}
}
