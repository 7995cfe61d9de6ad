package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/gym-class-api/internal/handler"
	"github.com/noah-isme/gym-class-api/internal/middleware"
	"github.com/noah-isme/gym-class-api/internal/models"
	"github.com/noah-isme/gym-class-api/internal/service"
	"github.com/noah-isme/gym-class-api/pkg/config"
	"github.com/noah-isme/gym-class-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/gym-class-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/gym-class-api/pkg/middleware/requestid"
)

// Handlers groups every HTTP handler mounted by the router.
type Handlers struct {
	Catalog    *handler.CatalogHandler
	Sessions   *handler.SessionHandler
	Enrollment *handler.EnrollmentHandler
	Attendance *handler.AttendanceHandler
	Metrics    *handler.MetricsHandler
}

// New builds the gin engine with global middleware and all routes.
func New(cfg *config.Config, logr *zap.Logger, auth *service.AuthService, metrics *service.MetricsService, h Handlers) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", h.Metrics.Health)
	r.GET("/metrics", h.Metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(auth))
	registerCatalog(api, h.Catalog)
	registerSessions(api, h)
	registerEnrollments(api, h)

	api.GET("/metrics/summary", middleware.RequireStaff(), h.Metrics.Summary)

	return r
}

func registerCatalog(api *gin.RouterGroup, h *handler.CatalogHandler) {
	manage := middleware.RequireRoles(models.RoleAdmin, models.RoleStaff)

	types := api.Group("/class-types")
	types.GET("", h.ListClassTypes)
	types.GET("/:id", h.GetClassType)
	types.POST("", manage, h.CreateClassType)
	types.PUT("/:id", manage, h.UpdateClassType)
	types.DELETE("/:id", manage, h.DeleteClassType)

	schedules := api.Group("/schedules")
	schedules.GET("", h.ListSchedules)
	schedules.GET("/:id", h.GetSchedule)
	schedules.POST("", manage, h.CreateSchedule)
	schedules.PUT("/:id", manage, h.UpdateSchedule)
	schedules.POST("/:id/deactivate", manage, h.DeactivateSchedule)
}

func registerSessions(api *gin.RouterGroup, h Handlers) {
	staff := middleware.RequireStaff()

	sessions := api.Group("/sessions")
	sessions.GET("", h.Sessions.List)
	sessions.GET("/:id", h.Sessions.Get)
	sessions.POST("/generate", middleware.RequireRoles(models.RoleAdmin, models.RoleStaff), h.Sessions.Generate)
	sessions.POST("/:id/start", staff, h.Sessions.Start)
	sessions.POST("/:id/complete", staff, h.Sessions.Complete)
	sessions.POST("/:id/cancel", staff, h.Sessions.Cancel)
	sessions.GET("/:id/enrollments", staff, h.Enrollment.ListBySession)
	sessions.GET("/:id/waitlist", staff, h.Enrollment.Waitlist)
	sessions.POST("/:id/close-roster", staff, h.Attendance.CloseRoster)
}

func registerEnrollments(api *gin.RouterGroup, h Handlers) {
	staff := middleware.RequireStaff()

	enrollments := api.Group("/enrollments")
	enrollments.POST("", h.Enrollment.Enroll)
	enrollments.GET("/:id", h.Enrollment.Get)
	enrollments.POST("/:id/confirm", h.Enrollment.Confirm)
	enrollments.POST("/:id/cancel", h.Enrollment.Cancel)
	enrollments.POST("/:id/check-in", staff, h.Attendance.CheckIn)
	enrollments.POST("/:id/no-show", staff, h.Attendance.MarkNoShow)

	waitlist := api.Group("/waitlist")
	waitlist.GET("/:id", h.Enrollment.GetWaitlistEntry)
	waitlist.POST("/:id/cancel", h.Enrollment.CancelWaitlistEntry)
	waitlist.POST("/:id/claim", h.Enrollment.ClaimWaitlistSlot)

	api.GET("/me/claims", h.Enrollment.MyClaims)
}
