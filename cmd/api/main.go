package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/mechlink/marketplace-api/api/swagger"
	"github.com/mechlink/marketplace-api/internal/handler"
	"github.com/mechlink/marketplace-api/internal/middleware"
	"github.com/mechlink/marketplace-api/internal/models"
	"github.com/mechlink/marketplace-api/internal/repository"
	"github.com/mechlink/marketplace-api/internal/service"
	"github.com/mechlink/marketplace-api/pkg/cache"
	"github.com/mechlink/marketplace-api/pkg/config"
	"github.com/mechlink/marketplace-api/pkg/database"
	"github.com/mechlink/marketplace-api/pkg/export"
	"github.com/mechlink/marketplace-api/pkg/logger"
	corsmiddleware "github.com/mechlink/marketplace-api/pkg/middleware/cors"
	reqidmiddleware "github.com/mechlink/marketplace-api/pkg/middleware/requestid"
)

// @title MechLink Marketplace API
// @version 1.0.0
// @description Appointment and quote matching engine for the mobile mechanic marketplace.
// @BasePath /api/v1
// @schemes http

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appointmentRepo := repository.NewAppointmentRepository(db)
	quoteRepo := repository.NewQuoteRepository(db)
	skipRepo := repository.NewSkipRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	eventSvc := service.NewEventService(cacheRepo, cfg.Events, logr)
	eventSvc.Start(ctx)
	defer eventSvc.Stop()

	availabilitySvc := service.NewAvailabilityService(appointmentRepo, cacheRepo, cfg.Reaper, cfg.Availability, logr)
	appointmentSvc := service.NewAppointmentService(
		appointmentRepo, quoteRepo, notificationRepo,
		eventSvc, availabilitySvc, metricsSvc,
		cfg.Scheduling, validate, logr,
	)
	quoteSvc := service.NewQuoteService(quoteRepo, skipRepo, appointmentRepo, userRepo, availabilitySvc, logr)

	if cfg.Reaper.Enabled {
		reaperSvc := service.NewReaperService(appointmentRepo, appointmentSvc, metricsSvc, cfg.Reaper, logr)
		reaperSvc.Start(ctx)
	}

	appointmentHandler := handler.NewAppointmentHandler(appointmentSvc, quoteSvc, export.NewPDFExporter())
	quoteHandler := handler.NewQuoteHandler(quoteSvc)
	mechanicHandler := handler.NewMechanicHandler(availabilitySvc, quoteSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/internal/metrics", metricsHandler.Prometheus)
	r.GET("/internal/metrics/snapshot", metricsHandler.Snapshot)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(cfg.JWT))
	{
		customer := api.Group("/appointments", middleware.RequireRole(models.RoleCustomer))
		{
			customer.POST("", appointmentHandler.Create)
			customer.GET("", appointmentHandler.List)
			customer.PUT("/:id", appointmentHandler.Edit)
			customer.POST("/:id/edit-lock", appointmentHandler.BeginEdit)
			customer.DELETE("/:id/edit-lock", appointmentHandler.EndEdit)
			customer.POST("/:id/select", appointmentHandler.SelectQuote)
			customer.GET("/:id/notifications", appointmentHandler.Notifications)
		}

		mechanic := api.Group("", middleware.RequireRole(models.RoleMechanic))
		{
			mechanic.GET("/mechanics/feed", mechanicHandler.Feed)
			mechanic.POST("/appointments/:id/quotes", quoteHandler.Submit)
			mechanic.DELETE("/appointments/:id/quotes", quoteHandler.Withdraw)
			mechanic.POST("/appointments/:id/skip", mechanicHandler.Skip)
			mechanic.POST("/appointments/:id/start", appointmentHandler.Start)
			mechanic.POST("/appointments/:id/complete", appointmentHandler.Complete)
		}

		// Shared by both roles; authorization is enforced per resource.
		api.GET("/appointments/:id", appointmentHandler.Get)
		api.GET("/appointments/:id/quotes", quoteHandler.List)
		api.GET("/appointments/:id/summary", appointmentHandler.Summary)
		api.POST("/appointments/:id/cancel", appointmentHandler.Cancel)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
