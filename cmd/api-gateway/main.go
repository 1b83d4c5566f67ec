package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/libstats-api/api/swagger"
	"github.com/noah-isme/libstats-api/internal/handler"
	"github.com/noah-isme/libstats-api/internal/middleware"
	"github.com/noah-isme/libstats-api/internal/models"
	"github.com/noah-isme/libstats-api/internal/repository"
	"github.com/noah-isme/libstats-api/internal/service"
	"github.com/noah-isme/libstats-api/pkg/cache"
	"github.com/noah-isme/libstats-api/pkg/config"
	"github.com/noah-isme/libstats-api/pkg/database"
	"github.com/noah-isme/libstats-api/pkg/jobs"
	"github.com/noah-isme/libstats-api/pkg/logger"
	"github.com/noah-isme/libstats-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/libstats-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/libstats-api/pkg/middleware/requestid"
)

// @title Library Statistics Portal API
// @version 1.0.0
// @description Survey session lifecycle service for the library statistics portal
// @BasePath /
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	sessionRepo := repository.NewSessionRepository(db)
	eventRepo := repository.NewEventRepository(db)
	libraryRepo := repository.NewLibraryRepository(db)
	userRepo := repository.NewUserRepository(db)

	var cacheRepo *repository.CacheRepository
	if cfg.Survey.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, recipient caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	}

	var sender mailer.Mailer
	if cfg.Mail.SendGridKey != "" {
		sender = mailer.NewSendGrid(cfg.Mail)
	} else {
		logr.Sugar().Warnw("no mail provider key configured, using console mailer")
		sender = mailer.NewConsole(logr)
	}

	var recipientCache service.RecipientCache
	if cacheRepo != nil {
		recipientCache = cacheRepo
	}
	recipientSvc := service.NewRecipientService(libraryRepo, userRepo, recipientCache, cfg.Survey.RecipientCacheTTL, logr)

	metricsSvc := service.NewMetricsService()
	surveySvc := service.NewSurveySessionService(sessionRepo, libraryRepo, recipientSvc, sender, userRepo, nil, logr)
	eventSvc := service.NewScheduledEventService(eventRepo, userRepo, userRepo, logr)
	sweepSvc := service.NewSweepService(sessionRepo, eventRepo, libraryRepo, recipientSvc, sender, userRepo, metricsSvc, logr)

	surveyHandler := handler.NewSurveyHandler(surveySvc)
	eventHandler := handler.NewEventHandler(eventSvc)
	sweepHandler := handler.NewSweepHandler(sweepSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(cfg.JWT.Secret))

	api.GET("/survey-sessions", surveyHandler.List)
	api.GET("/survey-sessions/:year", surveyHandler.Get)
	api.GET("/survey-sessions/:year/open-records",
		middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin),
		surveyHandler.OpenRecords,
	)
	api.POST("/survey-sessions",
		middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin),
		surveyHandler.Create,
	)

	api.GET("/events", eventHandler.List)
	api.GET("/events/:id", eventHandler.Get)
	api.POST("/events/:id/cancel", eventHandler.Cancel)

	api.POST("/survey-sweep/run",
		middleware.RequireRoles(models.RoleSuperAdmin),
		middleware.Audit(userRepo, models.AuditActionSweepRun, "survey_sweep"),
		sweepHandler.Run,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Survey.SweepEnabled {
		runner := jobs.NewRunner("survey-sweep", func(ctx context.Context, now time.Time) error {
			recipientSvc.Invalidate(ctx)
			sweepSvc.RunSweep(ctx, now)
			return nil
		}, jobs.RunnerConfig{
			Interval:   cfg.Survey.SweepInterval,
			RunAtStart: true,
			Logger:     logr,
		})
		runner.Start(ctx)
		defer runner.Stop()
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
