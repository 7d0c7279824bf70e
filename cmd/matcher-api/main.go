package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/study-match-api/internal/handler"
	"github.com/noah-isme/study-match-api/internal/middleware"
	"github.com/noah-isme/study-match-api/internal/repository"
	"github.com/noah-isme/study-match-api/internal/service"
	"github.com/noah-isme/study-match-api/pkg/cache"
	"github.com/noah-isme/study-match-api/pkg/config"
	"github.com/noah-isme/study-match-api/pkg/database"
	"github.com/noah-isme/study-match-api/pkg/jobs"
	"github.com/noah-isme/study-match-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/study-match-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/study-match-api/pkg/middleware/requestid"
	"github.com/noah-isme/study-match-api/pkg/storage"
)

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

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	// Postgres and Redis are optional: without them the API still serves
	// payload-only matching runs.
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Warnw("postgres unavailable, running without persistence", "error", err)
		db = nil
	}

	var redisClient *redis.Client
	if cfg.Matching.CacheEnabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, running without cache", "error", err)
			redisClient = nil
		}
	}

	var cacheSvc *service.CacheService
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Matching.CacheTTL, logr, cfg.Matching.CacheEnabled)
	}

	var (
		cohortRepo   *repository.StudentRepository
		registryRepo *repository.RegistryRepository
		runRepo      *repository.RunRepository
	)
	if db != nil {
		cohortRepo = repository.NewStudentRepository(db)
		registryRepo = repository.NewRegistryRepository(db)
		runRepo = repository.NewRunRepository(db)
	}

	matchingSvc := service.NewMatchingService(
		orNilCohort(cohortRepo),
		orNilRegistry(registryRepo),
		orNilRuns(runRepo),
		cacheSvc,
		metricsSvc,
		validate,
		logr,
		cfg.Matching,
	)

	queue := jobs.NewQueue("matching-runs", matchingSvc.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
		Logger:     logr,
	})
	matchingSvc.AttachQueue(queue)

	var exportSvc *service.ExportService
	var exportStore *storage.LocalStorage
	if cfg.Exports.Enabled {
		exportSvc = service.NewExportService(matchingSvc, nil, nil, logr)
		if cfg.Exports.Dir != "" {
			exportStore, err = storage.NewLocalStorage(cfg.Exports.Dir)
			if err != nil {
				logr.Sugar().Warnw("export archive unavailable", "dir", cfg.Exports.Dir, "error", err)
			} else {
				exportSvc.AttachArchive(exportStore)
			}
		}
	}

	matchingHandler := handler.NewMatchingHandler(matchingSvc, orNilExporter(exportSvc))
	metricsHandler := handler.NewMetricsHandler(metricsSvc, readinessChecks(db, redisClient)...)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/matching/runs", matchingHandler.Run)
		api.GET("/matching/runs", matchingHandler.List)
		api.GET("/matching/runs/:id", matchingHandler.Get)
		api.GET("/matching/runs/:id/status", matchingHandler.Status)
		api.GET("/matching/runs/:id/export", matchingHandler.Export)
		api.GET("/matching/registry", matchingHandler.Registry)
		api.DELETE("/matching/registry/:studentId", matchingHandler.ReleaseStudent)
		api.GET("/stats", metricsHandler.Stats)

		if cohortRepo != nil {
			studentSvc := service.NewStudentService(cohortRepo, validate, logr)
			studentHandler := handler.NewStudentHandler(studentSvc)
			api.POST("/students", studentHandler.Create)
			api.GET("/students", studentHandler.List)
			api.GET("/students/:id", studentHandler.Get)
			api.DELETE("/students/:id", studentHandler.Deactivate)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue.Start(ctx)
	defer queue.Stop()

	if exportStore != nil {
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if removed, err := exportStore.CleanupOlderThan(cfg.Exports.Retention); err != nil {
						logr.Sugar().Warnw("export cleanup failed", "error", err)
					} else if len(removed) > 0 {
						logr.Sugar().Infow("expired exports removed", "count", len(removed))
					}
				}
			}
		}()
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
	if db != nil {
		_ = db.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
}

// The orNil helpers keep a typed nil pointer from becoming a non-nil
// interface inside the matching service.

func orNilCohort(repo *repository.StudentRepository) service.CohortLoader {
	if repo == nil {
		return nil
	}
	return repo
}

func orNilRegistry(repo *repository.RegistryRepository) service.RegistryStore {
	if repo == nil {
		return nil
	}
	return repo
}

func orNilRuns(repo *repository.RunRepository) service.RunRecorder {
	if repo == nil {
		return nil
	}
	return repo
}

func orNilExporter(svc *service.ExportService) handler.RunExporter {
	if svc == nil {
		return nil
	}
	return svc
}

func readinessChecks(db *sqlx.DB, redisClient *redis.Client) []handler.ReadinessCheck {
	var checks []handler.ReadinessCheck
	if db != nil {
		checks = append(checks, handler.ReadinessCheck{
			Name: "postgres",
			Probe: func(ctx context.Context) error {
				return db.PingContext(ctx)
			},
		})
	}
	if redisClient != nil {
		checks = append(checks, handler.ReadinessCheck{
			Name: "redis",
			Probe: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		})
	}
	return checks
}
