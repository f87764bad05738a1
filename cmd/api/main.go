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

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	_ "github.com/trash2cash/trash2cash-api/api/swagger"
	"github.com/trash2cash/trash2cash-api/internal/handler"
	"github.com/trash2cash/trash2cash-api/internal/middleware"
	"github.com/trash2cash/trash2cash-api/internal/repository"
	"github.com/trash2cash/trash2cash-api/internal/service"
	"github.com/trash2cash/trash2cash-api/pkg/cache"
	"github.com/trash2cash/trash2cash-api/pkg/config"
	"github.com/trash2cash/trash2cash-api/pkg/crypto"
	"github.com/trash2cash/trash2cash-api/pkg/database"
	"github.com/trash2cash/trash2cash-api/pkg/jobs"
	"github.com/trash2cash/trash2cash-api/pkg/logger"
	corsmiddleware "github.com/trash2cash/trash2cash-api/pkg/middleware/cors"
	reqidmiddleware "github.com/trash2cash/trash2cash-api/pkg/middleware/requestid"
	"github.com/trash2cash/trash2cash-api/pkg/storage"
	"github.com/trash2cash/trash2cash-api/pkg/tracing"
)

// @title Trash2Cash API
// @version 1.0.0
// @description Crowdsourced plastic-waste collection: submissions, verification, rewards and community stats
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 15 * time.Second

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

	if _, err := maxprocs.Set(maxprocs.Logger(logr.Sugar().Infof)); err != nil {
		logr.Warn("failed to align GOMAXPROCS with the container quota", zap.Error(err))
	}

	if err := run(cfg, logr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, os.Stdout, logr)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logr.Warn("failed to flush spans", zap.Error(err))
		}
	}()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	sealer, err := crypto.NewSealer(cfg.Session.EncryptionKey)
	if err != nil {
		return fmt.Errorf("init session sealer: %w", err)
	}

	photos, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		return fmt.Errorf("init upload storage: %w", err)
	}

	// repositories
	userRepo := repository.NewUserRepository(db)
	workerRepo := repository.NewWorkerRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	voucherRepo := repository.NewVoucherRepository(db)
	zoneRepo := repository.NewZoneRepository(db)
	challengeRepo := repository.NewChallengeRepository(db)
	statsRepo := repository.NewStatsRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	sessionRepo := repository.NewSessionRepository(redisClient, sealer, cfg.Session.KeyPrefix)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// services
	validate := service.NewValidator()
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Rewards.CatalogCacheTTL, logr, true)

	authSvc := service.NewAuthService(userRepo, sessionRepo, auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
		SessionTimeout:    cfg.Session.InactivityTimeout,
	})
	userSvc := service.NewUserService(userRepo, auditRepo, logr)
	zoneSvc := service.NewZoneService(zoneRepo, workerRepo, cacheSvc, auditRepo, validate, logr)
	challengeSvc := service.NewChallengeService(challengeRepo, cacheSvc, auditRepo, validate, logr)
	ledgerSvc := service.NewLedgerService(ledgerRepo, voucherRepo, userRepo, cacheSvc, auditRepo, metricsSvc, validate, logr, service.LedgerConfig{
		CodePrefix: cfg.Rewards.VoucherCodePrefix,
		CodeTTL:    cfg.Rewards.VoucherCodeTTL,
	})
	statsSvc := service.NewStatsService(statsRepo, userRepo, workerRepo, zoneRepo, logr)
	uploadSvc := service.NewUploadService(photos, storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL), service.UploadConfig{
		MaxBytes:     cfg.Uploads.MaxFileSizeBytes,
		AllowedMIMEs: cfg.Uploads.AllowedMIMEs,
		URLPrefix:    cfg.APIPrefix,
	}, logr)

	oracle, err := service.NewOracle(cfg.Oracle, logr)
	if err != nil {
		return fmt.Errorf("init oracle: %w", err)
	}
	strategy, err := service.NewAssignmentStrategy(cfg.Assignment.Strategy)
	if err != nil {
		return fmt.Errorf("init assignment: %w", err)
	}
	worker := service.NewAnalysisWorker(submissionRepo, oracle, workerRepo, strategy, metricsSvc, logr)
	queue := jobs.NewQueue("submission-analysis", worker.Handle, jobs.QueueConfig{
		Workers:     cfg.Oracle.Workers,
		BufferSize:  cfg.Oracle.QueueSize,
		MaxRetries:  cfg.Oracle.MaxRetries,
		RetryDelay:  cfg.Oracle.RetryDelay,
		Logger:      logr,
		OnExhausted: worker.Exhausted,
	})
	queue.Start(ctx)
	defer queue.Stop()
	metricsSvc.TrackQueueDepth("submission-analysis", queue.Depth)

	submissionSvc := service.NewSubmissionService(service.SubmissionDeps{
		Repo:      submissionRepo,
		Verifiers: workerRepo,
		Queue:     queue,
		Fallback:  worker,
		Zones:     zoneSvc,
		Audit:     auditRepo,
		Metrics:   metricsSvc,
		Validate:  validate,
		Logger:    logr,
	})
	submissionSvc.Recover(ctx)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.WithResponseMeta())
	if cfg.Metrics.Enabled {
		r.Use(middleware.Metrics(metricsSvc))
	}

	var metricsEndpoint http.Handler
	if cfg.Metrics.Enabled {
		metricsEndpoint = metricsSvc.Handler()
	}
	probes := handler.NewMetricsHandler(metricsEndpoint, map[string]handler.Check{
		"postgres": db.PingContext,
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	})
	r.GET("/health", probes.Health)
	r.GET("/ready", probes.Ready)
	r.GET("/metrics", probes.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r.Group(cfg.APIPrefix), handler.Handlers{
		Auth:        handler.NewAuthHandler(authSvc),
		Users:       handler.NewUserHandler(userSvc),
		Submissions: handler.NewSubmissionHandler(submissionSvc),
		Uploads:     handler.NewUploadHandler(uploadSvc, cfg.Uploads.MaxFileSizeBytes),
		Rewards:     handler.NewRewardHandler(ledgerSvc),
		Stats:       handler.NewStatsHandler(statsSvc),
		Zones:       handler.NewZoneHandler(zoneSvc),
		Challenges:  handler.NewChallengeHandler(challengeSvc),
	}, handler.RouteDeps{Auth: authSvc, Audit: auditRepo, Logger: logr})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "oracle", cfg.Oracle.Mode, "assignment", strategy.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
