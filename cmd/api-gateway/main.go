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
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-finance-api/api/swagger"
	"github.com/noah-isme/sma-finance-api/internal/billing"
	"github.com/noah-isme/sma-finance-api/internal/handler"
	"github.com/noah-isme/sma-finance-api/internal/middleware"
	"github.com/noah-isme/sma-finance-api/internal/models"
	"github.com/noah-isme/sma-finance-api/internal/repository"
	"github.com/noah-isme/sma-finance-api/internal/service"
	"github.com/noah-isme/sma-finance-api/pkg/cache"
	"github.com/noah-isme/sma-finance-api/pkg/config"
	"github.com/noah-isme/sma-finance-api/pkg/database"
	"github.com/noah-isme/sma-finance-api/pkg/export"
	"github.com/noah-isme/sma-finance-api/pkg/jobs"
	"github.com/noah-isme/sma-finance-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-finance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-finance-api/pkg/middleware/requestid"
)

const shutdownTimeout = 15 * time.Second

// @title SMA Finance API
// @version 1.0.0
// @description Student registry, payment ledger and tuition status matrix
// @BasePath /
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

	strategy, err := billing.ParseMatchStrategy(cfg.Billing.MatchStrategy)
	if err != nil {
		logr.Fatal("invalid billing configuration", zap.Error(err))
	}
	loc := cfg.Billing.Location()
	if cfg.Billing.Timezone != "" && loc.String() != cfg.Billing.Timezone {
		logr.Warn("billing timezone not loaded, using UTC", zap.String("timezone", cfg.Billing.Timezone))
	}

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(cfg.Database, logr); err != nil {
			logr.Fatal("database migration failed", zap.Error(err))
		}
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, tuition cache disabled", zap.Error(err))
	}

	metricsSvc := service.NewMetricsService()
	var cacheRepo service.CacheRepository
	var redisRepo *repository.CacheRepository
	if redisClient != nil {
		redisRepo = repository.NewCacheRepository(redisClient, logr)
		defer redisRepo.Close()
		cacheRepo = redisRepo
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Billing.CacheTTL, logr, cfg.Billing.CacheEnabled)

	studentRepo := repository.NewStudentRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	tuitionSvc := service.NewTuitionService(studentRepo, paymentRepo, cacheSvc, metricsSvc, service.TuitionServiceConfig{
		Strategy: strategy,
		Location: loc,
		CacheTTL: cfg.Billing.CacheTTL,
	}, logr)

	refresher := service.NewTuitionRefresher(tuitionSvc, loc, logr)
	warmQueue := jobs.NewQueue("tuition-warm", refresher.Handle, jobs.QueueConfig{
		Workers:    cfg.Billing.RefreshWorkers,
		MaxRetries: cfg.Billing.RefreshRetries,
		RetryDelay: 5 * time.Second,
		Logger:     logr,
	})
	refresher.AttachQueue(warmQueue)
	tuitionSvc.SetWarmer(refresher)

	validate := validator.New()
	studentSvc := service.NewStudentService(studentRepo, tuitionSvc, validate, logr, cfg.Billing.DefaultDueDay)
	paymentSvc := service.NewPaymentService(paymentRepo, studentRepo, tuitionSvc, validate, logr, loc)
	exportSvc := service.NewExportService(tuitionSvc, service.ExportConfig{
		Enabled:  cfg.Export.Enabled,
		PDFTitle: cfg.Export.PDFTitle,
	}, logr, export.NewCSVExporter(), export.NewPDFExporter())
	tokenSvc := service.NewTokenService(cfg.JWT.Secret)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	warmQueue.Start(ctx)
	if err := refresher.Start(cfg.Billing.RefreshCron); err != nil {
		logr.Fatal("failed to start tuition refresher", zap.Error(err))
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(middleware.Metrics(metricsSvc, "/metrics", "/health"))
	r.Use(middleware.WithResponseMeta())

	checks := map[string]handler.Pinger{"database": db}
	if redisRepo != nil {
		checks["cache"] = handler.PingerFunc(redisRepo.Ping)
	}
	metricsHandler := handler.NewMetricsHandler(metricsSvc, checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r.Group(cfg.APIPrefix), routeDeps{
		tokens:   tokenSvc,
		audit:    auditRepo,
		logger:   logr,
		metrics:  metricsHandler,
		students: handler.NewStudentHandler(studentSvc),
		payments: handler.NewPaymentHandler(paymentSvc),
		tuition:  handler.NewTuitionHandler(tuitionSvc, exportSvc),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.Env),
			zap.String("match_strategy", string(strategy)),
			zap.String("timezone", loc.String()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("server shutdown failed", zap.Error(err))
	}
	refresher.Stop()
	warmQueue.Stop()
}

type routeDeps struct {
	tokens   *service.TokenService
	audit    *repository.AuditRepository
	logger   *zap.Logger
	metrics  *handler.MetricsHandler
	students *handler.StudentHandler
	payments *handler.PaymentHandler
	tuition  *handler.TuitionHandler
}

func registerRoutes(api *gin.RouterGroup, deps routeDeps) {
	api.Use(middleware.JWT(deps.tokens))
	api.Use(middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleFinance))

	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(deps.audit, deps.logger, action, resource)
	}

	students := api.Group("/students")
	students.GET("", deps.students.List)
	students.GET("/:id", deps.students.Get)
	students.POST("", audit(models.AuditActionStudentCreate, "students"), deps.students.Create)
	students.PUT("/:id", audit(models.AuditActionStudentUpdate, "students"), deps.students.Update)
	students.DELETE("/:id", audit(models.AuditActionStudentDelete, "students"), deps.students.Delete)

	payments := api.Group("/payments")
	payments.GET("", deps.payments.List)
	payments.GET("/:id", deps.payments.Get)
	payments.POST("", audit(models.AuditActionPaymentCreate, "payments"), deps.payments.Record)
	payments.PATCH("/:id/status", audit(models.AuditActionPaymentStatusChange, "payments"), deps.payments.UpdateStatus)
	payments.DELETE("/:id", audit(models.AuditActionPaymentDelete, "payments"), deps.payments.Delete)

	tuition := api.Group("/tuition")
	tuition.GET("/matrix", deps.tuition.Matrix)
	tuition.GET("/matrix/export", deps.tuition.Export)
	tuition.GET("/stats", deps.tuition.Stats)
	tuition.GET("/students/:id", deps.tuition.StudentCard)

	api.GET("/system/metrics", deps.metrics.Snapshot)
}
