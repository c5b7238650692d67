package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	auditapp "github.com/verifactu/backend/internal/application/audit"
	ledgerapp "github.com/verifactu/backend/internal/application/ledger"
	remisionapp "github.com/verifactu/backend/internal/application/remision"
	"github.com/verifactu/backend/internal/domain/audit"
	"github.com/verifactu/backend/internal/domain/shared"
	"github.com/verifactu/backend/internal/infrastructure/aeat"
	"github.com/verifactu/backend/internal/infrastructure/config"
	"github.com/verifactu/backend/internal/infrastructure/lock"
	"github.com/verifactu/backend/internal/infrastructure/logger"
	"github.com/verifactu/backend/internal/infrastructure/persistence"
	"github.com/verifactu/backend/internal/infrastructure/telemetry"
	"github.com/verifactu/backend/internal/interfaces/http/handler"
	"github.com/verifactu/backend/internal/interfaces/http/middleware"
	"github.com/verifactu/backend/internal/interfaces/http/router"
)

const version = "1.0.0"

// systemTenantID chains server lifecycle events. Operational events need a
// tenant because every audit chain is per tenant.
var systemTenantID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting VeriFactu Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Tracing
	tracerProvider, err := telemetry.NewTracerProvider(context.Background(), telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	// Create GORM logger backed by zap
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Per-tenant chain lock. Redis backs the lock in any multi-instance
	// deployment; when Redis is unreachable at boot we fall back to the
	// in-process lock, which is only safe for a single instance.
	var locker shared.TenantLocker
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 3*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Warn("Redis unavailable, using in-process tenant locks", zap.Error(err))
		locker = lock.NewMemoryTenantLocker(cfg.Lock.WaitTimeout)
	} else {
		locker = lock.NewRedisTenantLocker(redisClient, lock.Config{
			WaitTimeout: cfg.Lock.WaitTimeout,
			LeaseTTL:    cfg.Lock.LeaseTTL,
		})
		log.Info("Redis connected successfully")
	}
	cancelPing()

	// Initialize repositories
	recordRepo := persistence.NewGormLedgerRecordRepository(db.DB)
	stateRepo := persistence.NewGormTenantLedgerStateRepository(db.DB)
	batchRepo := persistence.NewGormRemisionBatchRepository(db.DB)
	pipelineRepo := persistence.NewGormPipelineStateRepository(db.DB)
	eventRepo := persistence.NewGormEventLogRepository(db.DB)

	// AEAT transport
	envelopeBuilder := aeat.NewEnvelopeBuilder(aeat.SoftwareInfo{
		DeveloperTaxID: cfg.Aeat.DeveloperTaxID,
		ID:             cfg.Aeat.SoftwareID,
		Name:           cfg.Aeat.SoftwareName,
		Version:        cfg.Aeat.SoftwareVersion,
		License:        cfg.Aeat.SoftwareLicense,
	})
	transport, err := aeat.NewHTTPSoapTransport(aeat.TransportConfig{
		ProductionEndpoint: cfg.Aeat.ProductionEndpoint,
		TestingEndpoint:    cfg.Aeat.TestingEndpoint,
		CertificatePath:    cfg.Aeat.CertificatePath,
		CertificateKeyPath: cfg.Aeat.CertificateKeyPath,
		RequestTimeout:     cfg.Aeat.RequestTimeout,
	}, envelopeBuilder, log)
	if err != nil {
		log.Fatal("Failed to initialize AEAT transport", zap.Error(err))
	}

	// Initialize application services
	eventService := auditapp.NewEventLogService(eventRepo, log)
	recordService := ledgerapp.NewRecordService(
		recordRepo,
		stateRepo,
		locker,
		eventService,
		aeat.NewQRBuilder(cfg.Aeat.QRBaseURL),
		ledgerapp.SoftwareIdentity{ID: cfg.Aeat.SoftwareID, Version: cfg.Aeat.SoftwareVersion},
		log,
	)
	recordService.SetEnvelopeRenderer(envelopeBuilder)
	tenantConfigService := ledgerapp.NewTenantConfigService(stateRepo, locker, eventService)
	remisionService := remisionapp.NewRemisionService(
		batchRepo,
		recordRepo,
		stateRepo,
		pipelineRepo,
		transport,
		eventService,
		log,
		remisionapp.PipelineConfig{
			MaxRetries:          cfg.Pipeline.MaxRetries,
			RetryBackoffBase:    cfg.Pipeline.RetryBackoffBase,
			MaxRecordsPerBatch:  cfg.Pipeline.MaxRecordsPerBatch,
			FlowControlInterval: cfg.Pipeline.FlowControlInterval,
		},
	)

	// Initialize HTTP handlers
	recordHandler := handler.NewRecordHandler(recordService)
	remisionHandler := handler.NewRemisionHandler(remisionService)
	tenantConfigHandler := handler.NewTenantConfigHandler(tenantConfigService)
	tenantConfigHandler.SetCertificateInspector(aeat.NewCertificateInspector(cfg.Aeat.CertificatePath, cfg.Aeat.CertificateKeyPath))
	tenantConfigHandler.SetConnectionProber(transport)
	eventLogHandler := handler.NewEventLogHandler(eventService)
	systemHandler := handler.NewSystemHandler(version)

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	engine := gin.New()

	// Configure trusted proxies
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Middleware stack: request ID, panic recovery, request logging,
	// tracing, then CORS
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	if tracerProvider.IsEnabled() {
		engine.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	}
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db, log))

	// Setup API routes. Everything under /verifactu is tenant scoped.
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(systemHandler)
	r.RegisterGuarded(recordHandler, middleware.RequireTenant())
	r.RegisterGuarded(remisionHandler, middleware.RequireTenant())
	r.RegisterGuarded(tenantConfigHandler, middleware.RequireTenant())
	r.RegisterGuarded(eventLogHandler, middleware.RequireTenant())
	r.Setup()

	// Background submission worker and periodic retry sweep
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	go remisionService.Run(workerCtx)
	go func() {
		ticker := time.NewTicker(cfg.Pipeline.QueueSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				if err := remisionService.Sweep(workerCtx); err != nil {
					log.Error("Queue sweep failed", zap.Error(err))
				}
			}
		}
	}()

	eventService.Record(context.Background(), systemTenantID, audit.EventSystemStart, audit.SeverityInfo, audit.Details{
		"version": version,
		"env":     cfg.App.Env,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in a goroutine
	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	stopWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	eventService.Record(shutdownCtx, systemTenantID, audit.EventSystemStop, audit.SeverityInfo, audit.Details{
		"version": version,
	})

	if err := redisClient.Close(); err != nil {
		log.Warn("Error closing Redis client", zap.Error(err))
	}

	log.Info("Server exited")
}

func healthHandler(db *persistence.Database, _ *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		if err := db.Ping(); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
