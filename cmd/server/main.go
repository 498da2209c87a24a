package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pharmaerp/backend/internal/bootstrap"
	"github.com/pharmaerp/backend/internal/domain/shared"
	"github.com/pharmaerp/backend/internal/infrastructure/cache"
	"github.com/pharmaerp/backend/internal/infrastructure/config"
	"github.com/pharmaerp/backend/internal/infrastructure/logger"
	"github.com/pharmaerp/backend/internal/infrastructure/notify"
	"github.com/pharmaerp/backend/internal/infrastructure/persistence"
	"github.com/pharmaerp/backend/internal/infrastructure/scheduler"
	"github.com/pharmaerp/backend/internal/infrastructure/telemetry"
	"github.com/pharmaerp/backend/internal/interfaces/http/middleware"
	"github.com/pharmaerp/backend/internal/interfaces/http/router"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

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

	ctx := context.Background()

	// Telemetry providers; disabled signals are no-ops
	providers, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
		MetricsEnabled:    cfg.Telemetry.MetricsEnabled,
		LogsEnabled:       cfg.Telemetry.LogsEnabled,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		if err := providers.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down telemetry", zap.Error(err))
		}
	}()
	if providers.Logs.IsEnabled() {
		otelCore := providers.Logs.ZapCore(cfg.Telemetry.ServiceName, logger.ParseLevel(cfg.Log.Level))
		log = log.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, otelCore)
		}))
	}

	log.Info("Starting delivery service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Initialize database connection
	db, err := persistence.NewDatabase(&cfg.Database,
		persistence.WithLogger(log, logger.MapGormLogLevel(cfg.Log.Level), cfg.Telemetry.DBSlowQueryThresh),
		persistence.WithTracing(telemetry.DBTracingConfig{
			Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
			LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
			SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
			DBName:          cfg.Database.DBName,
		}),
	)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Redis backs cascade idempotency and operator notifications
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			if !cfg.Redis.AllowInMemoryFallback {
				log.Fatal("Failed to connect to Redis", zap.Error(err))
			}
			log.Warn("Redis unreachable", zap.Error(err))
			redisClient = nil
		} else {
			defer func() { _ = redisClient.Close() }()
		}
	}

	var idempotencyClient redis.UniversalClient
	notifiers := notify.Multi{notify.NewLogNotifier(log)}
	if redisClient != nil {
		idempotencyClient = redisClient
		notifiers = append(notifiers, notify.NewRedisNotifier(redisClient, cfg.Redis.NotifyChannel))
	}
	idempotencyStore, err := cache.NewIdempotencyStore(idempotencyClient, cfg.Redis, log)
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}

	meter := providers.Meter.Meter("github.com/pharmaerp/backend")
	metrics, err := telemetry.NewDeliveryMetrics(meter)
	if err != nil {
		log.Fatal("Failed to create delivery metrics", zap.Error(err))
	}

	// Assemble repositories, cascade and services
	opts, err := bootstrap.OptionsFromConfig(cfg)
	if err != nil {
		log.Fatal("Invalid delivery configuration", zap.Error(err))
	}
	opts.IdempotencyStore = idempotencyStore
	opts.Notifier = notifiers
	opts.Metrics = metrics
	d := bootstrap.NewDelivery(db.DB, opts, log)

	if cfg.Event.ProcessorEnabled {
		if err := d.Processor.Start(ctx); err != nil {
			log.Fatal("Failed to start cascade processor", zap.Error(err))
		}
		log.Info("Cascade processor started")
	}

	sweeps, err := scheduler.NewSweepScheduler(scheduler.SweepConfig{
		Enabled:  cfg.Delivery.SweepEnabled,
		Interval: cfg.Delivery.SweepInterval,
		Lookback: cfg.Delivery.SweepLookback,
	}, func(ctx context.Context, since time.Time) error {
		result, err := d.Reconciler.Sweep(ctx, since)
		if err != nil {
			return err
		}
		log.Info("Reconciliation sweep completed",
			zap.Int("checked", result.Checked),
			zap.Int("mismatched", result.Mismatched),
			zap.Int("repaired", result.Repaired),
			zap.Int("failed", result.Failed),
		)
		return nil
	}, log)
	if err != nil {
		log.Fatal("Invalid sweep configuration", zap.Error(err))
	}
	if err := sweeps.Start(ctx); err != nil {
		log.Fatal("Failed to start reconciliation sweep", zap.Error(err))
	}

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	httpMetrics, err := middleware.HTTPMetrics(meter)
	if err != nil {
		log.Fatal("Failed to create HTTP metrics", zap.Error(err))
	}

	// Middleware order: the request id first so every log line carries it,
	// the actor before span attributes so spans carry tenant and user.
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.Tracing(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.CORSWithConfig(middleware.DefaultCORSConfig()))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	engine.Use(middleware.Actor(middleware.DefaultActorConfig()))
	engine.Use(middleware.SpanAttributes())
	engine.Use(httpMetrics)

	router.Mount(engine, d.Handlers(cfg.App.Name, db))

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := sweeps.Stop(shutdownCtx); err != nil {
		log.Warn("Reconciliation sweep did not stop cleanly", zap.Error(err))
	}
	if cfg.Event.ProcessorEnabled {
		if err := d.Processor.Stop(shutdownCtx); err != nil {
			log.Warn("Cascade processor did not stop cleanly", zap.Error(err))
		}
	}
	closeStore(idempotencyStore)

	log.Info("Server exited gracefully")
}

// closeStore stops background sweeping of stores that have it
func closeStore(store shared.IdempotencyStore) {
	if c, ok := store.(interface{ Close() error }); ok {
		_ = c.Close()
	}
}
