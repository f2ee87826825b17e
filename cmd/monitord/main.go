package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/audiocove/audiocove-monitoring/internal/api"
	"github.com/audiocove/audiocove-monitoring/internal/monitoring"
	"github.com/audiocove/audiocove-monitoring/internal/notifications"
	"github.com/audiocove/audiocove-monitoring/internal/notifications/channels"
	"github.com/audiocove/audiocove-monitoring/internal/storage"
	"github.com/audiocove/audiocove-monitoring/pkg/alerting"
	"github.com/audiocove/audiocove-monitoring/pkg/config"
	apperrors "github.com/audiocove/audiocove-monitoring/pkg/errors"
	"github.com/audiocove/audiocove-monitoring/pkg/health"
	"github.com/audiocove/audiocove-monitoring/pkg/logging"
	"github.com/audiocove/audiocove-monitoring/pkg/metrics"
	"github.com/audiocove/audiocove-monitoring/pkg/resilience"
	"github.com/audiocove/audiocove-monitoring/pkg/security"
	"github.com/audiocove/audiocove-monitoring/pkg/tracing"
)

const version = "1.0.0"

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger, err := logging.NewLogger(&logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		ServiceName: "audiocove-monitoring",
		Version:     version,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logging.SetGlobalLogger(logger)

	m := metrics.NewMetrics(metrics.DefaultConfig())

	// Initialize distributed tracing
	var tracer *tracing.TracingService
	if cfg.Tracing.Enabled {
		tracer, err = tracing.NewTracingService(&tracing.Config{
			ServiceName:    "audiocove-monitoring",
			ServiceVersion: version,
			JaegerEndpoint: cfg.Tracing.JaegerEndpoint,
			SamplingRate:   cfg.Tracing.SampleRate,
			Enabled:        true,
		})
		if err != nil {
			log.Fatalf("Failed to initialize tracing: %v", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracer.Shutdown(ctx); err != nil {
				logger.Error("Failed to shut down tracing", "error", err.Error())
			}
		}()
	}

	// Initialize database connection
	db, err := storage.NewDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Test database connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.Health(ctx); err != nil {
		log.Fatalf("Database health check failed: %v", err)
	}
	cancel()

	log.Println("Database connection established")

	// Initialize Redis connection
	redisClient, err := storage.NewRedisClient(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	// Test Redis connection
	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Health(ctx); err != nil {
		log.Fatalf("Redis health check failed: %v", err)
	}
	cancel()

	log.Println("Redis connection established")

	// Initialize the persistence stack: Postgres behind a Redis hot cache
	var crypto *security.EncryptionService
	if cfg.Auth.EncryptionKey != "" {
		crypto = security.NewEncryptionService(cfg.Auth.EncryptionKey)
	}

	pgStore := storage.NewPostgresStore(db, &storage.PostgresStoreConfig{
		DefaultRetentionDays: cfg.Monitoring.RetentionDays,
		Crypto:               crypto,
		Metrics:              m,
	})
	cache := storage.NewRecordCache(redisClient, storage.DefaultRecordCacheConfig())
	store := storage.NewCachedStore(pgStore, cache, logger)

	// Initialize resilience primitives
	registry := resilience.NewBreakerRegistry(resilience.BreakerConfig{
		FailureThreshold:  cfg.Resilience.FailureThreshold,
		ResetTimeout:      cfg.Resilience.ResetTimeout,
		MonitoringWindow:  cfg.Resilience.MonitoringWindow,
		HalfOpenSuccesses: cfg.Resilience.HalfOpenSuccesses,
	})
	defer registry.Clear()
	executor := resilience.NewExecutor(registry,
		resilience.WithMetrics(m),
		resilience.WithDefaultPolicy(resilience.RetryPolicy{
			MaxRetries: cfg.Resilience.MaxRetries,
			BaseDelay:  cfg.Resilience.BaseDelay,
			MaxDelay:   cfg.Resilience.MaxDelay,
			Multiplier: cfg.Resilience.BackoffMultiplier,
			Jitter:     cfg.Resilience.JitterEnabled,
		}),
	)

	pool, err := resilience.NewConnPool(resilience.PoolConfig{
		Name: "postgres",
		Factory: func(ctx context.Context) (resilience.Conn, error) {
			conn, err := db.Conn(ctx)
			if err != nil {
				return nil, err
			}
			return &pooledDBConn{conn: conn}, nil
		},
		MaxSize:        cfg.Pool.MaxSize,
		MinIdle:        cfg.Pool.MinIdle,
		AcquireTimeout: cfg.Pool.AcquireTimeout,
		IdleTimeout:    cfg.Pool.IdleTimeout,
		ReapInterval:   cfg.Pool.ReapInterval,
		Metrics:        m,
	})
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := pool.Close(ctx); err != nil {
			logger.Error("Failed to drain connection pool", "error", err.Error())
		}
	}()

	// Initialize notification delivery
	zapLogger, err := newZapLogger(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to initialize notification logger: %v", err)
	}
	defer zapLogger.Sync()

	notifier := notifications.NewService(zapLogger, executor, &notifications.ServiceConfig{
		SendTimeout: cfg.Notifications.SendTimeout,
		Metrics:     m,
	})
	defer notifier.Close()

	regs, err := channels.FromConfig(zapLogger, &cfg.Notifications)
	if err != nil {
		log.Fatalf("Failed to configure notification channels: %v", err)
	}
	for _, reg := range regs {
		notifier.Register(reg.Handler, reg.MinSeverity)
	}

	registered := len(regs)

	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	stored, err := pgStore.GetNotificationChannels(ctx)
	cancel()
	if err != nil {
		logger.Warn("Failed to load stored notification channels", "error", err.Error())
	}
	for _, def := range stored {
		if !def.Enabled {
			continue
		}
		reg, err := channels.FromDefinition(zapLogger, def)
		if err != nil {
			logger.Warn("Skipping notification channel", "channel", def.Name, "error", err.Error())
			continue
		}
		notifier.Register(reg.Handler, reg.MinSeverity)
		registered++
	}

	log.Printf("Notification channels registered: %d", registered)

	// Initialize the alert engine
	engine := alerting.NewEngine(alerting.EngineConfig{
		Aggregation: alerting.AggregationConfig{
			Enabled:    true,
			TimeWindow: cfg.Alerting.AggregationWindow,
		},
		AnomalyMinSamples: cfg.Alerting.AnomalyMinSamples,
	},
		alerting.WithStore(store),
		alerting.WithNotifier(notifier),
		alerting.WithEngineMetrics(m),
	)

	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	if err := engine.LoadFromStore(ctx); err != nil {
		logger.Warn("Failed to load alert rules from store", "error", err.Error())
	}
	cancel()

	// Initialize the monitoring aggregator. Evaluation can be switched
	// off without losing the rule CRUD surface.
	var evalEngine *alerting.Engine
	if cfg.Alerting.EvaluationEnabled {
		evalEngine = engine
	}
	monitors := monitoring.NewService(store, evalEngine, m, &monitoring.Config{
		DefaultInterval:   cfg.Monitoring.CheckInterval,
		RetentionInterval: 24 * time.Hour,
	})

	if err := registerBuiltinMonitors(cfg, monitors, db, redisClient, pool); err != nil {
		log.Fatalf("Failed to register monitors: %v", err)
	}

	if err := monitors.StartMonitoring(); err != nil {
		log.Fatalf("Failed to start monitoring: %v", err)
	}
	defer monitors.StopMonitoring()

	log.Println("Monitoring started")

	// Create API router with all dependencies
	router := api.NewRouter(cfg, db, redisClient, store, monitors, engine, registry, pool, m, tracer)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting monitoring API server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 30 seconds to complete
	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// registerBuiltinMonitors wires the daemon's own dependencies into the
// aggregator: database, Redis, and the connection pool it serves from.
func registerBuiltinMonitors(cfg *config.Config, monitors *monitoring.Service, db *storage.DB, redisClient *storage.RedisClient, pool *resilience.ConnPool) error {
	defaults := health.MonitorConfig{
		HistorySize:  cfg.Monitoring.HistorySize,
		CheckTimeout: cfg.Monitoring.CheckTimeout,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := monitors.Register(ctx, "database", health.NewDatabaseChecker(db, 500*time.Millisecond), monitoring.SourceOptions{
		Monitor: defaults,
	}); err != nil {
		return err
	}

	redisMonitor := defaults
	redisMonitor.Recovery = &health.RecoveryStrategy{
		Enabled:      true,
		TriggerAfter: 3,
		MaxAttempts:  3,
		Delay:        5 * time.Second,
		Actions: []health.RecoveryAction{
			{
				Name:    "cache-reconnect",
				Timeout: 10 * time.Second,
				Run:     redisClient.Health,
			},
		},
	}
	if err := monitors.Register(ctx, "redis", health.NewRedisChecker(redisClient.Client()), monitoring.SourceOptions{
		Monitor: redisMonitor,
	}); err != nil {
		return err
	}

	poolMonitor := defaults
	poolMonitor.Recovery = &health.RecoveryStrategy{
		Enabled:      true,
		TriggerAfter: 3,
		MaxAttempts:  2,
		Delay:        5 * time.Second,
		Actions: []health.RecoveryAction{
			{
				Name:    "pool-recycle",
				Timeout: 30 * time.Second,
				Run:     recyclePool(pool),
			},
		},
	}
	if err := monitors.Register(ctx, "db-pool", health.NewPooledConnChecker(pool), monitoring.SourceOptions{
		Monitor: poolMonitor,
	}); err != nil {
		return err
	}

	return monitors.Register(ctx, "db-pool-utilization", health.NewPoolUtilizationChecker(pool, 0.8), monitoring.SourceOptions{
		Monitor: defaults,
	})
}

// recyclePool pings every pooled connection it can hold at once,
// releasing the broken ones as lost so the reaper replaces them.
func recyclePool(pool *resilience.ConnPool) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		target := pool.Stats().Idle
		if target < 1 {
			target = 1
		}

		conns := make([]*resilience.PooledConn, 0, target)
		for len(conns) < target {
			conn, err := pool.Acquire(ctx)
			if err != nil {
				break
			}
			conns = append(conns, conn)
		}
		if len(conns) == 0 {
			return apperrors.NewUnavailableError("pool has no acquirable connections")
		}

		failed := 0
		for _, conn := range conns {
			if err := conn.Conn().Ping(ctx); err != nil {
				failed++
				conn.Release(apperrors.NewConnectionLostError("pooled connection failed its ping").WithCause(err))
				continue
			}
			conn.Release(nil)
		}
		if failed == len(conns) {
			return apperrors.NewUnavailableError("every pooled connection failed its ping")
		}
		return nil
	}
}

// pooledDBConn adapts a dedicated database connection to the pool's
// Conn interface.
type pooledDBConn struct {
	conn *sql.Conn
}

func (c *pooledDBConn) Ping(ctx context.Context) error { return c.conn.PingContext(ctx) }

func (c *pooledDBConn) Close() error { return c.conn.Close() }

func newZapLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
