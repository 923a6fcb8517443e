package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/chartport/chartport/internal/application/orchestrator"
	"github.com/chartport/chartport/internal/application/scanner"
	"github.com/chartport/chartport/internal/application/tasks"
	"github.com/chartport/chartport/internal/application/workers"
	"github.com/chartport/chartport/internal/config"
	"github.com/chartport/chartport/internal/ports"
	"github.com/chartport/chartport/pkg/adapters/convertsvc"
	eventsmemory "github.com/chartport/chartport/pkg/adapters/events/memory"
	eventsredis "github.com/chartport/chartport/pkg/adapters/events/redis"
	"github.com/chartport/chartport/pkg/adapters/mediawiki"
	"github.com/chartport/chartport/pkg/adapters/metrics/prometheus"
	"github.com/chartport/chartport/pkg/adapters/registry"
	"github.com/chartport/chartport/pkg/adapters/taskstore"
	"github.com/chartport/chartport/pkg/api/http"
	"github.com/chartport/chartport/pkg/api/websocket"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

const healthCheckInterval = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting ChartPort",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	// Initialize Redis only when a redis backend is selected
	var redisClient *goredis.Client
	if cfg.Store.Backend == "redis" || cfg.Store.EventBus == "redis" {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})

		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	// Initialize adapters
	var eventBus ports.EventBus
	if cfg.Store.EventBus == "redis" {
		eventBus, err = eventsredis.NewStreamsEventBus(
			redisClient,
			"chartport-workers",
			fmt.Sprintf("chartport-%d", os.Getpid()),
			logger,
		)
		if err != nil {
			logger.Fatal("failed to create event bus", zap.Error(err))
		}
	} else {
		eventBus = eventsmemory.NewEventBus()
	}

	backend, err := taskstore.NewBackend(cfg.Store, redisClient, logger)
	if err != nil {
		logger.Fatal("failed to create task store backend", zap.Error(err))
	}

	metricsCollector := prometheus.NewCollector()

	wikiClient := mediawiki.NewClient(mediawiki.Config{
		BaseURL:     cfg.Wiki.APIBaseURL,
		AccessToken: cfg.Wiki.AccessToken,
		UserAgent:   cfg.Wiki.UserAgent,
		Timeout:     cfg.Wiki.RequestTimeout,
	}, logger)

	registryClient := mediawiki.NewClient(mediawiki.Config{
		BaseURL:     cfg.Wiki.RegistryAPIBaseURL,
		AccessToken: cfg.Wiki.AccessToken,
		UserAgent:   cfg.Wiki.UserAgent,
		Timeout:     cfg.Wiki.RequestTimeout,
	}, logger)
	nameRegistry := registry.New(registryClient)

	converter := convertsvc.NewClient(cfg.Converter.BaseURL, cfg.Converter.RequestTimeout, logger)

	// Initialize application components
	runtime := config.NewRuntime(cfg.Pipeline)

	store := tasks.NewStore(
		backend,
		func() tasks.Policy {
			p := runtime.Snapshot()
			return tasks.Policy{
				MaxAttempts:  p.MaxAttempts,
				BackoffBase:  p.BackoffBase,
				BackoffCap:   p.BackoffCap,
				LeaseTimeout: p.LeaseTimeout,
			}
		},
		eventBus,
		metricsCollector,
		logger,
	)

	// Pool size is fixed at boot. Lowering concurrency at runtime shrinks
	// the pull batch; raising it above this value takes a restart.
	workerPool := workers.NewPool(
		cfg.Pipeline.Concurrency,
		metricsCollector,
		logger,
		healthCheckInterval,
	)

	if err := workerPool.Start(); err != nil {
		logger.Fatal("failed to start worker pool", zap.Error(err))
	}

	orch := orchestrator.New(
		store,
		wikiClient,
		converter,
		nameRegistry,
		workerPool,
		metricsCollector,
		runtime,
		logger,
	)

	scan := scanner.New(
		wikiClient,
		converter,
		store,
		eventBus,
		metricsCollector,
		runtime,
		logger,
	)

	// The run context is cancelled on signal or by the shutdown page watchdog
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	watchdog := orchestrator.NewWatchdog(
		wikiClient,
		cfg.Wiki.Username,
		cfg.Timeouts.ShutdownPagePoll,
		cancelRun,
		logger,
	)

	go func() {
		if err := orch.Run(runCtx); err != nil {
			logger.Error("orchestrator stopped", zap.Error(err))
			cancelRun()
		}
	}()
	go scan.Run(runCtx)
	go watchdog.Run(runCtx)

	// Initialize API server
	httpServer := http.NewServer(&http.Config{
		Port:    cfg.HTTPPort,
		Store:   store,
		Runtime: runtime,
		Logger:  logger,
	})

	wsHandler := websocket.NewHandler(eventBus, logger)
	httpServer.SetupWebSocket(wsHandler)

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	logger.Info("ChartPort started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.String("store_backend", cfg.Store.Backend),
		zap.Int("concurrency", cfg.Pipeline.Concurrency))

	// Wait for interrupt signal or watchdog-triggered stop
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		logger.Info("received shutdown signal")
	case <-runCtx.Done():
		logger.Info("run context cancelled")
	}

	cancelRun()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := workerPool.Shutdown(shutdownCtx); err != nil {
		logger.Error("worker pool shutdown error", zap.Error(err))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Redis close error", zap.Error(err))
		}
	}

	logger.Info("ChartPort shut down complete")
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
