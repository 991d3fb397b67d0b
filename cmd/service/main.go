package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dkarlsen/gamepulse/internal/config"
	"github.com/dkarlsen/gamepulse/internal/gamestore"
	httphandler "github.com/dkarlsen/gamepulse/internal/http"
	"github.com/dkarlsen/gamepulse/internal/igdb"
	"github.com/dkarlsen/gamepulse/internal/ingest"
	"github.com/dkarlsen/gamepulse/internal/kvstore"
	"github.com/dkarlsen/gamepulse/internal/observability"
	"github.com/dkarlsen/gamepulse/internal/popularity"
	"github.com/dkarlsen/gamepulse/internal/queue"
	"github.com/dkarlsen/gamepulse/internal/token"
)

func main() {
	_ = godotenv.Load()

	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var kv kvstore.Store
	switch cfg.CacheBackend {
	case "memory":
		kv = kvstore.NewMemoryStore()
		logger.Info("cache backend: memory")
	default:
		kv = kvstore.NewRedisStore(kvstore.RedisConfig{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  cfg.RedisDialTimeout,
			ReadTimeout:  cfg.RedisReadTimeout,
			WriteTimeout: cfg.RedisWriteTimeout,
		})
		logger.Info("cache backend: redis", zap.String("addr", cfg.RedisAddr))
	}

	records, err := gamestore.NewPostgresStore(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("record store", zap.Error(err))
	}

	jsQueue, err := queue.NewJetStreamQueue(queue.JetStreamConfig{
		URL:        cfg.NATSURL,
		Stream:     cfg.QueueStream,
		Subject:    cfg.QueueSubject,
		Durable:    cfg.QueueDurable,
		Visibility: cfg.QueueVisibility,
		FetchWait:  cfg.QueueFetchWait,
		MaxDeliver: cfg.QueueMaxDeliver,
	}, logger)
	if err != nil {
		logger.Fatal("queue", zap.Error(err))
	}

	exchanger, err := token.NewClientCredentialsExchanger(
		cfg.IGDBTokenURL, cfg.IGDBClientID, cfg.IGDBClientSecret, cfg.IGDBTimeout)
	if err != nil {
		logger.Fatal("token exchanger", zap.Error(err))
	}
	tokenCache := token.NewCache(kv, exchanger, cfg.TokenTTL, logger)

	igdbClient, err := igdb.NewClient(igdb.Config{
		BaseURL:        cfg.IGDBBaseURL,
		ClientID:       cfg.IGDBClientID,
		Timeout:        cfg.IGDBTimeout,
		RetryAttempts:  cfg.RetryAttempts,
		RetryBaseDelay: cfg.RetryBaseDelay,
		RetryMaxDelay:  cfg.RetryMaxDelay,
		BreakerTimeout: cfg.BreakerTimeout,
	})
	if err != nil {
		logger.Fatal("upstream client", zap.Error(err))
	}

	tracker := popularity.NewTracker(kv, records, popularity.Config{
		Threshold:     cfg.PopularityThreshold,
		CounterTTL:    cfg.CounterTTL,
		RateWindow:    cfg.RateWindow,
		OnReadFailure: popularity.ReadFailurePolicy(cfg.OnReadFailure),
	}, logger)

	worker := ingest.NewWorker(jsQueue, records, igdbClient, ingest.Config{
		BatchSize:  cfg.QueueBatchSize,
		StaleAfter: cfg.RefreshStaleAfter,
		StaleLimit: cfg.RefreshLimit,
	}, logger)

	if cfg.RefreshEnabled {
		go func() {
			err := worker.RunPeriodic(ctx, cfg.RefreshInterval, tokenCache.GetToken)
			if err != nil && err != context.Canceled {
				logger.Error("periodic refresh stopped", zap.Error(err))
			}
		}()
		logger.Info("periodic stale refresh enabled", zap.Duration("interval", cfg.RefreshInterval))
	}

	checks := &httphandler.HealthChecks{
		CacheStore:  kv.Ping,
		RecordStore: records.Ping,
		Queue:       jsQueue.Healthy,
	}
	handler := httphandler.NewHandler(tracker, worker, checks, logger)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())
	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(httphandler.RateLimitMiddleware(limiter))
	apiRouter.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	apiRouter.HandleFunc("/games/popularity", handler.TrackPopularity).Methods("POST")
	apiRouter.HandleFunc("/games/update", handler.UpdateGames).Methods("POST")
	apiRouter.HandleFunc("/workers/game-store", handler.RunStoreWorker).Methods("POST")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	if err := jsQueue.Close(); err != nil {
		logger.Error("queue close", zap.Error(err))
	}
	records.Close()
	if err := kv.Close(); err != nil {
		logger.Error("cache store close", zap.Error(err))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
