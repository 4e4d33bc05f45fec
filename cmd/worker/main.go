package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nbapredictions/scheduler/internal/cache"
	"nbapredictions/scheduler/internal/client"
	"nbapredictions/scheduler/internal/config"
	"nbapredictions/scheduler/internal/features"
	"nbapredictions/scheduler/internal/metrics"
	"nbapredictions/scheduler/internal/pipeline"
	"nbapredictions/scheduler/internal/predictor"
	"nbapredictions/scheduler/internal/scheduler"
	"nbapredictions/scheduler/internal/store"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	setupLogger()

	log.Info().Msg("Starting NBA Prediction Worker")

	cfg := config.MustLoad()
	log.Info().
		Str("env", cfg.AppEnv).
		Str("log_level", cfg.LogLevel).
		Msg("Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Received shutdown signal, gracefully shutting down...")
		cancel()
	}()

	// Optional Redis response cache
	var responseCache cache.Cache
	if cfg.RedisEnabled() {
		redisCache, err := cache.NewRedis(ctx, cache.Config{
			Addr:     cfg.RedisAddr(),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to Redis - continuing without cache")
		} else {
			defer redisCache.Close()
			responseCache = redisCache
		}
	}

	nbaClient := client.NewClient(client.Options{
		BaseURL:        cfg.StatsBaseURL,
		Timeout:        cfg.StatsTimeout,
		RateLimitDelay: cfg.RateLimitDelay,
		RetryAttempts:  cfg.RetryAttempts,
		RetryBase:      cfg.RetryBase,
		RetryJitter:    cfg.RetryJitter,
		Cache:          responseCache,
		TTLStandings:   cfg.CacheTTLStandings,
		TTLHistory:     cfg.CacheTTLHistory,
	})
	log.Info().Str("base_url", cfg.StatsBaseURL).Msg("NBA stats client initialized")

	pred, err := predictor.New(predictor.Options{
		ModelPath:        cfg.ModelPath,
		ModelVersion:     cfg.ModelVersion,
		FeatureVersion:   cfg.FeatureVersion,
		ConfidenceHigh:   cfg.ConfidenceHigh,
		ConfidenceMedium: cfg.ConfidenceMedium,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load model")
	}

	db, err := store.New(store.Options{
		DatabasePath:  cfg.DatabasePath,
		BackupPath:    cfg.BackupPath,
		BackupEnabled: cfg.BackupEnabled,
		Conferences: store.ConferenceFunc(func(ctx context.Context, teamID int) string {
			standings := nbaClient.StandingsAsOf(ctx, time.Now().UTC())
			return standings[teamID].Conference
		}),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open prediction database")
	}
	log.Info().Str("path", cfg.DatabasePath).Msg("Prediction database verified")

	runner := pipeline.NewRunner(nbaClient, features.NewDeriver(nbaClient), pred, db)

	if cfg.EnableMetrics {
		go startMetricsServer(cfg.MetricsPort)
	}

	startTime := time.Now()
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.SystemUptime.Set(time.Since(startTime).Seconds())
			case <-ctx.Done():
				return
			}
		}
	}()

	sched := scheduler.NewScheduler(cfg, runner)
	if err := sched.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}

	<-ctx.Done()

	log.Info().Msg("Shutting down scheduler...")
	sched.Stop()

	log.Info().Msg("Worker shutdown complete")
}

// setupLogger configures the zerolog logger
func setupLogger() {
	if os.Getenv("NBA_APP_ENV") == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	level := zerolog.InfoLevel
	if lvl := os.Getenv("NBA_LOG_LEVEL"); lvl != "" {
		parsedLevel, err := zerolog.ParseLevel(lvl)
		if err == nil {
			level = parsedLevel
		}
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("level", level.String()).
		Msg("Logger initialized")
}

// startMetricsServer starts the Prometheus metrics HTTP server
func startMetricsServer(port int) {
	http.Handle("/metrics", promhttp.Handler())

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	addr := fmt.Sprintf(":%d", port)
	log.Info().Int("port", port).Msg("Starting metrics server")

	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Error().Err(err).Msg("Metrics server failed")
	}
}
