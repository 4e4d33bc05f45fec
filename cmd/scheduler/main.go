// Command scheduler runs the prediction pipeline once and exits. It is the
// entry point cron jobs and operators use; the long-running variant lives in
// cmd/worker.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nbapredictions/scheduler/internal/cache"
	"nbapredictions/scheduler/internal/client"
	"nbapredictions/scheduler/internal/config"
	"nbapredictions/scheduler/internal/features"
	"nbapredictions/scheduler/internal/pipeline"
	"nbapredictions/scheduler/internal/predictor"
	"nbapredictions/scheduler/internal/store"
	"nbapredictions/scheduler/internal/teams"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		dateFlag  = flag.String("date", "", "target date (YYYY-MM-DD); defaults to yesterday")
		force     = flag.Bool("force", false, "re-process games that already have stored predictions")
		validate  = flag.Bool("validate", false, "verify the model and database, print stored predictions, and exit")
		quiet     = flag.Bool("quiet", false, "suppress the end-of-run summary and non-error logs")
		fromStep  = flag.String("from-step", "collect", "first pipeline stage to run (collect|features|predict|store)")
		untilStep = flag.String("until-step", "store", "last pipeline stage to run (collect|features|predict|store)")
		input     = flag.String("input", "", "checkpoint file to resume from (required when from-step is not collect)")
		output    = flag.String("output", "", "checkpoint file to write when stopping before the store stage")
	)
	flag.Parse()

	setupLogger(*quiet)

	cfg := config.MustLoad()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	target := time.Now().UTC().AddDate(0, 0, cfg.DefaultDateOffset)
	if *dateFlag != "" {
		parsed, err := time.Parse("2006-01-02", *dateFlag)
		if err != nil {
			log.Error().Str("date", *dateFlag).Msg("Target date must be YYYY-MM-DD")
			os.Exit(1)
		}
		target = parsed
	}

	if *validate {
		os.Exit(runValidate(ctx, cfg, target))
	}

	start := pipeline.Stage(*fromStep)
	end := pipeline.Stage(*untilStep)
	startIdx, err := pipeline.StageIndex(start)
	if err != nil {
		log.Error().Err(err).Msg("Invalid -from-step")
		os.Exit(1)
	}
	endIdx, err := pipeline.StageIndex(end)
	if err != nil {
		log.Error().Err(err).Msg("Invalid -until-step")
		os.Exit(1)
	}
	inRange := func(s pipeline.Stage) bool {
		i, _ := pipeline.StageIndex(s)
		return startIdx <= i && i <= endIdx
	}

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

	var pred *predictor.Predictor
	if inRange(pipeline.StagePredict) {
		pred, err = predictor.New(predictor.Options{
			ModelPath:        cfg.ModelPath,
			ModelVersion:     cfg.ModelVersion,
			FeatureVersion:   cfg.FeatureVersion,
			ConfidenceHigh:   cfg.ConfidenceHigh,
			ConfidenceMedium: cfg.ConfidenceMedium,
		})
		if err != nil {
			log.Error().Err(err).Msg("Failed to load model")
			os.Exit(1)
		}
	}

	// The store also powers the skip check in the features stage, so it is
	// opened whenever the range touches either stage. When only the features
	// stage needs it, a broken database degrades to processing every game.
	var db pipeline.Saver
	if inRange(pipeline.StageStore) || inRange(pipeline.StageFeatures) {
		s, err := store.New(store.Options{
			DatabasePath:  cfg.DatabasePath,
			BackupPath:    cfg.BackupPath,
			BackupEnabled: cfg.BackupEnabled,
			Conferences: store.ConferenceFunc(func(ctx context.Context, teamID int) string {
				standings := nbaClient.StandingsAsOf(ctx, target)
				return standings[teamID].Conference
			}),
		})
		if err != nil {
			if inRange(pipeline.StageStore) {
				log.Error().Err(err).Msg("Failed to open prediction database")
				os.Exit(1)
			}
			log.Warn().Err(err).Msg("Prediction database unavailable, duplicate check disabled")
		} else {
			db = s
		}
	}

	runner := pipeline.NewRunner(nbaClient, features.NewDeriver(nbaClient), predictorOrNil(pred), db)

	stats := runner.RunPartial(ctx, pipeline.PartialOptions{
		Start:      start,
		End:        end,
		InputPath:  *input,
		OutputPath: *output,
		Date:       target,
		Force:      *force,
	})

	if !*quiet {
		fmt.Println(stats.Summary())
	}

	if stats.Fatal != nil {
		log.Error().Err(stats.Fatal).Msg("Run failed")
		os.Exit(1)
	}
}

// predictorOrNil avoids handing the runner a typed-nil Scorer interface.
func predictorOrNil(p *predictor.Predictor) pipeline.Scorer {
	if p == nil {
		return nil
	}
	return p
}

// runValidate checks the deployment end to end without touching the provider:
// the model artifact must load and the database schema must verify. It also
// reports what is already stored for the target date.
func runValidate(ctx context.Context, cfg *config.Config, date time.Time) int {
	pred, err := predictor.New(predictor.Options{
		ModelPath:        cfg.ModelPath,
		ModelVersion:     cfg.ModelVersion,
		FeatureVersion:   cfg.FeatureVersion,
		ConfidenceHigh:   cfg.ConfidenceHigh,
		ConfidenceMedium: cfg.ConfidenceMedium,
	})
	if err != nil {
		log.Error().Err(err).Msg("Model validation failed")
		return 1
	}

	db, err := store.New(store.Options{
		DatabasePath:  cfg.DatabasePath,
		BackupPath:    cfg.BackupPath,
		BackupEnabled: false,
	})
	if err != nil {
		log.Error().Err(err).Msg("Database validation failed")
		return 1
	}

	stats, err := db.Stats(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read database stats")
		return 1
	}

	fmt.Printf("Model OK: %s (version %s)\n", cfg.ModelPath, pred.ModelVersion())
	fmt.Printf("Database OK: %s\n", cfg.DatabasePath)
	fmt.Printf("  Teams: %d (registry has %d)\n", stats.Teams, len(teams.All()))
	fmt.Printf("  Games: %d\n", stats.Games)
	if stats.Games > 0 {
		fmt.Printf("  Date range: %s .. %s\n", stats.EarliestDate, stats.LatestDate)
	}

	day := date.Format("2006-01-02")
	records, err := db.PredictionsByDate(ctx, day)
	if err != nil {
		log.Error().Err(err).Str("date", day).Msg("Failed to read predictions")
		return 1
	}
	fmt.Printf("Predictions for %s: %d\n", day, len(records))
	for _, rec := range records {
		fmt.Printf("  %s  %s vs %s  rating %.2f", rec.GameID, rec.HomeAbbreviation, rec.AwayAbbreviation, rec.Rating)
		if rec.Label != "" {
			fmt.Printf("  %s (%s)", rec.Label, rec.Confidence)
		}
		fmt.Println()
	}
	return 0
}

// setupLogger configures the zerolog logger
func setupLogger(quiet bool) {
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
	if quiet {
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)
}
