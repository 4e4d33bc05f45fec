// Package scheduler runs the prediction pipeline on a nightly cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"nbapredictions/scheduler/internal/config"
	"nbapredictions/scheduler/internal/pipeline"
)

// Scheduler triggers nightly pipeline runs. Each run targets yesterday's
// games relative to the trigger time, offset per configuration.
type Scheduler struct {
	cfg      *config.Config
	runner   *pipeline.Runner
	cron     *cron.Cron
	stopChan chan struct{}
}

// NewScheduler creates a new scheduler instance
func NewScheduler(cfg *config.Config, runner *pipeline.Runner) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		runner:   runner,
		cron:     cron.New(),
		stopChan: make(chan struct{}),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	log.Info().Msg("Scheduler starting...")

	if _, err := s.cron.AddFunc(s.cfg.NightlyRunCron, func() {
		s.runOnce(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule nightly run: %w", err)
	}

	s.cron.Start()
	log.Info().
		Str("schedule", s.cfg.NightlyRunCron).
		Msg("Nightly prediction run scheduled")

	if s.cfg.RunOnStart {
		go s.runOnce(ctx)
	}

	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	log.Info().Msg("Stopping scheduler...")

	if s.cron != nil {
		s.cron.Stop()
	}

	close(s.stopChan)
	log.Info().Msg("Scheduler stopped")
}

// runOnce executes one full pipeline run for the configured target day.
func (s *Scheduler) runOnce(ctx context.Context) {
	select {
	case <-s.stopChan:
		return
	default:
	}

	target := time.Now().UTC().AddDate(0, 0, s.cfg.DefaultDateOffset)
	log.Info().Str("date", target.Format("2006-01-02")).Msg("Running nightly prediction pipeline...")

	stats := s.runner.Run(ctx, target, false)
	if stats.Fatal != nil {
		log.Error().Err(stats.Fatal).Msg("Nightly prediction run failed")
		return
	}

	log.Info().Msg("Nightly prediction run complete")
	fmt.Println(stats.Summary())
}
