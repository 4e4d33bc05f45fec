// Package pipeline orchestrates the four-stage prediction run: collect the
// day's completed games, derive features, score them, and persist the
// results. Stages can run individually with JSON checkpoints bridging the
// gaps, so a crashed run resumes where it stopped instead of re-hitting the
// rate-limited provider from scratch.
package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"nbapredictions/scheduler/internal/errs"
	"nbapredictions/scheduler/internal/metrics"
	"nbapredictions/scheduler/internal/models"
)

// Collector supplies game listings, box-score detail, and standings.
type Collector interface {
	ListCompletedEvents(ctx context.Context, date time.Time) ([]models.GameStub, error)
	FetchDetail(ctx context.Context, stub models.GameStub) (models.GameDetail, error)
	StandingsAsOf(ctx context.Context, date time.Time) map[int]models.Standing
}

// FeatureDeriver turns an enriched game into a feature vector.
type FeatureDeriver interface {
	Derive(ctx context.Context, detail models.GameDetail, standings map[int]models.Standing) (models.FeatureVector, error)
}

// Scorer scores a processed game into a prediction record.
type Scorer interface {
	Record(detail models.GameDetail, vec models.FeatureVector) (models.PredictionRecord, error)
}

// Saver persists prediction records.
type Saver interface {
	PredictionExists(ctx context.Context, gameID string) (bool, error)
	Save(ctx context.Context, rec models.PredictionRecord, force bool) (bool, error)
	Snapshot() (string, error)
}

// Runner wires the pipeline components together. The store may be nil when
// runs end before the store stage.
type Runner struct {
	collector Collector
	deriver   FeatureDeriver
	scorer    Scorer
	store     Saver
}

// NewRunner creates a pipeline runner.
func NewRunner(collector Collector, deriver FeatureDeriver, scorer Scorer, store Saver) *Runner {
	return &Runner{
		collector: collector,
		deriver:   deriver,
		scorer:    scorer,
		store:     store,
	}
}

// PartialOptions selects which stages to run and how to bridge them.
type PartialOptions struct {
	Start Stage
	End   Stage

	// InputPath is the checkpoint to resume from; required unless Start is
	// the collect stage.
	InputPath string

	// OutputPath receives a checkpoint of the final stage's output; required
	// when End is not the store stage, so partial work is never discarded.
	OutputPath string

	// Date is the target day. When resuming it defaults to the checkpoint's
	// target date.
	Date time.Time

	Force bool
}

// stageData is the payload threaded between stages.
type stageData struct {
	stubs     []models.GameStub
	processed []models.ProcessedGame
	records   []models.PredictionRecord
}

// Run executes the full pipeline for one day.
func (r *Runner) Run(ctx context.Context, date time.Time, force bool) *RunStats {
	return r.RunPartial(ctx, PartialOptions{
		Start: StageCollect,
		End:   StageStore,
		Date:  date,
		Force: force,
	})
}

// RunPartial executes a contiguous slice of the pipeline. Fatal errors stop
// the run and are reported in the returned stats; per-game errors are
// recorded and the remaining games continue.
func (r *Runner) RunPartial(ctx context.Context, opts PartialOptions) *RunStats {
	startIdx, err := StageIndex(opts.Start)
	if err != nil {
		return failedRun(opts, err)
	}
	endIdx, err := StageIndex(opts.End)
	if err != nil {
		return failedRun(opts, err)
	}
	if startIdx > endIdx {
		return failedRun(opts, errs.Configf("stage %s cannot run after %s", opts.Start, opts.End))
	}
	if opts.End != StageStore && opts.OutputPath == "" {
		return failedRun(opts, errs.Configf("stopping at stage %s requires an output checkpoint", opts.End))
	}
	if err := r.checkComponents(startIdx, endIdx); err != nil {
		return failedRun(opts, err)
	}

	targetDate := opts.Date
	var data stageData
	var resumedTotal int

	if opts.Start != StageCollect {
		if opts.InputPath == "" {
			return failedRun(opts, errs.Configf("resuming at stage %s requires an input checkpoint", opts.Start))
		}
		cp, err := readCheckpoint(opts.InputPath, opts.Start)
		if err != nil {
			return failedRun(opts, err)
		}
		data.stubs = cp.Games
		data.processed = cp.Processed
		data.records = cp.Predictions
		resumedTotal = cp.Metadata.TotalGames

		if targetDate.IsZero() && cp.Metadata.TargetDate != "" {
			targetDate, err = time.Parse("2006-01-02", cp.Metadata.TargetDate)
			if err != nil {
				return failedRun(opts, errs.Configf("checkpoint has unparseable target date %q", cp.Metadata.TargetDate))
			}
		}
	}

	if targetDate.IsZero() {
		return failedRun(opts, errs.Configf("a target date is required"))
	}

	stats := newRunStats(targetDate.Format("2006-01-02"))
	stats.GamesFound = resumedTotal

	log.Info().
		Str("date", stats.TargetDate).
		Str("from", string(opts.Start)).
		Str("until", string(opts.End)).
		Bool("force", opts.Force).
		Msg("Pipeline run starting")

	for i := startIdx; i <= endIdx; i++ {
		stage := stageOrder[i]
		stageStart := time.Now()

		var stageErr error
		switch stage {
		case StageCollect:
			stageErr = r.runCollect(ctx, targetDate, &data, stats)
		case StageFeatures:
			r.runFeatures(ctx, opts, targetDate, &data, stats)
		case StagePredict:
			r.runPredict(opts, &data, stats)
		case StageStore:
			r.runStore(ctx, opts, &data, stats)
		}

		metrics.RecordStage(string(stage), time.Since(stageStart).Seconds())
		if stageErr != nil {
			return r.finish(stats, stageErr)
		}
		if err := ctx.Err(); err != nil {
			return r.finish(stats, err)
		}
	}

	if opts.End != StageStore {
		cp := checkpointFor(opts.End, stats.TargetDate, data)
		if err := writeCheckpoint(opts.OutputPath, cp); err != nil {
			return r.finish(stats, err)
		}
	}

	return r.finish(stats, nil)
}

func (r *Runner) checkComponents(startIdx, endIdx int) error {
	inRange := func(s Stage) bool {
		i, _ := StageIndex(s)
		return startIdx <= i && i <= endIdx
	}

	if (inRange(StageCollect) || inRange(StageFeatures)) && r.collector == nil {
		return errs.Configf("pipeline has no collector configured")
	}
	if inRange(StageFeatures) && r.deriver == nil {
		return errs.Configf("pipeline has no feature deriver configured")
	}
	if inRange(StagePredict) && r.scorer == nil {
		return errs.Configf("pipeline has no scorer configured")
	}
	if inRange(StageStore) && r.store == nil {
		return errs.Configf("pipeline has no store configured")
	}
	return nil
}

func (r *Runner) finish(stats *RunStats, fatal error) *RunStats {
	stats.Fatal = fatal
	stats.FinishedAt = time.Now().UTC()

	status := "success"
	if fatal != nil {
		status = "failure"
	}
	metrics.RecordRun(status, stats.Duration().Seconds())

	if fatal != nil {
		log.Error().Err(fatal).Str("date", stats.TargetDate).Msg("Pipeline run aborted")
	} else {
		log.Info().
			Str("date", stats.TargetDate).
			Int("found", stats.GamesFound).
			Int("processed", stats.GamesProcessed).
			Int("saved", stats.PredictionsSaved).
			Int("skipped", stats.PredictionsSkipped).
			Int("errors", len(stats.Errors)).
			Dur("duration", stats.Duration()).
			Msg("Pipeline run finished")
	}
	return stats
}

func failedRun(opts PartialOptions, err error) *RunStats {
	date := ""
	if !opts.Date.IsZero() {
		date = opts.Date.Format("2006-01-02")
	}
	stats := newRunStats(date)
	stats.Fatal = err
	stats.FinishedAt = time.Now().UTC()
	metrics.RecordRun("failure", 0)
	return stats
}

func (r *Runner) runCollect(ctx context.Context, date time.Time, data *stageData, stats *RunStats) error {
	stubs, err := r.collector.ListCompletedEvents(ctx, date)
	if err != nil {
		return err
	}

	data.stubs = stubs
	stats.GamesFound = len(stubs)
	metrics.GamesFound.Add(float64(len(stubs)))

	log.Info().Str("date", stats.TargetDate).Int("games", len(stubs)).Msg("Completed games collected")
	return nil
}

// runFeatures enriches each collected game and derives its features. Games
// that already have a stored prediction are skipped before enrichment, so a
// rerun costs no provider traffic for them.
func (r *Runner) runFeatures(ctx context.Context, opts PartialOptions, date time.Time, data *stageData, stats *RunStats) {
	standings := r.collector.StandingsAsOf(ctx, date)
	skipExisting := r.store != nil && !opts.Force

	for _, stub := range data.stubs {
		if skipExisting {
			exists, err := r.store.PredictionExists(ctx, stub.GameID)
			if err != nil {
				stats.recordError("store", err)
				continue
			}
			if exists {
				stats.PredictionsSkipped++
				metrics.PredictionsSkipped.Inc()
				log.Debug().Str("game_id", stub.GameID).Msg("Prediction exists, skipping game")
				continue
			}
		}

		detail, err := r.collector.FetchDetail(ctx, stub)
		if err != nil {
			stats.recordError("collector", err)
			continue
		}

		vec, err := r.deriver.Derive(ctx, detail, standings)
		if err != nil {
			stats.recordError("features", err)
			continue
		}

		data.processed = append(data.processed, models.ProcessedGame{
			GameID:   stub.GameID,
			Raw:      detail,
			Features: vec,
		})
		stats.GamesProcessed++
		metrics.GamesProcessed.Inc()
	}
}

func (r *Runner) runPredict(opts PartialOptions, data *stageData, stats *RunStats) {
	// Processed games are counted in the features stage; count here only
	// when this run resumed directly at predict.
	countHere := opts.Start == StagePredict

	for _, pg := range data.processed {
		rec, err := r.scorer.Record(pg.Raw, pg.Features)
		if err != nil {
			stats.recordError("predictor", err)
			continue
		}
		data.records = append(data.records, rec)
		if countHere {
			stats.GamesProcessed++
		}
	}
}

func (r *Runner) runStore(ctx context.Context, opts PartialOptions, data *stageData, stats *RunStats) {
	for _, rec := range data.records {
		wrote, err := r.store.Save(ctx, rec, opts.Force)
		if err != nil {
			stats.recordError("store", err)
			continue
		}
		if wrote {
			stats.PredictionsSaved++
			metrics.PredictionsSaved.Inc()
		} else {
			stats.PredictionsSkipped++
			metrics.PredictionsSkipped.Inc()
		}
	}

	if _, err := r.store.Snapshot(); err != nil {
		log.Warn().Err(err).Msg("Database snapshot failed")
	}
}
