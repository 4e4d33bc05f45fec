package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nbapredictions/scheduler/internal/errs"
	"nbapredictions/scheduler/internal/models"
)

type fakeCollector struct {
	stubs     []models.GameStub
	listErr   error
	detailErr map[string]error
	standings map[int]models.Standing

	detailCalls []string
}

func (f *fakeCollector) ListCompletedEvents(ctx context.Context, date time.Time) ([]models.GameStub, error) {
	return f.stubs, f.listErr
}

func (f *fakeCollector) FetchDetail(ctx context.Context, stub models.GameStub) (models.GameDetail, error) {
	f.detailCalls = append(f.detailCalls, stub.GameID)
	if err := f.detailErr[stub.GameID]; err != nil {
		return models.GameDetail{}, err
	}
	return models.GameDetail{GameStub: stub, HomeScore: 110, AwayScore: 102, LeadChanges: 6}, nil
}

func (f *fakeCollector) StandingsAsOf(ctx context.Context, date time.Time) map[int]models.Standing {
	return f.standings
}

type fakeDeriver struct {
	failFor map[string]bool
}

func (f *fakeDeriver) Derive(ctx context.Context, detail models.GameDetail, standings map[int]models.Standing) (models.FeatureVector, error) {
	if f.failFor[detail.GameID] {
		return models.FeatureVector{}, errs.Featuref("game %s: derivation failed", detail.GameID)
	}
	return models.FeatureVector{DiffRanks: 2, ScoresDiff: 8, PositionScore: 0.5, LeadChanges: detail.LeadChanges}, nil
}

type fakeScorer struct {
	err error
}

func (f *fakeScorer) Record(detail models.GameDetail, vec models.FeatureVector) (models.PredictionRecord, error) {
	if f.err != nil {
		return models.PredictionRecord{}, f.err
	}
	return models.PredictionRecord{
		Prediction: models.Prediction{GameID: detail.GameID, Rating: 60},
		Date:       detail.Date,
		HomeTeamID: detail.HomeTeamID,
		AwayTeamID: detail.AwayTeamID,
		Features:   vec,
	}, nil
}

type fakeStore struct {
	existing map[string]bool
	saveErr  map[string]error

	saved     []models.PredictionRecord
	snapshots int
}

func (f *fakeStore) PredictionExists(ctx context.Context, gameID string) (bool, error) {
	return f.existing[gameID], nil
}

func (f *fakeStore) Save(ctx context.Context, rec models.PredictionRecord, force bool) (bool, error) {
	if err := f.saveErr[rec.GameID]; err != nil {
		return false, err
	}
	if f.existing[rec.GameID] && !force {
		return false, nil
	}
	f.saved = append(f.saved, rec)
	return true, nil
}

func (f *fakeStore) Snapshot() (string, error) {
	f.snapshots++
	return "backup.db", nil
}

func stubs() []models.GameStub {
	return []models.GameStub{
		{GameID: "g1", Date: "2024-01-15", HomeTeamID: 1, AwayTeamID: 2},
		{GameID: "g2", Date: "2024-01-15", HomeTeamID: 3, AwayTeamID: 4},
	}
}

func testDate() time.Time {
	return time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
}

func newTestRunner(collector *fakeCollector, st *fakeStore) *Runner {
	var saver Saver
	if st != nil {
		saver = st
	}
	return NewRunner(collector, &fakeDeriver{}, &fakeScorer{}, saver)
}

func TestRun_FullPipeline(t *testing.T) {
	collector := &fakeCollector{stubs: stubs()}
	st := &fakeStore{}
	r := newTestRunner(collector, st)

	stats := r.Run(context.Background(), testDate(), false)
	require.NoError(t, stats.Fatal)

	assert.Equal(t, 2, stats.GamesFound)
	assert.Equal(t, 2, stats.GamesProcessed)
	assert.Equal(t, 2, stats.PredictionsSaved)
	assert.Equal(t, 0, stats.PredictionsSkipped)
	assert.Empty(t, stats.Errors)
	assert.Equal(t, 1, st.snapshots, "a snapshot follows every store stage")
	assert.Equal(t, "2024-01-15", stats.TargetDate)
}

func TestRun_SkipsExistingBeforeEnrichment(t *testing.T) {
	collector := &fakeCollector{stubs: stubs()}
	st := &fakeStore{existing: map[string]bool{"g1": true}}
	r := newTestRunner(collector, st)

	stats := r.Run(context.Background(), testDate(), false)
	require.NoError(t, stats.Fatal)

	assert.Equal(t, 1, stats.GamesProcessed)
	assert.Equal(t, 1, stats.PredictionsSaved)
	assert.Equal(t, 1, stats.PredictionsSkipped)
	assert.NotContains(t, collector.detailCalls, "g1",
		"already-predicted games must be skipped before any enrichment traffic")
}

func TestRun_ForceReprocessesExisting(t *testing.T) {
	collector := &fakeCollector{stubs: stubs()}
	st := &fakeStore{existing: map[string]bool{"g1": true}}
	r := newTestRunner(collector, st)

	stats := r.Run(context.Background(), testDate(), true)
	require.NoError(t, stats.Fatal)

	assert.Equal(t, 2, stats.GamesProcessed)
	assert.Equal(t, 2, stats.PredictionsSaved)
	assert.Equal(t, 0, stats.PredictionsSkipped)
	assert.Contains(t, collector.detailCalls, "g1")
}

func TestRun_PerGameErrorsDontAbort(t *testing.T) {
	collector := &fakeCollector{
		stubs:     stubs(),
		detailErr: map[string]error{"g1": errs.Collectionf("game g1: box score unavailable")},
	}
	st := &fakeStore{}
	r := newTestRunner(collector, st)

	stats := r.Run(context.Background(), testDate(), false)
	require.NoError(t, stats.Fatal)

	assert.Equal(t, 2, stats.GamesFound)
	assert.Equal(t, 1, stats.GamesProcessed)
	assert.Equal(t, 1, stats.PredictionsSaved)
	require.Len(t, stats.Errors, 1)
	assert.Contains(t, stats.Errors[0], "g1")
}

func TestRun_FeatureErrorIsolatesGame(t *testing.T) {
	collector := &fakeCollector{stubs: stubs()}
	st := &fakeStore{}
	r := NewRunner(collector, &fakeDeriver{failFor: map[string]bool{"g2": true}}, &fakeScorer{}, st)

	stats := r.Run(context.Background(), testDate(), false)
	require.NoError(t, stats.Fatal)

	assert.Equal(t, 1, stats.GamesProcessed)
	require.Len(t, st.saved, 1)
	assert.Equal(t, "g1", st.saved[0].GameID)
}

func TestRun_CollectFailureIsFatal(t *testing.T) {
	collector := &fakeCollector{listErr: errs.Collectionf("provider unreachable")}
	r := newTestRunner(collector, &fakeStore{})

	stats := r.Run(context.Background(), testDate(), false)
	require.Error(t, stats.Fatal)
	assert.Zero(t, stats.GamesFound)
}

func TestRun_StoreErrorRecordedPerGame(t *testing.T) {
	collector := &fakeCollector{stubs: stubs()}
	st := &fakeStore{saveErr: map[string]error{"g2": errs.Storef("game g2: integrity violation")}}
	r := newTestRunner(collector, st)

	stats := r.Run(context.Background(), testDate(), false)
	require.NoError(t, stats.Fatal)

	assert.Equal(t, 1, stats.PredictionsSaved)
	require.Len(t, stats.Errors, 1)
}

func TestRunPartial_CheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	checkpoint := filepath.Join(dir, "features.json")

	collector := &fakeCollector{stubs: stubs()}
	first := NewRunner(collector, &fakeDeriver{}, nil, nil)

	stats := first.RunPartial(context.Background(), PartialOptions{
		Start:      StageCollect,
		End:        StageFeatures,
		OutputPath: checkpoint,
		Date:       testDate(),
	})
	require.NoError(t, stats.Fatal)
	assert.Equal(t, 2, stats.GamesProcessed)
	assert.FileExists(t, checkpoint)

	// Resume in a fresh process: no collector needed anymore.
	st := &fakeStore{}
	second := NewRunner(nil, nil, &fakeScorer{}, st)

	resumed := second.RunPartial(context.Background(), PartialOptions{
		Start:     StagePredict,
		End:       StageStore,
		InputPath: checkpoint,
	})
	require.NoError(t, resumed.Fatal)

	assert.Equal(t, "2024-01-15", resumed.TargetDate, "target date comes from the checkpoint")
	assert.Equal(t, 2, resumed.GamesFound, "found count carries over from the checkpoint")
	assert.Equal(t, 2, resumed.GamesProcessed)
	assert.Equal(t, 2, resumed.PredictionsSaved)
	require.Len(t, st.saved, 2)
	assert.Equal(t, "g1", st.saved[0].GameID)
}

func TestRunPartial_InvalidStageOrder(t *testing.T) {
	r := newTestRunner(&fakeCollector{}, &fakeStore{})

	stats := r.RunPartial(context.Background(), PartialOptions{
		Start: StageStore,
		End:   StageCollect,
		Date:  testDate(),
	})
	require.Error(t, stats.Fatal)
	assert.True(t, errs.IsFatal(stats.Fatal))
}

func TestRunPartial_UnknownStage(t *testing.T) {
	r := newTestRunner(&fakeCollector{}, &fakeStore{})

	stats := r.RunPartial(context.Background(), PartialOptions{
		Start: Stage("enrich"),
		End:   StageStore,
		Date:  testDate(),
	})
	require.Error(t, stats.Fatal)
}

func TestRunPartial_EarlyEndRequiresOutput(t *testing.T) {
	collector := &fakeCollector{stubs: stubs()}
	r := newTestRunner(collector, nil)

	stats := r.RunPartial(context.Background(), PartialOptions{
		Start: StageCollect,
		End:   StageFeatures,
		Date:  testDate(),
	})

	require.Error(t, stats.Fatal)
	assert.True(t, errs.IsFatal(stats.Fatal))
	assert.Contains(t, stats.Fatal.Error(), "output checkpoint")
	assert.Empty(t, collector.detailCalls, "the run must fail before any provider traffic")
}

func TestRunPartial_ResumeRequiresInput(t *testing.T) {
	r := newTestRunner(&fakeCollector{}, &fakeStore{})

	stats := r.RunPartial(context.Background(), PartialOptions{
		Start: StageFeatures,
		End:   StageStore,
		Date:  testDate(),
	})
	require.Error(t, stats.Fatal)
	assert.Contains(t, stats.Fatal.Error(), "checkpoint")
}

func TestRunPartial_MissingComponentIsFatal(t *testing.T) {
	r := NewRunner(&fakeCollector{stubs: stubs()}, &fakeDeriver{}, nil, &fakeStore{})

	stats := r.RunPartial(context.Background(), PartialOptions{
		Start: StageCollect,
		End:   StageStore,
		Date:  testDate(),
	})
	require.Error(t, stats.Fatal)
	assert.Contains(t, stats.Fatal.Error(), "scorer")
}

func TestRunPartial_MismatchedCheckpointLineageWarnsOnly(t *testing.T) {
	dir := t.TempDir()
	checkpoint := filepath.Join(dir, "collect.json")

	collector := &fakeCollector{stubs: stubs()}
	first := NewRunner(collector, nil, nil, nil)

	stats := first.RunPartial(context.Background(), PartialOptions{
		Start:      StageCollect,
		End:        StageCollect,
		OutputPath: checkpoint,
		Date:       testDate(),
	})
	require.NoError(t, stats.Fatal)

	// Resuming at predict expects a features checkpoint; a collect one still
	// loads, it just has nothing to predict.
	second := NewRunner(nil, nil, &fakeScorer{}, &fakeStore{})
	resumed := second.RunPartial(context.Background(), PartialOptions{
		Start:     StagePredict,
		End:       StageStore,
		InputPath: checkpoint,
	})
	require.NoError(t, resumed.Fatal)
	assert.Zero(t, resumed.PredictionsSaved)
}

func TestStageIndex(t *testing.T) {
	for i, stage := range []Stage{StageCollect, StageFeatures, StagePredict, StageStore} {
		got, err := StageIndex(stage)
		require.NoError(t, err)
		assert.Equal(t, i, got)
	}

	_, err := StageIndex(Stage("bogus"))
	assert.Error(t, err)
}

func TestRunStats_SummaryTruncatesErrors(t *testing.T) {
	stats := newRunStats("2024-01-15")
	for i := 0; i < 8; i++ {
		stats.Errors = append(stats.Errors, fmt.Sprintf("game g%d: boom", i))
	}
	stats.FinishedAt = stats.StartedAt

	summary := stats.Summary()
	assert.Contains(t, summary, "Errors (8)")
	assert.Contains(t, summary, "game g4: boom")
	assert.NotContains(t, summary, "game g5: boom")
	assert.Contains(t, summary, "... and 3 more")
}

func TestRunStats_ErrorsDoNotFailRun(t *testing.T) {
	collector := &fakeCollector{
		stubs:     stubs(),
		detailErr: map[string]error{"g1": errors.New("transient")},
	}
	r := newTestRunner(collector, &fakeStore{})

	stats := r.Run(context.Background(), testDate(), false)
	assert.NoError(t, stats.Fatal, "per-game errors never abort the run")
	assert.NotEmpty(t, stats.Errors)
}
