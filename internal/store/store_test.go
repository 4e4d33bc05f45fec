package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nbapredictions/scheduler/internal/models"
)

const fullSchema = `
CREATE TABLE teams (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	abbreviation TEXT NOT NULL,
	conference TEXT
);
CREATE TABLE games (
	id TEXT PRIMARY KEY,
	date TEXT NOT NULL,
	home_team_id TEXT NOT NULL REFERENCES teams(id),
	away_team_id TEXT NOT NULL REFERENCES teams(id),
	prediction_rating REAL NOT NULL,
	prediction_label TEXT,
	prediction_confidence TEXT,
	probabilities_json TEXT,
	features_json TEXT,
	model_version TEXT,
	feature_version TEXT,
	created_at TEXT,
	updated_at TEXT
);
`

const minimalSchema = `
CREATE TABLE teams (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	abbreviation TEXT NOT NULL
);
CREATE TABLE games (
	id TEXT PRIMARY KEY,
	date TEXT NOT NULL,
	home_team_id TEXT NOT NULL,
	away_team_id TEXT NOT NULL,
	prediction_rating REAL NOT NULL
);
`

// setupTestDB creates a database file with the given schema and returns a
// verified store on top of it.
func setupTestDB(t *testing.T, schema string) (*Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "predictions.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(schema)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := New(Options{
		DatabasePath:  path,
		BackupPath:    filepath.Join(t.TempDir(), "backups"),
		BackupEnabled: true,
		Conferences: ConferenceFunc(func(ctx context.Context, teamID int) string {
			return "East"
		}),
	})
	require.NoError(t, err)
	return s, path
}

func recordFixture() models.PredictionRecord {
	return models.PredictionRecord{
		Prediction: models.Prediction{
			GameID:         "0022300001",
			Rating:         73.25,
			Label:          "high_quality",
			Probabilities:  map[string]float64{"high_quality": 0.9, "average": 0.1},
			Confidence:     models.ConfidenceHigh,
			ModelVersion:   "2.1",
			FeatureVersion: "1.0",
			PredictedAt:    time.Now().UTC(),
		},
		Date:             "2024-01-15",
		HomeTeamID:       1610612737,
		AwayTeamID:       1610612738,
		HomeAbbreviation: "ATL",
		AwayAbbreviation: "BOS",
		Features:         models.FeatureVector{DiffRanks: 4, ScoresDiff: 8, PositionScore: 0.52},
	}
}

func TestNew_MissingFile(t *testing.T) {
	_, err := New(Options{DatabasePath: "/nonexistent/predictions.db"})
	assert.Error(t, err)
}

func TestNew_MissingTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "predictions.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE teams (id TEXT PRIMARY KEY, name TEXT NOT NULL, abbreviation TEXT NOT NULL)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = New(Options{DatabasePath: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "games")
}

func TestNew_MissingRequiredColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "predictions.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE teams (id TEXT PRIMARY KEY, name TEXT NOT NULL, abbreviation TEXT NOT NULL);
		CREATE TABLE games (id TEXT PRIMARY KEY, date TEXT NOT NULL);
	`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = New(Options{DatabasePath: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prediction_rating")
}

func TestSave_InsertAndSkip(t *testing.T) {
	s, _ := setupTestDB(t, fullSchema)
	ctx := context.Background()
	rec := recordFixture()

	wrote, err := s.Save(ctx, rec, false)
	require.NoError(t, err)
	assert.True(t, wrote, "first save should insert")

	exists, err := s.PredictionExists(ctx, rec.GameID)
	require.NoError(t, err)
	assert.True(t, exists)

	// Second save without force is a no-op.
	wrote, err = s.Save(ctx, rec, false)
	require.NoError(t, err)
	assert.False(t, wrote, "second save should skip")
}

func TestSave_ForceUpdatesRatingOnly(t *testing.T) {
	s, path := setupTestDB(t, fullSchema)
	ctx := context.Background()

	rec := recordFixture()
	_, err := s.Save(ctx, rec, false)
	require.NoError(t, err)

	rec.Rating = 12.5
	rec.Label = "average"
	wrote, err := s.Save(ctx, rec, true)
	require.NoError(t, err)
	assert.True(t, wrote)

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var rating float64
	var label string
	err = db.QueryRow(`SELECT prediction_rating, prediction_label FROM games WHERE id = ?`, rec.GameID).
		Scan(&rating, &label)
	require.NoError(t, err)

	assert.InDelta(t, 12.5, rating, 0.001)
	assert.Equal(t, "high_quality", label, "force refreshes the rating, nothing else")
}

func TestSave_SynthesizesTeams(t *testing.T) {
	s, path := setupTestDB(t, fullSchema)
	ctx := context.Background()

	_, err := s.Save(ctx, recordFixture(), false)
	require.NoError(t, err)

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM teams`).Scan(&count))
	assert.Equal(t, 2, count)

	var name, abbr, conference string
	err = db.QueryRow(`SELECT name, abbreviation, conference FROM teams WHERE id = '1610612737'`).
		Scan(&name, &abbr, &conference)
	require.NoError(t, err)
	assert.Equal(t, "Atlanta Hawks", name)
	assert.Equal(t, "ATL", abbr)
	assert.Equal(t, "East", conference)
}

func TestSave_MinimalSchemaSkipsOptionalColumns(t *testing.T) {
	s, path := setupTestDB(t, minimalSchema)
	ctx := context.Background()

	wrote, err := s.Save(ctx, recordFixture(), false)
	require.NoError(t, err)
	assert.True(t, wrote)

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var rating float64
	err = db.QueryRow(`SELECT prediction_rating FROM games WHERE id = '0022300001'`).Scan(&rating)
	require.NoError(t, err)
	assert.InDelta(t, 73.25, rating, 0.001)
}

func TestSave_UnknownTeamFails(t *testing.T) {
	s, _ := setupTestDB(t, fullSchema)

	rec := recordFixture()
	rec.HomeTeamID = 42

	_, err := s.Save(context.Background(), rec, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown team")
}

func TestPredictionsByDate(t *testing.T) {
	s, _ := setupTestDB(t, fullSchema)
	ctx := context.Background()

	first := recordFixture()
	second := recordFixture()
	second.GameID = "0022300002"
	second.Rating = 55.5

	_, err := s.Save(ctx, first, false)
	require.NoError(t, err)
	_, err = s.Save(ctx, second, false)
	require.NoError(t, err)

	records, err := s.PredictionsByDate(ctx, "2024-01-15")
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "0022300001", records[0].GameID)
	assert.InDelta(t, 73.25, records[0].Rating, 0.001)
	assert.Equal(t, "high_quality", records[0].Label)
	assert.Equal(t, 1610612737, records[0].HomeTeamID)

	empty, err := s.PredictionsByDate(ctx, "2024-01-16")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStats(t *testing.T) {
	s, _ := setupTestDB(t, fullSchema)
	ctx := context.Background()

	_, err := s.Save(ctx, recordFixture(), false)
	require.NoError(t, err)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Teams)
	assert.Equal(t, 1, stats.Games)
	assert.Equal(t, "2024-01-15", stats.EarliestDate)
	assert.Equal(t, "2024-01-15", stats.LatestDate)
}

func TestSnapshot(t *testing.T) {
	s, _ := setupTestDB(t, fullSchema)

	target, err := s.Snapshot()
	require.NoError(t, err)
	require.NotEmpty(t, target)

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestSnapshot_Disabled(t *testing.T) {
	s, _ := setupTestDB(t, fullSchema)
	s.backupEnabled = false

	target, err := s.Snapshot()
	require.NoError(t, err)
	assert.Empty(t, target)
}
