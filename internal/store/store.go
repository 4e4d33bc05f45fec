// Package store persists prediction records into an externally-managed
// SQLite database. The schema is owned by the analytics team: this layer
// verifies it at startup, adapts to optional columns, and never issues DDL.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"nbapredictions/scheduler/internal/errs"
	"nbapredictions/scheduler/internal/models"
	"nbapredictions/scheduler/internal/teams"
)

// Required games columns. Their absence is a fatal schema mismatch.
var requiredGameColumns = []string{
	"id", "date", "home_team_id", "away_team_id", "prediction_rating",
}

// Optional games columns. Present columns are populated on insert; absent
// ones are silently skipped so older schema revisions keep working.
var optionalGameColumns = []string{
	"prediction_label",
	"prediction_confidence",
	"probabilities_json",
	"features_json",
	"model_version",
	"feature_version",
	"created_at",
	"updated_at",
}

// ConferenceSource resolves a team's conference when a missing team row has
// to be synthesized. Implementations may return "" when unknown.
type ConferenceSource interface {
	TeamConference(ctx context.Context, teamID int) string
}

// ConferenceFunc adapts a plain function into a ConferenceSource.
type ConferenceFunc func(ctx context.Context, teamID int) string

func (f ConferenceFunc) TeamConference(ctx context.Context, teamID int) string {
	return f(ctx, teamID)
}

// Options configures the store.
type Options struct {
	DatabasePath  string
	BackupPath    string
	BackupEnabled bool
	Conferences   ConferenceSource
}

// Store writes prediction records to the shared SQLite database. Connections
// are opened per logical operation; the scheduler is not the only writer and
// must not hold the file open between runs.
type Store struct {
	path          string
	backupPath    string
	backupEnabled bool
	conferences   ConferenceSource
	optional      map[string]bool
}

// Stats summarizes the database contents for the validate command.
type Stats struct {
	Teams        int
	Games        int
	EarliestDate string
	LatestDate   string
}

// New verifies the database file and schema and returns a ready store.
func New(opts Options) (*Store, error) {
	if _, err := os.Stat(opts.DatabasePath); err != nil {
		return nil, errs.StoreWrap(err, "database file %s is not accessible", opts.DatabasePath)
	}

	s := &Store{
		path:          opts.DatabasePath,
		backupPath:    opts.BackupPath,
		backupEnabled: opts.BackupEnabled,
		conferences:   opts.Conferences,
		optional:      make(map[string]bool),
	}

	if err := s.verifySchema(); err != nil {
		return nil, err
	}

	log.Info().
		Str("path", opts.DatabasePath).
		Int("optional_columns", len(s.optional)).
		Msg("Database schema verified")
	return s, nil
}

func (s *Store) open() (*sql.DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", s.path))
	if err != nil {
		return nil, errs.StoreWrap(err, "failed to open database %s", s.path)
	}
	return db, nil
}

// verifySchema checks that the expected tables and columns exist and records
// which optional columns this schema revision carries.
func (s *Store) verifySchema() error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	for _, table := range []string{"teams", "games"} {
		var name string
		err := db.QueryRow(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			return errs.Storef("database is missing required table %q", table)
		}
		if err != nil {
			return errs.StoreWrap(err, "failed to inspect schema")
		}
	}

	columns, err := tableColumns(db, "games")
	if err != nil {
		return err
	}
	for _, col := range requiredGameColumns {
		if !columns[col] {
			return errs.Storef("games table is missing required column %q", col)
		}
	}
	for _, col := range optionalGameColumns {
		if columns[col] {
			s.optional[col] = true
		}
	}

	teamColumns, err := tableColumns(db, "teams")
	if err != nil {
		return err
	}
	for _, col := range []string{"id", "name", "abbreviation"} {
		if !teamColumns[col] {
			return errs.Storef("teams table is missing required column %q", col)
		}
	}
	if teamColumns["conference"] {
		s.optional["teams.conference"] = true
	}

	return nil
}

func tableColumns(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return nil, errs.StoreWrap(err, "failed to read %s table info", table)
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return nil, errs.StoreWrap(err, "failed to scan %s table info", table)
		}
		columns[name] = true
	}
	return columns, rows.Err()
}

// PredictionExists reports whether a prediction row already exists for the game.
func (s *Store) PredictionExists(ctx context.Context, gameID string) (bool, error) {
	db, err := s.open()
	if err != nil {
		return false, err
	}
	defer db.Close()

	return s.exists(ctx, db, gameID)
}

func (s *Store) exists(ctx context.Context, db *sql.DB, gameID string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM games WHERE id = ?`, gameID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errs.StoreWrap(err, "failed to check existing prediction for game %s", gameID)
	}
	return true, nil
}

// Save persists one prediction record. An existing row is left untouched
// unless force is set, in which case only the rating is refreshed. The
// returned bool reports whether anything was written.
func (s *Store) Save(ctx context.Context, rec models.PredictionRecord, force bool) (bool, error) {
	db, err := s.open()
	if err != nil {
		return false, err
	}
	defer db.Close()

	if err := s.ensureTeam(ctx, db, rec.HomeTeamID); err != nil {
		return false, err
	}
	if err := s.ensureTeam(ctx, db, rec.AwayTeamID); err != nil {
		return false, err
	}

	exists, err := s.exists(ctx, db, rec.GameID)
	if err != nil {
		return false, err
	}

	if exists && !force {
		log.Debug().Str("game_id", rec.GameID).Msg("Prediction already stored, skipping")
		return false, nil
	}

	if exists {
		return true, s.updateRating(ctx, db, rec)
	}
	return true, s.insert(ctx, db, rec)
}

func (s *Store) updateRating(ctx context.Context, db *sql.DB, rec models.PredictionRecord) error {
	query := `UPDATE games SET prediction_rating = ?`
	args := []any{rec.Rating}
	if s.optional["updated_at"] {
		query += `, updated_at = ?`
		args = append(args, time.Now().UTC().Format(time.RFC3339))
	}
	query += ` WHERE id = ?`
	args = append(args, rec.GameID)

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return s.wrapWriteError(err, rec.GameID)
	}
	log.Info().Str("game_id", rec.GameID).Float64("rating", rec.Rating).Msg("Prediction rating updated")
	return nil
}

func (s *Store) insert(ctx context.Context, db *sql.DB, rec models.PredictionRecord) error {
	cols := []string{"id", "date", "home_team_id", "away_team_id", "prediction_rating"}
	args := []any{
		rec.GameID,
		rec.Date,
		strconv.Itoa(rec.HomeTeamID),
		strconv.Itoa(rec.AwayTeamID),
		rec.Rating,
	}

	now := time.Now().UTC().Format(time.RFC3339)
	addCol := func(col string, value any) {
		if s.optional[col] {
			cols = append(cols, col)
			args = append(args, value)
		}
	}

	addCol("prediction_label", rec.Label)
	addCol("prediction_confidence", rec.Confidence)
	addCol("model_version", rec.ModelVersion)
	addCol("feature_version", rec.FeatureVersion)
	addCol("created_at", now)
	addCol("updated_at", now)

	if s.optional["probabilities_json"] {
		payload, err := json.Marshal(rec.Probabilities)
		if err != nil {
			return errs.StoreWrap(err, "failed to encode probabilities for game %s", rec.GameID)
		}
		cols = append(cols, "probabilities_json")
		args = append(args, string(payload))
	}
	if s.optional["features_json"] {
		payload, err := json.Marshal(rec.Features)
		if err != nil {
			return errs.StoreWrap(err, "failed to encode features for game %s", rec.GameID)
		}
		cols = append(cols, "features_json")
		args = append(args, string(payload))
	}

	query := fmt.Sprintf(
		`INSERT INTO games (%s) VALUES (%s)`,
		strings.Join(cols, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "),
	)

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return s.wrapWriteError(err, rec.GameID)
	}
	log.Info().Str("game_id", rec.GameID).Float64("rating", rec.Rating).Msg("Prediction saved")
	return nil
}

// ensureTeam inserts a team row synthesized from the static registry when the
// referenced team is not present yet.
func (s *Store) ensureTeam(ctx context.Context, db *sql.DB, teamID int) error {
	id := strconv.Itoa(teamID)

	var one int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM teams WHERE id = ?`, id).Scan(&one)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return errs.StoreWrap(err, "failed to look up team %s", id)
	}

	team, ok := teams.ByID(teamID)
	if !ok {
		return errs.Storef("cannot synthesize row for unknown team id %d", teamID)
	}

	if s.optional["teams.conference"] {
		conference := ""
		if s.conferences != nil {
			conference = s.conferences.TeamConference(ctx, teamID)
		}
		_, err = db.ExecContext(ctx,
			`INSERT INTO teams (id, name, abbreviation, conference) VALUES (?, ?, ?, ?)`,
			id, team.Name, team.Abbreviation, conference)
	} else {
		_, err = db.ExecContext(ctx,
			`INSERT INTO teams (id, name, abbreviation) VALUES (?, ?, ?)`,
			id, team.Name, team.Abbreviation)
	}
	if err != nil {
		return errs.StoreWrap(err, "failed to insert team %s", team.Abbreviation)
	}

	log.Info().Str("team", team.Abbreviation).Msg("Team row synthesized")
	return nil
}

func (s *Store) wrapWriteError(err error, gameID string) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return errs.StoreWrap(err, "integrity violation saving game %s", gameID)
	}
	return errs.StoreWrap(err, "failed to save game %s", gameID)
}

// PredictionsByDate returns the stored predictions for one calendar day.
func (s *Store) PredictionsByDate(ctx context.Context, date string) ([]models.PredictionRecord, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	cols := []string{"id", "date", "home_team_id", "away_team_id", "prediction_rating"}
	withLabel := s.optional["prediction_label"]
	withConfidence := s.optional["prediction_confidence"]
	if withLabel {
		cols = append(cols, "prediction_label")
	}
	if withConfidence {
		cols = append(cols, "prediction_confidence")
	}

	query := fmt.Sprintf(`SELECT %s FROM games WHERE date = ? ORDER BY id`, strings.Join(cols, ", "))
	rows, err := db.QueryContext(ctx, query, date)
	if err != nil {
		return nil, errs.StoreWrap(err, "failed to query predictions for %s", date)
	}
	defer rows.Close()

	var records []models.PredictionRecord
	for rows.Next() {
		var (
			rec               models.PredictionRecord
			homeID, awayID    string
			label, confidence sql.NullString
		)
		dest := []any{&rec.GameID, &rec.Date, &homeID, &awayID, &rec.Rating}
		if withLabel {
			dest = append(dest, &label)
		}
		if withConfidence {
			dest = append(dest, &confidence)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, errs.StoreWrap(err, "failed to scan prediction row")
		}

		rec.HomeTeamID, _ = strconv.Atoi(homeID)
		rec.AwayTeamID, _ = strconv.Atoi(awayID)
		rec.Label = label.String
		rec.Confidence = confidence.String
		if team, ok := teams.ByID(rec.HomeTeamID); ok {
			rec.HomeAbbreviation = team.Abbreviation
		}
		if team, ok := teams.ByID(rec.AwayTeamID); ok {
			rec.AwayAbbreviation = team.Abbreviation
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Stats returns summary counts for the validate command.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	db, err := s.open()
	if err != nil {
		return Stats{}, err
	}
	defer db.Close()

	var stats Stats
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM teams`).Scan(&stats.Teams); err != nil {
		return Stats{}, errs.StoreWrap(err, "failed to count teams")
	}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM games`).Scan(&stats.Games); err != nil {
		return Stats{}, errs.StoreWrap(err, "failed to count games")
	}

	var earliest, latest sql.NullString
	err = db.QueryRowContext(ctx, `SELECT MIN(date), MAX(date) FROM games`).Scan(&earliest, &latest)
	if err != nil {
		return Stats{}, errs.StoreWrap(err, "failed to read date range")
	}
	stats.EarliestDate = earliest.String
	stats.LatestDate = latest.String

	return stats, nil
}

// Snapshot copies the database file into the backup directory. It is
// best-effort: callers log the error and continue.
func (s *Store) Snapshot() (string, error) {
	if !s.backupEnabled {
		return "", nil
	}

	if err := os.MkdirAll(s.backupPath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s.db",
		strings.TrimSuffix(filepath.Base(s.path), filepath.Ext(s.path)),
		time.Now().UTC().Format("20060102T150405"))
	target := filepath.Join(s.backupPath, name)

	src, err := os.Open(s.path)
	if err != nil {
		return "", fmt.Errorf("failed to open database for backup: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("failed to create backup file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("failed to copy database to %s: %w", target, err)
	}

	log.Info().Str("path", target).Msg("Database snapshot written")
	return target, nil
}
