// Package features turns an enriched game record into the model's input
// vector. Ranking features fail hard when their inputs are missing or
// invalid; engagement features degrade to zero so one flaky endpoint never
// blocks a prediction.
package features

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"nbapredictions/scheduler/internal/errs"
	"nbapredictions/scheduler/internal/models"
)

// SoftStats supplies the best-effort engagement features. Implementations
// return zero instead of erroring when the underlying data is unavailable.
type SoftStats interface {
	CompetitiveSeconds(ctx context.Context, gameID string) float64
	RivalryScore(ctx context.Context, homeTeamID, awayTeamID int, date time.Time) float64
}

// Deriver computes feature vectors for completed games.
type Deriver struct {
	stats SoftStats
}

// NewDeriver creates a feature deriver backed by the given stats source.
func NewDeriver(stats SoftStats) *Deriver {
	return &Deriver{stats: stats}
}

// Derive builds the feature vector for one game from its box-score detail and
// the league standings as of the target date.
func (d *Deriver) Derive(ctx context.Context, detail models.GameDetail, standings map[int]models.Standing) (models.FeatureVector, error) {
	home, ok := standings[detail.HomeTeamID]
	if !ok {
		return models.FeatureVector{}, errs.Featuref(
			"game %s: no standings entry for home team %s (id %d)",
			detail.GameID, detail.HomeAbbreviation, detail.HomeTeamID)
	}
	away, ok := standings[detail.AwayTeamID]
	if !ok {
		return models.FeatureVector{}, errs.Featuref(
			"game %s: no standings entry for away team %s (id %d)",
			detail.GameID, detail.AwayAbbreviation, detail.AwayTeamID)
	}

	if err := validateStanding(detail.HomeAbbreviation, home); err != nil {
		return models.FeatureVector{}, err
	}
	if err := validateStanding(detail.AwayAbbreviation, away); err != nil {
		return models.FeatureVector{}, err
	}
	if detail.HomeScore < 0 || detail.AwayScore < 0 {
		return models.FeatureVector{}, errs.Featuref(
			"game %s has a negative score: %d-%d", detail.GameID, detail.HomeScore, detail.AwayScore)
	}

	interConference := 0
	if home.Conference != away.Conference {
		interConference = 1
	}

	positionScore, err := positionScore(detail.GameID, home, away)
	if err != nil {
		return models.FeatureVector{}, err
	}

	gameDate, err := detail.GameDate()
	if err != nil {
		return models.FeatureVector{}, errs.Featuref("game %s has unparseable date %q", detail.GameID, detail.Date)
	}

	vec := models.FeatureVector{
		DiffRanks:          abs(home.ConferenceRank - away.ConferenceRank),
		InterConference:    interConference,
		ScoresDiff:         abs(detail.HomeScore - detail.AwayScore),
		PositionScore:      positionScore,
		CompetitiveSeconds: d.stats.CompetitiveSeconds(ctx, detail.GameID),
		LeadChanges:        detail.LeadChanges,
		RivalryScore:       round6(d.stats.RivalryScore(ctx, detail.HomeTeamID, detail.AwayTeamID, gameDate)),
	}

	if err := vec.Validate(); err != nil {
		return models.FeatureVector{}, errs.Featuref("game %s produced an invalid feature vector: %v", detail.GameID, err)
	}

	log.Debug().Str("game_id", detail.GameID).Msg(vec.Summary())
	return vec, nil
}

// positionScore expresses the home side's share of the matchup's combined
// table strength. Each side's strength is its win percentage plus a bonus
// that decays with conference rank.
func positionScore(gameID string, home, away models.Standing) (float64, error) {
	homeSide := sideStrength(home)
	awaySide := sideStrength(away)

	denom := homeSide + awaySide
	if denom == 0 {
		return 0, errs.Featuref("game %s: position score denominator is zero", gameID)
	}
	return round6(homeSide / denom), nil
}

func sideStrength(s models.Standing) float64 {
	return s.WinPct + float64(16-s.ConferenceRank)/15.0
}

func validateStanding(team string, s models.Standing) error {
	if s.ConferenceRank < 1 || s.ConferenceRank > 15 {
		return errs.Featuref("team %s has conference rank %d outside [1, 15]", team, s.ConferenceRank)
	}
	if s.WinPct < 0 || s.WinPct > 1 {
		return errs.Featuref("team %s has win percentage %g outside [0, 1]", team, s.WinPct)
	}
	return nil
}

func round6(x float64) float64 {
	return math.Round(x*1e6) / 1e6
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
