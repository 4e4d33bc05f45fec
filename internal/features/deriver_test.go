package features

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nbapredictions/scheduler/internal/errs"
	"nbapredictions/scheduler/internal/models"
)

// fakeStats returns fixed engagement features and records what was asked.
type fakeStats struct {
	competitive float64
	rivalry     float64

	rivalryCalls []string
}

func (f *fakeStats) CompetitiveSeconds(ctx context.Context, gameID string) float64 {
	return f.competitive
}

func (f *fakeStats) RivalryScore(ctx context.Context, homeTeamID, awayTeamID int, date time.Time) float64 {
	f.rivalryCalls = append(f.rivalryCalls, date.Format("2006-01-02"))
	return f.rivalry
}

func detailFixture() models.GameDetail {
	return models.GameDetail{
		GameStub: models.GameStub{
			GameID:           "0022300001",
			Date:             "2024-01-15",
			HomeTeamID:       1610612737,
			AwayTeamID:       1610612738,
			HomeAbbreviation: "ATL",
			AwayAbbreviation: "BOS",
		},
		HomeScore:   112,
		AwayScore:   104,
		LeadChanges: 9,
	}
}

func standingsFixture() map[int]models.Standing {
	return map[int]models.Standing{
		1610612737: {ConferenceRank: 5, Wins: 30, Losses: 15, WinPct: 0.600, Conference: "East"},
		1610612738: {ConferenceRank: 1, Wins: 38, Losses: 7, WinPct: 0.800, Conference: "East"},
	}
}

func TestDerive(t *testing.T) {
	stats := &fakeStats{competitive: 1450, rivalry: 0.9}
	d := NewDeriver(stats)

	vec, err := d.Derive(context.Background(), detailFixture(), standingsFixture())
	require.NoError(t, err)

	assert.Equal(t, 4, vec.DiffRanks)
	assert.Equal(t, 0, vec.InterConference)
	assert.Equal(t, 8, vec.ScoresDiff)
	assert.Equal(t, 9, vec.LeadChanges)
	assert.InDelta(t, 1450, vec.CompetitiveSeconds, 0.001)
	assert.InDelta(t, 0.9, vec.RivalryScore, 0.001)

	// home side = 0.6 + 11/15, away side = 0.8 + 15/15
	homeSide := 0.600 + 11.0/15.0
	awaySide := 0.800 + 15.0/15.0
	assert.InDelta(t, homeSide/(homeSide+awaySide), vec.PositionScore, 1e-6)

	require.Len(t, stats.rivalryCalls, 1)
	assert.Equal(t, "2024-01-15", stats.rivalryCalls[0], "rivalry lookback anchors on the game date")
}

func TestDerive_PositionScoreSymmetry(t *testing.T) {
	d := NewDeriver(&fakeStats{})
	standings := standingsFixture()

	vec, err := d.Derive(context.Background(), detailFixture(), standings)
	require.NoError(t, err)

	flipped := detailFixture()
	flipped.HomeTeamID, flipped.AwayTeamID = flipped.AwayTeamID, flipped.HomeTeamID
	flipped.HomeAbbreviation, flipped.AwayAbbreviation = flipped.AwayAbbreviation, flipped.HomeAbbreviation

	flippedVec, err := d.Derive(context.Background(), flipped, standings)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, vec.PositionScore+flippedVec.PositionScore, 1e-6,
		"the two perspectives should split the matchup strength")
}

func TestDerive_InterConference(t *testing.T) {
	standings := standingsFixture()
	entry := standings[1610612738]
	entry.Conference = "West"
	standings[1610612738] = entry

	d := NewDeriver(&fakeStats{})
	vec, err := d.Derive(context.Background(), detailFixture(), standings)
	require.NoError(t, err)
	assert.Equal(t, 1, vec.InterConference)
}

func TestDerive_MissingStandingNamesTeam(t *testing.T) {
	standings := standingsFixture()
	delete(standings, 1610612738)

	d := NewDeriver(&fakeStats{})
	_, err := d.Derive(context.Background(), detailFixture(), standings)
	require.Error(t, err)

	var fe *errs.FeatureError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, err.Error(), "BOS")
}

func TestDerive_RejectsInvalidStandings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *models.Standing)
	}{
		{name: "rank too low", mutate: func(s *models.Standing) { s.ConferenceRank = 0 }},
		{name: "rank too high", mutate: func(s *models.Standing) { s.ConferenceRank = 16 }},
		{name: "win pct negative", mutate: func(s *models.Standing) { s.WinPct = -0.1 }},
		{name: "win pct above one", mutate: func(s *models.Standing) { s.WinPct = 1.2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			standings := standingsFixture()
			entry := standings[1610612737]
			tt.mutate(&entry)
			standings[1610612737] = entry

			d := NewDeriver(&fakeStats{})
			_, err := d.Derive(context.Background(), detailFixture(), standings)

			var fe *errs.FeatureError
			require.ErrorAs(t, err, &fe)
		})
	}
}

func TestDerive_RejectsNegativeScores(t *testing.T) {
	detail := detailFixture()
	detail.AwayScore = -3

	d := NewDeriver(&fakeStats{})
	_, err := d.Derive(context.Background(), detail, standingsFixture())

	var fe *errs.FeatureError
	require.ErrorAs(t, err, &fe)
}

func TestDerive_EngagementDefaultsPassValidation(t *testing.T) {
	// Degraded soft stats produce zeros; the vector must still validate.
	d := NewDeriver(&fakeStats{competitive: 0, rivalry: 0})

	vec, err := d.Derive(context.Background(), detailFixture(), standingsFixture())
	require.NoError(t, err)
	assert.Zero(t, vec.CompetitiveSeconds)
	assert.Zero(t, vec.RivalryScore)
	assert.NoError(t, vec.Validate())
}
