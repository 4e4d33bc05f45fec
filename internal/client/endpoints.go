package client

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"nbapredictions/scheduler/internal/errs"
	"nbapredictions/scheduler/internal/models"
	"nbapredictions/scheduler/internal/teams"
)

const paramDateFormat = "01/02/2006"

// ListCompletedEvents returns the completed games for one calendar day. The
// game finder endpoint lists every game twice, once from each team's
// perspective, so results are de-duplicated by game id.
func (c *Client) ListCompletedEvents(ctx context.Context, date time.Time) ([]models.GameStub, error) {
	params := url.Values{}
	params.Set("DateFrom", date.Format(paramDateFormat))
	params.Set("DateTo", date.Format(paramDateFormat))
	params.Set("SeasonTypeNullable", "Regular Season")
	params.Set("PlayerOrTeam", "T")
	params.Set("LeagueID", "00")

	body, err := c.fetch(ctx, "leaguegamefinder", params)
	if err != nil {
		return nil, errs.CollectionWrap(err, "failed to fetch games for %s", date.Format("2006-01-02"))
	}

	resp, err := parseStatsResponse(body)
	if err != nil {
		return nil, errs.CollectionWrap(err, "malformed game finder response")
	}

	set, ok := resp.first()
	if !ok {
		return nil, errs.Collectionf("game finder response has no result sets")
	}

	seen := make(map[string]bool)
	var stubs []models.GameStub
	for _, r := range set.rows() {
		gameID, ok := r.stringField("GAME_ID")
		if !ok {
			continue
		}
		if seen[gameID] {
			continue
		}
		seen[gameID] = true

		matchup, ok := r.stringField("MATCHUP")
		if !ok {
			return nil, errs.Collectionf("game %s has no matchup descriptor", gameID)
		}

		homeAbbr, awayAbbr, err := parseMatchup(matchup)
		if err != nil {
			return nil, errs.CollectionWrap(err, "game %s", gameID)
		}

		home, ok := teams.ByAbbreviation(homeAbbr)
		if !ok {
			log.Warn().Str("game_id", gameID).Str("team", homeAbbr).Msg("Unknown team abbreviation, skipping game")
			continue
		}
		away, ok := teams.ByAbbreviation(awayAbbr)
		if !ok {
			log.Warn().Str("game_id", gameID).Str("team", awayAbbr).Msg("Unknown team abbreviation, skipping game")
			continue
		}

		gameDate := date.Format("2006-01-02")
		if d, ok := r.stringField("GAME_DATE"); ok && len(d) >= 10 {
			gameDate = d[:10]
		}

		seasonID, _ := r.stringField("SEASON_ID")

		stubs = append(stubs, models.GameStub{
			GameID:           gameID,
			Date:             gameDate,
			HomeTeamID:       home.ID,
			AwayTeamID:       away.ID,
			HomeAbbreviation: home.Abbreviation,
			AwayAbbreviation: away.Abbreviation,
			SeasonID:         seasonID,
		})
	}

	return stubs, nil
}

// parseMatchup splits a matchup descriptor into home and away abbreviations.
// "ATL vs. BOS" means Atlanta hosted; "ATL @ BOS" means Boston hosted.
func parseMatchup(matchup string) (home, away string, err error) {
	if left, right, found := strings.Cut(matchup, " vs. "); found {
		return strings.TrimSpace(left), strings.TrimSpace(right), nil
	}
	if left, right, found := strings.Cut(matchup, " @ "); found {
		return strings.TrimSpace(right), strings.TrimSpace(left), nil
	}
	return "", "", fmt.Errorf("unrecognized matchup descriptor %q", matchup)
}

// FetchDetail enriches a game stub with box-score summary data. Final scores
// are required; engagement stats degrade to zero when the provider omits them.
func (c *Client) FetchDetail(ctx context.Context, stub models.GameStub) (models.GameDetail, error) {
	params := url.Values{}
	params.Set("GameID", stub.GameID)

	body, err := c.fetch(ctx, "boxscoresummaryv2", params)
	if err != nil {
		return models.GameDetail{}, errs.CollectionWrap(err, "failed to fetch box score for game %s", stub.GameID)
	}

	resp, err := parseStatsResponse(body)
	if err != nil {
		return models.GameDetail{}, errs.CollectionWrap(err, "malformed box score response for game %s", stub.GameID)
	}

	detail := models.GameDetail{GameStub: stub, StatusText: "Final"}

	var candidates []row
	if set, ok := resp.byName("OtherStats"); ok {
		candidates = append(candidates, set.rows()...)
	}
	if set, ok := resp.byName("GameSummary"); ok {
		candidates = append(candidates, set.rows()...)
	}

	homeScore, ok := firstInt(candidates, "HOME_TEAM_PTS", "PTS_HOME")
	if !ok {
		return models.GameDetail{}, errs.Collectionf("game %s box score is missing the home score", stub.GameID)
	}
	awayScore, ok := firstInt(candidates, "VISITOR_TEAM_PTS", "PTS_AWAY")
	if !ok {
		return models.GameDetail{}, errs.Collectionf("game %s box score is missing the away score", stub.GameID)
	}
	detail.HomeScore = homeScore
	detail.AwayScore = awayScore

	if v, ok := firstInt(candidates, "LEAD_CHANGES"); ok {
		detail.LeadChanges = v
	}
	if v, ok := firstInt(candidates, "TIMES_TIED"); ok {
		detail.TimesTied = v
	}
	if v, ok := firstInt(candidates, "ATTENDANCE"); ok {
		detail.Attendance = v
	}
	if set, ok := resp.byName("GameSummary"); ok {
		for _, r := range set.rows() {
			if s, ok := r.stringField("GAME_STATUS_TEXT"); ok {
				detail.StatusText = s
				break
			}
		}
	}

	return detail, nil
}

func firstInt(rows []row, aliases ...string) (int, bool) {
	for _, r := range rows {
		if v, ok := r.intField(aliases...); ok {
			return v, true
		}
	}
	return 0, false
}

// CompetitiveSeconds returns how much game time was spent within five points.
// The win probability feed samples the score margin over the course of the
// game; the time between consecutive samples is attributed to the earlier
// sample's margin. Failures degrade to zero rather than failing the game.
func (c *Client) CompetitiveSeconds(ctx context.Context, gameID string) float64 {
	params := url.Values{}
	params.Set("GameID", gameID)

	body, err := c.fetch(ctx, "winprobabilitypbp", params)
	if err != nil {
		log.Warn().Err(err).Str("game_id", gameID).Msg("Win probability fetch failed, competitive seconds default to 0")
		return 0
	}

	resp, err := parseStatsResponse(body)
	if err != nil {
		log.Warn().Err(err).Str("game_id", gameID).Msg("Malformed win probability response, competitive seconds default to 0")
		return 0
	}

	set, ok := resp.first()
	if !ok {
		return 0
	}

	type sample struct {
		seconds float64
		margin  float64
	}
	var samples []sample
	for _, r := range set.rows() {
		seconds, ok := r.floatField("SECONDS_REMAINING")
		if !ok {
			continue
		}
		margin, ok := r.floatField("HOME_SCORE_MARGIN")
		if !ok {
			continue
		}
		samples = append(samples, sample{seconds: seconds, margin: margin})
	}

	sort.Slice(samples, func(i, j int) bool {
		return samples[i].seconds > samples[j].seconds
	})

	var total float64
	for i, s := range samples {
		if i == len(samples)-1 {
			break
		}
		if math.Abs(s.margin) <= 5 {
			total += math.Abs(samples[i+1].seconds - s.seconds)
		}
	}
	return total
}

// RivalryScore scores the historical intensity of a matchup over the past
// five seasons: playoff meetings weighted at 0.7 plus the close-game ratio of
// regular season meetings weighted at 0.3. No regular season history means no
// rivalry. Failures degrade to zero.
func (c *Client) RivalryScore(ctx context.Context, homeTeamID, awayTeamID int, date time.Time) float64 {
	from := date.AddDate(-5, 0, 0)

	regular := c.headToHeadMargins(ctx, homeTeamID, awayTeamID, from, date, "Regular Season")
	if len(regular) == 0 {
		return 0
	}
	playoffs := c.headToHeadMargins(ctx, homeTeamID, awayTeamID, from, date, "Playoffs")

	closeGames := 0
	for _, margin := range regular {
		if math.Abs(margin) <= 10 {
			closeGames++
		}
	}
	closeRatio := float64(closeGames) / float64(len(regular))

	return float64(len(playoffs))*0.7 + closeRatio*0.3
}

// headToHeadMargins returns the final score margins of every meeting between
// the two teams in the window, from the first team's perspective. Errors are
// logged and produce an empty history.
func (c *Client) headToHeadMargins(ctx context.Context, teamID, vsTeamID int, from, to time.Time, seasonType string) []float64 {
	params := url.Values{}
	params.Set("TeamID", fmt.Sprintf("%d", teamID))
	params.Set("VsTeamID", fmt.Sprintf("%d", vsTeamID))
	params.Set("DateFrom", from.Format(paramDateFormat))
	params.Set("DateTo", to.Format(paramDateFormat))
	params.Set("SeasonTypeNullable", seasonType)
	params.Set("PlayerOrTeam", "T")
	params.Set("LeagueID", "00")

	key := fmt.Sprintf("h2h:%d:%d:%s:%s", teamID, vsTeamID, to.Format("2006-01-02"), seasonType)
	body, err := c.fetchCached(ctx, key, c.ttlHistory, "leaguegamefinder", params)
	if err != nil {
		log.Warn().Err(err).
			Int("team_id", teamID).
			Int("vs_team_id", vsTeamID).
			Str("season_type", seasonType).
			Msg("Head-to-head fetch failed, treating history as empty")
		return nil
	}

	resp, err := parseStatsResponse(body)
	if err != nil {
		log.Warn().Err(err).Msg("Malformed head-to-head response, treating history as empty")
		return nil
	}

	set, ok := resp.first()
	if !ok {
		return nil
	}

	var margins []float64
	for _, r := range set.rows() {
		if margin, ok := r.floatField("PLUS_MINUS"); ok {
			margins = append(margins, margin)
		}
	}
	return margins
}

// StandingsAsOf returns the league table for the season containing the given
// date, keyed by team id. Failures degrade to an empty table; downstream
// feature derivation reports the affected games individually.
func (c *Client) StandingsAsOf(ctx context.Context, date time.Time) map[int]models.Standing {
	season := SeasonForDate(date)

	params := url.Values{}
	params.Set("Season", season)
	params.Set("SeasonType", "Regular Season")
	params.Set("LeagueID", "00")

	body, err := c.fetchCached(ctx, "standings:"+season, c.ttlStandings, "leaguestandingsv3", params)
	if err != nil {
		log.Warn().Err(err).Str("season", season).Msg("Standings fetch failed, continuing with empty table")
		return map[int]models.Standing{}
	}

	resp, err := parseStatsResponse(body)
	if err != nil {
		log.Warn().Err(err).Str("season", season).Msg("Malformed standings response, continuing with empty table")
		return map[int]models.Standing{}
	}

	set, ok := resp.first()
	if !ok {
		return map[int]models.Standing{}
	}

	standings := make(map[int]models.Standing)
	for _, r := range set.rows() {
		teamID, ok := r.intField("TeamID", "TEAM_ID")
		if !ok {
			continue
		}

		confRank, okRank := r.intField("ConferenceRank", "CONFERENCE_RANK")
		wins, okWins := r.intField("WINS", "W")
		losses, okLosses := r.intField("LOSSES", "L")
		winPct, okPct := r.floatField("WinPCT", "W_PCT")
		conference, okConf := r.stringField("Conference", "CONFERENCE")
		if !okRank || !okWins || !okLosses || !okPct || !okConf {
			log.Warn().Int("team_id", teamID).Msg("Standings row is missing required fields, skipping team")
			continue
		}

		leagueRank, _ := r.intField("LeagueRank", "LEAGUE_RANK")

		standings[teamID] = models.Standing{
			ConferenceRank: confRank,
			LeagueRank:     leagueRank,
			Wins:           wins,
			Losses:         losses,
			WinPct:         winPct,
			Conference:     conference,
		}
	}
	return standings
}
