package models

import "time"

// GameStub is the basic listing record for one completed game. Created during
// collection, immutable afterward. GameID is the provider's opaque identifier
// and the primary key throughout the pipeline.
type GameStub struct {
	GameID           string `json:"game_id"`
	Date             string `json:"date"` // YYYY-MM-DD
	HomeTeamID       int    `json:"home_team_id"`
	AwayTeamID       int    `json:"away_team_id"`
	HomeAbbreviation string `json:"home_team_abbreviation"`
	AwayAbbreviation string `json:"away_team_abbreviation"`
	SeasonID         string `json:"season_id"`
}

// GameDate parses the stub's ISO date.
func (g GameStub) GameDate() (time.Time, error) {
	return time.Parse("2006-01-02", g.Date)
}

// GameDetail is a GameStub enriched with box-score summary data. One detail
// per game id.
type GameDetail struct {
	GameStub
	HomeScore   int    `json:"home_team_score"`
	AwayScore   int    `json:"away_team_score"`
	LeadChanges int    `json:"lead_changes"`
	TimesTied   int    `json:"times_tied"`
	StatusText  string `json:"game_status"`
	Attendance  int    `json:"attendance"`
}
