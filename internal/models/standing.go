package models

// Standing is one team's position in the league table as of a target date.
// Standings are fetched fresh per run and never persisted.
type Standing struct {
	ConferenceRank int     `json:"conference_rank"`
	LeagueRank     int     `json:"league_rank"`
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	WinPct         float64 `json:"win_pct"`
	Conference     string  `json:"conference"`
}
