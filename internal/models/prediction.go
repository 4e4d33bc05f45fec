package models

import "time"

// Confidence tiers derived from the model's maximum class probability.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Prediction is the scorer's output for one game. Label, Probabilities and
// Confidence are only populated when the model artifact carries a classifier.
type Prediction struct {
	GameID         string             `json:"game_id"`
	Rating         float64            `json:"rating"`
	Label          string             `json:"label,omitempty"`
	Probabilities  map[string]float64 `json:"probabilities,omitempty"`
	Confidence     string             `json:"confidence,omitempty"`
	ModelVersion   string             `json:"model_version"`
	FeatureVersion string             `json:"feature_version"`
	PredictedAt    time.Time          `json:"predicted_at"`
}

// PredictionRecord is the complete row handed to the store: the prediction
// plus the game context and the feature snapshot that produced it.
type PredictionRecord struct {
	Prediction
	Date             string        `json:"game_date"`
	HomeTeamID       int           `json:"home_team_id"`
	AwayTeamID       int           `json:"away_team_id"`
	HomeAbbreviation string        `json:"home_team_abbreviation,omitempty"`
	AwayAbbreviation string        `json:"away_team_abbreviation,omitempty"`
	Features         FeatureVector `json:"features"`
}
