package models

import (
	"encoding/json"
	"time"
)

// ProcessedGame is the features-stage output for one game: the enriched
// detail plus the derived feature vector.
type ProcessedGame struct {
	GameID   string        `json:"game_id"`
	Raw      GameDetail    `json:"raw_data"`
	Features FeatureVector `json:"features"`
}

// CheckpointMeta identifies the provenance of a serialized stage output.
type CheckpointMeta struct {
	Stage      string    `json:"stage"`
	Timestamp  time.Time `json:"timestamp"`
	TargetDate string    `json:"target_date"`
	TotalGames int       `json:"total_games"`
}

// Checkpoint is the intermediate artifact written between pipeline stages so
// a run can halt at one stage and resume at the next in a later invocation.
// Exactly one payload field is populated, matching the producing stage.
type Checkpoint struct {
	Metadata    CheckpointMeta     `json:"metadata"`
	Games       []GameStub         `json:"games,omitempty"`
	Processed   []ProcessedGame    `json:"processed,omitempty"`
	Predictions []PredictionRecord `json:"predictions,omitempty"`
	Data        json.RawMessage    `json:"data,omitempty"`
}
