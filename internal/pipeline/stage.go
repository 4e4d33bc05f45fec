package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"nbapredictions/scheduler/internal/errs"
	"nbapredictions/scheduler/internal/models"
)

// Stage identifies one step of the pipeline.
type Stage string

const (
	StageCollect  Stage = "collect"
	StageFeatures Stage = "features"
	StagePredict  Stage = "predict"
	StageStore    Stage = "store"
)

var stageOrder = []Stage{StageCollect, StageFeatures, StagePredict, StageStore}

// StageIndex returns a stage's position in the pipeline.
func StageIndex(s Stage) (int, error) {
	for i, candidate := range stageOrder {
		if candidate == s {
			return i, nil
		}
	}
	return 0, errs.Configf("unknown pipeline stage %q", s)
}

func prevStage(s Stage) Stage {
	i, err := StageIndex(s)
	if err != nil || i == 0 {
		return ""
	}
	return stageOrder[i-1]
}

// writeCheckpoint serializes one stage's output so a later invocation can
// resume from the next stage.
func writeCheckpoint(path string, cp models.Checkpoint) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint %s: %w", path, err)
	}

	log.Info().
		Str("path", path).
		Str("stage", cp.Metadata.Stage).
		Int("total_games", cp.Metadata.TotalGames).
		Msg("Checkpoint written")
	return nil
}

// readCheckpoint loads a checkpoint and warns when its producing stage does
// not line up with the stage the caller wants to resume from. A mismatched
// lineage is suspicious but not fatal; the payload shape is what matters.
func readCheckpoint(path string, resumeAt Stage) (*models.Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Configf("failed to read checkpoint %s: %v", path, err)
	}

	var cp models.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, errs.Configf("checkpoint %s is not valid JSON: %v", path, err)
	}

	if want := prevStage(resumeAt); want != "" && cp.Metadata.Stage != string(want) {
		log.Warn().
			Str("path", path).
			Str("checkpoint_stage", cp.Metadata.Stage).
			Str("expected_stage", string(want)).
			Msg("Checkpoint was produced by an unexpected stage")
	}

	return &cp, nil
}

func checkpointFor(stage Stage, targetDate string, data stageData) models.Checkpoint {
	cp := models.Checkpoint{
		Metadata: models.CheckpointMeta{
			Stage:      string(stage),
			Timestamp:  time.Now().UTC(),
			TargetDate: targetDate,
		},
	}

	switch stage {
	case StageCollect:
		cp.Games = data.stubs
		cp.Metadata.TotalGames = len(data.stubs)
	case StageFeatures:
		cp.Processed = data.processed
		cp.Metadata.TotalGames = len(data.processed)
	case StagePredict:
		cp.Predictions = data.records
		cp.Metadata.TotalGames = len(data.records)
	}
	return cp
}
