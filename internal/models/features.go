package models

import "fmt"

// FeatureCount is the width of the model's input row.
const FeatureCount = 7

// FeatureNames lists the feature fields in the canonical order the model was
// trained on. The order must never change without a feature version bump.
var FeatureNames = [FeatureCount]string{
	"diff_ranks",
	"inter_conference",
	"scores_diff",
	"position_score",
	"competitive_seconds",
	"lead_changes",
	"rivalry_score",
}

// FeatureVector is the fixed numeric summary of one game used as model input.
type FeatureVector struct {
	DiffRanks          int     `json:"diff_ranks"`
	InterConference    int     `json:"inter_conference"`
	ScoresDiff         int     `json:"scores_diff"`
	PositionScore      float64 `json:"position_score"`
	CompetitiveSeconds float64 `json:"competitive_seconds"`
	LeadChanges        int     `json:"lead_changes"`
	RivalryScore       float64 `json:"rivalry_score"`
}

// Row returns the vector as a single model-input row in canonical order.
func (v FeatureVector) Row() [FeatureCount]float64 {
	return [FeatureCount]float64{
		float64(v.DiffRanks),
		float64(v.InterConference),
		float64(v.ScoresDiff),
		v.PositionScore,
		v.CompetitiveSeconds,
		float64(v.LeadChanges),
		v.RivalryScore,
	}
}

// Validate range-checks the assembled vector. Field-level checks happen during
// derivation; re-checking the whole vector here is intentional protection
// against the two drifting apart.
func (v FeatureVector) Validate() error {
	if v.InterConference != 0 && v.InterConference != 1 {
		return fmt.Errorf("inter_conference must be 0 or 1, got %d", v.InterConference)
	}
	if v.DiffRanks < 0 {
		return fmt.Errorf("diff_ranks cannot be negative: %d", v.DiffRanks)
	}
	if v.ScoresDiff < 0 {
		return fmt.Errorf("scores_diff cannot be negative: %d", v.ScoresDiff)
	}
	if v.PositionScore < 0 || v.PositionScore > 2 {
		return fmt.Errorf("position_score outside valid range [0, 2]: %g", v.PositionScore)
	}
	if v.CompetitiveSeconds < 0 {
		return fmt.Errorf("competitive_seconds cannot be negative: %g", v.CompetitiveSeconds)
	}
	if v.LeadChanges < 0 {
		return fmt.Errorf("lead_changes cannot be negative: %d", v.LeadChanges)
	}
	if v.RivalryScore < 0 {
		return fmt.Errorf("rivalry_score cannot be negative: %g", v.RivalryScore)
	}
	return nil
}

// Summary returns a human-readable breakdown for debug logging.
func (v FeatureVector) Summary() string {
	inter := "No"
	if v.InterConference == 1 {
		inter = "Yes"
	}
	return fmt.Sprintf(
		"Feature Summary:\n"+
			"  Rank Difference: %d\n"+
			"  Inter-Conference: %s\n"+
			"  Score Difference: %d points\n"+
			"  Position Score: %.6f\n"+
			"  Competitive Time: %.0f seconds\n"+
			"  Lead Changes: %d\n"+
			"  Rivalry Score: %.6f",
		v.DiffRanks, inter, v.ScoresDiff, v.PositionScore,
		v.CompetitiveSeconds, v.LeadChanges, v.RivalryScore,
	)
}
