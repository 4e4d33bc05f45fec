// Package predictor loads the trained game-quality model once at startup and
// scores feature vectors into prediction records.
package predictor

import (
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"nbapredictions/scheduler/internal/errs"
	"nbapredictions/scheduler/internal/models"
)

// Options configures the predictor.
type Options struct {
	ModelPath      string
	ModelVersion   string
	FeatureVersion string

	// Confidence tier thresholds applied to the top class probability.
	ConfidenceHigh   float64
	ConfidenceMedium float64
}

// scoringModel is what the predictor needs from a loaded model. The only
// implementation today is the linear artifact.
type scoringModel interface {
	score(row [models.FeatureCount]float64) output
}

// Predictor scores feature vectors with the loaded model artifact.
type Predictor struct {
	model          scoringModel
	modelVersion   string
	featureVersion string
	confHigh       float64
	confMedium     float64
}

// New loads the model artifact and returns a ready predictor. Load failures
// are fatal and abort the run before any provider traffic happens.
func New(opts Options) (*Predictor, error) {
	model, err := loadArtifact(opts.ModelPath)
	if err != nil {
		return nil, err
	}

	version := model.ModelVersion
	if version == "" {
		version = opts.ModelVersion
	}

	log.Info().
		Str("path", opts.ModelPath).
		Str("model_version", version).
		Bool("classifier", model.Classes != nil).
		Msg("Model artifact loaded")

	return &Predictor{
		model:          model,
		modelVersion:   version,
		featureVersion: opts.FeatureVersion,
		confHigh:       opts.ConfidenceHigh,
		confMedium:     opts.ConfidenceMedium,
	}, nil
}

// Predict scores one feature vector. The rating is clamped to [0, 100] and
// rounded to two decimals; classifier output is validated before use.
func (p *Predictor) Predict(gameID string, vec models.FeatureVector) (models.Prediction, error) {
	if err := vec.Validate(); err != nil {
		return models.Prediction{}, errs.Predictionf("game %s: refusing to score invalid features: %v", gameID, err)
	}

	out := p.model.score(vec.Row())

	pred := models.Prediction{
		GameID:         gameID,
		Rating:         clampRating(out.Rating),
		ModelVersion:   p.modelVersion,
		FeatureVersion: p.featureVersion,
		PredictedAt:    time.Now().UTC(),
	}

	if out.Probabilities != nil {
		var sum float64
		for _, prob := range out.Probabilities {
			sum += prob
		}
		if math.Abs(sum-1) > 0.001 {
			return models.Prediction{}, errs.Predictionf("game %s: class probabilities sum to %g, expected 1", gameID, sum)
		}

		pred.Probabilities = out.Probabilities
		pred.Label, pred.Confidence = p.classify(out.Probabilities, out.Labels)
	}

	return pred, nil
}

// Record scores a game and assembles the full row handed to the store.
func (p *Predictor) Record(detail models.GameDetail, vec models.FeatureVector) (models.PredictionRecord, error) {
	pred, err := p.Predict(detail.GameID, vec)
	if err != nil {
		return models.PredictionRecord{}, err
	}

	return models.PredictionRecord{
		Prediction:       pred,
		Date:             detail.Date,
		HomeTeamID:       detail.HomeTeamID,
		AwayTeamID:       detail.AwayTeamID,
		HomeAbbreviation: detail.HomeAbbreviation,
		AwayAbbreviation: detail.AwayAbbreviation,
		Features:         vec,
	}, nil
}

// ModelVersion returns the version of the loaded artifact.
func (p *Predictor) ModelVersion() string {
	return p.modelVersion
}

// classify picks the top class and maps its probability to a confidence
// tier. Ties resolve to the artifact's label order for determinism.
func (p *Predictor) classify(probs map[string]float64, labels []string) (label, confidence string) {
	best := math.Inf(-1)
	for _, candidate := range labels {
		if prob := probs[candidate]; prob > best {
			best = prob
			label = candidate
		}
	}

	switch {
	case best >= p.confHigh:
		confidence = models.ConfidenceHigh
	case best >= p.confMedium:
		confidence = models.ConfidenceMedium
	default:
		confidence = models.ConfidenceLow
	}
	return label, confidence
}

func clampRating(r float64) float64 {
	if r < 0 {
		r = 0
	}
	if r > 100 {
		r = 100
	}
	return math.Round(r*100) / 100
}
