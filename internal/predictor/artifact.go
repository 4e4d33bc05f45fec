package predictor

import (
	"encoding/json"
	"math"
	"os"

	"nbapredictions/scheduler/internal/errs"
	"nbapredictions/scheduler/internal/models"
)

// artifact is the serialized model produced by the offline training job. The
// regression head scores game quality; the optional classifier head assigns a
// quality class with per-class probabilities.
type artifact struct {
	ModelVersion string    `json:"model_version"`
	Kind         string    `json:"kind"`
	Features     []string  `json:"features"`
	Weights      []float64 `json:"weights"`
	Intercept    float64   `json:"intercept"`
	Classes      *classes  `json:"classes,omitempty"`
}

type classes struct {
	Labels     []string    `json:"labels"`
	Weights    [][]float64 `json:"weights"`
	Intercepts []float64   `json:"intercepts"`
}

// output is a single scoring result before post-processing. Labels preserves
// the classifier's class order for deterministic argmax tie-breaking.
type output struct {
	Rating        float64
	Probabilities map[string]float64
	Labels        []string
}

// loadArtifact reads and validates a model artifact. Every failure here is
// fatal: a run must never start with a model it cannot trust.
func loadArtifact(path string) (*artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &errs.ModelLoadError{Msg: "failed to read model artifact " + path, Err: err}
	}

	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, &errs.ModelLoadError{Msg: "failed to parse model artifact " + path, Err: err}
	}

	if a.Kind != "linear" {
		return nil, errs.ModelLoadf("unsupported model kind %q", a.Kind)
	}
	if len(a.Features) != models.FeatureCount {
		return nil, errs.ModelLoadf("model expects %d features, pipeline produces %d", len(a.Features), models.FeatureCount)
	}
	for i, name := range a.Features {
		if name != models.FeatureNames[i] {
			return nil, errs.ModelLoadf(
				"model feature %d is %q, pipeline produces %q at that position", i, name, models.FeatureNames[i])
		}
	}
	if len(a.Weights) != models.FeatureCount {
		return nil, errs.ModelLoadf("model has %d weights for %d features", len(a.Weights), models.FeatureCount)
	}

	if c := a.Classes; c != nil {
		if len(c.Labels) == 0 {
			return nil, errs.ModelLoadf("classifier head has no labels")
		}
		if len(c.Weights) != len(c.Labels) || len(c.Intercepts) != len(c.Labels) {
			return nil, errs.ModelLoadf(
				"classifier head is inconsistent: %d labels, %d weight rows, %d intercepts",
				len(c.Labels), len(c.Weights), len(c.Intercepts))
		}
		for i, w := range c.Weights {
			if len(w) != models.FeatureCount {
				return nil, errs.ModelLoadf("classifier weight row %d has %d entries, want %d", i, len(w), models.FeatureCount)
			}
		}
	}

	return &a, nil
}

// score applies both model heads to one feature row.
func (a *artifact) score(row [models.FeatureCount]float64) output {
	rating := a.Intercept
	for i, w := range a.Weights {
		rating += w * row[i]
	}

	out := output{Rating: rating}
	if a.Classes != nil {
		out.Probabilities = a.Classes.probabilities(row)
		out.Labels = a.Classes.Labels
	}
	return out
}

// probabilities computes softmax class probabilities for one feature row.
func (c *classes) probabilities(row [models.FeatureCount]float64) map[string]float64 {
	logits := make([]float64, len(c.Labels))
	maxLogit := math.Inf(-1)
	for i := range c.Labels {
		logit := c.Intercepts[i]
		for j, w := range c.Weights[i] {
			logit += w * row[j]
		}
		logits[i] = logit
		if logit > maxLogit {
			maxLogit = logit
		}
	}

	var sum float64
	exps := make([]float64, len(logits))
	for i, logit := range logits {
		exps[i] = math.Exp(logit - maxLogit)
		sum += exps[i]
	}

	probs := make(map[string]float64, len(c.Labels))
	for i, label := range c.Labels {
		probs[label] = exps[i] / sum
	}
	return probs
}
