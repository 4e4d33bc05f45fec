package pipeline

import (
	"fmt"
	"strings"
	"time"

	"nbapredictions/scheduler/internal/metrics"
)

// maxSummaryErrors caps how many per-game errors the end-of-run banner lists.
const maxSummaryErrors = 5

// RunStats accumulates counters and per-game errors over one pipeline run.
// Per-game errors are recorded and the run continues; they never change the
// process exit code.
type RunStats struct {
	TargetDate string
	StartedAt  time.Time
	FinishedAt time.Time

	GamesFound         int
	GamesProcessed     int
	PredictionsSaved   int
	PredictionsSkipped int

	Errors []string

	// Fatal holds the error that aborted the run, if any.
	Fatal error
}

func newRunStats(targetDate string) *RunStats {
	return &RunStats{
		TargetDate: targetDate,
		StartedAt:  time.Now().UTC(),
	}
}

func (s *RunStats) recordError(component string, err error) {
	s.Errors = append(s.Errors, err.Error())
	metrics.RecordError(component)
}

// Duration returns the wall-clock duration of the run.
func (s *RunStats) Duration() time.Duration {
	end := s.FinishedAt
	if end.IsZero() {
		end = time.Now().UTC()
	}
	return end.Sub(s.StartedAt)
}

// Summary renders the end-of-run banner.
func (s *RunStats) Summary() string {
	var b strings.Builder

	fmt.Fprintf(&b, "============================================\n")
	fmt.Fprintf(&b, " Prediction run for %s\n", s.TargetDate)
	fmt.Fprintf(&b, "============================================\n")
	fmt.Fprintf(&b, " Games found:     %d\n", s.GamesFound)
	fmt.Fprintf(&b, " Games processed: %d\n", s.GamesProcessed)
	fmt.Fprintf(&b, " Predictions saved:   %d\n", s.PredictionsSaved)
	fmt.Fprintf(&b, " Predictions skipped: %d\n", s.PredictionsSkipped)
	fmt.Fprintf(&b, " Duration: %s\n", s.Duration().Round(time.Millisecond))

	if s.Fatal != nil {
		fmt.Fprintf(&b, " FATAL: %v\n", s.Fatal)
	}

	if len(s.Errors) > 0 {
		fmt.Fprintf(&b, " Errors (%d):\n", len(s.Errors))
		for i, msg := range s.Errors {
			if i == maxSummaryErrors {
				fmt.Fprintf(&b, "   ... and %d more\n", len(s.Errors)-maxSummaryErrors)
				break
			}
			fmt.Fprintf(&b, "   - %s\n", msg)
		}
	}

	b.WriteString("============================================")
	return b.String()
}
