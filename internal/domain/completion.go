package domain

import (
	"math"
	"time"
)

// CompletionRecord describes a single finished exercise. It is created once
// per completion and never modified.
type CompletionRecord struct {
	ExerciseID      string  `json:"exercise_id" yaml:"exercise_id"`
	ElapsedSeconds  float64 `json:"elapsed_seconds" yaml:"elapsed_seconds"`
	ExpectedSeconds float64 `json:"expected_seconds" yaml:"expected_seconds"`
	Accuracy        float64 `json:"accuracy" yaml:"accuracy"` // tests passed / tests total
	AttemptCount    int     `json:"attempt_count" yaml:"attempt_count"`
}

// Validate rejects records the engine cannot interpret
func (r CompletionRecord) Validate() error {
	if math.IsNaN(r.ElapsedSeconds) || math.IsInf(r.ElapsedSeconds, 0) || r.ElapsedSeconds <= 0 {
		return invalid("elapsed_seconds", "must be positive, got %v", r.ElapsedSeconds)
	}
	if math.IsNaN(r.ExpectedSeconds) || math.IsInf(r.ExpectedSeconds, 0) || r.ExpectedSeconds <= 0 {
		return invalid("expected_seconds", "must be positive, got %v", r.ExpectedSeconds)
	}
	if math.IsNaN(r.Accuracy) || r.Accuracy < 0 || r.Accuracy > 1 {
		return invalid("accuracy", "must be in [0, 1], got %v", r.Accuracy)
	}
	if r.AttemptCount < 1 {
		return invalid("attempt_count", "must be at least 1, got %d", r.AttemptCount)
	}
	return nil
}

// TimeRatio is elapsed over expected time
func (r CompletionRecord) TimeRatio() float64 {
	return r.ElapsedSeconds / r.ExpectedSeconds
}

// Signal is the direction a completion pushes the difficulty score
type Signal string

const (
	SignalTooEasy Signal = "too_easy"
	SignalNeutral Signal = "neutral"
	SignalTooHard Signal = "too_hard"
)

// WindowEntry is a completion as kept in the performance window, together
// with the score it produced.
type WindowEntry struct {
	Record     CompletionRecord `json:"record"`
	Signal     Signal           `json:"signal"`
	Delta      float64          `json:"delta"`
	ScoreAfter float64          `json:"score_after"`
	AppliedAt  time.Time        `json:"applied_at"`
}
