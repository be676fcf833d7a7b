package domain

import (
	"math"
	"time"
)

// ScoreTracker is a domain service that applies completion events to a
// difficulty profile. It holds no per-user state.
type ScoreTracker struct {
	cfg *ThresholdConfig
	now func() time.Time
}

// NewScoreTracker creates a score tracker bound to cfg
func NewScoreTracker(cfg *ThresholdConfig) *ScoreTracker {
	return &ScoreTracker{cfg: cfg, now: time.Now}
}

// ApplyCompletion applies record to profile under cfg
func ApplyCompletion(profile DifficultyProfile, record CompletionRecord, cfg *ThresholdConfig) (DifficultyProfile, error) {
	return NewScoreTracker(cfg).Apply(profile, record)
}

// Apply computes the profile that results from record. On a validation
// error the zero profile is returned and the input is left untouched.
func (t *ScoreTracker) Apply(profile DifficultyProfile, record CompletionRecord) (DifficultyProfile, error) {
	if err := record.Validate(); err != nil {
		return DifficultyProfile{}, err
	}

	current := t.cfg.Clamp(profile.Score)
	signal := t.Classify(record)
	delta := t.Delta(signal)
	score := t.cfg.Clamp(current + delta)
	now := t.now()

	next := profile.Clone()
	next.Score = score
	next.Window = t.push(next.Window, WindowEntry{
		Record:     record,
		Signal:     signal,
		Delta:      score - current,
		ScoreAfter: score,
		AppliedAt:  now,
	})
	next.UpdatedAt = now

	return next, nil
}

// Classify decides which way a completion pushes the score.
// Struggle signals win over speed.
func (t *ScoreTracker) Classify(record CompletionRecord) Signal {
	ratio := record.TimeRatio()

	if ratio >= t.cfg.SlowCompletionRatio ||
		record.Accuracy < t.cfg.LowAccuracyThreshold ||
		record.AttemptCount > 1 {
		return SignalTooHard
	}

	if ratio <= t.cfg.FastCompletionRatio &&
		record.Accuracy >= 1-t.cfg.PerfectAccuracyTolerance &&
		record.AttemptCount == 1 {
		return SignalTooEasy
	}

	return SignalNeutral
}

// Delta returns the smoothed adjustment for a signal, before clamping
func (t *ScoreTracker) Delta(signal Signal) float64 {
	var raw float64
	switch signal {
	case SignalTooEasy:
		raw = t.cfg.RawDelta
	case SignalTooHard:
		raw = -t.cfg.RawDelta
	default:
		return 0
	}

	smoothed := t.cfg.SmoothingWeight * raw

	// Sub-threshold nudges are dropped so the score does not creep
	if math.Abs(smoothed) < t.cfg.MinAdjustment {
		return 0
	}
	return smoothed
}

// push appends e, keeping at most PlateauWindowSize entries
func (t *ScoreTracker) push(window []WindowEntry, e WindowEntry) []WindowEntry {
	window = append(window, e)
	if over := len(window) - t.cfg.PlateauWindowSize; over > 0 {
		window = append([]WindowEntry(nil), window[over:]...)
	}
	return window
}
