package domain

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"
)

const epsilon = 1e-9

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

func defaultConfig(t *testing.T) *ThresholdConfig {
	t.Helper()
	cfg, err := NewThresholdConfig(DefaultThresholdConfig())
	if err != nil {
		t.Fatalf("NewThresholdConfig() error = %v", err)
	}
	return cfg
}

func easyRecord(id string) CompletionRecord {
	return CompletionRecord{ExerciseID: id, ElapsedSeconds: 60, ExpectedSeconds: 150, Accuracy: 1.0, AttemptCount: 1}
}

func hardRecord(id string) CompletionRecord {
	return CompletionRecord{ExerciseID: id, ElapsedSeconds: 300, ExpectedSeconds: 150, Accuracy: 0.5, AttemptCount: 2}
}

func neutralRecord(id string) CompletionRecord {
	return CompletionRecord{ExerciseID: id, ElapsedSeconds: 160, ExpectedSeconds: 150, Accuracy: 0.9, AttemptCount: 1}
}

func TestScoreTracker_Classify(t *testing.T) {
	tracker := NewScoreTracker(defaultConfig(t))

	tests := []struct {
		name   string
		record CompletionRecord
		want   Signal
	}{
		{"fast perfect single attempt is too easy", easyRecord("a"), SignalTooEasy},
		{"exactly half the expected time is too easy", CompletionRecord{ElapsedSeconds: 75, ExpectedSeconds: 150, Accuracy: 1, AttemptCount: 1}, SignalTooEasy},
		{"near-perfect accuracy counts as perfect", CompletionRecord{ElapsedSeconds: 50, ExpectedSeconds: 150, Accuracy: 0.96, AttemptCount: 1}, SignalTooEasy},
		{"fast but imperfect is neutral", CompletionRecord{ElapsedSeconds: 50, ExpectedSeconds: 150, Accuracy: 0.9, AttemptCount: 1}, SignalNeutral},
		{"fast perfect with retries is too hard", CompletionRecord{ElapsedSeconds: 50, ExpectedSeconds: 150, Accuracy: 1, AttemptCount: 2}, SignalTooHard},
		{"slow is too hard", CompletionRecord{ElapsedSeconds: 225, ExpectedSeconds: 150, Accuracy: 1, AttemptCount: 1}, SignalTooHard},
		{"low accuracy is too hard", CompletionRecord{ElapsedSeconds: 150, ExpectedSeconds: 150, Accuracy: 0.69, AttemptCount: 1}, SignalTooHard},
		{"accuracy at threshold is not too hard", CompletionRecord{ElapsedSeconds: 150, ExpectedSeconds: 150, Accuracy: 0.7, AttemptCount: 1}, SignalNeutral},
		{"on-pace decent work is neutral", neutralRecord("n"), SignalNeutral},
		{"struggle scenario", hardRecord("h"), SignalTooHard},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tracker.Classify(tt.record)
			if got != tt.want {
				t.Errorf("Classify(%+v) = %v, want %v", tt.record, got, tt.want)
			}
		})
	}
}

func TestScoreTracker_Delta(t *testing.T) {
	tracker := NewScoreTracker(defaultConfig(t))

	tests := []struct {
		signal Signal
		want   float64
	}{
		{SignalTooEasy, 0.3},
		{SignalTooHard, -0.3},
		{SignalNeutral, 0},
	}

	for _, tt := range tests {
		got := tracker.Delta(tt.signal)
		if !approxEqual(got, tt.want) {
			t.Errorf("Delta(%v) = %v, want %v", tt.signal, got, tt.want)
		}
	}
}

func TestApplyCompletion_Scenarios(t *testing.T) {
	cfg := defaultConfig(t)

	tests := []struct {
		name       string
		start      float64
		record     CompletionRecord
		wantScore  float64
		wantSignal Signal
	}{
		{"too hard from intermediate", 5.0, hardRecord("ex-1"), 4.7, SignalTooHard},
		{"neutral leaves score", 5.0, neutralRecord("ex-2"), 5.0, SignalNeutral},
		{"too easy at ceiling stays clamped", 10.0, easyRecord("ex-3"), 10.0, SignalTooEasy},
		{"too hard at floor stays clamped", 1.0, hardRecord("ex-4"), 1.0, SignalTooHard},
		{"too easy near ceiling clamps", 9.9, easyRecord("ex-5"), 10.0, SignalTooEasy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := NewDifficultyProfile("user-1", tt.start, cfg)

			got, err := ApplyCompletion(profile, tt.record, cfg)
			if err != nil {
				t.Fatalf("ApplyCompletion() error = %v", err)
			}
			if !approxEqual(got.Score, tt.wantScore) {
				t.Errorf("Score = %v, want %v", got.Score, tt.wantScore)
			}
			latest, ok := got.Latest()
			if !ok {
				t.Fatal("window should hold the new record")
			}
			if latest.Signal != tt.wantSignal {
				t.Errorf("Signal = %v, want %v", latest.Signal, tt.wantSignal)
			}
			if latest.Record != tt.record {
				t.Errorf("Record = %+v, want %+v", latest.Record, tt.record)
			}
			if !approxEqual(latest.ScoreAfter, got.Score) {
				t.Errorf("ScoreAfter = %v, want %v", latest.ScoreAfter, got.Score)
			}
		})
	}
}

func TestApplyCompletion_ClampsCorruptedScore(t *testing.T) {
	cfg := defaultConfig(t)
	profile := DifficultyProfile{UserID: "user-1", Score: 42}

	got, err := ApplyCompletion(profile, neutralRecord("ex-1"), cfg)
	if err != nil {
		t.Fatalf("ApplyCompletion() error = %v", err)
	}
	if got.Score != cfg.MaxScore {
		t.Errorf("Score = %v, want %v (clamped)", got.Score, cfg.MaxScore)
	}

	profile.Score = -3
	got, err = ApplyCompletion(profile, easyRecord("ex-2"), cfg)
	if err != nil {
		t.Fatalf("ApplyCompletion() error = %v", err)
	}
	if !approxEqual(got.Score, cfg.MinScore+0.3) {
		t.Errorf("Score = %v, want %v", got.Score, cfg.MinScore+0.3)
	}
}

func TestApplyCompletion_BoundsInvariant(t *testing.T) {
	cfg := defaultConfig(t)
	profile := NewDifficultyProfile("user-1", 5.0, cfg)

	records := []CompletionRecord{easyRecord("a"), hardRecord("b"), neutralRecord("c")}
	for i := 0; i < 200; i++ {
		// Long runs in both directions with noise in between
		var rec CompletionRecord
		switch {
		case i < 60:
			rec = records[0]
		case i < 140:
			rec = records[1]
		default:
			rec = records[i%3]
		}

		var err error
		profile, err = ApplyCompletion(profile, rec, cfg)
		if err != nil {
			t.Fatalf("ApplyCompletion() step %d error = %v", i, err)
		}
		if profile.Score < cfg.MinScore || profile.Score > cfg.MaxScore {
			t.Fatalf("step %d: Score = %v outside [%v, %v]", i, profile.Score, cfg.MinScore, cfg.MaxScore)
		}
		if len(profile.Window) > cfg.PlateauWindowSize {
			t.Fatalf("step %d: window length = %d, want <= %d", i, len(profile.Window), cfg.PlateauWindowSize)
		}
	}
}

func TestApplyCompletion_EasyStreakIsMonotonic(t *testing.T) {
	cfg := defaultConfig(t)
	profile := NewDifficultyProfile("user-1", 2.0, cfg)

	// 20 * 0.3 = 6 < 9, so the streak never reaches the ceiling
	for i := 0; i < 20; i++ {
		prev := profile.Score
		next, err := ApplyCompletion(profile, easyRecord("ex"), cfg)
		if err != nil {
			t.Fatalf("ApplyCompletion() error = %v", err)
		}
		if next.Score <= prev {
			t.Fatalf("step %d: Score = %v, want > %v", i, next.Score, prev)
		}
		profile = next
	}

	if !approxEqual(profile.Score, 8.0) {
		t.Errorf("Score = %v, want 8.0", profile.Score)
	}

	// Keep going until clamped: never decreases
	for i := 0; i < 20; i++ {
		prev := profile.Score
		next, _ := ApplyCompletion(profile, easyRecord("ex"), cfg)
		if next.Score < prev {
			t.Fatalf("score decreased on easy record: %v -> %v", prev, next.Score)
		}
		profile = next
	}
	if profile.Score != cfg.MaxScore {
		t.Errorf("Score = %v, want %v", profile.Score, cfg.MaxScore)
	}
}

func TestApplyCompletion_MinAdjustmentSuppression(t *testing.T) {
	c := DefaultThresholdConfig()
	c.SmoothingWeight = 0.05 // smoothed delta 0.05 < min adjustment 0.1
	cfg, err := NewThresholdConfig(c)
	if err != nil {
		t.Fatalf("NewThresholdConfig() error = %v", err)
	}

	profile := NewDifficultyProfile("user-1", 5.0, cfg)
	for i := 0; i < 50; i++ {
		rec := easyRecord("ex")
		if i%2 == 1 {
			rec = hardRecord("ex")
		}
		profile, err = ApplyCompletion(profile, rec, cfg)
		if err != nil {
			t.Fatalf("ApplyCompletion() error = %v", err)
		}
		if profile.Score != 5.0 {
			t.Fatalf("step %d: Score = %v, want exactly 5.0", i, profile.Score)
		}
	}
}

func TestApplyCompletion_WindowKeepsMostRecent(t *testing.T) {
	cfg := defaultConfig(t)
	profile := NewDifficultyProfile("user-1", 5.0, cfg)

	total := cfg.PlateauWindowSize + 3
	for i := 0; i < total; i++ {
		rec := neutralRecord(string(rune('a' + i)))
		var err error
		profile, err = ApplyCompletion(profile, rec, cfg)
		if err != nil {
			t.Fatalf("ApplyCompletion() error = %v", err)
		}
	}

	if len(profile.Window) != cfg.PlateauWindowSize {
		t.Fatalf("window length = %d, want %d", len(profile.Window), cfg.PlateauWindowSize)
	}
	for i, e := range profile.Window {
		want := string(rune('a' + 3 + i))
		if e.Record.ExerciseID != want {
			t.Errorf("Window[%d].ExerciseID = %q, want %q", i, e.Record.ExerciseID, want)
		}
	}
}

func TestApplyCompletion_DoesNotMutateInput(t *testing.T) {
	cfg := defaultConfig(t)
	profile := NewDifficultyProfile("user-1", 5.0, cfg)
	for i := 0; i < cfg.PlateauWindowSize; i++ {
		profile, _ = ApplyCompletion(profile, neutralRecord("seed"), cfg)
	}

	before := profile.Clone()
	if _, err := ApplyCompletion(profile, hardRecord("next"), cfg); err != nil {
		t.Fatalf("ApplyCompletion() error = %v", err)
	}

	if !reflect.DeepEqual(profile, before) {
		t.Error("input profile was modified by ApplyCompletion")
	}
}

func TestApplyCompletion_RejectsMalformedRecords(t *testing.T) {
	cfg := defaultConfig(t)

	tests := []struct {
		name   string
		record CompletionRecord
		field  string
	}{
		{"accuracy above one", CompletionRecord{ElapsedSeconds: 10, ExpectedSeconds: 10, Accuracy: 1.5, AttemptCount: 1}, "accuracy"},
		{"negative accuracy", CompletionRecord{ElapsedSeconds: 10, ExpectedSeconds: 10, Accuracy: -0.1, AttemptCount: 1}, "accuracy"},
		{"NaN accuracy", CompletionRecord{ElapsedSeconds: 10, ExpectedSeconds: 10, Accuracy: math.NaN(), AttemptCount: 1}, "accuracy"},
		{"negative elapsed", CompletionRecord{ElapsedSeconds: -1, ExpectedSeconds: 10, Accuracy: 1, AttemptCount: 1}, "elapsed_seconds"},
		{"zero elapsed", CompletionRecord{ElapsedSeconds: 0, ExpectedSeconds: 10, Accuracy: 1, AttemptCount: 1}, "elapsed_seconds"},
		{"zero expected", CompletionRecord{ElapsedSeconds: 10, ExpectedSeconds: 0, Accuracy: 1, AttemptCount: 1}, "expected_seconds"},
		{"zero attempts", CompletionRecord{ElapsedSeconds: 10, ExpectedSeconds: 10, Accuracy: 1, AttemptCount: 0}, "attempt_count"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := NewDifficultyProfile("user-1", 5.0, cfg)
			before := profile.Clone()

			_, err := ApplyCompletion(profile, tt.record, cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("errors.Is(err, ErrValidation) = false for %v", err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error %v is not a *ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Field = %q, want %q", verr.Field, tt.field)
			}
			if !reflect.DeepEqual(profile, before) || profile.Score != 5.0 {
				t.Error("profile changed after failed update")
			}
		})
	}
}

func TestScoreTracker_StampsUpdateTime(t *testing.T) {
	cfg := defaultConfig(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker := NewScoreTracker(cfg)
	tracker.now = func() time.Time { return fixed }

	got, err := tracker.Apply(NewDifficultyProfile("user-1", 5.0, cfg), neutralRecord("ex"))
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !got.UpdatedAt.Equal(fixed) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, fixed)
	}
	if latest, _ := got.Latest(); !latest.AppliedAt.Equal(fixed) {
		t.Errorf("AppliedAt = %v, want %v", latest.AppliedAt, fixed)
	}
}
