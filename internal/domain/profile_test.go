package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestNewDifficultyProfile(t *testing.T) {
	cfg := defaultConfig(t)
	profile := NewDifficultyProfile("user-1", 5.0, cfg)

	if profile.ID == uuid.Nil {
		t.Error("NewDifficultyProfile() should generate ID")
	}
	if profile.UserID != "user-1" {
		t.Errorf("UserID = %v, want user-1", profile.UserID)
	}
	if profile.Score != 5.0 {
		t.Errorf("Score = %v, want 5.0", profile.Score)
	}
	if profile.Window == nil || len(profile.Window) != 0 {
		t.Errorf("Window = %v, want empty", profile.Window)
	}
	if profile.Version != 0 {
		t.Errorf("Version = %d, want 0", profile.Version)
	}
	if profile.CreatedAt.IsZero() || profile.UpdatedAt.IsZero() {
		t.Error("timestamps should be set")
	}
}

func TestNewDifficultyProfile_ClampsSeed(t *testing.T) {
	cfg := defaultConfig(t)

	if got := NewDifficultyProfile("u", 0, cfg).Score; got != 1.0 {
		t.Errorf("Score = %v, want 1.0", got)
	}
	if got := NewDifficultyProfile("u", 11, cfg).Score; got != 10.0 {
		t.Errorf("Score = %v, want 10.0", got)
	}
}

func TestNewSeededProfile(t *testing.T) {
	cfg := defaultConfig(t)

	tests := []struct {
		level string
		want  float64
	}{
		{"beginner", 2.0},
		{"intermediate", 5.0},
		{"advanced", 8.0},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			profile, err := NewSeededProfile("user-1", tt.level, cfg)
			if err != nil {
				t.Fatalf("NewSeededProfile() error = %v", err)
			}
			if profile.Score != tt.want {
				t.Errorf("Score = %v, want %v", profile.Score, tt.want)
			}
		})
	}

	_, err := NewSeededProfile("user-1", "wizard", cfg)
	if !errors.Is(err, ErrUnknownSkillLevel) {
		t.Errorf("error = %v, want ErrUnknownSkillLevel", err)
	}
}

func TestDifficultyProfile_Clone(t *testing.T) {
	cfg := defaultConfig(t)
	profile, _ := ApplyCompletion(NewDifficultyProfile("user-1", 5.0, cfg), neutralRecord("ex-1"), cfg)

	clone := profile.Clone()
	clone.Window[0].Record.ExerciseID = "changed"
	clone.Score = 9

	if profile.Window[0].Record.ExerciseID != "ex-1" {
		t.Error("Clone() shares window memory with the original")
	}
	if profile.Score != 5.0 {
		t.Error("Clone() shares score with the original")
	}
}

func TestDifficultyProfile_Latest(t *testing.T) {
	cfg := defaultConfig(t)
	profile := NewDifficultyProfile("user-1", 5.0, cfg)

	if _, ok := profile.Latest(); ok {
		t.Error("Latest() on empty window should report false")
	}

	profile, _ = ApplyCompletion(profile, neutralRecord("first"), cfg)
	profile, _ = ApplyCompletion(profile, hardRecord("second"), cfg)

	latest, ok := profile.Latest()
	if !ok {
		t.Fatal("Latest() should report true")
	}
	if latest.Record.ExerciseID != "second" {
		t.Errorf("Latest().ExerciseID = %q, want second", latest.Record.ExerciseID)
	}
	if profile.CompletionCount() != 2 {
		t.Errorf("CompletionCount() = %d, want 2", profile.CompletionCount())
	}
}

func TestNewRecordedCompletion(t *testing.T) {
	cfg := defaultConfig(t)
	profile := NewDifficultyProfile("user-1", 5.0, cfg)

	if _, ok := NewRecordedCompletion(profile, SelectBand(profile, cfg)); ok {
		t.Error("NewRecordedCompletion() on empty window should report false")
	}

	after, _ := ApplyCompletion(profile, hardRecord("ex-9"), cfg)
	rc, ok := NewRecordedCompletion(after, SelectBand(after, cfg))
	if !ok {
		t.Fatal("NewRecordedCompletion() should report true")
	}
	if rc.UserID != "user-1" || rc.Record.ExerciseID != "ex-9" {
		t.Errorf("row = %+v, want user-1/ex-9", rc)
	}
	if !approxEqual(rc.ScoreBefore, 5.0) || !approxEqual(rc.ScoreAfter, 4.7) {
		t.Errorf("scores = %v -> %v, want 5.0 -> 4.7", rc.ScoreBefore, rc.ScoreAfter)
	}
	if rc.Signal != SignalTooHard {
		t.Errorf("Signal = %v, want too_hard", rc.Signal)
	}
	if rc.Band != BandIntermediate || rc.Plateau {
		t.Errorf("selection = %v plateau=%v, want intermediate without plateau", rc.Band, rc.Plateau)
	}
}
