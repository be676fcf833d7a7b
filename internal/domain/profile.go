package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// DifficultyProfile tracks one user's difficulty score and recent
// performance. Profiles are values: the engine returns a new profile on
// every update and never mutates the one it was given.
type DifficultyProfile struct {
	ID        uuid.UUID     `json:"id"`
	UserID    string        `json:"user_id"`
	Score     float64       `json:"score"`
	Window    []WindowEntry `json:"performance_window"` // oldest first
	Version   int64         `json:"version"`            // bumped on every persisted update
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"last_updated_at"`
}

// NewDifficultyProfile creates a profile seeded at score, clamped into bounds
func NewDifficultyProfile(userID string, score float64, cfg *ThresholdConfig) DifficultyProfile {
	now := time.Now()
	return DifficultyProfile{
		ID:        uuid.New(),
		UserID:    userID,
		Score:     cfg.Clamp(score),
		Window:    []WindowEntry{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewSeededProfile creates a profile from an onboarding skill level
func NewSeededProfile(userID, skillLevel string, cfg *ThresholdConfig) (DifficultyProfile, error) {
	seed, err := cfg.SeedScore(skillLevel)
	if err != nil {
		return DifficultyProfile{}, err
	}
	return NewDifficultyProfile(userID, seed, cfg), nil
}

// Clone returns a copy that shares no memory with p
func (p DifficultyProfile) Clone() DifficultyProfile {
	p.Window = slices.Clone(p.Window)
	return p
}

// Latest returns the most recent window entry
func (p DifficultyProfile) Latest() (WindowEntry, bool) {
	if len(p.Window) == 0 {
		return WindowEntry{}, false
	}
	return p.Window[len(p.Window)-1], true
}

// CompletionCount returns the number of entries currently in the window
func (p DifficultyProfile) CompletionCount() int {
	return len(p.Window)
}
