package progress

import (
	"time"

	"github.com/felixgeelhaar/codementor/internal/domain"
)

// Outcome is the result of recording a completion
type Outcome struct {
	Profile    domain.DifficultyProfile  `json:"profile"`
	Selection  domain.BandSelection      `json:"selection"`
	Completion domain.RecordedCompletion `json:"completion"`
}

// Recommendation is published after every recorded completion so the
// exercise generator can pick the next exercise
type Recommendation struct {
	UserID     string        `json:"user_id"`
	ExerciseID string        `json:"exercise_id"`
	Signal     domain.Signal `json:"signal"`
	Score      float64       `json:"score"`
	Band       domain.Band   `json:"band"`
	Adjacent   domain.Band   `json:"adjacent_band,omitempty"`
	TargetMin  float64       `json:"target_min"`
	TargetMax  float64       `json:"target_max"`
	Plateau    bool          `json:"plateau"`
	IssuedAt   time.Time     `json:"issued_at"`
}

// NewRecommendation builds the event for an outcome
func NewRecommendation(o *Outcome) Recommendation {
	return Recommendation{
		UserID:     o.Profile.UserID,
		ExerciseID: o.Completion.Record.ExerciseID,
		Signal:     o.Completion.Signal,
		Score:      o.Selection.Score,
		Band:       o.Selection.Band,
		Adjacent:   o.Selection.Adjacent,
		TargetMin:  o.Selection.TargetMin,
		TargetMax:  o.Selection.TargetMax,
		Plateau:    o.Selection.Plateau,
		IssuedAt:   o.Profile.UpdatedAt,
	}
}
