package domain

import (
	"time"

	"github.com/google/uuid"
)

// RecordedCompletion is one row of a user's completion history. Unlike the
// performance window it is never evicted, and the pair (UserID,
// Record.ExerciseID) is unique.
type RecordedCompletion struct {
	ID          uuid.UUID        `json:"id"`
	UserID      string           `json:"user_id"`
	Record      CompletionRecord `json:"record"`
	Signal      Signal           `json:"signal"`
	ScoreBefore float64          `json:"score_before"`
	ScoreAfter  float64          `json:"score_after"`
	Band        Band             `json:"band"`
	Adjacent    Band             `json:"adjacent_band,omitempty"`
	Plateau     bool             `json:"plateau"`
	RecordedAt  time.Time        `json:"recorded_at"`
}

// NewRecordedCompletion builds the history row for the newest window entry
// of after, stamped with the band selected for after. It reports false when
// the window is empty.
func NewRecordedCompletion(after DifficultyProfile, sel BandSelection) (RecordedCompletion, bool) {
	latest, ok := after.Latest()
	if !ok {
		return RecordedCompletion{}, false
	}
	return RecordedCompletion{
		ID:          uuid.New(),
		UserID:      after.UserID,
		Record:      latest.Record,
		Signal:      latest.Signal,
		ScoreBefore: latest.ScoreAfter - latest.Delta,
		ScoreAfter:  latest.ScoreAfter,
		Band:        sel.Band,
		Adjacent:    sel.Adjacent,
		Plateau:     sel.Plateau,
		RecordedAt:  latest.AppliedAt,
	}, true
}
