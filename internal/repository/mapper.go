// Package repository provides read-side queries over the Postgres
// completion history. Writes go through storage/postgres; this package
// only reads what the engine has already committed.
package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/felixgeelhaar/codementor/internal/domain"
)

// completionRow mirrors one row of the completions table
type completionRow struct {
	ID              uuid.UUID
	UserID          string
	ExerciseID      string
	ElapsedSeconds  float64
	ExpectedSeconds float64
	Accuracy        float64
	AttemptCount    int
	Signal          string
	ScoreBefore     float64
	ScoreAfter      float64
	Band            string
	Selection       pqtype.NullRawMessage
	RecordedAt      time.Time
}

// selectionDoc is the JSONB band selection snapshot
type selectionDoc struct {
	Band     string `json:"band"`
	Adjacent string `json:"adjacent_band"`
	Plateau  bool   `json:"plateau"`
}

func (r *completionRow) scanTargets() []any {
	return []any{
		&r.ID, &r.UserID, &r.ExerciseID, &r.ElapsedSeconds, &r.ExpectedSeconds,
		&r.Accuracy, &r.AttemptCount, &r.Signal, &r.ScoreBefore, &r.ScoreAfter,
		&r.Band, &r.Selection, &r.RecordedAt,
	}
}

// mapCompletionToDomain converts a completions row to a domain RecordedCompletion
func mapCompletionToDomain(r completionRow) (*domain.RecordedCompletion, error) {
	c := &domain.RecordedCompletion{
		ID:     r.ID,
		UserID: r.UserID,
		Record: domain.CompletionRecord{
			ExerciseID:      r.ExerciseID,
			ElapsedSeconds:  r.ElapsedSeconds,
			ExpectedSeconds: r.ExpectedSeconds,
			Accuracy:        r.Accuracy,
			AttemptCount:    r.AttemptCount,
		},
		Signal:      domain.Signal(r.Signal),
		ScoreBefore: r.ScoreBefore,
		ScoreAfter:  r.ScoreAfter,
		Band:        domain.Band(r.Band),
		RecordedAt:  r.RecordedAt,
	}

	// Rows written before selections were captured carry only the band
	if r.Selection.Valid && len(r.Selection.RawMessage) > 0 {
		var sel selectionDoc
		if err := json.Unmarshal(r.Selection.RawMessage, &sel); err != nil {
			return nil, fmt.Errorf("invalid selection for completion %s: %w", r.ID, err)
		}
		c.Adjacent = domain.Band(sel.Adjacent)
		c.Plateau = sel.Plateau
	}

	return c, nil
}

func nullFloatValue(nf sql.NullFloat64) float64 {
	if nf.Valid {
		return nf.Float64
	}
	return 0
}
