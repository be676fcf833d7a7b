package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/felixgeelhaar/codementor/internal/domain"
)

const completionColumns = `
	id, user_id, exercise_id, elapsed_seconds, expected_seconds,
	accuracy, attempt_count, signal, score_before, score_after,
	band, selection, recorded_at`

// Open opens a database/sql handle on the lib/pq driver
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// CompletionRepository answers analytics queries over recorded completions
type CompletionRepository struct {
	db *sql.DB
}

// NewCompletionRepository creates a new CompletionRepository
func NewCompletionRepository(db *sql.DB) *CompletionRepository {
	return &CompletionRepository{db: db}
}

// ListByUser retrieves a page of a user's completions, newest first
func (r *CompletionRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.RecordedCompletion, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+completionColumns+`
		FROM completions
		WHERE user_id = $1
		ORDER BY seq DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectCompletions(rows)
}

// ListByExercises retrieves completions of any of the given exercises,
// newest first
func (r *CompletionRepository) ListByExercises(ctx context.Context, exerciseIDs []string, limit int) ([]*domain.RecordedCompletion, error) {
	if len(exerciseIDs) == 0 {
		return []*domain.RecordedCompletion{}, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+completionColumns+`
		FROM completions
		WHERE exercise_id = ANY($1)
		ORDER BY seq DESC
		LIMIT $2`, pq.Array(exerciseIDs), limit)
	if err != nil {
		return nil, err
	}
	return collectCompletions(rows)
}

// BandStats counts completions per band and signal
func (r *CompletionRepository) BandStats(ctx context.Context) ([]domain.BandStat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT band, signal, COUNT(*), AVG(score_after - score_before)
		FROM completions
		GROUP BY band, signal
		ORDER BY band, signal`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := []domain.BandStat{}
	for rows.Next() {
		var s domain.BandStat
		var band, signal string
		var avg sql.NullFloat64
		if err := rows.Scan(&band, &signal, &s.Completions, &avg); err != nil {
			return nil, err
		}
		s.Band = domain.Band(band)
		s.Signal = domain.Signal(signal)
		s.AvgDelta = nullFloatValue(avg)
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// ExerciseStats summarizes the given exercises. Exercises without
// completions are omitted.
func (r *CompletionRepository) ExerciseStats(ctx context.Context, exerciseIDs []string) ([]domain.ExerciseStat, error) {
	if len(exerciseIDs) == 0 {
		return []domain.ExerciseStat{}, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT exercise_id,
			COUNT(*),
			AVG(accuracy),
			AVG(elapsed_seconds / expected_seconds),
			AVG(CASE WHEN signal = 'too_hard' THEN 1.0 ELSE 0.0 END),
			AVG(CASE WHEN signal = 'too_easy' THEN 1.0 ELSE 0.0 END)
		FROM completions
		WHERE exercise_id = ANY($1)
		GROUP BY exercise_id
		ORDER BY exercise_id`, pq.Array(exerciseIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := []domain.ExerciseStat{}
	for rows.Next() {
		var s domain.ExerciseStat
		var acc, ratio, hard, easy sql.NullFloat64
		if err := rows.Scan(&s.ExerciseID, &s.Completions, &acc, &ratio, &hard, &easy); err != nil {
			return nil, err
		}
		s.AvgAccuracy = nullFloatValue(acc)
		s.AvgTimeRatio = nullFloatValue(ratio)
		s.TooHardRate = nullFloatValue(hard)
		s.TooEasyRate = nullFloatValue(easy)
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// PlateauedUsers lists users whose most recent completion left them on a
// plateau
func (r *CompletionRepository) PlateauedUsers(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id FROM (
			SELECT DISTINCT ON (user_id) user_id, selection
			FROM completions
			ORDER BY user_id, seq DESC
		) latest
		WHERE (latest.selection ->> 'plateau')::boolean
		ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []string{}
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		users = append(users, userID)
	}
	return users, rows.Err()
}

func collectCompletions(rows *sql.Rows) ([]*domain.RecordedCompletion, error) {
	defer rows.Close()

	result := []*domain.RecordedCompletion{}
	for rows.Next() {
		var row completionRow
		if err := rows.Scan(row.scanTargets()...); err != nil {
			return nil, err
		}
		c, err := mapCompletionToDomain(row)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}
