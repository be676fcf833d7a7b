package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/codementor/internal/domain"
)

// AnalyticsStore answers cross-user questions about recorded completions
// backed by SQLite.
type AnalyticsStore struct {
	db *DB
}

// NewAnalyticsStore creates a new SQLite-backed analytics store.
func NewAnalyticsStore(db *DB) *AnalyticsStore {
	return &AnalyticsStore{db: db}
}

// BandStats counts completions per band and signal.
func (s *AnalyticsStore) BandStats(ctx context.Context) ([]domain.BandStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT band, signal, completions, avg_delta
		FROM band_completion_counts
		ORDER BY band, signal`)
	if err != nil {
		return nil, fmt.Errorf("query band stats: %w", err)
	}
	defer rows.Close()

	stats := []domain.BandStat{}
	for rows.Next() {
		var st domain.BandStat
		var band, signal string
		var avg sql.NullFloat64
		if err := rows.Scan(&band, &signal, &st.Completions, &avg); err != nil {
			return nil, fmt.Errorf("scan band stat: %w", err)
		}
		st.Band = domain.Band(band)
		st.Signal = domain.Signal(signal)
		st.AvgDelta = avg.Float64
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// ExerciseStats summarizes the given exercises. Exercises without
// completions are omitted.
func (s *AnalyticsStore) ExerciseStats(ctx context.Context, exerciseIDs []string) ([]domain.ExerciseStat, error) {
	if len(exerciseIDs) == 0 {
		return []domain.ExerciseStat{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(exerciseIDs)), ",")
	args := make([]any, len(exerciseIDs))
	for i, id := range exerciseIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT exercise_id,
			COUNT(*),
			AVG(accuracy),
			AVG(elapsed_seconds / expected_seconds),
			AVG(CASE WHEN signal = 'too_hard' THEN 1.0 ELSE 0.0 END),
			AVG(CASE WHEN signal = 'too_easy' THEN 1.0 ELSE 0.0 END)
		FROM completions
		WHERE exercise_id IN (`+placeholders+`)
		GROUP BY exercise_id
		ORDER BY exercise_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query exercise stats: %w", err)
	}
	defer rows.Close()

	stats := []domain.ExerciseStat{}
	for rows.Next() {
		var st domain.ExerciseStat
		if err := rows.Scan(&st.ExerciseID, &st.Completions, &st.AvgAccuracy, &st.AvgTimeRatio, &st.TooHardRate, &st.TooEasyRate); err != nil {
			return nil, fmt.Errorf("scan exercise stat: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// PlateauedUsers lists users whose most recent completion left them on a
// plateau.
func (s *AnalyticsStore) PlateauedUsers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM (
			SELECT user_id, plateau,
				ROW_NUMBER() OVER (PARTITION BY user_id ORDER BY recorded_at DESC, rowid DESC) AS rn
			FROM completions
		)
		WHERE rn = 1 AND plateau = 1
		ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("query plateaued users: %w", err)
	}
	defer rows.Close()

	users := []string{}
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		users = append(users, userID)
	}
	return users, rows.Err()
}
