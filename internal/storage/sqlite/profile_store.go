package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/codementor/internal/domain"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// ProfileStore implements difficulty profile persistence backed by SQLite.
type ProfileStore struct {
	db *DB
}

// NewProfileStore creates a new SQLite-backed profile store.
func NewProfileStore(db *DB) *ProfileStore {
	return &ProfileStore{db: db}
}

// CreateProfile inserts a new profile.
func (s *ProfileStore) CreateProfile(ctx context.Context, p domain.DifficultyProfile) error {
	window, err := json.Marshal(p.Window)
	if err != nil {
		return fmt.Errorf("marshal performance_window: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO difficulty_profiles (id, user_id, score, performance_window, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.UserID, p.Score, string(window), p.Version,
		p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrProfileExists
		}
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

// GetProfile retrieves the profile for userID.
func (s *ProfileStore) GetProfile(ctx context.Context, userID string) (*domain.DifficultyProfile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, score, performance_window, version, created_at, updated_at
		FROM difficulty_profiles WHERE user_id = ?`, userID)

	return scanProfile(row)
}

// CommitCompletion updates the profile and inserts the history row in one
// transaction, guarded by the expected version.
func (s *ProfileStore) CommitCompletion(ctx context.Context, next domain.DifficultyProfile, expectedVersion int64, entry domain.RecordedCompletion) error {
	window, err := json.Marshal(next.Window)
	if err != nil {
		return fmt.Errorf("marshal performance_window: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE difficulty_profiles
		SET score = ?, performance_window = ?, version = ?, updated_at = ?
		WHERE user_id = ? AND version = ?`,
		next.Score, string(window), next.Version, next.UpdatedAt.UTC(),
		next.UserID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if n == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM difficulty_profiles WHERE user_id = ?", next.UserID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check profile: %w", err)
		}
		if exists == 0 {
			return domain.ErrProfileNotFound
		}
		return domain.ErrVersionConflict
	}

	r := entry.Record
	_, err = tx.ExecContext(ctx, `
		INSERT INTO completions (id, user_id, exercise_id, elapsed_seconds, expected_seconds,
			accuracy, attempt_count, signal, score_before, score_after, band, adjacent_band,
			plateau, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID.String(), entry.UserID, r.ExerciseID, r.ElapsedSeconds, r.ExpectedSeconds,
		r.Accuracy, r.AttemptCount, string(entry.Signal), entry.ScoreBefore, entry.ScoreAfter,
		string(entry.Band), string(entry.Adjacent), entry.Plateau, entry.RecordedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateCompletion
		}
		return fmt.Errorf("insert completion: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit completion: %w", err)
	}
	return nil
}

// ListCompletions returns up to limit history rows, newest first.
func (s *ProfileStore) ListCompletions(ctx context.Context, userID string, limit int) ([]domain.RecordedCompletion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, exercise_id, elapsed_seconds, expected_seconds,
			accuracy, attempt_count, signal, score_before, score_after, band, adjacent_band,
			plateau, recorded_at
		FROM completions
		WHERE user_id = ?
		ORDER BY recorded_at DESC, rowid DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()

	out := []domain.RecordedCompletion{}
	for rows.Next() {
		var c domain.RecordedCompletion
		var id, signal, band, adjacent string
		err := rows.Scan(
			&id, &c.UserID, &c.Record.ExerciseID, &c.Record.ElapsedSeconds, &c.Record.ExpectedSeconds,
			&c.Record.Accuracy, &c.Record.AttemptCount, &signal, &c.ScoreBefore, &c.ScoreAfter,
			&band, &adjacent, &c.Plateau, &c.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		if c.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse completion id: %w", err)
		}
		c.Signal = domain.Signal(signal)
		c.Band = domain.Band(band)
		c.Adjacent = domain.Band(adjacent)
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountProfiles returns the number of stored profiles.
func (s *ProfileStore) CountProfiles(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM difficulty_profiles").Scan(&n)
	return n, err
}

func scanProfile(row *sql.Row) (*domain.DifficultyProfile, error) {
	var p domain.DifficultyProfile
	var id, windowJSON string

	err := row.Scan(&id, &p.UserID, &p.Score, &windowJSON, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, fmt.Errorf("scan profile: %w", err)
	}

	if p.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse profile id: %w", err)
	}
	if err := json.Unmarshal([]byte(windowJSON), &p.Window); err != nil {
		return nil, fmt.Errorf("unmarshal performance_window: %w", err)
	}
	if p.Window == nil {
		p.Window = []domain.WindowEntry{}
	}

	return &p, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
