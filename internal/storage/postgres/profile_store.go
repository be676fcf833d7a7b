package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/codementor/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// ProfileStore implements profile persistence using PostgreSQL
type ProfileStore struct {
	pool *pgxpool.Pool
}

// NewProfileStore creates a new PostgreSQL profile store
func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

// selectionSnapshot is the band selection stored alongside each completion
type selectionSnapshot struct {
	Band     domain.Band `json:"band"`
	Adjacent domain.Band `json:"adjacent_band,omitempty"`
	Plateau  bool        `json:"plateau"`
}

// CreateProfile inserts a new profile
func (s *ProfileStore) CreateProfile(ctx context.Context, p domain.DifficultyProfile) error {
	window, err := json.Marshal(p.Window)
	if err != nil {
		return fmt.Errorf("marshal performance_window: %w", err)
	}

	query := `
		INSERT INTO difficulty_profiles (id, user_id, score, performance_window, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = s.pool.Exec(ctx, query,
		p.ID, p.UserID, p.Score, window, p.Version, p.CreatedAt, p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrProfileExists
	}
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

// GetProfile retrieves the profile for userID
func (s *ProfileStore) GetProfile(ctx context.Context, userID string) (*domain.DifficultyProfile, error) {
	query := `
		SELECT id, user_id, score, performance_window, version, created_at, updated_at
		FROM difficulty_profiles WHERE user_id = $1
	`
	return scanProfile(s.pool.QueryRow(ctx, query, userID))
}

// CommitCompletion updates the profile and inserts the history row in one
// transaction, guarded by the expected version
func (s *ProfileStore) CommitCompletion(ctx context.Context, next domain.DifficultyProfile, expectedVersion int64, entry domain.RecordedCompletion) error {
	window, err := json.Marshal(next.Window)
	if err != nil {
		return fmt.Errorf("marshal performance_window: %w", err)
	}
	selection, err := json.Marshal(selectionSnapshot{
		Band:     entry.Band,
		Adjacent: entry.Adjacent,
		Plateau:  entry.Plateau,
	})
	if err != nil {
		return fmt.Errorf("marshal selection: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		UPDATE difficulty_profiles
		SET score = $1, performance_window = $2, version = $3, updated_at = $4
		WHERE user_id = $5 AND version = $6
	`, next.Score, window, next.Version, next.UpdatedAt, next.UserID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if result.RowsAffected() == 0 {
		var exists bool
		err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM difficulty_profiles WHERE user_id = $1)", next.UserID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check profile: %w", err)
		}
		if !exists {
			return domain.ErrProfileNotFound
		}
		return domain.ErrVersionConflict
	}

	r := entry.Record
	_, err = tx.Exec(ctx, `
		INSERT INTO completions (id, user_id, exercise_id, elapsed_seconds, expected_seconds,
			accuracy, attempt_count, signal, score_before, score_after, band, selection, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		entry.ID, entry.UserID, r.ExerciseID, r.ElapsedSeconds, r.ExpectedSeconds,
		r.Accuracy, r.AttemptCount, string(entry.Signal), entry.ScoreBefore, entry.ScoreAfter,
		string(entry.Band), selection, entry.RecordedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateCompletion
	}
	if err != nil {
		return fmt.Errorf("insert completion: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit completion: %w", err)
	}
	return nil
}

// ListCompletions returns up to limit history rows, newest first
func (s *ProfileStore) ListCompletions(ctx context.Context, userID string, limit int) ([]domain.RecordedCompletion, error) {
	query := `
		SELECT id, user_id, exercise_id, elapsed_seconds, expected_seconds,
			accuracy, attempt_count, signal, score_before, score_after, band, selection, recorded_at
		FROM completions
		WHERE user_id = $1
		ORDER BY seq DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()

	out := []domain.RecordedCompletion{}
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// CountProfiles returns the number of stored profiles
func (s *ProfileStore) CountProfiles(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM difficulty_profiles").Scan(&n)
	return n, err
}

func scanProfile(row pgx.Row) (*domain.DifficultyProfile, error) {
	var p domain.DifficultyProfile
	var window []byte

	err := row.Scan(&p.ID, &p.UserID, &p.Score, &window, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile: %w", err)
	}

	if err := json.Unmarshal(window, &p.Window); err != nil {
		return nil, fmt.Errorf("unmarshal performance_window: %w", err)
	}
	if p.Window == nil {
		p.Window = []domain.WindowEntry{}
	}
	return &p, nil
}

func scanCompletion(rows pgx.Rows) (*domain.RecordedCompletion, error) {
	var c domain.RecordedCompletion
	var signal, band string
	var selection []byte

	err := rows.Scan(
		&c.ID, &c.UserID, &c.Record.ExerciseID, &c.Record.ElapsedSeconds, &c.Record.ExpectedSeconds,
		&c.Record.Accuracy, &c.Record.AttemptCount, &signal, &c.ScoreBefore, &c.ScoreAfter,
		&band, &selection, &c.RecordedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan completion: %w", err)
	}
	c.Signal = domain.Signal(signal)
	c.Band = domain.Band(band)

	if len(selection) > 0 {
		var snap selectionSnapshot
		if err := json.Unmarshal(selection, &snap); err != nil {
			return nil, fmt.Errorf("unmarshal selection: %w", err)
		}
		c.Adjacent, c.Plateau = snap.Adjacent, snap.Plateau
	}
	return &c, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
