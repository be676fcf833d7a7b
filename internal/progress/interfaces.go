package progress

import (
	"context"

	"github.com/felixgeelhaar/codementor/internal/domain"
)

// ProfileStore defines the persistence interface for difficulty profiles.
// The JSON file store, SQLite store and Postgres store implement this.
type ProfileStore interface {
	// CreateProfile inserts a new profile. Returns domain.ErrProfileExists
	// if the user already has one.
	CreateProfile(ctx context.Context, p domain.DifficultyProfile) error

	// GetProfile returns domain.ErrProfileNotFound for unknown users
	GetProfile(ctx context.Context, userID string) (*domain.DifficultyProfile, error)

	// CommitCompletion replaces the profile with next and appends entry to
	// the user's history in one step. It fails with domain.ErrVersionConflict
	// when the stored version is not expectedVersion, and with
	// domain.ErrDuplicateCompletion when the exercise was already recorded.
	CommitCompletion(ctx context.Context, next domain.DifficultyProfile, expectedVersion int64, entry domain.RecordedCompletion) error

	// ListCompletions returns up to limit history rows, newest first
	ListCompletions(ctx context.Context, userID string, limit int) ([]domain.RecordedCompletion, error)
}

// Publisher delivers recommendation events to downstream consumers such as
// exercise generation.
type Publisher interface {
	PublishRecommendation(ctx context.Context, rec Recommendation) error
}

// ProgressService defines the operations used by the daemon handlers, the
// queue consumer and the MCP server
type ProgressService interface {
	CreateProfile(ctx context.Context, userID, skillLevel string) (*domain.DifficultyProfile, error)
	GetProfile(ctx context.Context, userID string) (*domain.DifficultyProfile, error)
	RecordCompletion(ctx context.Context, userID string, record domain.CompletionRecord) (*Outcome, error)
	Recommend(ctx context.Context, userID string) (*domain.BandSelection, error)
	History(ctx context.Context, userID string, limit int) ([]domain.RecordedCompletion, error)
	Thresholds() *domain.ThresholdConfig
}

// Ensure Service implements ProgressService
var _ ProgressService = (*Service)(nil)
