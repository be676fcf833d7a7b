package progress

import (
	"context"
	"errors"
	"sync"

	"github.com/felixgeelhaar/codementor/internal/domain"
	"github.com/felixgeelhaar/codementor/internal/storage/local"
)

const collectionLearners = "learners"

// learnerDoc keeps a profile and its history in one file so a commit is a
// single atomic rename
type learnerDoc struct {
	Profile domain.DifficultyProfile    `json:"profile"`
	History []domain.RecordedCompletion `json:"history"` // oldest first
}

// FileStore is a ProfileStore on local JSON files, for offline and
// single-user setups
type FileStore struct {
	store *local.Store
	mu    sync.Mutex
}

// NewFileStore creates a file store rooted at basePath
func NewFileStore(basePath string) (*FileStore, error) {
	store, err := local.NewStore(basePath)
	if err != nil {
		return nil, err
	}
	return &FileStore{store: store}, nil
}

// Ensure FileStore implements ProfileStore
var _ ProfileStore = (*FileStore)(nil)

// CreateProfile stores a new profile
func (s *FileStore) CreateProfile(ctx context.Context, p domain.DifficultyProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store.Exists(collectionLearners, p.UserID) {
		return domain.ErrProfileExists
	}
	return s.store.Save(collectionLearners, p.UserID, learnerDoc{
		Profile: p,
		History: []domain.RecordedCompletion{},
	})
}

// GetProfile loads the profile for userID
func (s *FileStore) GetProfile(ctx context.Context, userID string) (*domain.DifficultyProfile, error) {
	doc, err := s.load(userID)
	if err != nil {
		return nil, err
	}
	return &doc.Profile, nil
}

// CommitCompletion replaces the profile and appends entry
func (s *FileStore) CommitCompletion(ctx context.Context, next domain.DifficultyProfile, expectedVersion int64, entry domain.RecordedCompletion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(next.UserID)
	if err != nil {
		return err
	}
	if doc.Profile.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	for _, h := range doc.History {
		if h.Record.ExerciseID == entry.Record.ExerciseID {
			return domain.ErrDuplicateCompletion
		}
	}

	doc.Profile = next
	doc.History = append(doc.History, entry)
	return s.store.Save(collectionLearners, next.UserID, doc)
}

// ListCompletions returns up to limit history rows, newest first
func (s *FileStore) ListCompletions(ctx context.Context, userID string, limit int) ([]domain.RecordedCompletion, error) {
	doc, err := s.load(userID)
	if err != nil {
		return nil, err
	}

	out := make([]domain.RecordedCompletion, 0, min(limit, len(doc.History)))
	for i := len(doc.History) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, doc.History[i])
	}
	return out, nil
}

// Users returns every user with a stored profile
func (s *FileStore) Users() ([]string, error) {
	return s.store.List(collectionLearners)
}

func (s *FileStore) load(userID string) (*learnerDoc, error) {
	var doc learnerDoc
	if err := s.store.Load(collectionLearners, userID, &doc); err != nil {
		if errors.Is(err, local.ErrNotFound) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, err
	}
	return &doc, nil
}
