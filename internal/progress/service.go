package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/felixgeelhaar/codementor/internal/domain"
	"github.com/felixgeelhaar/codementor/internal/metrics"
	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/retry"
)

const (
	maxUserIDLength     = 256
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

// Service applies completion events to stored difficulty profiles
type Service struct {
	store     ProfileStore
	cfg       *domain.ThresholdConfig
	tracker   *domain.ScoreTracker
	selector  *domain.BandSelector
	locks     *userLocks
	retrier   retry.Retry[*Outcome]
	bulkhead  bulkhead.Bulkhead[*Outcome]
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Option configures a Service
type Option func(*Service)

// WithPublisher publishes a Recommendation after every recorded completion
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithMetrics records engine metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithConcurrencyLimit caps concurrent completion writes across all users
func WithConcurrencyLimit(n int) Option {
	return func(s *Service) {
		if n <= 0 {
			return
		}
		s.bulkhead = bulkhead.New[*Outcome](bulkhead.Config{
			MaxConcurrent: n,
			MaxQueue:      n * 4,
			QueueTimeout:  5 * time.Second,
		})
	}
}

// NewService creates a progress service. cfg must come from
// domain.NewThresholdConfig.
func NewService(store ProfileStore, cfg *domain.ThresholdConfig, opts ...Option) *Service {
	s := &Service{
		store:    store,
		cfg:      cfg,
		tracker:  domain.NewScoreTracker(cfg),
		selector: domain.NewBandSelector(cfg),
		locks:    newUserLocks(),
		logger:   slog.Default(),
	}

	// Another process may win the version race; reload and reapply
	s.retrier = retry.New[*Outcome](retry.Config{
		MaxAttempts:   4,
		InitialDelay:  5 * time.Millisecond,
		MaxDelay:      100 * time.Millisecond,
		Multiplier:    2.0,
		BackoffPolicy: retry.BackoffExponential,
		Jitter:        true,
		IsRetryable: func(err error) bool {
			return errors.Is(err, domain.ErrVersionConflict)
		},
	})

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Thresholds returns the engine configuration in use
func (s *Service) Thresholds() *domain.ThresholdConfig {
	return s.cfg
}

// CreateProfile creates a profile seeded from an onboarding skill level
func (s *Service) CreateProfile(ctx context.Context, userID, skillLevel string) (*domain.DifficultyProfile, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}

	profile, err := domain.NewSeededProfile(userID, skillLevel, s.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %q (want one of %s)", err, skillLevel, strings.Join(s.cfg.SkillLevels(), ", "))
	}

	if err := s.store.CreateProfile(ctx, profile); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ProfilesCreated.WithLabelValues(skillLevel).Inc()
	}
	s.logger.Info("difficulty profile created",
		"user_id", userID,
		"skill_level", skillLevel,
		"score", profile.Score)

	return &profile, nil
}

// GetProfile returns the stored profile for userID
func (s *Service) GetProfile(ctx context.Context, userID string) (*domain.DifficultyProfile, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	return s.store.GetProfile(ctx, userID)
}

// Recommend returns the band selection for the user's current profile
func (s *Service) Recommend(ctx context.Context, userID string) (*domain.BandSelection, error) {
	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	sel := s.selector.Select(*profile)
	return &sel, nil
}

// History returns the user's recorded completions, newest first
func (s *Service) History(ctx context.Context, userID string, limit int) ([]domain.RecordedCompletion, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	if _, err := s.store.GetProfile(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.ListCompletions(ctx, userID, limit)
}

// RecordCompletion applies record to the user's profile and persists the
// result. Updates for one user are serialized in-process; updates racing
// from other processes are detected by the store and retried.
func (s *Service) RecordCompletion(ctx context.Context, userID string, record domain.CompletionRecord) (*Outcome, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}

	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		s.recordFailure(record, err)
		return nil, err
	}
	defer unlock()

	var lastErr error
	attempt := func(ctx context.Context) (*Outcome, error) {
		out, err := s.apply(ctx, userID, record)
		lastErr = err
		return out, err
	}

	run := func(ctx context.Context) (*Outcome, error) {
		return s.retrier.Do(ctx, attempt)
	}
	if s.bulkhead != nil {
		inner := run
		run = func(ctx context.Context) (*Outcome, error) {
			return s.bulkhead.Execute(ctx, inner)
		}
	}

	out, err := run(ctx)
	if err != nil {
		if ctx.Err() == nil && lastErr != nil {
			// Report the store or validation error, not the retry wrapper
			err = lastErr
		}
		s.recordFailure(record, err)
		return nil, err
	}

	s.afterCommit(ctx, out)
	return out, nil
}

// apply runs one read-apply-commit cycle
func (s *Service) apply(ctx context.Context, userID string, record domain.CompletionRecord) (*Outcome, error) {
	current, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	next, err := s.tracker.Apply(*current, record)
	if err != nil {
		return nil, err
	}
	next.Version = current.Version + 1

	sel := s.selector.Select(next)
	entry, _ := domain.NewRecordedCompletion(next, sel)

	if err := s.store.CommitCompletion(ctx, next, current.Version, entry); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) && s.metrics != nil {
			s.metrics.VersionConflicts.Inc()
		}
		return nil, err
	}

	wasPlateau := s.selector.Select(*current).Plateau
	if s.metrics != nil {
		s.metrics.RecordBandSelection(sel.Band.String(), sel.Plateau, wasPlateau)
	}

	return &Outcome{Profile: next, Selection: sel, Completion: entry}, nil
}

func (s *Service) afterCommit(ctx context.Context, out *Outcome) {
	if s.metrics != nil {
		latest, _ := out.Profile.Latest()
		s.metrics.RecordCompletion(string(latest.Signal), "applied", latest.Delta)
	}

	s.logger.Info("completion recorded",
		"user_id", out.Profile.UserID,
		"exercise_id", out.Completion.Record.ExerciseID,
		"signal", out.Completion.Signal,
		"score_before", out.Completion.ScoreBefore,
		"score_after", out.Completion.ScoreAfter,
		"band", out.Selection.Band,
		"plateau", out.Selection.Plateau)

	if s.publisher == nil {
		return
	}

	// The completion is already committed; a broker outage must not fail it
	if err := s.publisher.PublishRecommendation(ctx, NewRecommendation(out)); err != nil {
		s.logger.Warn("publish recommendation failed",
			"user_id", out.Profile.UserID,
			"error", err)
	}
}

func (s *Service) recordFailure(record domain.CompletionRecord, err error) {
	result := "error"
	switch {
	case errors.Is(err, domain.ErrValidation):
		result = "invalid"
	case errors.Is(err, domain.ErrDuplicateCompletion):
		result = "duplicate"
	case errors.Is(err, domain.ErrProfileNotFound):
		result = "not_found"
	case errors.Is(err, domain.ErrVersionConflict):
		result = "conflict"
	}

	if s.metrics != nil {
		signal := "unknown"
		if record.Validate() == nil {
			signal = string(s.tracker.Classify(record))
		}
		s.metrics.RecordCompletion(signal, result, 0)
	}

	if result == "error" {
		s.logger.Error("record completion failed", "exercise_id", record.ExerciseID, "error", err)
	} else {
		s.logger.Debug("completion rejected", "exercise_id", record.ExerciseID, "reason", result)
	}
}

func validateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return &domain.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	if len(userID) > maxUserIDLength {
		return &domain.ValidationError{Field: "user_id", Reason: fmt.Sprintf("must be at most %d bytes", maxUserIDLength)}
	}
	return nil
}
