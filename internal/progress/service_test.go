package progress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"

	"github.com/felixgeelhaar/codementor/internal/domain"
	"github.com/felixgeelhaar/codementor/internal/metrics"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, opts ...Option) (*Service, *FileStore) {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	cfg := domain.MustThresholdConfig(domain.DefaultThresholdConfig())
	opts = append([]Option{WithLogger(quietLogger()), WithMetrics(metrics.NewMetrics())}, opts...)
	return NewService(store, cfg, opts...), store
}

func hard(id string) domain.CompletionRecord {
	return domain.CompletionRecord{ExerciseID: id, ElapsedSeconds: 300, ExpectedSeconds: 150, Accuracy: 0.5, AttemptCount: 2}
}

func neutral(id string) domain.CompletionRecord {
	return domain.CompletionRecord{ExerciseID: id, ElapsedSeconds: 160, ExpectedSeconds: 150, Accuracy: 0.9, AttemptCount: 1}
}

func easy(id string) domain.CompletionRecord {
	return domain.CompletionRecord{ExerciseID: id, ElapsedSeconds: 40, ExpectedSeconds: 150, Accuracy: 1, AttemptCount: 1}
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

type capturePublisher struct {
	mu   sync.Mutex
	recs []Recommendation
	err  error
}

func (p *capturePublisher) PublishRecommendation(ctx context.Context, rec Recommendation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recs = append(p.recs, rec)
	return p.err
}

func TestService_CreateProfile(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		user  string
		level string
		want  float64
	}{
		{"alice", "beginner", 2.0},
		{"bob", "intermediate", 5.0},
		{"carol", "advanced", 8.0},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			p, err := svc.CreateProfile(ctx, tt.user, tt.level)
			if err != nil {
				t.Fatalf("CreateProfile() error = %v", err)
			}
			if p.Score != tt.want {
				t.Errorf("Score = %v, want %v", p.Score, tt.want)
			}

			got, err := svc.GetProfile(ctx, tt.user)
			if err != nil {
				t.Fatalf("GetProfile() error = %v", err)
			}
			if got.ID != p.ID || got.Score != tt.want {
				t.Errorf("GetProfile() = %+v, want stored profile", got)
			}
		})
	}
}

func TestService_CreateProfile_Errors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateProfile(ctx, "alice", "beginner"); err != nil {
		t.Fatalf("CreateProfile() error = %v", err)
	}

	tests := []struct {
		name    string
		user    string
		level   string
		wantErr error
	}{
		{"duplicate", "alice", "advanced", domain.ErrProfileExists},
		{"unknown level", "bob", "guru", domain.ErrUnknownSkillLevel},
		{"empty user", "  ", "beginner", domain.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateProfile(ctx, tt.user, tt.level)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CreateProfile() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestService_GetProfile_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.GetProfile(context.Background(), "ghost"); !errors.Is(err, domain.ErrProfileNotFound) {
		t.Errorf("GetProfile() error = %v, want ErrProfileNotFound", err)
	}
	if _, err := svc.RecordCompletion(context.Background(), "ghost", neutral("ex")); !errors.Is(err, domain.ErrProfileNotFound) {
		t.Errorf("RecordCompletion() error = %v, want ErrProfileNotFound", err)
	}
}

func TestService_RecordCompletion(t *testing.T) {
	pub := &capturePublisher{}
	svc, _ := newTestService(t, WithPublisher(pub))
	ctx := context.Background()

	svc.CreateProfile(ctx, "alice", "intermediate")

	out, err := svc.RecordCompletion(ctx, "alice", hard("go/basics/1"))
	if err != nil {
		t.Fatalf("RecordCompletion() error = %v", err)
	}
	if !near(out.Profile.Score, 4.7) {
		t.Errorf("Score = %v, want 4.7", out.Profile.Score)
	}
	if out.Profile.Version != 1 {
		t.Errorf("Version = %d, want 1", out.Profile.Version)
	}
	if out.Selection.Band != domain.BandIntermediate {
		t.Errorf("Band = %v, want intermediate", out.Selection.Band)
	}
	if out.Completion.Signal != domain.SignalTooHard || !near(out.Completion.ScoreBefore, 5.0) {
		t.Errorf("Completion = %+v, want too_hard from 5.0", out.Completion)
	}

	stored, _ := svc.GetProfile(ctx, "alice")
	if !near(stored.Score, 4.7) || stored.Version != 1 || len(stored.Window) != 1 {
		t.Errorf("stored profile = %+v, want score 4.7 version 1", stored)
	}

	if len(pub.recs) != 1 {
		t.Fatalf("published %d recommendations, want 1", len(pub.recs))
	}
	rec := pub.recs[0]
	if rec.UserID != "alice" || rec.ExerciseID != "go/basics/1" || rec.Band != domain.BandIntermediate {
		t.Errorf("Recommendation = %+v", rec)
	}
}

func TestService_RecordCompletion_RejectsWithoutChange(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	svc.CreateProfile(ctx, "alice", "intermediate")
	svc.RecordCompletion(ctx, "alice", neutral("ex-1"))

	tests := []struct {
		name    string
		record  domain.CompletionRecord
		wantErr error
	}{
		{"duplicate exercise", hard("ex-1"), domain.ErrDuplicateCompletion},
		{"negative accuracy", domain.CompletionRecord{ExerciseID: "ex-2", ElapsedSeconds: 10, ExpectedSeconds: 10, Accuracy: -0.1, AttemptCount: 1}, domain.ErrValidation},
		{"zero attempts", domain.CompletionRecord{ExerciseID: "ex-3", ElapsedSeconds: 10, ExpectedSeconds: 10, Accuracy: 1, AttemptCount: 0}, domain.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecordCompletion(ctx, "alice", tt.record)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("RecordCompletion() error = %v, want %v", err, tt.wantErr)
			}

			p, _ := svc.GetProfile(ctx, "alice")
			if p.Score != 5.0 || p.Version != 1 || len(p.Window) != 1 {
				t.Errorf("profile changed after rejected completion: %+v", p)
			}
		})
	}
}

func TestService_RecordCompletion_PlateauAndHistory(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	svc.CreateProfile(ctx, "alice", "intermediate")

	var out *Outcome
	for i := 0; i < 7; i++ {
		var err error
		out, err = svc.RecordCompletion(ctx, "alice", neutral(fmt.Sprintf("ex-%d", i)))
		if err != nil {
			t.Fatalf("RecordCompletion() error = %v", err)
		}
	}

	if !out.Selection.Plateau {
		t.Error("steady neutral completions should plateau")
	}
	if len(out.Profile.Window) != 5 {
		t.Errorf("window length = %d, want 5", len(out.Profile.Window))
	}

	sel, err := svc.Recommend(ctx, "alice")
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if !sel.Plateau || sel.Band != domain.BandIntermediate {
		t.Errorf("Recommend() = %+v, want plateaued intermediate", sel)
	}

	history, err := svc.History(ctx, "alice", 3)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("History() returned %d rows, want 3", len(history))
	}
	if history[0].Record.ExerciseID != "ex-6" || history[2].Record.ExerciseID != "ex-4" {
		t.Errorf("History() order = %s..%s, want newest first", history[0].Record.ExerciseID, history[2].Record.ExerciseID)
	}

	all, _ := svc.History(ctx, "alice", 0)
	if len(all) != 7 {
		t.Errorf("History() with default limit returned %d rows, want 7", len(all))
	}
}

func TestService_RecordCompletion_ConcurrentSameUser(t *testing.T) {
	svc, store := newTestService(t, WithConcurrencyLimit(4))
	ctx := context.Background()

	svc.CreateProfile(ctx, "alice", "beginner")

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := svc.RecordCompletion(ctx, "alice", easy(fmt.Sprintf("ex-%d", i))); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("RecordCompletion() error = %v", err)
	}

	p, _ := svc.GetProfile(ctx, "alice")
	if p.Version != n {
		t.Errorf("Version = %d, want %d (no lost updates)", p.Version, n)
	}
	// 2.0 + 20 * 0.3
	if !near(p.Score, 8.0) {
		t.Errorf("Score = %v, want 8.0", p.Score)
	}

	history, _ := store.ListCompletions(ctx, "alice", 100)
	if len(history) != n {
		t.Errorf("history rows = %d, want %d", len(history), n)
	}
	if svc.locks.size() != 0 {
		t.Errorf("lock table holds %d entries after all updates", svc.locks.size())
	}
}

// conflictStore fails the first conflicts commits with a version conflict
type conflictStore struct {
	ProfileStore
	mu        sync.Mutex
	conflicts int
	commits   int
}

func (s *conflictStore) CommitCompletion(ctx context.Context, next domain.DifficultyProfile, expected int64, entry domain.RecordedCompletion) error {
	s.mu.Lock()
	s.commits++
	if s.conflicts > 0 {
		s.conflicts--
		s.mu.Unlock()
		return fmt.Errorf("commit: %w", domain.ErrVersionConflict)
	}
	s.mu.Unlock()
	return s.ProfileStore.CommitCompletion(ctx, next, expected, entry)
}

func TestService_RecordCompletion_RetriesVersionConflict(t *testing.T) {
	fs, _ := NewFileStore(t.TempDir())
	store := &conflictStore{ProfileStore: fs, conflicts: 2}
	cfg := domain.MustThresholdConfig(domain.DefaultThresholdConfig())
	svc := NewService(store, cfg, WithLogger(quietLogger()))
	ctx := context.Background()

	svc.CreateProfile(ctx, "alice", "intermediate")

	out, err := svc.RecordCompletion(ctx, "alice", hard("ex-1"))
	if err != nil {
		t.Fatalf("RecordCompletion() error = %v", err)
	}
	if !near(out.Profile.Score, 4.7) {
		t.Errorf("Score = %v, want 4.7", out.Profile.Score)
	}
	if store.commits != 3 {
		t.Errorf("commits = %d, want 3", store.commits)
	}
}

func TestService_RecordCompletion_GivesUpOnPersistentConflict(t *testing.T) {
	fs, _ := NewFileStore(t.TempDir())
	store := &conflictStore{ProfileStore: fs, conflicts: 100}
	cfg := domain.MustThresholdConfig(domain.DefaultThresholdConfig())
	svc := NewService(store, cfg, WithLogger(quietLogger()))
	ctx := context.Background()

	svc.CreateProfile(ctx, "alice", "intermediate")

	if _, err := svc.RecordCompletion(ctx, "alice", hard("ex-1")); !errors.Is(err, domain.ErrVersionConflict) {
		t.Errorf("RecordCompletion() error = %v, want ErrVersionConflict", err)
	}

	p, _ := svc.GetProfile(ctx, "alice")
	if p.Score != 5.0 {
		t.Errorf("Score = %v, want 5.0 after failed commit", p.Score)
	}
}

func TestService_PublishFailureDoesNotFailCompletion(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	svc, _ := newTestService(t, WithPublisher(pub))
	ctx := context.Background()

	svc.CreateProfile(ctx, "alice", "intermediate")
	if _, err := svc.RecordCompletion(ctx, "alice", easy("ex-1")); err != nil {
		t.Fatalf("RecordCompletion() error = %v", err)
	}

	p, _ := svc.GetProfile(ctx, "alice")
	if !near(p.Score, 5.3) {
		t.Errorf("Score = %v, want 5.3", p.Score)
	}
}

func TestService_History_Validation(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.History(context.Background(), "", 10); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("History() error = %v, want validation error", err)
	}
	if _, err := svc.History(context.Background(), "ghost", 10); !errors.Is(err, domain.ErrProfileNotFound) {
		t.Errorf("History() error = %v, want ErrProfileNotFound", err)
	}
}
