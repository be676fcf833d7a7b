package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/felixgeelhaar/codementor/internal/domain"
	"github.com/felixgeelhaar/codementor/internal/progress"
)

// setupTestServer creates an MCP server over a file-backed progress service
func setupTestServer(t *testing.T) *Server {
	t.Helper()

	store, err := progress.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("create file store: %v", err)
	}
	svc := progress.NewService(store, domain.MustThresholdConfig(domain.DefaultThresholdConfig()))

	return NewServer(Config{Progress: svc, Version: "test"})
}

func TestNewServer(t *testing.T) {
	s := setupTestServer(t)
	if s.GetMCPServer() == nil {
		t.Fatal("expected non-nil MCP server")
	}
	if s.progress == nil {
		t.Fatal("expected non-nil progress service")
	}
}

func TestHandleProfile(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()

	if _, err := s.handleProfile(ctx, ProfileInput{UserID: "alice"}); !errors.Is(err, domain.ErrProfileNotFound) {
		t.Fatalf("lookup without skill level error = %v; want ErrProfileNotFound", err)
	}

	out, err := s.handleProfile(ctx, ProfileInput{UserID: "alice", SkillLevel: "advanced"})
	if err != nil {
		t.Fatalf("handleProfile() error = %v", err)
	}
	if !out.Created || out.Score != 8.0 || out.Band != "advanced" {
		t.Errorf("created profile = %+v", out)
	}

	// A second call finds the existing profile and ignores the skill level
	out, err = s.handleProfile(ctx, ProfileInput{UserID: "alice", SkillLevel: "beginner"})
	if err != nil {
		t.Fatalf("handleProfile() error = %v", err)
	}
	if out.Created || out.Score != 8.0 {
		t.Errorf("existing profile = %+v", out)
	}

	if _, err := s.handleProfile(ctx, ProfileInput{UserID: "bob", SkillLevel: "guru"}); !errors.Is(err, domain.ErrUnknownSkillLevel) {
		t.Errorf("unknown level error = %v; want ErrUnknownSkillLevel", err)
	}
}

func TestHandleRecordCompletion(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()

	if _, err := s.handleProfile(ctx, ProfileInput{UserID: "alice", SkillLevel: "beginner"}); err != nil {
		t.Fatalf("create profile: %v", err)
	}

	out, err := s.handleRecordCompletion(ctx, RecordInput{
		UserID: "alice", ExerciseID: "ex-1", ElapsedSeconds: 200, ExpectedSeconds: 100, Accuracy: 0.5, AttemptCount: 3,
	})
	if err != nil {
		t.Fatalf("handleRecordCompletion() error = %v", err)
	}
	if out.Signal != "too_hard" || out.ScoreBefore != 2.0 {
		t.Errorf("output = %+v", out)
	}
	if out.ScoreAfter < 1.69 || out.ScoreAfter > 1.71 {
		t.Errorf("ScoreAfter = %v, want 1.7", out.ScoreAfter)
	}
	if out.Band != "beginner" || out.TargetMin < 1.19 || out.TargetMin > 1.21 {
		t.Errorf("band = %+v", out.BandOutput)
	}
	if !strings.Contains(out.Message, "stretch") {
		t.Errorf("Message = %q", out.Message)
	}

	_, err = s.handleRecordCompletion(ctx, RecordInput{
		UserID: "alice", ExerciseID: "ex-2", ElapsedSeconds: 100, ExpectedSeconds: 100, Accuracy: 1.5, AttemptCount: 1,
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("invalid accuracy error = %v; want ErrValidation", err)
	}
}

func TestHandleBandAndHistory(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()

	if _, err := s.handleBand(ctx, UserInput{UserID: "ghost"}); !errors.Is(err, domain.ErrProfileNotFound) {
		t.Errorf("band for unknown user error = %v", err)
	}

	if _, err := s.handleProfile(ctx, ProfileInput{UserID: "carol", SkillLevel: "intermediate"}); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"a", "b", "c"} {
		_, err := s.handleRecordCompletion(ctx, RecordInput{
			UserID: "carol", ExerciseID: id, ElapsedSeconds: 100, ExpectedSeconds: 100, Accuracy: 0.8, AttemptCount: 1,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	band, err := s.handleBand(ctx, UserInput{UserID: "carol"})
	if err != nil {
		t.Fatalf("handleBand() error = %v", err)
	}
	if band.Band != "intermediate" || band.Plateau || len(band.Bands) != 1 {
		t.Errorf("band = %+v", band)
	}

	history, err := s.handleHistory(ctx, HistoryInput{UserID: "carol", Limit: 2})
	if err != nil {
		t.Fatalf("handleHistory() error = %v", err)
	}
	if len(history.Completions) != 2 || history.Completions[0].ExerciseID != "c" {
		t.Errorf("history = %+v", history)
	}
}

func TestRecordMessage_Plateau(t *testing.T) {
	msg := recordMessage(
		domain.RecordedCompletion{Signal: domain.SignalNeutral, ScoreBefore: 4, ScoreAfter: 4},
		domain.BandSelection{Band: domain.BandIntermediate, TargetMin: 3.5, TargetMax: 4.5, Plateau: true},
	)
	for _, want := range []string{"stays at 4.00", "intermediate", "3.5-4.5", "plateaued"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}
