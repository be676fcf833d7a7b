// Package mcp exposes the difficulty engine to editor agents over the
// Model Context Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/codementor/internal/domain"
	"github.com/felixgeelhaar/codementor/internal/progress"
	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"
)

// Server wraps the MCP server with CodeMentor functionality
type Server struct {
	mcpServer *server.Server
	progress  progress.ProgressService
}

// Config contains configuration for the MCP server
type Config struct {
	Progress progress.ProgressService
	Version  string
}

// NewServer creates a new MCP server for CodeMentor
func NewServer(cfg Config) *Server {
	s := &Server{progress: cfg.Progress}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	s.mcpServer = server.New(server.Info{
		Name:    "codementor",
		Version: version,
	}, server.WithInstructions(`
CodeMentor tracks how hard exercises should be for each learner.

Available tools:
- codementor_profile: Look up (or create) a learner's difficulty profile
- codementor_record_completion: Record a finished exercise and get the next band
- codementor_band: Get the difficulty band to pick the next exercise from
- codementor_history: List a learner's recent completions

Scores run from 1 (easiest) to 10. Bands: beginner, intermediate, advanced.
When plateau is true, keep the difficulty but vary the topic.
`))

	s.registerTools()

	return s
}

// registerTools registers all CodeMentor MCP tools
func (s *Server) registerTools() {
	s.mcpServer.Tool("codementor_profile").
		Description("Get a learner's difficulty profile. Pass skill_level to create it on first use.").
		Handler(s.handleProfile)

	s.mcpServer.Tool("codementor_record_completion").
		Description("Record a completed exercise. Returns the adjusted score and the recommended band.").
		Handler(s.handleRecordCompletion)

	s.mcpServer.Tool("codementor_band").
		Description("Get the recommended difficulty band and target score range for a learner.").
		Handler(s.handleBand)

	s.mcpServer.Tool("codementor_history").
		Description("List a learner's most recent completions, newest first.").
		Handler(s.handleHistory)
}

// Input/Output types for tools

type ProfileInput struct {
	UserID     string `json:"user_id" jsonschema:"description=Learner identifier"`
	SkillLevel string `json:"skill_level,omitempty" jsonschema:"description=Onboarding level used when the profile does not exist yet,enum=beginner,enum=intermediate,enum=advanced"`
}

type ProfileOutput struct {
	UserID      string    `json:"user_id"`
	Score       float64   `json:"score"`
	Band        string    `json:"band"`
	Completions int       `json:"window_completions"`
	Version     int64     `json:"version"`
	Created     bool      `json:"created"`
	UpdatedAt   time.Time `json:"last_updated_at"`
}

type RecordInput struct {
	UserID          string  `json:"user_id" jsonschema:"description=Learner identifier"`
	ExerciseID      string  `json:"exercise_id" jsonschema:"description=Exercise identifier; each exercise counts once per learner"`
	ElapsedSeconds  float64 `json:"elapsed_seconds" jsonschema:"description=Time the learner took"`
	ExpectedSeconds float64 `json:"expected_seconds" jsonschema:"description=Time the exercise is calibrated for"`
	Accuracy        float64 `json:"accuracy" jsonschema:"description=Fraction of tests passed between 0 and 1"`
	AttemptCount    int     `json:"attempt_count" jsonschema:"description=Submissions including the final one (at least 1)"`
}

type RecordOutput struct {
	Signal      string  `json:"signal"`
	ScoreBefore float64 `json:"score_before"`
	ScoreAfter  float64 `json:"score_after"`
	BandOutput
	Message string `json:"message"`
}

type UserInput struct {
	UserID string `json:"user_id" jsonschema:"description=Learner identifier"`
}

type BandOutput struct {
	Band         string   `json:"band"`
	AdjacentBand string   `json:"adjacent_band,omitempty"`
	Bands        []string `json:"bands"`
	TargetMin    float64  `json:"target_min"`
	TargetMax    float64  `json:"target_max"`
	Plateau      bool     `json:"plateau"`
}

type HistoryInput struct {
	UserID string `json:"user_id" jsonschema:"description=Learner identifier"`
	Limit  int    `json:"limit,omitempty" jsonschema:"description=Maximum entries to return (default 20)"`
}

type HistoryEntry struct {
	ExerciseID string    `json:"exercise_id"`
	Signal     string    `json:"signal"`
	ScoreAfter float64   `json:"score_after"`
	Band       string    `json:"band"`
	RecordedAt time.Time `json:"recorded_at"`
}

type HistoryOutput struct {
	UserID      string         `json:"user_id"`
	Completions []HistoryEntry `json:"completions"`
}

// Tool handlers

func (s *Server) handleProfile(ctx context.Context, input ProfileInput) (ProfileOutput, error) {
	created := false
	profile, err := s.progress.GetProfile(ctx, input.UserID)
	if errors.Is(err, domain.ErrProfileNotFound) && input.SkillLevel != "" {
		profile, err = s.progress.CreateProfile(ctx, input.UserID, input.SkillLevel)
		created = err == nil
	}
	if err != nil {
		return ProfileOutput{}, fmt.Errorf("failed to get profile: %w", err)
	}

	sel, err := s.progress.Recommend(ctx, input.UserID)
	if err != nil {
		return ProfileOutput{}, fmt.Errorf("failed to select band: %w", err)
	}

	return ProfileOutput{
		UserID:      profile.UserID,
		Score:       profile.Score,
		Band:        sel.Band.String(),
		Completions: profile.CompletionCount(),
		Version:     profile.Version,
		Created:     created,
		UpdatedAt:   profile.UpdatedAt,
	}, nil
}

func (s *Server) handleRecordCompletion(ctx context.Context, input RecordInput) (RecordOutput, error) {
	outcome, err := s.progress.RecordCompletion(ctx, input.UserID, domain.CompletionRecord{
		ExerciseID:      input.ExerciseID,
		ElapsedSeconds:  input.ElapsedSeconds,
		ExpectedSeconds: input.ExpectedSeconds,
		Accuracy:        input.Accuracy,
		AttemptCount:    input.AttemptCount,
	})
	if err != nil {
		return RecordOutput{}, fmt.Errorf("failed to record completion: %w", err)
	}

	c := outcome.Completion
	return RecordOutput{
		Signal:      string(c.Signal),
		ScoreBefore: c.ScoreBefore,
		ScoreAfter:  c.ScoreAfter,
		BandOutput:  bandOutput(outcome.Selection),
		Message:     recordMessage(c, outcome.Selection),
	}, nil
}

func (s *Server) handleBand(ctx context.Context, input UserInput) (BandOutput, error) {
	sel, err := s.progress.Recommend(ctx, input.UserID)
	if err != nil {
		return BandOutput{}, fmt.Errorf("failed to select band: %w", err)
	}
	return bandOutput(*sel), nil
}

func (s *Server) handleHistory(ctx context.Context, input HistoryInput) (HistoryOutput, error) {
	history, err := s.progress.History(ctx, input.UserID, input.Limit)
	if err != nil {
		return HistoryOutput{}, fmt.Errorf("failed to list completions: %w", err)
	}

	out := HistoryOutput{UserID: input.UserID, Completions: make([]HistoryEntry, 0, len(history))}
	for _, h := range history {
		out.Completions = append(out.Completions, HistoryEntry{
			ExerciseID: h.Record.ExerciseID,
			Signal:     string(h.Signal),
			ScoreAfter: h.ScoreAfter,
			Band:       h.Band.String(),
			RecordedAt: h.RecordedAt,
		})
	}
	return out, nil
}

func bandOutput(sel domain.BandSelection) BandOutput {
	bands := make([]string, 0, 2)
	for _, b := range sel.Bands() {
		bands = append(bands, b.String())
	}
	return BandOutput{
		Band:         sel.Band.String(),
		AdjacentBand: sel.Adjacent.String(),
		Bands:        bands,
		TargetMin:    sel.TargetMin,
		TargetMax:    sel.TargetMax,
		Plateau:      sel.Plateau,
	}
}

func recordMessage(c domain.RecordedCompletion, sel domain.BandSelection) string {
	var msg string
	switch c.Signal {
	case domain.SignalTooEasy:
		msg = fmt.Sprintf("That was easy. Score %.2f -> %.2f.", c.ScoreBefore, c.ScoreAfter)
	case domain.SignalTooHard:
		msg = fmt.Sprintf("That was a stretch. Score %.2f -> %.2f.", c.ScoreBefore, c.ScoreAfter)
	default:
		msg = fmt.Sprintf("Right level. Score stays at %.2f.", c.ScoreAfter)
	}
	msg += fmt.Sprintf(" Next exercise: %s (target %.1f-%.1f).", sel.Band, sel.TargetMin, sel.TargetMax)
	if sel.Plateau {
		msg += " Progress has plateaued; try a different topic at this level."
	}
	return msg
}

// ServeStdio starts the MCP server on stdio
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP (alternative transport)
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server (for testing)
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}
