package main

import (
	"fmt"
	"io"
	"os"

	"github.com/felixgeelhaar/codementor/internal/config"
	"github.com/felixgeelhaar/codementor/internal/domain"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Scenario is a scripted sequence of completions replayed through the engine
type Scenario struct {
	SkillLevel  string                    `yaml:"skill_level"`
	Score       float64                   `yaml:"score,omitempty"` // overrides the skill level seed
	Completions []domain.CompletionRecord `yaml:"completions"`
}

// Step is one replayed completion
type Step struct {
	Record    domain.CompletionRecord
	Signal    domain.Signal
	Before    float64
	After     float64
	Selection domain.BandSelection
}

func newSimulateCommand() *cobra.Command {
	var useLocal bool

	cmd := &cobra.Command{
		Use:   "simulate <scenario.yaml>",
		Short: "Replay a scripted learner through the difficulty engine",
		Long: `simulate reads a YAML scenario with a skill_level and a list of
completions, applies them in order, and prints the score trajectory with
the band chosen after each step. Nothing is persisted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := domain.MustThresholdConfig(domain.DefaultThresholdConfig())
			if useLocal {
				local, err := config.LoadLocalConfig()
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if cfg, err = local.Difficulty.Thresholds(); err != nil {
					return err
				}
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read scenario: %w", err)
			}
			var sc Scenario
			if err := yaml.Unmarshal(data, &sc); err != nil {
				return fmt.Errorf("parse scenario: %w", err)
			}

			steps, err := simulate(sc, cfg)
			if err != nil {
				return err
			}
			printTrajectory(cmd.OutOrStdout(), steps, cfg)
			return nil
		},
	}

	cmd.Flags().BoolVar(&useLocal, "local-config", false, "use thresholds from ~/.codementor/config.yaml")

	return cmd
}

// simulate applies every completion in order and records each step
func simulate(sc Scenario, cfg *domain.ThresholdConfig) ([]Step, error) {
	var profile domain.DifficultyProfile
	if sc.Score != 0 {
		profile = domain.NewDifficultyProfile("simulation", sc.Score, cfg)
	} else {
		var err error
		if profile, err = domain.NewSeededProfile("simulation", sc.SkillLevel, cfg); err != nil {
			return nil, fmt.Errorf("%w: %q", err, sc.SkillLevel)
		}
	}

	tracker := domain.NewScoreTracker(cfg)
	selector := domain.NewBandSelector(cfg)

	steps := make([]Step, 0, len(sc.Completions))
	for i, record := range sc.Completions {
		next, err := tracker.Apply(profile, record)
		if err != nil {
			return nil, fmt.Errorf("completion %d (%s): %w", i+1, record.ExerciseID, err)
		}
		latest, _ := next.Latest()
		steps = append(steps, Step{
			Record:    record,
			Signal:    latest.Signal,
			Before:    profile.Score,
			After:     next.Score,
			Selection: selector.Select(next),
		})
		profile = next
	}
	return steps, nil
}

func printTrajectory(w io.Writer, steps []Step, cfg *domain.ThresholdConfig) {
	fmt.Fprintf(w, "%-4s %-16s %-9s %6s  %-24s %-14s %s\n", "#", "EXERCISE", "SIGNAL", "SCORE", "", "BAND", "NOTE")
	for i, s := range steps {
		band := s.Selection.Band.String()
		if !s.Selection.Adjacent.IsZero() {
			band += "+" + s.Selection.Adjacent.String()
		}
		note := ""
		if s.Selection.Plateau {
			note = "plateau"
		}
		fmt.Fprintf(w, "%-4d %-16s %-9s %6.2f  %s %-14s %s\n",
			i+1, s.Record.ExerciseID, s.Signal, s.After,
			renderScoreBar(s.After, cfg.MinScore, cfg.MaxScore, 20), band, note)
	}
}
