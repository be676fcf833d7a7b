package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/felixgeelhaar/codementor/internal/domain"
	"github.com/spf13/cobra"
)

// client talks to codementord
type client struct {
	baseURL string
	http    *http.Client
}

func newClient() *client {
	return &client{
		baseURL: strings.TrimRight(daemonAddr, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *client) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s (run codementord first): %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error   string `json:"error"`
			Details string `json:"details"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Details != "" {
			return fmt.Errorf("%s (%d): %s", apiErr.Error, resp.StatusCode, apiErr.Details)
		}
		return fmt.Errorf("%s (%d)", apiErr.Error, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func userPath(userID string, suffix string) string {
	return "/v1/profiles/" + url.PathEscape(userID) + suffix
}

func newProfileCommand() *cobra.Command {
	var skillLevel string

	cmd := &cobra.Command{
		Use:   "profile <user_id>",
		Short: "Show a learner's difficulty profile, creating it with --create",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			var p domain.DifficultyProfile
			var err error
			if skillLevel != "" {
				err = c.do(http.MethodPost, "/v1/profiles", map[string]string{
					"user_id":     args[0],
					"skill_level": skillLevel,
				}, &p)
			} else {
				err = c.do(http.MethodGet, userPath(args[0], ""), nil, &p)
			}
			if err != nil {
				return err
			}

			printKV("User", p.UserID)
			printKV("Score", fmt.Sprintf("%.2f %s", p.Score, renderScoreBar(p.Score, 1, 10, 20)))
			printKV("Window", fmt.Sprintf("%d completions", p.CompletionCount()))
			printKV("Version", p.Version)
			printKV("Updated", p.UpdatedAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&skillLevel, "create", "", "create the profile at this skill level (beginner, intermediate, advanced)")

	return cmd
}

func newRecordCommand() *cobra.Command {
	var record domain.CompletionRecord

	cmd := &cobra.Command{
		Use:   "record <user_id> <exercise_id>",
		Short: "Record a completed exercise for a learner",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			record.ExerciseID = args[1]

			var out struct {
				Completion domain.RecordedCompletion `json:"completion"`
				Selection  domain.BandSelection      `json:"selection"`
			}
			if err := newClient().do(http.MethodPost, userPath(args[0], "/completions"), record, &out); err != nil {
				return err
			}

			printKV("Signal", out.Completion.Signal)
			printKV("Score", fmt.Sprintf("%.2f -> %.2f", out.Completion.ScoreBefore, out.Completion.ScoreAfter))
			printSelection(out.Selection)
			return nil
		},
	}

	cmd.Flags().Float64Var(&record.ElapsedSeconds, "elapsed", 0, "seconds taken")
	cmd.Flags().Float64Var(&record.ExpectedSeconds, "expected", 0, "calibrated seconds for the exercise")
	cmd.Flags().Float64Var(&record.Accuracy, "accuracy", 1, "fraction of tests passed")
	cmd.Flags().IntVar(&record.AttemptCount, "attempts", 1, "submissions including the final one")
	_ = cmd.MarkFlagRequired("elapsed")
	_ = cmd.MarkFlagRequired("expected")

	return cmd
}

func newBandCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "band <user_id>",
		Short: "Show the band the next exercise should come from",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Selection domain.BandSelection `json:"selection"`
			}
			if err := newClient().do(http.MethodGet, userPath(args[0], "/band"), nil, &out); err != nil {
				return err
			}
			printSelection(out.Selection)
			return nil
		},
	}
}

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show completion counts per band (Postgres deployments only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Bands []domain.BandStat `json:"bands"`
			}
			if err := newClient().do(http.MethodGet, "/v1/analytics/bands", nil, &out); err != nil {
				return err
			}

			fmt.Println("Completions by Band")
			fmt.Println("===================")
			for _, b := range out.Bands {
				fmt.Printf("%-14s %-9s %6d  avg delta %+.3f\n", b.Band, b.Signal, b.Completions, b.AvgDelta)
			}
			return nil
		},
	}
}

func printSelection(sel domain.BandSelection) {
	bands := make([]string, 0, 2)
	for _, b := range sel.Bands() {
		bands = append(bands, b.String())
	}
	printKV("Band", strings.Join(bands, ", "))
	printKV("Target", fmt.Sprintf("%.1f - %.1f", sel.TargetMin, sel.TargetMax))
	if sel.Plateau {
		printKV("Plateau", "yes, vary the topic")
	}
}
