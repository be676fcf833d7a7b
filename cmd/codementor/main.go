package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

var daemonAddr string

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "codementor",
		Short: "CodeMentor - adaptive exercise difficulty",
		Long: `codementor inspects and exercises the CodeMentor difficulty engine.

Offline commands (simulate, thresholds) run the engine locally. Learner
commands (profile, record, band, stats) talk to a running codementord.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&daemonAddr, "daemon", getDefaultDaemon(), "codementord base URL")

	rootCmd.AddCommand(newSimulateCommand())
	rootCmd.AddCommand(newThresholdsCommand())
	rootCmd.AddCommand(newProfileCommand())
	rootCmd.AddCommand(newRecordCommand())
	rootCmd.AddCommand(newBandCommand())
	rootCmd.AddCommand(newStatsCommand())
	rootCmd.AddCommand(newMCPCommand())

	return rootCmd
}

func getDefaultDaemon() string {
	if addr := os.Getenv("CODEMENTOR_DAEMON"); addr != "" {
		return addr
	}
	return "http://127.0.0.1:7433"
}

// renderScoreBar draws score on the 1-10 scale
func renderScoreBar(score, lo, hi float64, width int) string {
	filled := int((score - lo) / (hi - lo) * float64(width))
	filled = clampInt(filled, 0, width)
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func printKV(key string, value any) {
	fmt.Printf("%-18s %v\n", key+":", value)
}
