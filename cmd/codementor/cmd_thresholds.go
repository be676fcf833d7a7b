package main

import (
	"fmt"

	"github.com/felixgeelhaar/codementor/internal/config"
	"github.com/felixgeelhaar/codementor/internal/domain"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newThresholdsCommand() *cobra.Command {
	var defaults bool

	cmd := &cobra.Command{
		Use:   "thresholds",
		Short: "Print the effective engine thresholds as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg *domain.ThresholdConfig
			if defaults {
				cfg = domain.MustThresholdConfig(domain.DefaultThresholdConfig())
			} else {
				local, err := config.LoadLocalConfig()
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if cfg, err = local.Difficulty.Thresholds(); err != nil {
					return err
				}
			}

			out, err := yaml.Marshal(config.DifficultyConfig{ThresholdConfig: *cfg})
			if err != nil {
				return fmt.Errorf("marshal thresholds: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	cmd.Flags().BoolVar(&defaults, "defaults", false, "ignore ~/.codementor/config.yaml")

	return cmd
}
