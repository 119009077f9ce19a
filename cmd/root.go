package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/communitas-hq/partner-research/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "partner-research",
	Short: "Community-partner research pipeline",
	Long:  "Researches prospective community partners across profile scraping, answer engines, encyclopedias, and social search, then aggregates the findings into a single reviewable profile.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
