package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/communitas-hq/partner-research/internal/intro"
	anthropicpkg "github.com/communitas-hq/partner-research/pkg/anthropic"
)

var (
	introTone  string
	introModel string
)

var introCmd = &cobra.Command{
	Use:   "intro <subject-id>",
	Short: "Draft an introduction message from the subject's researched profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		subjectID := args[0]

		if err := cfg.Validate("intro"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		modelName := introModel
		if modelName == "" {
			modelName = cfg.Anthropic.Model
		}

		drafter := intro.NewDrafter(st, anthropicpkg.NewClient(cfg.Anthropic.Key))
		draft, err := drafter.DraftIntro(ctx, subjectID, intro.Options{
			Model:     modelName,
			MaxTokens: cfg.Anthropic.MaxTokens,
			Tone:      introTone,
		})
		if err != nil {
			return err
		}

		fmt.Println(draft.Message)
		return nil
	},
}

func init() {
	introCmd.Flags().StringVar(&introTone, "tone", "", "tone steer for the draft, e.g. formal or casual")
	introCmd.Flags().StringVar(&introModel, "model", "", "model override (default from config)")
	rootCmd.AddCommand(introCmd)
}
