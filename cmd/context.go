package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/communitas-hq/partner-research/internal/aggregate"
)

var contextCmd = &cobra.Command{
	Use:   "context <subject-id>",
	Short: "Print the AI prompt context rendered from the subject's profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		subjectID := args[0]

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		profile, err := st.GetAggregatedProfile(ctx, subjectID)
		if err != nil {
			return eris.Wrap(err, "load profile")
		}
		if profile == nil {
			return eris.Errorf("no profile for subject %s; run research first", subjectID)
		}

		records, err := st.ListRecords(ctx, subjectID)
		if err != nil {
			return eris.Wrap(err, "list records")
		}

		fmt.Print(aggregate.RenderAIContext(profile, records))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(contextCmd)
}
