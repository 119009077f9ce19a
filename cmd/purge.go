package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var purgeYes bool

var purgeCmd = &cobra.Command{
	Use:   "purge <subject-id>",
	Short: "Delete a subject and all research derived from it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		subjectID := args[0]

		if !purgeYes {
			return eris.New("purge is irreversible; re-run with --yes to confirm")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Purge(ctx, subjectID); err != nil {
			return eris.Wrapf(err, "purge subject %s", subjectID)
		}

		fmt.Printf("purged subject %s\n", subjectID)
		return nil
	},
}

func init() {
	purgeCmd.Flags().BoolVar(&purgeYes, "yes", false, "confirm deletion")
	rootCmd.AddCommand(purgeCmd)
}
