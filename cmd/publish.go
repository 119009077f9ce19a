package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/communitas-hq/partner-research/internal/export"
	"github.com/communitas-hq/partner-research/pkg/notion"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish completed profiles to the Notion partner directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("publish"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		publisher := export.NewPublisher(st, notion.NewClient(cfg.Notion.Token), cfg.Notion.DirectoryDB)
		result, err := publisher.PublishAll(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("directory sync: %d created, %d updated, %d skipped\n",
			result.Created, result.Updated, result.Skipped)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(publishCmd)
}
