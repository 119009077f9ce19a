package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/communitas-hq/partner-research/internal/export"
	"github.com/communitas-hq/partner-research/internal/model"
)

var (
	exportOut     string
	exportStatus  string
	exportRecords bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export aggregated profiles to an XLSX workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := export.WriteXLSX(ctx, st, exportOut, export.XLSXOptions{
			Status:         model.ProfileStatus(exportStatus),
			IncludeRecords: exportRecords,
		})
		if err != nil {
			return err
		}

		fmt.Printf("wrote %d profiles to %s\n", n, exportOut)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "profiles.xlsx", "output workbook path")
	exportCmd.Flags().StringVar(&exportStatus, "status", "", "only export profiles with this status")
	exportCmd.Flags().BoolVar(&exportRecords, "include-records", false, "add a sheet with raw research records")
	rootCmd.AddCommand(exportCmd)
}
