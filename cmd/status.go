package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/communitas-hq/partner-research/internal/model"
)

// recordSummary is the per-record view printed by status; payloads stay in
// the store, only the outcome is shown.
type recordSummary struct {
	Source     model.SourceName `json:"source"`
	Success    bool             `json:"success"`
	ErrorKind  model.ErrorKind  `json:"error_kind,omitempty"`
	Error      string           `json:"error,omitempty"`
	CapturedAt string           `json:"captured_at"`
}

var statusCmd = &cobra.Command{
	Use:   "status <subject-id>",
	Short: "Show research status and per-source history for a subject",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		subjectID := args[0]

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		subject, err := st.GetSubject(ctx, subjectID)
		if err != nil {
			return eris.Wrap(err, "load subject")
		}
		if subject == nil {
			return eris.Errorf("unknown subject: %s", subjectID)
		}

		profile, err := st.GetAggregatedProfile(ctx, subjectID)
		if err != nil {
			return eris.Wrap(err, "load profile")
		}

		records, err := st.ListRecords(ctx, subjectID)
		if err != nil {
			return eris.Wrap(err, "list records")
		}

		summaries := make([]recordSummary, len(records))
		for i, rec := range records {
			summaries[i] = recordSummary{
				Source:     rec.Source,
				Success:    rec.Success,
				ErrorKind:  rec.ErrorKind,
				Error:      rec.Error,
				CapturedAt: rec.CapturedAt.UTC().Format("2006-01-02T15:04:05Z"),
			}
		}

		out := struct {
			Subject *model.Subject           `json:"subject"`
			Profile *model.AggregatedProfile `json:"profile,omitempty"`
			Records []recordSummary          `json:"records"`
		}{subject, profile, summaries}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
