package export

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/communitas-hq/partner-research/internal/model"
	"github.com/communitas-hq/partner-research/internal/store"
)

// XLSXOptions configures a workbook export.
type XLSXOptions struct {
	// Status restricts the export to one profile status; empty exports all.
	Status model.ProfileStatus

	// IncludeRecords adds a second sheet with the raw research records.
	IncludeRecords bool
}

var profileHeader = []string{
	"Subject ID", "Name", "Organization", "Title", "Status",
	"Quality Score", "Sources Used", "Completed At", "Summary",
}

var recordHeader = []string{
	"Subject ID", "Source", "Success", "Error Kind", "Error", "Captured At",
}

// WriteXLSX exports aggregated profiles (and optionally their records) into a
// workbook at path.
func WriteXLSX(ctx context.Context, st store.Store, path string, opts XLSXOptions) (int, error) {
	profiles, err := st.ListProfiles(ctx, store.ProfileFilter{Status: opts.Status})
	if err != nil {
		return 0, eris.Wrap(err, "export: list profiles")
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Profiles")
	if err != nil {
		return 0, eris.Wrap(err, "export: add profiles sheet")
	}

	addRow(sheet, profileHeader...)
	for _, p := range profiles {
		sources := make([]string, len(p.SourcesUsed))
		for i, s := range p.SourcesUsed {
			sources[i] = string(s)
		}
		addRow(sheet,
			p.SubjectID,
			p.CanonicalName,
			p.CanonicalOrganization,
			p.CanonicalTitle,
			string(p.Status),
			formatScore(p.QualityScore),
			strings.Join(sources, ", "),
			formatTime(p.CompletedAt),
			p.SummaryText,
		)
	}

	if opts.IncludeRecords {
		if err := addRecordsSheet(ctx, st, f, profiles); err != nil {
			return 0, err
		}
	}

	if err := f.Save(path); err != nil {
		return 0, eris.Wrapf(err, "export: save workbook %s", path)
	}

	zap.L().Info("exported profiles to workbook",
		zap.String("path", path),
		zap.Int("profiles", len(profiles)),
	)
	return len(profiles), nil
}

func addRecordsSheet(ctx context.Context, st store.Store, f *xlsx.File, profiles []model.AggregatedProfile) error {
	sheet, err := f.AddSheet("Records")
	if err != nil {
		return eris.Wrap(err, "export: add records sheet")
	}

	addRow(sheet, recordHeader...)
	for _, p := range profiles {
		records, err := st.ListRecords(ctx, p.SubjectID)
		if err != nil {
			return eris.Wrapf(err, "export: list records for %s", p.SubjectID)
		}
		for _, rec := range records {
			success := "no"
			if rec.Success {
				success = "yes"
			}
			addRow(sheet,
				rec.SubjectID,
				string(rec.Source),
				success,
				string(rec.ErrorKind),
				rec.Error,
				rec.CapturedAt.Format(time.RFC3339),
			)
		}
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, cells ...string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().Value = c
	}
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', 2, 64)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
