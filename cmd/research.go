package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/communitas-hq/partner-research/internal/adapter"
	"github.com/communitas-hq/partner-research/internal/model"
	"github.com/communitas-hq/partner-research/internal/research"
)

var (
	researchName     string
	researchOrg      string
	researchURL      string
	researchCategory string
	researchWait     bool
	researchCrawl    bool
)

var researchCmd = &cobra.Command{
	Use:   "research <subject-id>",
	Short: "Run the research pipeline for a subject",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		subjectID := args[0]

		if err := cfg.Validate("research"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		subject, err := upsertSubject(cmd, st, subjectID)
		if err != nil {
			return err
		}

		orch, err := buildOrchestrator(st)
		if err != nil {
			return err
		}

		hints := adapter.Hints{
			Name:            subject.Name,
			Organization:    subject.Organization,
			ProfileURL:      subject.ProfileURL,
			PartnerCategory: subject.PartnerCategory,
		}
		opts := adapter.Options{CrawlCitations: researchCrawl || cfg.Research.CrawlCitations}

		if !researchWait {
			runner := research.NewRunner(orch, cfg.Research.Runner())
			if !runner.Submit(subjectID, hints, opts) {
				return eris.New("research run was not accepted; runner disabled or queue full")
			}
			fmt.Fprintf(os.Stderr, "research accepted for %s; poll with: partner-research status %s\n", subjectID, subjectID)
			// The process stays alive until queued runs finish; results land in
			// the store rather than on stdout.
			runner.Close()
			return nil
		}

		result, err := orch.RunPipeline(ctx, subjectID, hints, opts)
		if err != nil {
			return eris.Wrap(err, "research run")
		}

		zap.L().Info("research complete",
			zap.String("subject_id", subjectID),
			zap.String("status", string(result.Status)),
			zap.Float64("quality_score", result.QualityScore),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

// upsertSubject records the subject with any identity flags passed on the
// command line, preserving fields already stored when flags are omitted.
func upsertSubject(cmd *cobra.Command, st subjectStore, subjectID string) (*model.Subject, error) {
	ctx := cmd.Context()

	subject, err := st.GetSubject(ctx, subjectID)
	if err != nil {
		return nil, eris.Wrap(err, "load subject")
	}
	now := time.Now().UTC()
	if subject == nil {
		subject = &model.Subject{ID: subjectID, CreatedAt: now}
	}

	if cmd.Flags().Changed("name") {
		subject.Name = researchName
	}
	if cmd.Flags().Changed("organization") {
		subject.Organization = researchOrg
	}
	if cmd.Flags().Changed("profile-url") {
		subject.ProfileURL = researchURL
	}
	if cmd.Flags().Changed("category") {
		cat, err := parseCategory(researchCategory)
		if err != nil {
			return nil, err
		}
		subject.PartnerCategory = cat
	}
	subject.UpdatedAt = now

	if err := st.UpsertSubject(ctx, *subject); err != nil {
		return nil, eris.Wrap(err, "save subject")
	}
	return subject, nil
}

// subjectStore is the slice of store.Store the subject upsert needs.
type subjectStore interface {
	GetSubject(ctx context.Context, subjectID string) (*model.Subject, error)
	UpsertSubject(ctx context.Context, subject model.Subject) error
}

func parseCategory(s string) (model.PartnerCategory, error) {
	switch cat := model.PartnerCategory(s); cat {
	case model.CategoryInvestor, model.CategoryCorporatePartner, model.CategoryCommunityBuilder:
		return cat, nil
	default:
		return "", eris.Errorf("unknown partner category: %s (want investor, corporate_partner, or community_builder)", s)
	}
}

func init() {
	researchCmd.Flags().StringVar(&researchName, "name", "", "subject's name")
	researchCmd.Flags().StringVar(&researchOrg, "organization", "", "subject's organization")
	researchCmd.Flags().StringVar(&researchURL, "profile-url", "", "professional profile URL")
	researchCmd.Flags().StringVar(&researchCategory, "category", "", "partner category (investor, corporate_partner, community_builder)")
	researchCmd.Flags().BoolVar(&researchWait, "wait", true, "wait for the run and print the result")
	researchCmd.Flags().BoolVar(&researchCrawl, "crawl-citations", false, "fetch page content behind answer citations")
	rootCmd.AddCommand(researchCmd)
}
