// Package aggregate reconciles the per-source research records for a subject
// into the single aggregated profile the rest of the system reads. The
// reconciliation is pure: given the same records it always produces the same
// profile, so a profile can be rebuilt from stored records at any time.
package aggregate

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/communitas-hq/partner-research/internal/model"
)

// Reconciler merges research records into an aggregated profile using a
// per-field source waterfall.
type Reconciler struct {
	priority []model.SourceName
}

// NewReconciler creates a reconciler. An empty priority list uses the default
// source precedence.
func NewReconciler(priority []model.SourceName) *Reconciler {
	if len(priority) == 0 {
		priority = model.AllSources
	}
	return &Reconciler{priority: priority}
}

// fieldView is what one source contributes to the canonical fields.
type fieldView struct {
	name    string
	org     string
	title   string
	summary string
}

// Reconcile builds the aggregated profile for a subject from its research
// records. Records accumulate across runs; only the most recent successful
// record per source participates. Status is SUCCESS when at least one source
// contributed, FAILED otherwise.
func (r *Reconciler) Reconcile(subjectID string, records []model.ResearchRecord, now time.Time) *model.AggregatedProfile {
	latest := latestSuccessful(records)

	profile := &model.AggregatedProfile{
		SubjectID:       subjectID,
		FieldProvenance: make(map[model.ProfileField]model.SourceName),
		UpdatedAt:       now,
	}

	if len(latest) == 0 {
		profile.Status = model.StatusFailed
		return profile
	}

	views := make(map[model.SourceName]fieldView, len(latest))
	for source, rec := range latest {
		views[source] = extractFields(source, rec.Payload)
	}

	// Waterfall per canonical field: walk the precedence order and take the
	// first non-empty value, recording where it came from.
	for _, source := range r.priority {
		v, ok := views[source]
		if !ok {
			continue
		}
		if profile.CanonicalName == "" && v.name != "" {
			profile.CanonicalName = normalizeCasing(v.name)
			profile.FieldProvenance[model.FieldName] = source
		}
		if profile.CanonicalOrganization == "" && v.org != "" {
			profile.CanonicalOrganization = normalizeCasing(v.org)
			profile.FieldProvenance[model.FieldOrganization] = source
		}
		if profile.CanonicalTitle == "" && v.title != "" {
			profile.CanonicalTitle = v.title
			profile.FieldProvenance[model.FieldTitle] = source
		}
		if profile.SummaryText == "" && v.summary != "" {
			profile.SummaryText = v.summary
			profile.FieldProvenance[model.FieldSummary] = source
		}
	}

	// Every source with a usable record counts as used, even if a
	// higher-precedence source beat it to every field: its record still
	// corroborates the profile and feeds the AI context.
	for _, source := range r.priority {
		if _, ok := views[source]; ok {
			profile.SourcesUsed = append(profile.SourcesUsed, source)
		}
	}

	profile.Status = model.StatusSuccess
	completed := now
	profile.CompletedAt = &completed
	return profile
}

// latestSuccessful indexes the most recent successful record per source.
func latestSuccessful(records []model.ResearchRecord) map[model.SourceName]model.ResearchRecord {
	out := make(map[model.SourceName]model.ResearchRecord)
	for _, rec := range records {
		if !rec.Success || rec.Payload == nil {
			continue
		}
		prev, ok := out[rec.Source]
		if !ok || rec.CapturedAt.After(prev.CapturedAt) {
			out[rec.Source] = rec
		}
	}
	return out
}

// extractFields maps a source payload onto the canonical field view.
func extractFields(source model.SourceName, p *model.Payload) fieldView {
	switch source {
	case model.SourceProfileScrape:
		if p.Profile == nil {
			return fieldView{}
		}
		summary := p.Profile.About
		if summary == "" {
			summary = p.Profile.Headline
		}
		return fieldView{
			name:    p.Profile.FullName,
			org:     p.Profile.Organization,
			title:   p.Profile.Title,
			summary: summary,
		}
	case model.SourceAnswerPrimary, model.SourceAnswerSecondary:
		if p.Answer == nil {
			return fieldView{}
		}
		return fieldView{
			name:    p.Answer.Name,
			org:     p.Answer.Organization,
			title:   p.Answer.Title,
			summary: p.Answer.Answer,
		}
	case model.SourceEncycPerson:
		if p.Encyclopedia == nil {
			return fieldView{}
		}
		return fieldView{
			name:    p.Encyclopedia.PageTitle,
			summary: p.Encyclopedia.Extract,
		}
	case model.SourceEncycOrg:
		if p.Encyclopedia == nil {
			return fieldView{}
		}
		return fieldView{
			org:     p.Encyclopedia.PageTitle,
			summary: p.Encyclopedia.Extract,
		}
	case model.SourceSocialSearch:
		// Candidate profile URLs corroborate but never set canonical fields.
		return fieldView{}
	default:
		return fieldView{}
	}
}

var titleCaser = cases.Title(language.English)

// normalizeCasing fixes names that arrive shouting or whispering. Mixed-case
// values pass through untouched so "van der Berg" style names survive.
func normalizeCasing(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}

	hasUpper, hasLower := false, false
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		}
	}
	if hasUpper != hasLower {
		return titleCaser.String(strings.ToLower(s))
	}
	return s
}
