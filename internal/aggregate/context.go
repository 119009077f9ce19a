package aggregate

import (
	"fmt"
	"strings"

	"github.com/communitas-hq/partner-research/internal/model"
)

// maxContextChars bounds the rendered AI context so it stays a small,
// predictable slice of an LLM prompt.
const maxContextChars = 2000

// RenderAIContext renders the aggregated profile (and the freshest supporting
// records) as a compact narrative block for prompt injection. The output is
// plain text, newest canonical facts first, truncated at a rune boundary.
func RenderAIContext(profile *model.AggregatedProfile, records []model.ResearchRecord) string {
	if profile == nil {
		return ""
	}

	var b strings.Builder

	if profile.CanonicalName != "" {
		fmt.Fprintf(&b, "Name: %s\n", profile.CanonicalName)
	}
	if profile.CanonicalTitle != "" {
		fmt.Fprintf(&b, "Title: %s\n", profile.CanonicalTitle)
	}
	if profile.CanonicalOrganization != "" {
		fmt.Fprintf(&b, "Organization: %s\n", profile.CanonicalOrganization)
	}
	if len(profile.SourcesUsed) > 0 {
		names := make([]string, len(profile.SourcesUsed))
		for i, s := range profile.SourcesUsed {
			names[i] = string(s)
		}
		fmt.Fprintf(&b, "Researched via: %s\n", strings.Join(names, ", "))
	}

	if profile.SummaryText != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(profile.SummaryText))
		b.WriteString("\n")
	}

	appendSupporting(&b, records)

	return truncateRunes(b.String(), maxContextChars)
}

// appendSupporting adds short extracts from successful records whose source
// did not win the summary, so the prompt sees corroborating angles.
func appendSupporting(b *strings.Builder, records []model.ResearchRecord) {
	for source, rec := range latestSuccessful(records) {
		snippet := supportingSnippet(source, rec.Payload)
		if snippet == "" {
			continue
		}
		fmt.Fprintf(b, "\n[%s] %s\n", source, truncateRunes(strings.TrimSpace(snippet), 300))
	}
}

func supportingSnippet(source model.SourceName, p *model.Payload) string {
	switch source {
	case model.SourceEncycPerson, model.SourceEncycOrg:
		if p.Encyclopedia != nil {
			return p.Encyclopedia.Extract
		}
	case model.SourceSocialSearch:
		if p.Social != nil && len(p.Social.Profiles) > 0 {
			var parts []string
			for _, sp := range p.Social.Profiles {
				parts = append(parts, sp.URL)
			}
			return "candidate profiles: " + strings.Join(parts, " ")
		}
	case model.SourceProfileScrape:
		if p.Profile != nil && p.Profile.Headline != "" {
			return p.Profile.Headline
		}
	}
	return ""
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
