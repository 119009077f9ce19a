// Package model defines the core domain types shared across the research
// pipeline: subjects, per-source research records, aggregated profiles, and
// scraping credentials.
package model

import "time"

// PartnerCategory classifies the kind of partner being onboarded.
type PartnerCategory string

const (
	CategoryInvestor         PartnerCategory = "investor"
	CategoryCorporatePartner PartnerCategory = "corporate_partner"
	CategoryCommunityBuilder PartnerCategory = "community_builder"
)

// Subject is the person (or organization representative) being researched.
// It is created by the onboarding flow before research starts; name and
// organization may be filled in later as conversation or research reveals them.
type Subject struct {
	ID              string          `json:"id"`
	Name            string          `json:"name,omitempty"`
	Organization    string          `json:"organization,omitempty"`
	ProfileURL      string          `json:"profile_url,omitempty"`
	PartnerCategory PartnerCategory `json:"partner_category,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
