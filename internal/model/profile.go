package model

import "time"

// ProfileStatus tracks the lifecycle of an aggregated profile.
type ProfileStatus string

const (
	StatusPending    ProfileStatus = "PENDING"
	StatusInProgress ProfileStatus = "IN_PROGRESS"
	StatusSuccess    ProfileStatus = "SUCCESS"
	StatusFailed     ProfileStatus = "FAILED"
)

// ProfileField names a canonical field of the aggregated profile, used as the
// key of the provenance map.
type ProfileField string

const (
	FieldName         ProfileField = "name"
	FieldOrganization ProfileField = "organization"
	FieldTitle        ProfileField = "title"
	FieldSummary      ProfileField = "summary"
)

// AggregatedProfile is the single reconciled research view for a subject.
// At most one row exists per subject; it is replaced in full on every
// research completion and is always recomputable from the research records.
type AggregatedProfile struct {
	SubjectID             string                      `json:"subject_id"`
	CanonicalName         string                      `json:"canonical_name,omitempty"`
	CanonicalOrganization string                      `json:"canonical_organization,omitempty"`
	CanonicalTitle        string                      `json:"canonical_title,omitempty"`
	SummaryText           string                      `json:"summary_text,omitempty"`
	SourcesUsed           []SourceName                `json:"sources_used,omitempty"`
	FieldProvenance       map[ProfileField]SourceName `json:"field_provenance,omitempty"`
	QualityScore          float64                     `json:"quality_score"`
	Status                ProfileStatus               `json:"status"`
	CompletedAt           *time.Time                  `json:"completed_at,omitempty"`
	UpdatedAt             time.Time                   `json:"updated_at"`
}

// UsedSource reports whether the profile drew on the given source.
func (p *AggregatedProfile) UsedSource(s SourceName) bool {
	for _, u := range p.SourcesUsed {
		if u == s {
			return true
		}
	}
	return false
}
