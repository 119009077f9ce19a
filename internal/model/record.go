package model

import (
	"fmt"
	"time"
)

// SourceName identifies one external research source.
type SourceName string

const (
	SourceProfileScrape   SourceName = "profile-scrape"
	SourceAnswerPrimary   SourceName = "search-answer-primary"
	SourceAnswerSecondary SourceName = "search-answer-secondary"
	SourceEncycPerson     SourceName = "encyclopedia-person"
	SourceEncycOrg        SourceName = "encyclopedia-organization"
	SourceSocialSearch    SourceName = "social-search"
)

// AllSources lists every known source in default precedence order.
var AllSources = []SourceName{
	SourceProfileScrape,
	SourceAnswerPrimary,
	SourceEncycPerson,
	SourceEncycOrg,
	SourceAnswerSecondary,
	SourceSocialSearch,
}

// ErrorKind classifies adapter failures into a small fixed taxonomy.
type ErrorKind string

const (
	ErrKindAuthFailed    ErrorKind = "AUTH_FAILED"
	ErrKindRateLimited   ErrorKind = "RATE_LIMITED"
	ErrKindNotFound      ErrorKind = "NOT_FOUND"
	ErrKindTimeout       ErrorKind = "TIMEOUT"
	ErrKindUpstreamError ErrorKind = "UPSTREAM_ERROR"
	ErrKindInvalidInput  ErrorKind = "INVALID_INPUT"
)

// ResearchRecord is one immutable result from one source for one subject.
// Records accumulate across retriggers; the aggregator always uses the most
// recent successful one per source.
type ResearchRecord struct {
	ID         string     `json:"id"`
	SubjectID  string     `json:"subject_id"`
	Source     SourceName `json:"source"`
	Success    bool       `json:"success"`
	Payload    *Payload   `json:"payload,omitempty"`
	Error      string     `json:"error,omitempty"`
	ErrorKind  ErrorKind  `json:"error_kind,omitempty"`
	CapturedAt time.Time  `json:"captured_at"`
}

// Payload is a tagged union keyed by the record's Source. Exactly one member
// is non-nil on a successful record.
type Payload struct {
	Profile      *ProfilePayload      `json:"profile,omitempty"`
	Answer       *AnswerPayload       `json:"answer,omitempty"`
	Encyclopedia *EncyclopediaPayload `json:"encyclopedia,omitempty"`
	Social       *SocialPayload       `json:"social,omitempty"`
}

// Validate checks that the payload shape matches the source tag.
func (p *Payload) Validate(source SourceName) error {
	switch source {
	case SourceProfileScrape:
		if p.Profile == nil {
			return fmt.Errorf("payload: %s record missing profile payload", source)
		}
	case SourceAnswerPrimary, SourceAnswerSecondary:
		if p.Answer == nil {
			return fmt.Errorf("payload: %s record missing answer payload", source)
		}
	case SourceEncycPerson, SourceEncycOrg:
		if p.Encyclopedia == nil {
			return fmt.Errorf("payload: %s record missing encyclopedia payload", source)
		}
	case SourceSocialSearch:
		if p.Social == nil {
			return fmt.Errorf("payload: %s record missing social payload", source)
		}
	default:
		return fmt.Errorf("payload: unknown source %q", source)
	}
	return nil
}

// ProfilePayload is the structured result of scraping a professional profile.
type ProfilePayload struct {
	FullName     string   `json:"full_name,omitempty"`
	Headline     string   `json:"headline,omitempty"`
	Title        string   `json:"title,omitempty"`
	Organization string   `json:"organization,omitempty"`
	Location     string   `json:"location,omitempty"`
	About        string   `json:"about,omitempty"`
	Experience   []string `json:"experience,omitempty"`
}

// AnswerPayload is the result of a general-purpose search/answer query.
type AnswerPayload struct {
	Answer    string     `json:"answer,omitempty"`
	Citations []Citation `json:"citations,omitempty"`
	// Extracted identity hints, best-effort parsed from the answer text.
	Name         string `json:"name,omitempty"`
	Organization string `json:"organization,omitempty"`
	Title        string `json:"title,omitempty"`
}

// Citation is a supporting source referenced by an answer, optionally with
// crawled page content when citation crawling is enabled.
type Citation struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
}

// EncyclopediaPayload is the result of an encyclopedia summary lookup.
type EncyclopediaPayload struct {
	PageTitle   string `json:"page_title"`
	Description string `json:"description,omitempty"`
	Extract     string `json:"extract,omitempty"`
	PageURL     string `json:"page_url,omitempty"`
}

// SocialPayload holds social-profile search hits.
type SocialPayload struct {
	Profiles []SocialProfile `json:"profiles,omitempty"`
}

// SocialProfile is one social-network profile candidate.
type SocialProfile struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}
