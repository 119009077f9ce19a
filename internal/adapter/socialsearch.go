package adapter

import (
	"context"
	"time"

	"github.com/communitas-hq/partner-research/internal/model"
	"github.com/communitas-hq/partner-research/internal/resilience"
	"github.com/communitas-hq/partner-research/pkg/jina"
)

// defaultSocialSite is the professional network the social search is scoped
// to when no site is configured.
const defaultSocialSite = "linkedin.com"

// maxSocialProfiles caps how many candidate profiles one search may yield.
const maxSocialProfiles = 5

// socialSearch finds candidate professional-network profiles for subjects who
// arrive without a profile URL. It never scrapes; it only surfaces candidates
// an operator (or the scrape source on a later run) can follow up on.
type socialSearch struct {
	client jina.Client
	site   string
}

// NewSocialSearch builds the social-search adapter. site may be empty to use
// the default professional network.
func NewSocialSearch(client jina.Client, site string) Adapter {
	if site == "" {
		site = defaultSocialSite
	}
	return &socialSearch{client: client, site: site}
}

func (a *socialSearch) Name() model.SourceName { return model.SourceSocialSearch }

// Applicable only when there is no profile URL: with one, the scrape source
// already covers this ground with far better data.
func (a *socialSearch) Applicable(hints Hints) bool {
	return hints.Name != "" && hints.ProfileURL == ""
}

func (a *socialSearch) Timeout() time.Duration { return 20 * time.Second }

func (a *socialSearch) Fetch(ctx context.Context, hints Hints, _ Options) Result {
	query := hints.Name
	if hints.Organization != "" {
		query += " " + hints.Organization
	}

	resp, err := resilience.DoVal(ctx, adapterRetry(a.Name()), func(ctx context.Context) (*jina.SearchResponse, error) {
		return a.client.Search(ctx, query, jina.WithSiteFilter(a.site))
	})
	if err != nil {
		return failureFromErr(a.Name(), err)
	}
	if len(resp.Data) == 0 {
		return failure(a.Name(), model.ErrKindNotFound, "no candidate profiles found")
	}

	payload := &model.SocialPayload{}
	for i, hit := range resp.Data {
		if i >= maxSocialProfiles {
			break
		}
		snippet := hit.Description
		if snippet == "" {
			snippet = hit.Content
		}
		payload.Profiles = append(payload.Profiles, model.SocialProfile{
			URL:     hit.URL,
			Title:   hit.Title,
			Snippet: snippet,
		})
	}

	return success(a.Name(), &model.Payload{Social: payload})
}
