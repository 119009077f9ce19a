package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/communitas-hq/partner-research/internal/model"
	"github.com/communitas-hq/partner-research/internal/resilience"
	"github.com/communitas-hq/partner-research/pkg/wikipedia"
)

// encyclopedia looks up an entity summary on the encyclopedia. The same
// adapter serves two sources: a person lookup keyed on the subject's name and
// an organization lookup keyed on their organization.
type encyclopedia struct {
	client wikipedia.Client
	source model.SourceName
}

// NewEncyclopediaPerson builds the adapter that looks up the subject by name.
func NewEncyclopediaPerson(client wikipedia.Client) Adapter {
	return &encyclopedia{client: client, source: model.SourceEncycPerson}
}

// NewEncyclopediaOrg builds the adapter that looks up the subject's
// organization.
func NewEncyclopediaOrg(client wikipedia.Client) Adapter {
	return &encyclopedia{client: client, source: model.SourceEncycOrg}
}

func (a *encyclopedia) Name() model.SourceName { return a.source }

func (a *encyclopedia) Applicable(hints Hints) bool {
	if a.source == model.SourceEncycOrg {
		return hints.Organization != ""
	}
	return hints.Name != ""
}

func (a *encyclopedia) Timeout() time.Duration { return 15 * time.Second }

func (a *encyclopedia) Fetch(ctx context.Context, hints Hints, _ Options) Result {
	title := hints.Name
	if a.source == model.SourceEncycOrg {
		title = hints.Organization
	}

	summary, err := resilience.DoVal(ctx, adapterRetry(a.source), func(ctx context.Context) (*wikipedia.Summary, error) {
		return a.client.Summary(ctx, title)
	})
	if err != nil {
		if errors.Is(err, wikipedia.ErrNotFound) {
			return failure(a.source, model.ErrKindNotFound, err.Error())
		}
		return failureFromErr(a.source, err)
	}

	// A disambiguation page means the title is too ambiguous to attribute to
	// this subject; treat it as no article rather than guess among entries.
	if summary.Disambiguation() {
		return failure(a.source, model.ErrKindNotFound, "title resolves to a disambiguation page")
	}

	return success(a.source, &model.Payload{Encyclopedia: &model.EncyclopediaPayload{
		PageTitle:   summary.Title,
		Description: summary.Description,
		Extract:     summary.Extract,
		PageURL:     summary.PageURL(),
	}})
}
