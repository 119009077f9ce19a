package adapter

import (
	"context"
	"strings"
	"time"

	"github.com/communitas-hq/partner-research/internal/model"
	"github.com/communitas-hq/partner-research/internal/resilience"
	"github.com/communitas-hq/partner-research/pkg/jina"
)

// maxSecondaryResults caps how many search hits feed the fallback answer.
const maxSecondaryResults = 5

// answerSecondary is the fallback answer source: a plain web search whose top
// snippets are stitched into an answer when the primary engine has nothing.
type answerSecondary struct {
	client jina.Client
}

// NewAnswerSecondary builds the secondary answer adapter.
func NewAnswerSecondary(client jina.Client) Adapter {
	return &answerSecondary{client: client}
}

func (a *answerSecondary) Name() model.SourceName { return model.SourceAnswerSecondary }

func (a *answerSecondary) Applicable(hints Hints) bool {
	return hints.Name != "" || hints.Organization != ""
}

func (a *answerSecondary) Timeout() time.Duration { return 20 * time.Second }

func (a *answerSecondary) Fetch(ctx context.Context, hints Hints, _ Options) Result {
	query := strings.TrimSpace(hints.Name + " " + hints.Organization)

	resp, err := resilience.DoVal(ctx, adapterRetry(a.Name()), func(ctx context.Context) (*jina.SearchResponse, error) {
		return a.client.Search(ctx, query)
	})
	if err != nil {
		return failureFromErr(a.Name(), err)
	}
	if len(resp.Data) == 0 {
		return failure(a.Name(), model.ErrKindNotFound, "no search results for subject")
	}

	payload := &model.AnswerPayload{
		Name:         hints.Name,
		Organization: hints.Organization,
	}

	var parts []string
	for i, hit := range resp.Data {
		if i >= maxSecondaryResults {
			break
		}
		snippet := hit.Description
		if snippet == "" {
			snippet = hit.Content
		}
		if snippet != "" {
			parts = append(parts, strings.TrimSpace(snippet))
		}
		payload.Citations = append(payload.Citations, model.Citation{
			URL:   hit.URL,
			Title: hit.Title,
		})
	}
	payload.Answer = strings.Join(parts, "\n\n")

	if payload.Answer == "" {
		return failure(a.Name(), model.ErrKindNotFound, "search results carried no usable snippets")
	}
	return success(a.Name(), &model.Payload{Answer: payload})
}
