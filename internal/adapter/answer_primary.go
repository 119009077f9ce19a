package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/communitas-hq/partner-research/internal/model"
	"github.com/communitas-hq/partner-research/internal/resilience"
	"github.com/communitas-hq/partner-research/pkg/jina"
	"github.com/communitas-hq/partner-research/pkg/perplexity"
)

// maxCitationCrawls bounds how many citation pages get fetched per answer
// when citation crawling is enabled.
const maxCitationCrawls = 3

const answerSystemPrompt = `You are a research assistant profiling a prospective community partner.
Answer with a concise factual brief about the person. Begin the brief with
exactly these three lines, leaving a line blank when the fact is unknown:
Name: <canonical full name>
Organization: <current primary organization>
Title: <current role or title>
Then write 2-4 short paragraphs covering their background, current work, and
public community involvement. Only state facts you can support with sources.`

// answerPrimary queries the primary search/answer engine for a researched
// brief about the subject, with cited web sources.
type answerPrimary struct {
	client  perplexity.Client
	crawler jina.Client
}

// NewAnswerPrimary builds the primary answer adapter. crawler may be nil, in
// which case citation crawling is unavailable even when requested.
func NewAnswerPrimary(client perplexity.Client, crawler jina.Client) Adapter {
	return &answerPrimary{client: client, crawler: crawler}
}

func (a *answerPrimary) Name() model.SourceName { return model.SourceAnswerPrimary }

func (a *answerPrimary) Applicable(hints Hints) bool { return hints.Name != "" }

func (a *answerPrimary) Timeout() time.Duration { return 30 * time.Second }

func (a *answerPrimary) Fetch(ctx context.Context, hints Hints, opts Options) Result {
	query := buildSubjectQuery(hints)

	resp, err := resilience.DoVal(ctx, adapterRetry(a.Name()), func(ctx context.Context) (*perplexity.ChatCompletionResponse, error) {
		return a.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
			Messages: []perplexity.Message{
				{Role: "system", Content: answerSystemPrompt},
				{Role: "user", Content: query},
			},
			SearchRecencyFilter: "year",
		})
	})
	if err != nil {
		return failureFromErr(a.Name(), err)
	}

	answer := resp.Answer()
	if strings.TrimSpace(answer) == "" {
		return failure(a.Name(), model.ErrKindNotFound, "answer engine returned no content")
	}

	payload := &model.AnswerPayload{Answer: answer}
	payload.Name, payload.Organization, payload.Title = parseIdentityLines(answer)

	for _, u := range resp.Citations {
		payload.Citations = append(payload.Citations, model.Citation{URL: u})
	}

	if opts.CrawlCitations && a.crawler != nil {
		a.crawlCitations(ctx, payload.Citations)
	}

	return success(a.Name(), &model.Payload{Answer: payload})
}

// crawlCitations fetches page content for the first few citations in place.
// Crawl failures are tolerated; the citation simply keeps an empty body.
func (a *answerPrimary) crawlCitations(ctx context.Context, citations []model.Citation) {
	for i := range citations {
		if i >= maxCitationCrawls {
			return
		}
		resp, err := a.crawler.Read(ctx, citations[i].URL)
		if err != nil {
			zap.L().Debug("citation crawl failed",
				zap.String("url", citations[i].URL),
				zap.Error(err),
			)
			continue
		}
		citations[i].Title = resp.Data.Title
		citations[i].Content = resp.Data.Content
	}
}

// buildSubjectQuery composes the research question from whatever hints exist.
func buildSubjectQuery(hints Hints) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Who is %s", hints.Name)
	if hints.Organization != "" {
		fmt.Fprintf(&b, " of %s", hints.Organization)
	}
	b.WriteString("?")
	if hints.PartnerCategory != "" {
		fmt.Fprintf(&b, " They are being considered as a %s partner for a startup community.",
			strings.ReplaceAll(string(hints.PartnerCategory), "_", " "))
	}
	return b.String()
}

// parseIdentityLines extracts the Name/Organization/Title header lines the
// system prompt asks for. Missing or malformed lines yield empty strings.
func parseIdentityLines(answer string) (name, org, title string) {
	for _, line := range strings.Split(answer, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Name:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "Name:"))
		case strings.HasPrefix(line, "Organization:"):
			org = strings.TrimSpace(strings.TrimPrefix(line, "Organization:"))
		case strings.HasPrefix(line, "Title:"):
			title = strings.TrimSpace(strings.TrimPrefix(line, "Title:"))
		}
		if name != "" && org != "" && title != "" {
			return
		}
	}
	return
}
