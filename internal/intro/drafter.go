// Package intro drafts the human-reviewed introduction message sent to a
// prospective partner after research completes.
package intro

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/communitas-hq/partner-research/internal/aggregate"
	"github.com/communitas-hq/partner-research/internal/model"
	"github.com/communitas-hq/partner-research/internal/store"
	"github.com/communitas-hq/partner-research/pkg/anthropic"
)

const defaultMaxTokens = 1024

const systemPrompt = `You draft short, warm introduction messages welcoming a new community partner.
You are given researched background on the person. Write 2-3 paragraphs in plain
text: greet them by name, acknowledge their role and organization, reference one
specific detail from the research, and close by inviting them to the onboarding
call. Do not invent facts that are not in the research context. Do not use
placeholders like [NAME]; if a fact is missing, write around it.`

// Options tunes a single draft.
type Options struct {
	Model     string
	MaxTokens int64

	// Tone is an optional free-text steer, e.g. "formal" or "casual".
	Tone string
}

// Draft is one generated introduction along with the evidence it drew on.
type Draft struct {
	SubjectID string `json:"subject_id"`
	Message   string `json:"message"`
	Context   string `json:"context"`
	Model     string `json:"model"`
	Tokens    int64  `json:"output_tokens"`
}

// Drafter turns an aggregated profile into an introduction message.
type Drafter struct {
	store  store.Store
	client anthropic.Client
}

// NewDrafter builds a drafter over the given store and Anthropic client.
func NewDrafter(st store.Store, client anthropic.Client) *Drafter {
	return &Drafter{store: st, client: client}
}

// DraftIntro loads the subject's profile and records, renders the research
// context, and asks the model for an introduction. The profile must have
// completed research; PENDING and IN_PROGRESS subjects are rejected.
func (d *Drafter) DraftIntro(ctx context.Context, subjectID string, opts Options) (*Draft, error) {
	profile, err := d.store.GetAggregatedProfile(ctx, subjectID)
	if err != nil {
		return nil, eris.Wrap(err, "intro: load profile")
	}
	if profile == nil {
		return nil, eris.Errorf("intro: no profile for subject %s; run research first", subjectID)
	}
	switch profile.Status {
	case model.StatusSuccess, model.StatusFailed:
	default:
		return nil, eris.Errorf("intro: research for subject %s is %s; wait for completion", subjectID, profile.Status)
	}

	records, err := d.store.ListRecords(ctx, subjectID)
	if err != nil {
		return nil, eris.Wrap(err, "intro: list records")
	}

	aiContext := aggregate.RenderAIContext(profile, records)
	if strings.TrimSpace(aiContext) == "" {
		return nil, eris.Errorf("intro: research for subject %s produced no usable context", subjectID)
	}

	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}

	prompt := "Research context:\n\n" + aiContext + "\n\nDraft the introduction message."
	if opts.Tone != "" {
		prompt += " Tone: " + opts.Tone + "."
	}

	resp, err := d.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     opts.Model,
		MaxTokens: opts.MaxTokens,
		System:    systemPrompt,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "intro: generate")
	}

	message := strings.TrimSpace(resp.Text())
	if message == "" {
		return nil, eris.New("intro: model returned an empty draft")
	}

	zap.L().Info("drafted introduction",
		zap.String("subject_id", subjectID),
		zap.String("model", resp.Model),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
	)

	return &Draft{
		SubjectID: subjectID,
		Message:   message,
		Context:   aiContext,
		Model:     resp.Model,
		Tokens:    resp.Usage.OutputTokens,
	}, nil
}
