package intro

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/communitas-hq/partner-research/internal/model"
	"github.com/communitas-hq/partner-research/internal/store"
	"github.com/communitas-hq/partner-research/pkg/anthropic"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// mockAnthropic implements anthropic.Client.
type mockAnthropic struct {
	mock.Mock
}

func (m *mockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

// fakeStore serves canned profile/record lookups.
type fakeStore struct {
	store.Store

	profile *model.AggregatedProfile
	records []model.ResearchRecord
}

func (f *fakeStore) GetAggregatedProfile(ctx context.Context, subjectID string) (*model.AggregatedProfile, error) {
	return f.profile, nil
}

func (f *fakeStore) ListRecords(ctx context.Context, subjectID string) ([]model.ResearchRecord, error) {
	return f.records, nil
}

func completedProfile() *model.AggregatedProfile {
	now := time.Now().UTC()
	return &model.AggregatedProfile{
		SubjectID:             "subj-1",
		CanonicalName:         "Ada Lovelace",
		CanonicalOrganization: "Analytical Engines Ltd",
		CanonicalTitle:        "Chief Mathematician",
		SummaryText:           "Pioneer of computing.",
		SourcesUsed:           []model.SourceName{model.SourceEncycPerson},
		Status:                model.StatusSuccess,
		CompletedAt:           &now,
		UpdatedAt:             now,
	}
}

func TestDraftIntro(t *testing.T) {
	st := &fakeStore{profile: completedProfile()}
	client := new(mockAnthropic)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-haiku-4-5-20251001" &&
			req.MaxTokens == 512 &&
			req.System != "" &&
			len(req.Messages) == 1
	})).Return(&anthropic.MessageResponse{
		Model:   "claude-haiku-4-5-20251001",
		Content: []anthropic.ContentBlock{{Type: "text", Text: "Hi Ada, welcome aboard!"}},
		Usage:   anthropic.TokenUsage{OutputTokens: 12},
	}, nil)

	d := NewDrafter(st, client)
	draft, err := d.DraftIntro(context.Background(), "subj-1", Options{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 512,
	})
	require.NoError(t, err)

	assert.Equal(t, "subj-1", draft.SubjectID)
	assert.Equal(t, "Hi Ada, welcome aboard!", draft.Message)
	assert.Contains(t, draft.Context, "Name: Ada Lovelace")
	assert.Contains(t, draft.Context, "Organization: Analytical Engines Ltd")
	assert.Equal(t, int64(12), draft.Tokens)
	client.AssertExpectations(t)
}

func TestDraftIntroPassesResearchContextInPrompt(t *testing.T) {
	st := &fakeStore{profile: completedProfile()}
	client := new(mockAnthropic)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return len(req.Messages) == 1 &&
			req.Messages[0].Role == "user" &&
			strings.Contains(req.Messages[0].Content, "Pioneer of computing.")
	})).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: "Hello!"}},
	}, nil)

	d := NewDrafter(st, client)
	_, err := d.DraftIntro(context.Background(), "subj-1", Options{})
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestDraftIntroToneSteersPrompt(t *testing.T) {
	st := &fakeStore{profile: completedProfile()}
	client := new(mockAnthropic)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return strings.Contains(req.Messages[0].Content, "Tone: formal.")
	})).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: "Dear Ms Lovelace,"}},
	}, nil)

	d := NewDrafter(st, client)
	_, err := d.DraftIntro(context.Background(), "subj-1", Options{Tone: "formal"})
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestDraftIntroNoProfile(t *testing.T) {
	d := NewDrafter(&fakeStore{}, new(mockAnthropic))

	_, err := d.DraftIntro(context.Background(), "subj-1", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run research first")
}

func TestDraftIntroResearchStillRunning(t *testing.T) {
	profile := completedProfile()
	profile.Status = model.StatusInProgress
	d := NewDrafter(&fakeStore{profile: profile}, new(mockAnthropic))

	_, err := d.DraftIntro(context.Background(), "subj-1", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IN_PROGRESS")
}

func TestDraftIntroEmptyContext(t *testing.T) {
	// A FAILED profile with no canonical fields renders an empty context.
	profile := &model.AggregatedProfile{SubjectID: "subj-1", Status: model.StatusFailed}
	d := NewDrafter(&fakeStore{profile: profile}, new(mockAnthropic))

	_, err := d.DraftIntro(context.Background(), "subj-1", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no usable context")
}

func TestDraftIntroEmptyModelOutput(t *testing.T) {
	st := &fakeStore{profile: completedProfile()}
	client := new(mockAnthropic)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: "   "}},
	}, nil)

	d := NewDrafter(st, client)
	_, err := d.DraftIntro(context.Background(), "subj-1", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty draft")
}

