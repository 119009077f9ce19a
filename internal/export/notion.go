// Package export moves aggregated profiles out of the store: into the Notion
// partner directory and into XLSX workbooks for offline review.
package export

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/communitas-hq/partner-research/internal/model"
	"github.com/communitas-hq/partner-research/internal/store"
	"github.com/communitas-hq/partner-research/pkg/notion"
)

// Directory property names in the Notion partner-directory database.
const (
	propName       = "Name"
	propSubjectID  = "Subject ID"
	propOrg        = "Organization"
	propTitle      = "Title"
	propSummary    = "Summary"
	propStatus     = "Status"
	propScore      = "Quality Score"
	propSources    = "Sources"
	propResearched = "Last Researched"
)

// Notion caps rich_text blocks at 2000 characters.
const maxRichTextLen = 2000

// PublishResult summarizes one directory sync.
type PublishResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// Publisher upserts aggregated profiles into the partner-directory database,
// keyed by the Subject ID property.
type Publisher struct {
	store  store.Store
	client notion.Client
	dbID   string
}

// NewPublisher builds a publisher for the given directory database.
func NewPublisher(st store.Store, client notion.Client, dbID string) *Publisher {
	return &Publisher{store: st, client: client, dbID: dbID}
}

// PublishAll syncs every completed profile into the directory. Profiles still
// PENDING or IN_PROGRESS are skipped; research may rewrite them at any moment.
func (p *Publisher) PublishAll(ctx context.Context) (*PublishResult, error) {
	profiles, err := p.store.ListProfiles(ctx, store.ProfileFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "export: list profiles")
	}

	result := &PublishResult{}
	for _, profile := range profiles {
		switch profile.Status {
		case model.StatusSuccess, model.StatusFailed:
		default:
			result.Skipped++
			continue
		}

		created, err := p.PublishOne(ctx, &profile)
		if err != nil {
			return result, err
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}

	zap.L().Info("published profiles to partner directory",
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

// PublishOne upserts a single profile and reports whether a page was created.
func (p *Publisher) PublishOne(ctx context.Context, profile *model.AggregatedProfile) (bool, error) {
	pageID, err := p.findPage(ctx, profile.SubjectID)
	if err != nil {
		return false, err
	}

	props := directoryProperties(profile)

	if pageID == "" {
		_, err := p.client.CreatePage(ctx, &notionapi.PageCreateRequest{
			Parent: notionapi.Parent{
				Type:       notionapi.ParentTypeDatabaseID,
				DatabaseID: notionapi.DatabaseID(p.dbID),
			},
			Properties: props,
		})
		if err != nil {
			return false, eris.Wrapf(err, "export: create directory page for %s", profile.SubjectID)
		}
		return true, nil
	}

	_, err = p.client.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{Properties: props})
	if err != nil {
		return false, eris.Wrapf(err, "export: update directory page for %s", profile.SubjectID)
	}
	return false, nil
}

// findPage looks up the directory page holding the subject, if any.
func (p *Publisher) findPage(ctx context.Context, subjectID string) (string, error) {
	resp, err := p.client.QueryDatabase(ctx, p.dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: propSubjectID,
			RichText: &notionapi.TextFilterCondition{
				Equals: subjectID,
			},
		},
		PageSize: 1,
	})
	if err != nil {
		return "", eris.Wrapf(err, "export: find directory page for %s", subjectID)
	}
	if len(resp.Results) == 0 {
		return "", nil
	}
	return string(resp.Results[0].ID), nil
}

func directoryProperties(profile *model.AggregatedProfile) notionapi.Properties {
	name := profile.CanonicalName
	if name == "" {
		name = profile.SubjectID
	}

	sources := make([]string, len(profile.SourcesUsed))
	for i, s := range profile.SourcesUsed {
		sources[i] = string(s)
	}

	props := notionapi.Properties{
		propName: notionapi.TitleProperty{
			Title: richText(name),
		},
		propSubjectID: notionapi.RichTextProperty{
			RichText: richText(profile.SubjectID),
		},
		propStatus: notionapi.StatusProperty{
			Status: notionapi.Status{Name: string(profile.Status)},
		},
		propScore: notionapi.NumberProperty{
			Number: profile.QualityScore,
		},
	}

	if profile.CanonicalOrganization != "" {
		props[propOrg] = notionapi.RichTextProperty{RichText: richText(profile.CanonicalOrganization)}
	}
	if profile.CanonicalTitle != "" {
		props[propTitle] = notionapi.RichTextProperty{RichText: richText(profile.CanonicalTitle)}
	}
	if profile.SummaryText != "" {
		props[propSummary] = notionapi.RichTextProperty{RichText: richText(truncate(profile.SummaryText, maxRichTextLen))}
	}
	if len(sources) > 0 {
		props[propSources] = notionapi.RichTextProperty{RichText: richText(strings.Join(sources, ", "))}
	}
	if profile.CompletedAt != nil {
		completed := notionapi.Date(*profile.CompletedAt)
		props[propResearched] = notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &completed},
		}
	}

	return props
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{{
		Type: notionapi.ObjectTypeText,
		Text: &notionapi.Text{Content: s},
	}}
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
