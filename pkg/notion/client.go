// Package notion exposes the three Notion API calls the partner-directory
// publisher needs: look a page up by property, create it, or rewrite it.
package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// directoryRPS is Notion's documented request ceiling. Every call queues
// behind it so a bulk publish cannot trip the API.
const directoryRPS = 3

// Client is the slice of the Notion API the directory publisher uses.
type Client interface {
	QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error)
}

type client struct {
	api      *notionapi.Client
	throttle *rate.Limiter
}

// NewClient builds a throttled directory client from an integration token.
func NewClient(token string) Client {
	return &client{
		api:      notionapi.NewClient(notionapi.Token(token)),
		throttle: rate.NewLimiter(directoryRPS, 1),
	}
}

func (c *client) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "notion: throttle")
	}
	resp, err := c.api.Database.Query(ctx, notionapi.DatabaseID(dbID), req)
	if err != nil {
		return nil, eris.Wrapf(err, "notion: query database %s", dbID)
	}
	return resp, nil
}

func (c *client) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "notion: throttle")
	}
	page, err := c.api.Page.Create(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "notion: create page")
	}
	return page, nil
}

func (c *client) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "notion: throttle")
	}
	page, err := c.api.Page.Update(ctx, notionapi.PageID(pageID), req)
	if err != nil {
		return nil, eris.Wrapf(err, "notion: update page %s", pageID)
	}
	return page, nil
}
