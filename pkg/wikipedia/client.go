// Package wikipedia provides a client for the Wikipedia REST summary API,
// used for encyclopedia lookups of people and organizations.
package wikipedia

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://en.wikipedia.org/api/rest_v1"

// ErrNotFound is returned when no page exists for the requested title.
var ErrNotFound = eris.New("wikipedia: page not found")

// Client performs summary lookups against the Wikipedia REST API.
type Client interface {
	// Summary fetches the lead summary for a page title.
	Summary(ctx context.Context, title string) (*Summary, error)
}

// Summary is the parsed page summary response.
type Summary struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Extract     string `json:"extract"`
	Type        string `json:"type"`
	ContentURLs struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

// PageURL returns the canonical desktop URL of the page.
func (s *Summary) PageURL() string {
	return s.ContentURLs.Desktop.Page
}

// Disambiguation reports whether the page is a disambiguation page rather
// than an article about a single entity.
func (s *Summary) Disambiguation() bool {
	return s.Type == "disambiguation"
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithUserAgent sets the User-Agent header; Wikimedia asks API consumers to
// identify themselves.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		c.userAgent = ua
	}
}

type httpClient struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// NewClient creates a Wikipedia REST client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:   defaultBaseURL,
		userAgent: "partner-research/1.0",
		http: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Summary(ctx context.Context, title string) (*Summary, error) {
	title = strings.ReplaceAll(strings.TrimSpace(title), " ", "_")
	if title == "" {
		return nil, eris.New("wikipedia: empty title")
	}

	reqURL := fmt.Sprintf("%s/page/summary/%s", c.baseURL, url.PathEscape(title))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "wikipedia: create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "wikipedia: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "wikipedia: read response")
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("wikipedia: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result Summary
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "wikipedia: unmarshal response")
	}
	return &result, nil
}
