// Package proscrape provides a client for the professional-profile scraping
// gateway. The gateway logs into the professional network with a rotating
// credential supplied per request and returns the structured profile behind a
// public profile URL.
package proscrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://scrape-gw.internal.communitas.org/v1"

// Credential carries the login pair the gateway should use for one call.
type Credential struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

// Client defines the scraping gateway operations.
type Client interface {
	// ScrapeProfile fetches the structured profile at profileURL using the
	// given credential.
	ScrapeProfile(ctx context.Context, profileURL string, cred Credential) (*Profile, error)
}

// Profile is the structured result of a profile scrape.
type Profile struct {
	FullName     string   `json:"full_name"`
	Headline     string   `json:"headline,omitempty"`
	Title        string   `json:"title,omitempty"`
	Organization string   `json:"organization,omitempty"`
	Location     string   `json:"location,omitempty"`
	About        string   `json:"about,omitempty"`
	Experience   []string `json:"experience,omitempty"`
}

// AuthError indicates the credential was rejected or the account is flagged.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("proscrape: auth rejected (HTTP %d): %s", e.StatusCode, e.Body)
}

// RateLimitError indicates the credential or gateway hit a rate limit.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("proscrape: rate limited (retry after %s)", e.RetryAfter)
}

// NotFoundError indicates the profile URL resolves to no profile.
type NotFoundError struct {
	ProfileURL string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("proscrape: profile not found: %s", e.ProfileURL)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default gateway base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a scraping gateway client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type scrapeRequest struct {
	ProfileURL string     `json:"profile_url"`
	Credential Credential `json:"credential"`
}

type scrapeResponse struct {
	Success bool    `json:"success"`
	Profile Profile `json:"profile"`
	Error   string  `json:"error,omitempty"`
}

func (c *httpClient) ScrapeProfile(ctx context.Context, profileURL string, cred Credential) (*Profile, error) {
	if profileURL == "" {
		return nil, eris.New("proscrape: empty profile URL")
	}

	body, err := json.Marshal(scrapeRequest{ProfileURL: profileURL, Credential: cred})
	if err != nil {
		return nil, eris.Wrap(err, "proscrape: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/scrape", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "proscrape: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "proscrape: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "proscrape: read response")
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, &AuthError{StatusCode: resp.StatusCode, Body: string(respBody)}
	case http.StatusTooManyRequests:
		return nil, &RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case http.StatusNotFound:
		return nil, &NotFoundError{ProfileURL: profileURL}
	default:
		return nil, eris.Errorf("proscrape: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result scrapeResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "proscrape: unmarshal response")
	}
	if !result.Success {
		return nil, eris.Errorf("proscrape: gateway error: %s", result.Error)
	}
	return &result.Profile, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	var secs int
	if _, err := fmt.Sscanf(header, "%d", &secs); err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
