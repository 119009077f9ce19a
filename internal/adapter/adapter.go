// Package adapter contains one adapter per external research source. Each
// adapter normalizes a provider's quirks into the common Result envelope;
// no adapter ever lets an error escape as a Go error or a panic — all
// failure paths resolve to a failure envelope with a classified ErrorKind.
package adapter

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/communitas-hq/partner-research/internal/model"
	"github.com/communitas-hq/partner-research/internal/resilience"
)

// Hints carries whatever identity information is available for the subject.
type Hints struct {
	SubjectID       string
	Name            string
	Organization    string
	ProfileURL      string
	PartnerCategory model.PartnerCategory
}

// Options tunes a single pipeline run.
type Options struct {
	// CrawlCitations enables fetching the content behind answer citations.
	CrawlCitations bool
}

// Result is the common envelope every adapter resolves to.
type Result struct {
	Source    model.SourceName
	Success   bool
	Payload   *model.Payload
	Err       string
	ErrorKind model.ErrorKind
}

// Adapter translates one external data source into the Result envelope.
type Adapter interface {
	// Name identifies the source this adapter serves.
	Name() model.SourceName
	// Applicable reports whether the hints carry the input this source needs.
	// The orchestrator skips inapplicable adapters instead of calling them.
	Applicable(hints Hints) bool
	// Timeout is the per-call deadline the orchestrator should enforce.
	Timeout() time.Duration
	// Fetch queries the source. It must respect ctx and return a failure
	// envelope (never a panic) on any error.
	Fetch(ctx context.Context, hints Hints, opts Options) Result
}

// success builds a success envelope after validating the payload shape.
func success(source model.SourceName, payload *model.Payload) Result {
	if err := payload.Validate(source); err != nil {
		return failure(source, model.ErrKindUpstreamError, err.Error())
	}
	return Result{Source: source, Success: true, Payload: payload}
}

// failure builds a failure envelope.
func failure(source model.SourceName, kind model.ErrorKind, msg string) Result {
	return Result{Source: source, Success: false, Err: msg, ErrorKind: kind}
}

// failureFromErr classifies a generic adapter error into the taxonomy.
// Source-specific classifications (auth, rate limit, not found) happen in the
// individual adapters before falling through to this.
func failureFromErr(source model.SourceName, err error) Result {
	return failure(source, classify(err), err.Error())
}

func classify(err error) model.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return model.ErrKindTimeout
	}
	var te *resilience.TransientError
	if errors.As(err, &te) && te.StatusCode == 429 {
		return model.ErrKindRateLimited
	}
	// String fallback for wrapped client errors that only carry the status
	// in their message.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "status 429"):
		return model.ErrKindRateLimited
	case strings.Contains(msg, "deadline exceeded"), strings.Contains(msg, "timeout"):
		return model.ErrKindTimeout
	default:
		return model.ErrKindUpstreamError
	}
}

// adapterRetry is the shared retry policy: at most one immediate retry, for
// transient network errors only. The orchestrator owns policy beyond that.
func adapterRetry(source model.SourceName) resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger(string(source), "fetch")
	return cfg
}
