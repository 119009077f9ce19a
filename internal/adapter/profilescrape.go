package adapter

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/communitas-hq/partner-research/internal/credpool"
	"github.com/communitas-hq/partner-research/internal/model"
	"github.com/communitas-hq/partner-research/internal/resilience"
	"github.com/communitas-hq/partner-research/pkg/proscrape"
)

// profileScrape fetches the structured profile behind the subject's
// professional-network URL through the scraping gateway, drawing one
// credential from the pool per attempt and reporting its fate back.
type profileScrape struct {
	client proscrape.Client
	pool   *credpool.Pool
}

// NewProfileScrape builds the profile-scrape adapter.
func NewProfileScrape(client proscrape.Client, pool *credpool.Pool) Adapter {
	return &profileScrape{client: client, pool: pool}
}

func (a *profileScrape) Name() model.SourceName { return model.SourceProfileScrape }

func (a *profileScrape) Applicable(hints Hints) bool { return hints.ProfileURL != "" }

// Scraping logs into the professional network, which is the slowest source in
// the fan-out by a wide margin.
func (a *profileScrape) Timeout() time.Duration { return 45 * time.Second }

func (a *profileScrape) Fetch(ctx context.Context, hints Hints, _ Options) Result {
	slot, err := a.pool.Acquire()
	if err != nil {
		if errors.Is(err, credpool.ErrExhausted) {
			// An exhausted pool behaves like the source itself being throttled:
			// the record is retriable once slots cool down.
			return failure(a.Name(), model.ErrKindRateLimited, err.Error())
		}
		return failureFromErr(a.Name(), err)
	}

	cred := proscrape.Credential{Identifier: slot.Identifier, Secret: slot.Secret}

	profile, err := resilience.DoVal(ctx, adapterRetry(a.Name()), func(ctx context.Context) (*proscrape.Profile, error) {
		return a.client.ScrapeProfile(ctx, hints.ProfileURL, cred)
	})
	if err != nil {
		return a.classifyScrapeErr(slot.ID, hints.ProfileURL, err)
	}

	a.pool.ReportOutcome(slot.ID, credpool.OutcomeSuccess)

	return success(a.Name(), &model.Payload{Profile: &model.ProfilePayload{
		FullName:     profile.FullName,
		Headline:     profile.Headline,
		Title:        profile.Title,
		Organization: profile.Organization,
		Location:     profile.Location,
		About:        profile.About,
		Experience:   profile.Experience,
	}})
}

// classifyScrapeErr maps gateway errors onto the taxonomy and feeds credential
// health back into the pool. Timeouts and upstream errors say nothing about
// the credential, so the slot is left untouched for those.
func (a *profileScrape) classifyScrapeErr(credentialID, profileURL string, err error) Result {
	var authErr *proscrape.AuthError
	if errors.As(err, &authErr) {
		a.pool.ReportOutcome(credentialID, credpool.OutcomeAuthFailed)
		zap.L().Warn("profile scrape auth rejected",
			zap.String("credential_id", credentialID),
			zap.Int("status", authErr.StatusCode),
		)
		return failure(a.Name(), model.ErrKindAuthFailed, err.Error())
	}

	var rlErr *proscrape.RateLimitError
	if errors.As(err, &rlErr) {
		a.pool.ReportOutcome(credentialID, credpool.OutcomeRateLimited)
		return failure(a.Name(), model.ErrKindRateLimited, err.Error())
	}

	var nfErr *proscrape.NotFoundError
	if errors.As(err, &nfErr) {
		// The credential logged in fine; the URL just resolves to nothing.
		a.pool.ReportOutcome(credentialID, credpool.OutcomeSuccess)
		return failure(a.Name(), model.ErrKindNotFound, err.Error())
	}

	zap.L().Debug("profile scrape failed",
		zap.String("profile_url", profileURL),
		zap.Error(err),
	)
	return failureFromErr(a.Name(), err)
}
