package main

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/communitas-hq/partner-research/internal/adapter"
	"github.com/communitas-hq/partner-research/internal/aggregate"
	"github.com/communitas-hq/partner-research/internal/credpool"
	"github.com/communitas-hq/partner-research/internal/model"
	"github.com/communitas-hq/partner-research/internal/research"
	"github.com/communitas-hq/partner-research/internal/resilience"
	"github.com/communitas-hq/partner-research/internal/store"
	"github.com/communitas-hq/partner-research/pkg/jina"
	"github.com/communitas-hq/partner-research/pkg/perplexity"
	"github.com/communitas-hq/partner-research/pkg/proscrape"
	"github.com/communitas-hq/partner-research/pkg/wikipedia"
)

// buildOrchestrator wires the source adapters, credential pool, and circuit
// breakers into a pipeline orchestrator over the given store.
func buildOrchestrator(st store.Store) (*research.Orchestrator, error) {
	adapters, err := buildAdapters()
	if err != nil {
		return nil, err
	}

	priority, err := sourcePriority(cfg.Research.SourcePriority)
	if err != nil {
		return nil, err
	}

	return research.NewOrchestrator(
		st,
		adapters,
		aggregate.NewReconciler(priority),
		resilience.NewSourceBreakers(resilience.CircuitBreakerConfig{}),
		cfg.Research.Orchestrator(),
	), nil
}

func buildAdapters() ([]adapter.Adapter, error) {
	jinaClient := jina.NewClient(cfg.Jina.Key,
		jina.WithBaseURL(cfg.Jina.BaseURL),
		jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL),
	)
	perplexityClient := perplexity.NewClient(cfg.Perplexity.Key,
		perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
		perplexity.WithModel(cfg.Perplexity.Model),
	)
	wikiClient := wikipedia.NewClient(
		wikipedia.WithBaseURL(cfg.Wikipedia.BaseURL),
		wikipedia.WithUserAgent(cfg.Wikipedia.UserAgent),
	)

	adapters := []adapter.Adapter{
		adapter.NewAnswerPrimary(perplexityClient, jinaClient),
		adapter.NewAnswerSecondary(jinaClient),
		adapter.NewEncyclopediaPerson(wikiClient),
		adapter.NewEncyclopediaOrg(wikiClient),
		adapter.NewSocialSearch(jinaClient, cfg.Scrape.SocialSite),
	}

	// Profile scraping only runs when a gateway and credentials are configured.
	if cfg.Scrape.GatewayURL != "" {
		slots, err := credpool.LoadFile(cfg.Scrape.CredentialsFile)
		if err != nil {
			return nil, eris.Wrap(err, "load scrape credentials")
		}
		pool := credpool.New(slots, cfg.Scrape.PoolOptions())
		scrapeClient := proscrape.NewClient(proscrape.WithBaseURL(cfg.Scrape.GatewayURL))
		adapters = append(adapters, adapter.NewProfileScrape(scrapeClient, pool))
		zap.L().Info("profile scraping enabled", zap.Int("credential_slots", len(slots)))
	} else {
		zap.L().Debug("no scrape gateway configured; profile scraping disabled")
	}

	return adapters, nil
}

// sourcePriority parses the configured precedence list; empty means default.
func sourcePriority(names []string) ([]model.SourceName, error) {
	if len(names) == 0 {
		return nil, nil
	}
	known := make(map[model.SourceName]bool, len(model.AllSources))
	for _, s := range model.AllSources {
		known[s] = true
	}
	out := make([]model.SourceName, 0, len(names))
	for _, n := range names {
		s := model.SourceName(n)
		if !known[s] {
			return nil, eris.Errorf("unknown research source in priority list: %s", n)
		}
		out = append(out, s)
	}
	return out, nil
}
