// Package research runs the asynchronous research pipeline: it fans out to
// every applicable source adapter, persists each result as it settles, and
// reconciles the records into the subject's aggregated profile.
package research

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/communitas-hq/partner-research/internal/adapter"
	"github.com/communitas-hq/partner-research/internal/aggregate"
	"github.com/communitas-hq/partner-research/internal/model"
	"github.com/communitas-hq/partner-research/internal/resilience"
	"github.com/communitas-hq/partner-research/internal/store"
)

// Config tunes the orchestrator.
type Config struct {
	// GlobalTimeout bounds one whole pipeline run. Default: 150s.
	GlobalTimeout time.Duration `yaml:"global_timeout" mapstructure:"global_timeout"`

	// RateLimit is the pipeline-wide cap on adapter calls per second, shared
	// across concurrent runs. Default: 5.
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

func (c Config) withDefaults() Config {
	if c.GlobalTimeout <= 0 {
		c.GlobalTimeout = 150 * time.Second
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 5
	}
	return c
}

// SourceOutcome summarizes how one adapter fared in a run.
type SourceOutcome struct {
	Source    model.SourceName `json:"source"`
	Success   bool             `json:"success"`
	ErrorKind model.ErrorKind  `json:"error_kind,omitempty"`
	Error     string           `json:"error,omitempty"`
	Duration  time.Duration    `json:"duration"`
}

// PipelineResult is the summary returned from one pipeline run. The
// authoritative outcome lives in the persisted profile; this is for callers
// that wait synchronously.
type PipelineResult struct {
	SubjectID    string              `json:"subject_id"`
	Outcomes     []SourceOutcome     `json:"outcomes"`
	Applicable   int                 `json:"applicable"`
	Status       model.ProfileStatus `json:"status"`
	QualityScore float64             `json:"quality_score"`
	Elapsed      time.Duration       `json:"elapsed"`
}

// Orchestrator coordinates one research run end to end.
type Orchestrator struct {
	store      store.Store
	adapters   []adapter.Adapter
	reconciler *aggregate.Reconciler
	breakers   *resilience.SourceBreakers
	limiter    *rate.Limiter
	cfg        Config

	nowFunc func() time.Time
	newID   func() string
}

// NewOrchestrator builds an orchestrator over the given adapters. breakers
// may be shared with other subsystems (e.g. the status command).
func NewOrchestrator(st store.Store, adapters []adapter.Adapter, reconciler *aggregate.Reconciler, breakers *resilience.SourceBreakers, cfg Config) *Orchestrator {
	cfg = cfg.withDefaults()
	if breakers == nil {
		breakers = resilience.NewSourceBreakers(resilience.CircuitBreakerConfig{})
	}
	if reconciler == nil {
		reconciler = aggregate.NewReconciler(nil)
	}
	return &Orchestrator{
		store:      st,
		adapters:   adapters,
		reconciler: reconciler,
		breakers:   breakers,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), int(cfg.RateLimit)),
		cfg:        cfg,
		nowFunc:    time.Now,
		newID:      func() string { return uuid.New().String() },
	}
}

// RunPipeline executes one research run for the subject. Adapter failures are
// captured as failure records and never abort the run; only persistence
// errors propagate.
func (o *Orchestrator) RunPipeline(ctx context.Context, subjectID string, hints adapter.Hints, opts adapter.Options) (*PipelineResult, error) {
	start := o.nowFunc()
	log := zap.L().With(zap.String("subject_id", subjectID))
	hints.SubjectID = subjectID

	if err := o.markInProgress(ctx, subjectID); err != nil {
		return nil, err
	}

	applicable := o.applicableAdapters(hints)
	if len(applicable) == 0 {
		log.Warn("no applicable research sources for subject")
		return o.finishFromHistory(ctx, subjectID, start)
	}

	runCtx, cancel := context.WithTimeout(ctx, o.cfg.GlobalTimeout)
	defer cancel()

	// Records are persisted even when the run deadline has passed, so a slow
	// source still leaves its TIMEOUT trace behind.
	persistCtx := context.WithoutCancel(ctx)

	outcomes := make([]SourceOutcome, len(applicable))
	g, gctx := errgroup.WithContext(runCtx)
	for i, ad := range applicable {
		g.Go(func() error {
			res, dur := o.fetchOne(gctx, ad, hints, opts)
			outcomes[i] = SourceOutcome{
				Source:    res.Source,
				Success:   res.Success,
				ErrorKind: res.ErrorKind,
				Error:     res.Err,
				Duration:  dur,
			}

			rec := model.ResearchRecord{
				ID:         o.newID(),
				SubjectID:  subjectID,
				Source:     res.Source,
				Success:    res.Success,
				Payload:    res.Payload,
				Error:      res.Err,
				ErrorKind:  res.ErrorKind,
				CapturedAt: o.nowFunc().UTC(),
			}
			if err := o.store.InsertResearchRecord(persistCtx, rec); err != nil {
				return eris.Wrapf(err, "research: persist %s record", res.Source)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	records, err := o.store.ListRecords(persistCtx, subjectID)
	if err != nil {
		return nil, eris.Wrap(err, "research: list records for reconcile")
	}

	profile := o.reconciler.Reconcile(subjectID, records, o.nowFunc())
	profile.QualityScore = aggregate.Score(profile, len(applicable))
	if err := o.store.UpsertAggregatedProfile(persistCtx, *profile); err != nil {
		return nil, eris.Wrap(err, "research: persist profile")
	}

	result := &PipelineResult{
		SubjectID:    subjectID,
		Outcomes:     outcomes,
		Applicable:   len(applicable),
		Status:       profile.Status,
		QualityScore: profile.QualityScore,
		Elapsed:      o.nowFunc().Sub(start),
	}
	log.Info("research pipeline finished",
		zap.String("status", string(result.Status)),
		zap.Int("applicable", result.Applicable),
		zap.Float64("quality_score", result.QualityScore),
		zap.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

// finishFromHistory recomputes the profile from stored records alone. A run
// with nothing to call must not regress what earlier runs established.
func (o *Orchestrator) finishFromHistory(ctx context.Context, subjectID string, start time.Time) (*PipelineResult, error) {
	records, err := o.store.ListRecords(ctx, subjectID)
	if err != nil {
		return nil, eris.Wrap(err, "research: list records for reconcile")
	}

	profile := o.reconciler.Reconcile(subjectID, records, o.nowFunc())
	profile.QualityScore = aggregate.Score(profile, distinctSources(records))
	if err := o.store.UpsertAggregatedProfile(ctx, *profile); err != nil {
		return nil, eris.Wrap(err, "research: persist profile")
	}

	return &PipelineResult{
		SubjectID:    subjectID,
		Status:       profile.Status,
		QualityScore: profile.QualityScore,
		Elapsed:      o.nowFunc().Sub(start),
	}, nil
}

func distinctSources(records []model.ResearchRecord) int {
	seen := make(map[model.SourceName]bool)
	for _, r := range records {
		seen[r.Source] = true
	}
	return len(seen)
}

// fetchOne runs one adapter and abandons it at the run deadline, so a source
// that ignores its context cannot stall pipeline completion. The straggler
// goroutine finishes in the background and its result is discarded.
func (o *Orchestrator) fetchOne(ctx context.Context, ad adapter.Adapter, hints adapter.Hints, opts adapter.Options) (adapter.Result, time.Duration) {
	start := o.nowFunc()

	type settled struct {
		res adapter.Result
		dur time.Duration
	}
	done := make(chan settled, 1)
	go func() {
		res, dur := o.callSource(ctx, ad, hints, opts)
		done <- settled{res: res, dur: dur}
	}()

	select {
	case s := <-done:
		return s.res, s.dur
	case <-ctx.Done():
		return adapter.Result{
			Source:    ad.Name(),
			Success:   false,
			Err:       "source did not return before the pipeline deadline",
			ErrorKind: model.ErrKindTimeout,
		}, o.nowFunc().Sub(start)
	}
}

// callSource runs a single adapter with rate limiting, a per-source circuit
// breaker, its own timeout, and panic containment.
func (o *Orchestrator) callSource(ctx context.Context, ad adapter.Adapter, hints adapter.Hints, opts adapter.Options) (res adapter.Result, dur time.Duration) {
	source := ad.Name()
	start := o.nowFunc()
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("research adapter panicked",
				zap.String("source", string(source)),
				zap.Any("panic", r),
			)
			res = adapter.Result{
				Source:    source,
				Success:   false,
				Err:       fmt.Sprintf("adapter panic: %v", r),
				ErrorKind: model.ErrKindUpstreamError,
			}
		}
		dur = o.nowFunc().Sub(start)
	}()

	if err := o.limiter.Wait(ctx); err != nil {
		return adapter.Result{
			Source:    source,
			Success:   false,
			Err:       "pipeline deadline reached before source was called",
			ErrorKind: model.ErrKindTimeout,
		}, 0
	}

	callCtx, cancel := context.WithTimeout(ctx, ad.Timeout())
	defer cancel()

	breaker := o.breakers.Get(string(source))
	err := breaker.Execute(callCtx, func(ctx context.Context) error {
		res = ad.Fetch(ctx, hints, opts)
		// Only upstream trouble counts toward tripping: auth and not-found
		// failures say nothing about source health.
		if !res.Success && (res.ErrorKind == model.ErrKindUpstreamError || res.ErrorKind == model.ErrKindTimeout) {
			return eris.New(res.Err)
		}
		return nil
	})
	if eris.Is(err, resilience.ErrCircuitOpen) {
		return adapter.Result{
			Source:    source,
			Success:   false,
			Err:       "source temporarily disabled after repeated failures",
			ErrorKind: model.ErrKindUpstreamError,
		}, 0
	}
	return res, 0
}

// markInProgress flips (or creates) the profile row to IN_PROGRESS so status
// readers see the run immediately.
func (o *Orchestrator) markInProgress(ctx context.Context, subjectID string) error {
	existing, err := o.store.GetAggregatedProfile(ctx, subjectID)
	if err != nil {
		return eris.Wrap(err, "research: load profile")
	}
	if existing == nil {
		existing = &model.AggregatedProfile{SubjectID: subjectID}
	}
	existing.Status = model.StatusInProgress
	existing.UpdatedAt = o.nowFunc().UTC()
	if err := o.store.UpsertAggregatedProfile(ctx, *existing); err != nil {
		return eris.Wrap(err, "research: mark in progress")
	}
	return nil
}

func (o *Orchestrator) applicableAdapters(hints adapter.Hints) []adapter.Adapter {
	var out []adapter.Adapter
	for _, ad := range o.adapters {
		if ad.Applicable(hints) {
			out = append(out, ad)
		}
	}
	return out
}

// BreakerStates exposes per-source circuit states for status reporting.
func (o *Orchestrator) BreakerStates() map[string]resilience.CircuitState {
	return o.breakers.States()
}
