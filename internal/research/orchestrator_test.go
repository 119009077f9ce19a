package research

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/communitas-hq/partner-research/internal/adapter"
	"github.com/communitas-hq/partner-research/internal/aggregate"
	"github.com/communitas-hq/partner-research/internal/model"
	"github.com/communitas-hq/partner-research/internal/resilience"
	"github.com/communitas-hq/partner-research/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// memStore is an in-memory Store for orchestrator tests.
type memStore struct {
	mu       sync.Mutex
	subjects map[string]model.Subject
	records  []model.ResearchRecord
	profiles map[string]model.AggregatedProfile

	insertErr error
}

func newMemStore() *memStore {
	return &memStore{
		subjects: make(map[string]model.Subject),
		profiles: make(map[string]model.AggregatedProfile),
	}
}

func (m *memStore) UpsertSubject(_ context.Context, s model.Subject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects[s.ID] = s
	return nil
}

func (m *memStore) GetSubject(_ context.Context, id string) (*model.Subject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.subjects[id]; ok {
		return &s, nil
	}
	return nil, nil
}

func (m *memStore) InsertResearchRecord(_ context.Context, rec model.ResearchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *memStore) ListRecords(_ context.Context, subjectID string) ([]model.ResearchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ResearchRecord
	for _, r := range m.records {
		if r.SubjectID == subjectID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) UpsertAggregatedProfile(_ context.Context, p model.AggregatedProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.SubjectID] = p
	return nil
}

func (m *memStore) GetAggregatedProfile(_ context.Context, subjectID string) (*model.AggregatedProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.profiles[subjectID]; ok {
		return &p, nil
	}
	return nil, nil
}

func (m *memStore) ListProfiles(_ context.Context, _ store.ProfileFilter) ([]model.AggregatedProfile, error) {
	return nil, nil
}

func (m *memStore) Purge(_ context.Context, subjectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subjects, subjectID)
	delete(m.profiles, subjectID)
	return nil
}

func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Close() error                  { return nil }

// fakeAdapter is a scriptable adapter.
type fakeAdapter struct {
	name       model.SourceName
	applicable bool
	timeout    time.Duration
	delay      time.Duration
	result     adapter.Result
	panics     bool
}

func (f *fakeAdapter) Name() model.SourceName       { return f.name }
func (f *fakeAdapter) Applicable(adapter.Hints) bool { return f.applicable }

func (f *fakeAdapter) Timeout() time.Duration {
	if f.timeout > 0 {
		return f.timeout
	}
	return time.Second
}

func (f *fakeAdapter) Fetch(ctx context.Context, _ adapter.Hints, _ adapter.Options) adapter.Result {
	if f.panics {
		panic("boom")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return adapter.Result{
				Source: f.name, Success: false,
				Err: ctx.Err().Error(), ErrorKind: model.ErrKindTimeout,
			}
		}
	}
	res := f.result
	res.Source = f.name
	return res
}

func successAdapter(name model.SourceName, payload *model.Payload) *fakeAdapter {
	return &fakeAdapter{
		name:       name,
		applicable: true,
		result:     adapter.Result{Success: true, Payload: payload},
	}
}

func newTestOrchestrator(st store.Store, adapters ...adapter.Adapter) *Orchestrator {
	return NewOrchestrator(st, adapters, aggregate.NewReconciler(nil), nil, Config{
		GlobalTimeout: 5 * time.Second,
		RateLimit:     1000,
	})
}

func encycPayload(title string) *model.Payload {
	return &model.Payload{Encyclopedia: &model.EncyclopediaPayload{PageTitle: title, Extract: "Extract."}}
}

func TestRunPipeline_SuccessPath(t *testing.T) {
	st := newMemStore()
	orch := newTestOrchestrator(st,
		successAdapter(model.SourceEncycPerson, encycPayload("Ada Lovelace")),
		&fakeAdapter{
			name:       model.SourceProfileScrape,
			applicable: true,
			result:     adapter.Result{Success: false, Err: "not found", ErrorKind: model.ErrKindNotFound},
		},
	)

	res, err := orch.RunPipeline(context.Background(), "subj-1", adapter.Hints{Name: "Ada Lovelace"}, adapter.Options{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, res.Status)
	assert.Equal(t, 2, res.Applicable)
	assert.Len(t, res.Outcomes, 2)
	assert.Greater(t, res.QualityScore, 0.0)

	// Both outcomes persisted as records, success and failure alike.
	records, err := st.ListRecords(context.Background(), "subj-1")
	require.NoError(t, err)
	assert.Len(t, records, 2)

	profile, err := st.GetAggregatedProfile(context.Background(), "subj-1")
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, model.StatusSuccess, profile.Status)
	assert.Equal(t, "Ada Lovelace", profile.CanonicalName)
}

func TestRunPipeline_AllFailedIsFailedProfileNotError(t *testing.T) {
	st := newMemStore()
	orch := newTestOrchestrator(st, &fakeAdapter{
		name:       model.SourceEncycPerson,
		applicable: true,
		result:     adapter.Result{Success: false, Err: "boom", ErrorKind: model.ErrKindUpstreamError},
	})

	res, err := orch.RunPipeline(context.Background(), "subj-1", adapter.Hints{Name: "X"}, adapter.Options{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, res.Status)

	profile, _ := st.GetAggregatedProfile(context.Background(), "subj-1")
	require.NotNil(t, profile)
	assert.Equal(t, model.StatusFailed, profile.Status)
}

func TestRunPipeline_NoApplicableSources(t *testing.T) {
	st := newMemStore()
	orch := newTestOrchestrator(st, &fakeAdapter{name: model.SourceProfileScrape, applicable: false})

	res, err := orch.RunPipeline(context.Background(), "subj-1", adapter.Hints{}, adapter.Options{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, res.Status)
	assert.Zero(t, res.Applicable)

	records, _ := st.ListRecords(context.Background(), "subj-1")
	assert.Empty(t, records)
}

func TestRunPipeline_NoApplicableKeepsEarlierFindings(t *testing.T) {
	st := newMemStore()
	orch := newTestOrchestrator(st, successAdapter(model.SourceEncycPerson, encycPayload("Ada Lovelace")))
	_, err := orch.RunPipeline(context.Background(), "subj-1", adapter.Hints{Name: "Ada"}, adapter.Options{})
	require.NoError(t, err)

	// Retrigger with nothing to call: the profile is rebuilt from the stored
	// records, never blanked.
	orch2 := newTestOrchestrator(st, &fakeAdapter{name: model.SourceProfileScrape, applicable: false})
	res, err := orch2.RunPipeline(context.Background(), "subj-1", adapter.Hints{}, adapter.Options{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, res.Status)
	assert.Greater(t, res.QualityScore, 0.0)

	profile, _ := st.GetAggregatedProfile(context.Background(), "subj-1")
	require.NotNil(t, profile)
	assert.Equal(t, model.StatusSuccess, profile.Status)
	assert.Equal(t, "Ada Lovelace", profile.CanonicalName)
}

func TestRunPipeline_PanicBecomesUpstreamRecord(t *testing.T) {
	st := newMemStore()
	orch := newTestOrchestrator(st, &fakeAdapter{
		name:       model.SourceSocialSearch,
		applicable: true,
		panics:     true,
	})

	res, err := orch.RunPipeline(context.Background(), "subj-1", adapter.Hints{Name: "X"}, adapter.Options{})
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 1)
	assert.False(t, res.Outcomes[0].Success)
	assert.Equal(t, model.ErrKindUpstreamError, res.Outcomes[0].ErrorKind)
	assert.Contains(t, res.Outcomes[0].Error, "panic")

	records, _ := st.ListRecords(context.Background(), "subj-1")
	require.Len(t, records, 1)
	assert.Equal(t, model.ErrKindUpstreamError, records[0].ErrorKind)
}

func TestRunPipeline_ConcurrentFanOut(t *testing.T) {
	st := newMemStore()
	slow := 300 * time.Millisecond
	fast := successAdapter(model.SourceEncycPerson, encycPayload("Ada Lovelace"))
	slower := successAdapter(model.SourceEncycOrg, encycPayload("Analytical Engines"))
	slower.delay = slow
	third := successAdapter(model.SourceSocialSearch, &model.Payload{Social: &model.SocialPayload{
		Profiles: []model.SocialProfile{{URL: "https://pro.example/in/ada"}},
	}})
	third.delay = slow

	orch := newTestOrchestrator(st, fast, slower, third)

	start := time.Now()
	res, err := orch.RunPipeline(context.Background(), "subj-1", adapter.Hints{Name: "Ada"}, adapter.Options{})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, res.Status)
	// Two slow adapters in parallel: total should track one delay, not two.
	assert.Less(t, elapsed, 2*slow)
}

func TestRunPipeline_SlowAdapterTimesOut(t *testing.T) {
	st := newMemStore()
	hang := successAdapter(model.SourceAnswerPrimary, nil)
	hang.timeout = 50 * time.Millisecond
	hang.delay = time.Second

	orch := newTestOrchestrator(st, hang)

	res, err := orch.RunPipeline(context.Background(), "subj-1", adapter.Hints{Name: "Ada"}, adapter.Options{})
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 1)
	assert.False(t, res.Outcomes[0].Success)
	assert.Equal(t, model.ErrKindTimeout, res.Outcomes[0].ErrorKind)
}

// rogueAdapter sleeps for a fixed duration without honoring its context.
type rogueAdapter struct {
	sleep time.Duration
}

func (r *rogueAdapter) Name() model.SourceName         { return model.SourceAnswerPrimary }
func (r *rogueAdapter) Applicable(adapter.Hints) bool  { return true }
func (r *rogueAdapter) Timeout() time.Duration         { return 10 * time.Millisecond }

func (r *rogueAdapter) Fetch(context.Context, adapter.Hints, adapter.Options) adapter.Result {
	time.Sleep(r.sleep)
	return adapter.Result{
		Source:  model.SourceAnswerPrimary,
		Success: true,
		Payload: &model.Payload{Answer: &model.AnswerPayload{Answer: "too late"}},
	}
}

func TestRunPipeline_AdapterIgnoringContextIsAbandonedAtDeadline(t *testing.T) {
	st := newMemStore()
	orch := NewOrchestrator(st, []adapter.Adapter{&rogueAdapter{sleep: 2 * time.Second}},
		aggregate.NewReconciler(nil), nil,
		Config{GlobalTimeout: 100 * time.Millisecond, RateLimit: 1000},
	)

	start := time.Now()
	res, err := orch.RunPipeline(context.Background(), "subj-1", adapter.Hints{Name: "Ada"}, adapter.Options{})
	elapsed := time.Since(start)

	require.NoError(t, err)
	// The run returns at the deadline, not when the rogue source gives up.
	assert.Less(t, elapsed, time.Second)
	require.Len(t, res.Outcomes, 1)
	assert.Equal(t, model.ErrKindTimeout, res.Outcomes[0].ErrorKind)
	assert.Equal(t, model.StatusFailed, res.Status)

	// A TIMEOUT record is persisted; the late success never is.
	records, _ := st.ListRecords(context.Background(), "subj-1")
	require.Len(t, records, 1)
	assert.Equal(t, model.ErrKindTimeout, records[0].ErrorKind)
	assert.False(t, records[0].Success)
}

func TestRunPipeline_MarksInProgressFirst(t *testing.T) {
	st := newMemStore()
	var statusDuringRun model.ProfileStatus
	probe := &fakeAdapter{name: model.SourceEncycPerson, applicable: true}
	probe.result = adapter.Result{Success: false, Err: "x", ErrorKind: model.ErrKindNotFound}

	orch := newTestOrchestrator(st, probe)
	// Snapshot the status from inside the run via a wrapper adapter.
	wrapped := adapterFunc(func(ctx context.Context, h adapter.Hints, o adapter.Options) adapter.Result {
		if p, _ := st.GetAggregatedProfile(ctx, "subj-1"); p != nil {
			statusDuringRun = p.Status
		}
		return probe.Fetch(ctx, h, o)
	}, probe)
	orch.adapters = []adapter.Adapter{wrapped}

	_, err := orch.RunPipeline(context.Background(), "subj-1", adapter.Hints{Name: "Ada"}, adapter.Options{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, statusDuringRun)
}

func TestRunPipeline_ReentrantUsesLatestSuccess(t *testing.T) {
	st := newMemStore()
	// First run: encyclopedia succeeds.
	orch := newTestOrchestrator(st, successAdapter(model.SourceEncycPerson, encycPayload("Ada Lovelace")))
	_, err := orch.RunPipeline(context.Background(), "subj-1", adapter.Hints{Name: "Ada"}, adapter.Options{})
	require.NoError(t, err)

	// Second run: the same source now fails; the profile keeps the old data.
	orch2 := newTestOrchestrator(st, &fakeAdapter{
		name:       model.SourceEncycPerson,
		applicable: true,
		result:     adapter.Result{Success: false, Err: "down", ErrorKind: model.ErrKindUpstreamError},
	})
	res, err := orch2.RunPipeline(context.Background(), "subj-1", adapter.Hints{Name: "Ada"}, adapter.Options{})
	require.NoError(t, err)

	assert.Equal(t, model.StatusSuccess, res.Status)
	profile, _ := st.GetAggregatedProfile(context.Background(), "subj-1")
	assert.Equal(t, "Ada Lovelace", profile.CanonicalName)

	records, _ := st.ListRecords(context.Background(), "subj-1")
	assert.Len(t, records, 2)
}

func TestRunPipeline_StoreErrorIsHard(t *testing.T) {
	st := newMemStore()
	st.insertErr = assertAnError{}
	orch := newTestOrchestrator(st, successAdapter(model.SourceEncycPerson, encycPayload("Ada")))

	_, err := orch.RunPipeline(context.Background(), "subj-1", adapter.Hints{Name: "Ada"}, adapter.Options{})
	require.Error(t, err)
}

func TestRunPipeline_CircuitOpensAfterRepeatedUpstreamFailures(t *testing.T) {
	st := newMemStore()
	failing := &fakeAdapter{
		name:       model.SourceAnswerPrimary,
		applicable: true,
		result:     adapter.Result{Success: false, Err: "500", ErrorKind: model.ErrKindUpstreamError},
	}
	orch := NewOrchestrator(st, []adapter.Adapter{failing},
		aggregate.NewReconciler(nil),
		resilience.NewSourceBreakers(resilience.CircuitBreakerConfig{FailureThreshold: 2}),
		Config{GlobalTimeout: 5 * time.Second, RateLimit: 1000},
	)

	for i := 0; i < 2; i++ {
		_, err := orch.RunPipeline(context.Background(), "subj-1", adapter.Hints{Name: "Ada"}, adapter.Options{})
		require.NoError(t, err)
	}
	assert.Equal(t, resilience.CircuitOpen, orch.BreakerStates()[string(model.SourceAnswerPrimary)])

	// Third run: the breaker short-circuits the call.
	res, err := orch.RunPipeline(context.Background(), "subj-1", adapter.Hints{Name: "Ada"}, adapter.Options{})
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 1)
	assert.Contains(t, res.Outcomes[0].Error, "temporarily disabled")
}

// adapterFunc wraps a fetch function with an existing adapter's metadata.
type adapterWrapper struct {
	inner adapter.Adapter
	fetch func(context.Context, adapter.Hints, adapter.Options) adapter.Result
}

func adapterFunc(fetch func(context.Context, adapter.Hints, adapter.Options) adapter.Result, inner adapter.Adapter) adapter.Adapter {
	return &adapterWrapper{inner: inner, fetch: fetch}
}

func (w *adapterWrapper) Name() model.SourceName        { return w.inner.Name() }
func (w *adapterWrapper) Applicable(h adapter.Hints) bool { return w.inner.Applicable(h) }
func (w *adapterWrapper) Timeout() time.Duration        { return w.inner.Timeout() }
func (w *adapterWrapper) Fetch(ctx context.Context, h adapter.Hints, o adapter.Options) adapter.Result {
	return w.fetch(ctx, h, o)
}

type assertAnError struct{}

func (assertAnError) Error() string { return "store write failed" }
