package research

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/communitas-hq/partner-research/internal/adapter"
	"github.com/communitas-hq/partner-research/internal/model"
)

func TestRunner_SubmitAndDrain(t *testing.T) {
	st := newMemStore()
	orch := newTestOrchestrator(st, successAdapter(model.SourceEncycPerson, encycPayload("Ada Lovelace")))
	r := NewRunner(orch, RunnerConfig{Enabled: true})

	ok := r.Submit("subj-1", adapter.Hints{Name: "Ada Lovelace"}, adapter.Options{})
	require.True(t, ok)
	r.Close()

	// Completion is visible only through the persisted profile.
	profile, err := st.GetAggregatedProfile(context.Background(), "subj-1")
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, model.StatusSuccess, profile.Status)
}

func TestRunner_DisabledSubmitNoOps(t *testing.T) {
	st := newMemStore()
	orch := newTestOrchestrator(st, successAdapter(model.SourceEncycPerson, encycPayload("Ada")))
	r := NewRunner(orch, RunnerConfig{Enabled: false})
	defer r.Close()

	assert.False(t, r.Submit("subj-1", adapter.Hints{Name: "Ada"}, adapter.Options{}))

	profile, err := st.GetAggregatedProfile(context.Background(), "subj-1")
	require.NoError(t, err)
	assert.Nil(t, profile)
}

func TestRunner_QueueFullRejects(t *testing.T) {
	st := newMemStore()
	slow := successAdapter(model.SourceEncycPerson, encycPayload("Ada"))
	slow.delay = 200 * time.Millisecond
	orch := newTestOrchestrator(st, slow)

	r := NewRunner(orch, RunnerConfig{Enabled: true, Workers: 1, QueueSize: 1})
	defer r.Close()

	// One running, one queued; further submissions bounce.
	require.True(t, r.Submit("subj-1", adapter.Hints{Name: "Ada"}, adapter.Options{}))
	submitted := 1
	rejected := 0
	for i := 0; i < 10; i++ {
		if r.Submit("subj-extra", adapter.Hints{Name: "Ada"}, adapter.Options{}) {
			submitted++
		} else {
			rejected++
		}
	}
	assert.Greater(t, rejected, 0)
	assert.LessOrEqual(t, submitted, 2)
}

func TestRunner_SubmitAfterCloseRejected(t *testing.T) {
	st := newMemStore()
	orch := newTestOrchestrator(st, successAdapter(model.SourceEncycPerson, encycPayload("Ada")))
	r := NewRunner(orch, RunnerConfig{Enabled: true})
	r.Close()

	assert.False(t, r.Submit("subj-1", adapter.Hints{Name: "Ada"}, adapter.Options{}))
	// Double close is safe.
	r.Close()
}
