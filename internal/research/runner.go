package research

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/communitas-hq/partner-research/internal/adapter"
)

// RunnerConfig tunes the fire-and-forget runner.
type RunnerConfig struct {
	// Enabled gates the whole pipeline; when false Submit is a no-op.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Workers is the number of concurrent pipeline runs. Default: 2.
	Workers int `yaml:"workers" mapstructure:"workers"`

	// QueueSize bounds pending submissions. Default: 16.
	QueueSize int `yaml:"queue_size" mapstructure:"queue_size"`
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 16
	}
	return c
}

type job struct {
	subjectID string
	hints     adapter.Hints
	opts      adapter.Options
}

// Runner runs research pipelines in the background. Completion is observable
// only through the persisted profile status; callers never wait on a run.
type Runner struct {
	orch *Orchestrator
	cfg  RunnerConfig

	queue chan job
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewRunner starts the worker pool. Workers live until Close.
func NewRunner(orch *Orchestrator, cfg RunnerConfig) *Runner {
	cfg = cfg.withDefaults()
	r := &Runner{
		orch:  orch,
		cfg:   cfg,
		queue: make(chan job, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

// Submit enqueues a research run without blocking. Returns false when the
// runner is disabled, closed, or the queue is full; the caller may retrigger
// later — the pipeline is re-entrant.
func (r *Runner) Submit(subjectID string, hints adapter.Hints, opts adapter.Options) bool {
	if !r.cfg.Enabled {
		zap.L().Debug("research runner disabled; dropping submission",
			zap.String("subject_id", subjectID))
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}

	select {
	case r.queue <- job{subjectID: subjectID, hints: hints, opts: opts}:
		return true
	default:
		zap.L().Warn("research queue full; dropping submission",
			zap.String("subject_id", subjectID))
		return false
	}
}

// Close stops accepting submissions and drains queued runs to completion.
func (r *Runner) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Runner) worker() {
	defer r.wg.Done()
	for j := range r.queue {
		// Background runs carry their own deadline via the orchestrator's
		// global timeout; no parent cancellation applies.
		if _, err := r.orch.RunPipeline(context.Background(), j.subjectID, j.hints, j.opts); err != nil {
			zap.L().Error("background research run failed",
				zap.String("subject_id", j.subjectID),
				zap.Error(err),
			)
		}
	}
}
