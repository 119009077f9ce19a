// Package credpool manages the rotating credential pool for the
// profile-scrape source. Slots are loaded once at startup and held in memory
// for the process lifetime; all selection and health mutation goes through a
// single critical section so concurrent pipeline runs never race on a slot.
package credpool

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/communitas-hq/partner-research/internal/model"
)

// ErrExhausted signals that no credential slot currently qualifies for use.
// Callers must treat this as "skip the scraping source this round", not as a
// fatal error.
var ErrExhausted = eris.New("credpool: all credential slots exhausted")

// Outcome reports how a credential performed on one scrape call.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeAuthFailed
	OutcomeRateLimited
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeAuthFailed:
		return "auth_failed"
	case OutcomeRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// Options tunes pool behavior.
type Options struct {
	// AuthFailureThreshold is the number of consecutive auth failures after
	// which a slot is permanently disabled for the process lifetime.
	// Re-enabling a flagged account requires operator intervention. Default: 3.
	AuthFailureThreshold int

	// Cooldown is how long a rate-limited slot is kept out of rotation.
	// Default: 45 minutes.
	Cooldown time.Duration
}

func (o Options) withDefaults() Options {
	if o.AuthFailureThreshold <= 0 {
		o.AuthFailureThreshold = 3
	}
	if o.Cooldown <= 0 {
		o.Cooldown = 45 * time.Minute
	}
	return o
}

// Pool is the rotating credential pool.
type Pool struct {
	mu    sync.Mutex
	slots []*model.CredentialSlot
	opts  Options

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// New creates a pool over the given slots. The pool takes ownership of the
// slice; no other component may mutate the slots afterwards.
func New(slots []*model.CredentialSlot, opts Options) *Pool {
	return &Pool{
		slots:   slots,
		opts:    opts.withDefaults(),
		nowFunc: time.Now,
	}
}

// Size returns the total number of slots, usable or not.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

// Acquire selects a usable slot: not disabled, cooldown elapsed, preferring
// the fewest consecutive failures and tie-breaking by longest time since last
// use. Returns ErrExhausted when no slot qualifies. The returned slot is a
// copy; health updates go through ReportOutcome.
func (p *Pool) Acquire() (*model.CredentialSlot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.nowFunc()

	var best *model.CredentialSlot
	for _, s := range p.slots {
		if !s.Usable(now) {
			continue
		}
		if best == nil || better(s, best) {
			best = s
		}
	}
	if best == nil {
		return nil, ErrExhausted
	}

	used := now
	best.LastUsedAt = &used

	cp := *best
	return &cp, nil
}

// better reports whether a should be preferred over b for the next acquire.
func better(a, b *model.CredentialSlot) bool {
	if a.ConsecutiveFailures != b.ConsecutiveFailures {
		return a.ConsecutiveFailures < b.ConsecutiveFailures
	}
	// Round-robin fairness: least recently used wins.
	switch {
	case a.LastUsedAt == nil && b.LastUsedAt != nil:
		return true
	case a.LastUsedAt != nil && b.LastUsedAt == nil:
		return false
	case a.LastUsedAt == nil && b.LastUsedAt == nil:
		return false
	default:
		return a.LastUsedAt.Before(*b.LastUsedAt)
	}
}

// ReportOutcome records how the identified credential performed. Success
// resets the failure count and clears any cooldown. Auth failures increment
// the count and disable the slot at the configured threshold. Rate limiting
// sets a cooldown without counting as a fault.
func (p *Pool) ReportOutcome(credentialID string, outcome Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var slot *model.CredentialSlot
	for _, s := range p.slots {
		if s.ID == credentialID {
			slot = s
			break
		}
	}
	if slot == nil {
		zap.L().Warn("credpool: outcome for unknown credential",
			zap.String("credential_id", credentialID),
			zap.String("outcome", outcome.String()),
		)
		return
	}

	switch outcome {
	case OutcomeSuccess:
		slot.ConsecutiveFailures = 0
		slot.CooldownUntil = nil
	case OutcomeAuthFailed:
		slot.ConsecutiveFailures++
		if slot.ConsecutiveFailures >= p.opts.AuthFailureThreshold {
			slot.Disabled = true
			zap.L().Warn("credpool: credential disabled after repeated auth failures",
				zap.String("credential_id", slot.ID),
				zap.String("identifier", slot.Identifier),
				zap.Int("failures", slot.ConsecutiveFailures),
			)
		}
	case OutcomeRateLimited:
		until := p.nowFunc().Add(p.opts.Cooldown)
		slot.CooldownUntil = &until
		zap.L().Info("credpool: credential cooling down",
			zap.String("credential_id", slot.ID),
			zap.Time("until", until),
		)
	}
}

// Snapshot returns copies of all slots for status reporting.
func (p *Pool) Snapshot() []model.CredentialSlot {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]model.CredentialSlot, 0, len(p.slots))
	for _, s := range p.slots {
		out = append(out, *s)
	}
	return out
}
