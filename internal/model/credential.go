package model

import "time"

// CredentialSlot is one entry in the rotating credential pool for the
// profile-scrape source. Slots are loaded once at startup and mutated only by
// the pool manager.
type CredentialSlot struct {
	ID                  string     `json:"id" yaml:"id"`
	Identifier          string     `json:"identifier" yaml:"identifier"`
	Secret              string     `json:"-" yaml:"secret"`
	CooldownUntil       *time.Time `json:"cooldown_until,omitempty" yaml:"-"`
	ConsecutiveFailures int        `json:"consecutive_failures" yaml:"-"`
	Disabled            bool       `json:"disabled" yaml:"-"`
	LastUsedAt          *time.Time `json:"last_used_at,omitempty" yaml:"-"`
}

// Usable reports whether the slot may be selected at the given time.
// Disabled slots and slots still cooling down are never usable.
func (s *CredentialSlot) Usable(now time.Time) bool {
	if s.Disabled {
		return false
	}
	if s.CooldownUntil != nil && s.CooldownUntil.After(now) {
		return false
	}
	return true
}
