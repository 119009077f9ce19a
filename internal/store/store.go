// Package store persists subjects, research records, and aggregated profiles.
// Two implementations exist: Postgres for shared deployments and SQLite for
// single-operator setups.
package store

import (
	"context"

	"github.com/communitas-hq/partner-research/internal/model"
)

// ProfileFilter specifies criteria for listing aggregated profiles.
type ProfileFilter struct {
	Status model.ProfileStatus `json:"status,omitempty"`
	Limit  int                 `json:"limit,omitempty"`
	Offset int                 `json:"offset,omitempty"`
}

// Store defines the persistence interface for the research pipeline.
//
// Research records are append-only: a retrigger adds records next to the old
// ones and the aggregated profile is recomputed from the full history. Record
// and profile writes are not transactional with each other; readers must not
// assume the profile reflects every record yet.
type Store interface {
	// Subjects
	UpsertSubject(ctx context.Context, subject model.Subject) error
	GetSubject(ctx context.Context, subjectID string) (*model.Subject, error)

	// Research records (append only)
	InsertResearchRecord(ctx context.Context, rec model.ResearchRecord) error
	ListRecords(ctx context.Context, subjectID string) ([]model.ResearchRecord, error)

	// Aggregated profiles (at most one row per subject)
	UpsertAggregatedProfile(ctx context.Context, profile model.AggregatedProfile) error
	// GetAggregatedProfile returns (nil, nil) when no profile exists yet.
	GetAggregatedProfile(ctx context.Context, subjectID string) (*model.AggregatedProfile, error)
	ListProfiles(ctx context.Context, filter ProfileFilter) ([]model.AggregatedProfile, error)

	// Purge removes the subject and everything derived from it.
	Purge(ctx context.Context, subjectID string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
