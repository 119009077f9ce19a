package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/communitas-hq/partner-research/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it in
// tests.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot-path store operations.
var preparedStatements = map[string]string{
	"insert_record":  `INSERT INTO research_records (id, subject_id, source, success, payload, error, error_kind, captured_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"list_records":   `SELECT id, subject_id, source, success, payload, error, error_kind, captured_at FROM research_records WHERE subject_id = $1 ORDER BY captured_at ASC`,
	"get_subject":    `SELECT id, name, organization, profile_url, partner_category, created_at, updated_at FROM subjects WHERE id = $1`,
	"get_profile":    `SELECT subject_id, canonical_name, canonical_organization, canonical_title, summary_text, sources_used, field_provenance, quality_score, status, completed_at, updated_at FROM aggregated_profiles WHERE subject_id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool; used by tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS subjects (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL DEFAULT '',
	organization     TEXT NOT NULL DEFAULT '',
	profile_url      TEXT NOT NULL DEFAULT '',
	partner_category TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS research_records (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	subject_id  TEXT NOT NULL REFERENCES subjects(id) ON DELETE CASCADE,
	source      TEXT NOT NULL,
	success     BOOLEAN NOT NULL,
	payload     JSONB,
	error       TEXT NOT NULL DEFAULT '',
	error_kind  TEXT NOT NULL DEFAULT '',
	captured_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS aggregated_profiles (
	subject_id             TEXT PRIMARY KEY REFERENCES subjects(id) ON DELETE CASCADE,
	canonical_name         TEXT NOT NULL DEFAULT '',
	canonical_organization TEXT NOT NULL DEFAULT '',
	canonical_title        TEXT NOT NULL DEFAULT '',
	summary_text           TEXT NOT NULL DEFAULT '',
	sources_used           JSONB,
	field_provenance       JSONB,
	quality_score          DOUBLE PRECISION NOT NULL DEFAULT 0,
	status                 TEXT NOT NULL,
	completed_at           TIMESTAMPTZ,
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_records_subject ON research_records(subject_id);
CREATE INDEX IF NOT EXISTS idx_records_subject_source ON research_records(subject_id, source, captured_at DESC);
CREATE INDEX IF NOT EXISTS idx_profiles_status ON aggregated_profiles(status);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) UpsertSubject(ctx context.Context, subject model.Subject) error {
	if subject.ID == "" {
		return eris.New("postgres: subject id required")
	}

	now := time.Now().UTC()
	if subject.CreatedAt.IsZero() {
		subject.CreatedAt = now
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO subjects (id, name, organization, profile_url, partner_category, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		   name = $2, organization = $3, profile_url = $4, partner_category = $5, updated_at = $7`,
		subject.ID, subject.Name, subject.Organization, subject.ProfileURL,
		string(subject.PartnerCategory), subject.CreatedAt, now,
	)
	return eris.Wrapf(err, "postgres: upsert subject %s", subject.ID)
}

func (s *PostgresStore) GetSubject(ctx context.Context, subjectID string) (*model.Subject, error) {
	var sub model.Subject
	var category string

	err := s.pool.QueryRow(ctx,
		`SELECT id, name, organization, profile_url, partner_category, created_at, updated_at
		 FROM subjects WHERE id = $1`,
		subjectID,
	).Scan(&sub.ID, &sub.Name, &sub.Organization, &sub.ProfileURL, &category, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get subject %s", subjectID)
	}
	sub.PartnerCategory = model.PartnerCategory(category)
	return &sub, nil
}

func (s *PostgresStore) InsertResearchRecord(ctx context.Context, rec model.ResearchRecord) error {
	var payloadJSON []byte
	if rec.Payload != nil {
		var err error
		payloadJSON, err = json.Marshal(rec.Payload)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal payload")
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO research_records (id, subject_id, source, success, payload, error, error_kind, captured_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.SubjectID, string(rec.Source), rec.Success,
		payloadJSON, rec.Error, string(rec.ErrorKind), rec.CapturedAt,
	)
	return eris.Wrapf(err, "postgres: insert record %s/%s", rec.SubjectID, rec.Source)
}

func (s *PostgresStore) ListRecords(ctx context.Context, subjectID string) ([]model.ResearchRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, subject_id, source, success, payload, error, error_kind, captured_at
		 FROM research_records WHERE subject_id = $1 ORDER BY captured_at ASC`,
		subjectID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list records %s", subjectID)
	}
	defer rows.Close()

	var records []model.ResearchRecord
	for rows.Next() {
		var rec model.ResearchRecord
		var source, errorKind string
		var payloadJSON []byte

		if err := rows.Scan(&rec.ID, &rec.SubjectID, &source, &rec.Success,
			&payloadJSON, &rec.Error, &errorKind, &rec.CapturedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		rec.Source = model.SourceName(source)
		rec.ErrorKind = model.ErrorKind(errorKind)
		if len(payloadJSON) > 0 {
			rec.Payload = &model.Payload{}
			if err := json.Unmarshal(payloadJSON, rec.Payload); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal payload")
			}
		}
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list records iterate")
}

func (s *PostgresStore) UpsertAggregatedProfile(ctx context.Context, profile model.AggregatedProfile) error {
	sourcesJSON, err := json.Marshal(profile.SourcesUsed)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal sources")
	}
	provenanceJSON, err := json.Marshal(profile.FieldProvenance)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal provenance")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO aggregated_profiles
		 (subject_id, canonical_name, canonical_organization, canonical_title, summary_text,
		  sources_used, field_provenance, quality_score, status, completed_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (subject_id) DO UPDATE SET
		   canonical_name = $2, canonical_organization = $3, canonical_title = $4,
		   summary_text = $5, sources_used = $6, field_provenance = $7,
		   quality_score = $8, status = $9, completed_at = $10, updated_at = $11`,
		profile.SubjectID, profile.CanonicalName, profile.CanonicalOrganization,
		profile.CanonicalTitle, profile.SummaryText, sourcesJSON, provenanceJSON,
		profile.QualityScore, string(profile.Status), profile.CompletedAt, profile.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert profile %s", profile.SubjectID)
}

func (s *PostgresStore) GetAggregatedProfile(ctx context.Context, subjectID string) (*model.AggregatedProfile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT subject_id, canonical_name, canonical_organization, canonical_title, summary_text,
		        sources_used, field_provenance, quality_score, status, completed_at, updated_at
		 FROM aggregated_profiles WHERE subject_id = $1`,
		subjectID,
	)

	profile, err := scanProfileRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get profile %s", subjectID)
	}
	return profile, nil
}

func (s *PostgresStore) ListProfiles(ctx context.Context, filter ProfileFilter) ([]model.AggregatedProfile, error) {
	query := `SELECT subject_id, canonical_name, canonical_organization, canonical_title, summary_text,
	                 sources_used, field_provenance, quality_score, status, completed_at, updated_at
	          FROM aggregated_profiles WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY updated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list profiles")
	}
	defer rows.Close()

	var profiles []model.AggregatedProfile
	for rows.Next() {
		profile, err := scanProfileRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan profile")
		}
		profiles = append(profiles, *profile)
	}
	return profiles, eris.Wrap(rows.Err(), "postgres: list profiles iterate")
}

// Purge removes the subject row; records and the profile follow via cascade.
func (s *PostgresStore) Purge(ctx context.Context, subjectID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM subjects WHERE id = $1`, subjectID)
	if err != nil {
		return eris.Wrapf(err, "postgres: purge subject %s", subjectID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("subject not found: %s", subjectID)
	}
	return nil
}

// scanProfileRow decodes one aggregated_profiles row from either a pgx.Row or
// pgx.Rows.
func scanProfileRow(row pgx.Row) (*model.AggregatedProfile, error) {
	var p model.AggregatedProfile
	var status string
	var sourcesJSON, provenanceJSON []byte

	if err := row.Scan(&p.SubjectID, &p.CanonicalName, &p.CanonicalOrganization,
		&p.CanonicalTitle, &p.SummaryText, &sourcesJSON, &provenanceJSON,
		&p.QualityScore, &status, &p.CompletedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Status = model.ProfileStatus(status)

	if len(sourcesJSON) > 0 {
		if err := json.Unmarshal(sourcesJSON, &p.SourcesUsed); err != nil {
			return nil, eris.Wrap(err, "unmarshal sources_used")
		}
	}
	if len(provenanceJSON) > 0 {
		if err := json.Unmarshal(provenanceJSON, &p.FieldProvenance); err != nil {
			return nil, eris.Wrap(err, "unmarshal field_provenance")
		}
	}
	return &p, nil
}
