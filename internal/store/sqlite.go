package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/communitas-hq/partner-research/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS subjects (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL DEFAULT '',
	organization     TEXT NOT NULL DEFAULT '',
	profile_url      TEXT NOT NULL DEFAULT '',
	partner_category TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS research_records (
	id          TEXT PRIMARY KEY,
	subject_id  TEXT NOT NULL REFERENCES subjects(id) ON DELETE CASCADE,
	source      TEXT NOT NULL,
	success     INTEGER NOT NULL,
	payload     TEXT,
	error       TEXT NOT NULL DEFAULT '',
	error_kind  TEXT NOT NULL DEFAULT '',
	captured_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS aggregated_profiles (
	subject_id             TEXT PRIMARY KEY REFERENCES subjects(id) ON DELETE CASCADE,
	canonical_name         TEXT NOT NULL DEFAULT '',
	canonical_organization TEXT NOT NULL DEFAULT '',
	canonical_title        TEXT NOT NULL DEFAULT '',
	summary_text           TEXT NOT NULL DEFAULT '',
	sources_used           TEXT,
	field_provenance       TEXT,
	quality_score          REAL NOT NULL DEFAULT 0,
	status                 TEXT NOT NULL,
	completed_at           DATETIME,
	updated_at             DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_subject ON research_records(subject_id);
CREATE INDEX IF NOT EXISTS idx_records_subject_source ON research_records(subject_id, source, captured_at DESC);
CREATE INDEX IF NOT EXISTS idx_profiles_status ON aggregated_profiles(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertSubject(ctx context.Context, subject model.Subject) error {
	if subject.ID == "" {
		return eris.New("sqlite: subject id required")
	}

	now := time.Now().UTC()
	if subject.CreatedAt.IsZero() {
		subject.CreatedAt = now
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subjects (id, name, organization, profile_url, partner_category, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   name = excluded.name, organization = excluded.organization,
		   profile_url = excluded.profile_url, partner_category = excluded.partner_category,
		   updated_at = excluded.updated_at`,
		subject.ID, subject.Name, subject.Organization, subject.ProfileURL,
		string(subject.PartnerCategory), subject.CreatedAt, now,
	)
	return eris.Wrapf(err, "sqlite: upsert subject %s", subject.ID)
}

func (s *SQLiteStore) GetSubject(ctx context.Context, subjectID string) (*model.Subject, error) {
	var sub model.Subject
	var category string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, organization, profile_url, partner_category, created_at, updated_at
		 FROM subjects WHERE id = ?`,
		subjectID,
	).Scan(&sub.ID, &sub.Name, &sub.Organization, &sub.ProfileURL, &category, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get subject %s", subjectID)
	}
	sub.PartnerCategory = model.PartnerCategory(category)
	return &sub, nil
}

func (s *SQLiteStore) InsertResearchRecord(ctx context.Context, rec model.ResearchRecord) error {
	var payloadJSON []byte
	if rec.Payload != nil {
		var err error
		payloadJSON, err = json.Marshal(rec.Payload)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal payload")
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO research_records (id, subject_id, source, success, payload, error, error_kind, captured_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SubjectID, string(rec.Source), rec.Success,
		nullableString(payloadJSON), rec.Error, string(rec.ErrorKind), rec.CapturedAt,
	)
	return eris.Wrapf(err, "sqlite: insert record %s/%s", rec.SubjectID, rec.Source)
}

func (s *SQLiteStore) ListRecords(ctx context.Context, subjectID string) ([]model.ResearchRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subject_id, source, success, payload, error, error_kind, captured_at
		 FROM research_records WHERE subject_id = ? ORDER BY captured_at ASC`,
		subjectID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list records %s", subjectID)
	}
	defer rows.Close()

	var records []model.ResearchRecord
	for rows.Next() {
		var rec model.ResearchRecord
		var source, errorKind string
		var payloadJSON sql.NullString

		if err := rows.Scan(&rec.ID, &rec.SubjectID, &source, &rec.Success,
			&payloadJSON, &rec.Error, &errorKind, &rec.CapturedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		rec.Source = model.SourceName(source)
		rec.ErrorKind = model.ErrorKind(errorKind)
		if payloadJSON.Valid && payloadJSON.String != "" {
			rec.Payload = &model.Payload{}
			if err := json.Unmarshal([]byte(payloadJSON.String), rec.Payload); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal payload")
			}
		}
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list records iterate")
}

func (s *SQLiteStore) UpsertAggregatedProfile(ctx context.Context, profile model.AggregatedProfile) error {
	sourcesJSON, err := json.Marshal(profile.SourcesUsed)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal sources")
	}
	provenanceJSON, err := json.Marshal(profile.FieldProvenance)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal provenance")
	}

	var completedAt any
	if profile.CompletedAt != nil {
		completedAt = *profile.CompletedAt
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO aggregated_profiles
		 (subject_id, canonical_name, canonical_organization, canonical_title, summary_text,
		  sources_used, field_provenance, quality_score, status, completed_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (subject_id) DO UPDATE SET
		   canonical_name = excluded.canonical_name,
		   canonical_organization = excluded.canonical_organization,
		   canonical_title = excluded.canonical_title,
		   summary_text = excluded.summary_text,
		   sources_used = excluded.sources_used,
		   field_provenance = excluded.field_provenance,
		   quality_score = excluded.quality_score,
		   status = excluded.status,
		   completed_at = excluded.completed_at,
		   updated_at = excluded.updated_at`,
		profile.SubjectID, profile.CanonicalName, profile.CanonicalOrganization,
		profile.CanonicalTitle, profile.SummaryText, string(sourcesJSON), string(provenanceJSON),
		profile.QualityScore, string(profile.Status), completedAt, profile.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert profile %s", profile.SubjectID)
}

func (s *SQLiteStore) GetAggregatedProfile(ctx context.Context, subjectID string) (*model.AggregatedProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT subject_id, canonical_name, canonical_organization, canonical_title, summary_text,
		        sources_used, field_provenance, quality_score, status, completed_at, updated_at
		 FROM aggregated_profiles WHERE subject_id = ?`,
		subjectID,
	)

	profile, err := scanSQLiteProfile(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get profile %s", subjectID)
	}
	return profile, nil
}

func (s *SQLiteStore) ListProfiles(ctx context.Context, filter ProfileFilter) ([]model.AggregatedProfile, error) {
	query := `SELECT subject_id, canonical_name, canonical_organization, canonical_title, summary_text,
	                 sources_used, field_provenance, quality_score, status, completed_at, updated_at
	          FROM aggregated_profiles WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY updated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list profiles")
	}
	defer rows.Close()

	var profiles []model.AggregatedProfile
	for rows.Next() {
		profile, err := scanSQLiteProfile(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan profile")
		}
		profiles = append(profiles, *profile)
	}
	return profiles, eris.Wrap(rows.Err(), "sqlite: list profiles iterate")
}

func (s *SQLiteStore) Purge(ctx context.Context, subjectID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subjects WHERE id = ?`, subjectID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: purge subject %s", subjectID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: purge rows affected")
	}
	if n == 0 {
		return eris.Errorf("subject not found: %s", subjectID)
	}
	return nil
}

func scanSQLiteProfile(scan func(dest ...any) error) (*model.AggregatedProfile, error) {
	var p model.AggregatedProfile
	var status string
	var sourcesJSON, provenanceJSON sql.NullString
	var completedAt sql.NullTime

	if err := scan(&p.SubjectID, &p.CanonicalName, &p.CanonicalOrganization,
		&p.CanonicalTitle, &p.SummaryText, &sourcesJSON, &provenanceJSON,
		&p.QualityScore, &status, &completedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Status = model.ProfileStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		p.CompletedAt = &t
	}

	if sourcesJSON.Valid && sourcesJSON.String != "" {
		if err := json.Unmarshal([]byte(sourcesJSON.String), &p.SourcesUsed); err != nil {
			return nil, fmt.Errorf("unmarshal sources_used: %w", err)
		}
	}
	if provenanceJSON.Valid && provenanceJSON.String != "" {
		if err := json.Unmarshal([]byte(provenanceJSON.String), &p.FieldProvenance); err != nil {
			return nil, fmt.Errorf("unmarshal field_provenance: %w", err)
		}
	}
	return &p, nil
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
