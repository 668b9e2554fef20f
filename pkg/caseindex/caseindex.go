// Package caseindex assigns stable case identities to investigation runs.
// Case identity is a Postgres upsert on a deterministic case_key, so repeated
// runs of the same incident attach to one case. Failures here never abort
// report publication.
package caseindex

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Indexer is the case index contract consumed by the pipeline.
type Indexer interface {
	// IndexIncidentRun records one run against its case. Returns whether a
	// row was stored, a short machine reason, and the case id when stored.
	IndexIncidentRun(ctx context.Context, run Run) (stored bool, reason string, caseID string)
}

// Run is the per-investigation record indexed against a case.
type Run struct {
	CaseKey        string
	AlertName      string
	Fingerprint    string
	DedupKey       string
	ReportKey      string
	Classification string
	Severity       string
	OneLiner       string
}

// Store is the pgx-backed Indexer.
type Store struct {
	pool *pgxpool.Pool
}

var _ Indexer = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS incident_cases (
	case_id        TEXT PRIMARY KEY,
	case_key       TEXT NOT NULL UNIQUE,
	alert_name     TEXT NOT NULL,
	first_seen_at  TIMESTAMPTZ NOT NULL,
	last_seen_at   TIMESTAMPTZ NOT NULL,
	run_count      INTEGER NOT NULL DEFAULT 1,
	last_report_key    TEXT,
	last_classification TEXT,
	last_severity      TEXT,
	last_one_liner     TEXT,
	resolution_category TEXT,
	resolved_at        TIMESTAMPTZ
)`

// New connects a pool and ensures the schema exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring case index schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

const upsertSQL = `
INSERT INTO incident_cases (
	case_id, case_key, alert_name, first_seen_at, last_seen_at, run_count,
	last_report_key, last_classification, last_severity, last_one_liner
) VALUES ($1, $2, $3, $4, $4, 1, $5, $6, $7, $8)
ON CONFLICT (case_key) DO UPDATE SET
	last_seen_at        = EXCLUDED.last_seen_at,
	run_count           = incident_cases.run_count + 1,
	last_report_key     = EXCLUDED.last_report_key,
	last_classification = EXCLUDED.last_classification,
	last_severity       = EXCLUDED.last_severity,
	last_one_liner      = EXCLUDED.last_one_liner
RETURNING case_id`

// IndexIncidentRun upserts the run's case. Best-effort: errors come back as
// (false, reason, "").
func (s *Store) IndexIncidentRun(ctx context.Context, run Run) (bool, string, string) {
	if run.CaseKey == "" {
		return false, "missing_case_key", ""
	}
	var caseID string
	err := s.pool.QueryRow(ctx, upsertSQL,
		uuid.New().String(),
		run.CaseKey,
		run.AlertName,
		time.Now().UTC(),
		run.ReportKey,
		run.Classification,
		run.Severity,
		run.OneLiner,
	).Scan(&caseID)
	if err != nil {
		return false, fmt.Sprintf("upsert_failed: %v", err), ""
	}
	return true, "stored", caseID
}

// Disabled is the no-op Indexer used when POSTGRES_DSN is unset.
type Disabled struct{}

var _ Indexer = Disabled{}

// IndexIncidentRun reports the index as disabled.
func (Disabled) IndexIncidentRun(context.Context, Run) (bool, string, string) {
	return false, "case_index_disabled", ""
}
