package lead

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the lite-mode Store, used by the worker and ingress
// binaries when no Postgres DSN is configured (a single-file local
// deployment, mirroring the teacher's lite-mode fallback). It implements
// the same Store contract as PostgresStore against SQLite's "?"
// placeholder dialect.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an already-opened *sql.DB (driver "sqlite").
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS leads (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	idempotency_key TEXT UNIQUE NOT NULL,
	email TEXT NOT NULL,
	campaign_id TEXT NOT NULL,
	name TEXT,
	enrichment_data TEXT,
	status TEXT NOT NULL,
	fit_score INTEGER,
	intent TEXT,
	reasoning TEXT,
	evidence TEXT,
	grounding_status TEXT,
	grounding_errors TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
`

// EnsureSchema creates the leads table if it does not already exist.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return err
}

func (s *SQLiteStore) Create(ctx context.Context, l *Lead) error {
	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now

	enrichment, err := marshalOrNil(l.EnrichmentData)
	if err != nil {
		return fmt.Errorf("lead: marshal enrichment: %w", err)
	}
	evidence, err := marshalOrNil(l.Evidence)
	if err != nil {
		return fmt.Errorf("lead: marshal evidence: %w", err)
	}
	groundingErrors, err := marshalOrNil(l.GroundingErrors)
	if err != nil {
		return fmt.Errorf("lead: marshal grounding errors: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO leads (idempotency_key, email, campaign_id, name, enrichment_data, status,
			fit_score, intent, reasoning, evidence, grounding_status, grounding_errors, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`, l.IdempotencyKey, l.Email, l.CampaignID, l.Name, enrichment, l.Status,
		l.FitScore, l.Intent, l.Reasoning, evidence, l.GroundingStatus, groundingErrors,
		l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	l.ID = id
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, l *Lead) error {
	l.UpdatedAt = time.Now().UTC()

	enrichment, err := marshalOrNil(l.EnrichmentData)
	if err != nil {
		return fmt.Errorf("lead: marshal enrichment: %w", err)
	}
	evidence, err := marshalOrNil(l.Evidence)
	if err != nil {
		return fmt.Errorf("lead: marshal evidence: %w", err)
	}
	groundingErrors, err := marshalOrNil(l.GroundingErrors)
	if err != nil {
		return fmt.Errorf("lead: marshal grounding errors: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE leads SET
			enrichment_data=?, status=?, fit_score=?, intent=?, reasoning=?,
			evidence=?, grounding_status=?, grounding_errors=?, updated_at=?
		WHERE id=?
	`, enrichment, l.Status, l.FitScore, l.Intent, l.Reasoning,
		evidence, l.GroundingStatus, groundingErrors, l.UpdatedAt, l.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) FindByID(ctx context.Context, id int64) (*Lead, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, idempotency_key, email, campaign_id, name, enrichment_data, status,
			fit_score, intent, reasoning, evidence, grounding_status, grounding_errors, created_at, updated_at
		FROM leads WHERE id=?`, id)
	return scanLead(row)
}

func (s *SQLiteStore) FindByIdempotencyKey(ctx context.Context, key string) (*Lead, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, idempotency_key, email, campaign_id, name, enrichment_data, status,
			fit_score, intent, reasoning, evidence, grounding_status, grounding_errors, created_at, updated_at
		FROM leads WHERE idempotency_key=?`, key)
	return scanLead(row)
}
