package lead

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a lookup finds no matching Lead.
var ErrNotFound = errors.New("lead: not found")

// pqUniqueViolation is the Postgres SQLSTATE for a unique-constraint
// violation (23505).
const pqUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation, e.g. a concurrent Create racing on idempotency_key. Callers
// should fall back to FindByIdempotencyKey rather than surface this as a
// failure.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return false
}

// Store is the data-access boundary the core depends on. The core never
// talks to database/sql or an ORM directly — only this interface, per the
// teacher's "explicit data-access boundary" pattern (spec.md §9).
type Store interface {
	FindByID(ctx context.Context, id int64) (*Lead, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*Lead, error)
	Create(ctx context.Context, l *Lead) error
	Save(ctx context.Context, l *Lead) error
}

// PostgresStore is the production Store, backed by database/sql + lib/pq.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-opened *sql.DB (driver "postgres").
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS leads (
	id BIGSERIAL PRIMARY KEY,
	idempotency_key TEXT UNIQUE NOT NULL,
	email TEXT NOT NULL,
	campaign_id TEXT NOT NULL,
	name TEXT,
	enrichment_data JSONB,
	status TEXT NOT NULL,
	fit_score INTEGER,
	intent TEXT,
	reasoning TEXT,
	evidence JSONB,
	grounding_status TEXT,
	grounding_errors JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema creates the leads table if it does not already exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, pgSchema)
	return err
}

// Create inserts a new Lead with the status the caller set and fills in its
// ID. Invariant 1 (spec.md §3):
// a unique-constraint violation on idempotency_key means another ingest
// already created the row — callers should fall back to FindByIdempotencyKey.
func (s *PostgresStore) Create(ctx context.Context, l *Lead) error {
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

	query := `
		INSERT INTO leads (idempotency_key, email, campaign_id, name, enrichment_data, status,
			fit_score, intent, reasoning, evidence, grounding_status, grounding_errors, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING id
	`
	return s.db.QueryRowContext(ctx, query,
		l.IdempotencyKey, l.Email, l.CampaignID, l.Name, enrichment, l.Status,
		l.FitScore, l.Intent, l.Reasoning, evidence, l.GroundingStatus, groundingErrors,
		l.CreatedAt, l.UpdatedAt,
	).Scan(&l.ID)
}

// Save persists mutations to an existing Lead. Only the worker mutates a
// Lead after creation (invariant 2, spec.md §3).
func (s *PostgresStore) Save(ctx context.Context, l *Lead) error {
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

	query := `
		UPDATE leads SET
			enrichment_data=$1, status=$2, fit_score=$3, intent=$4, reasoning=$5,
			evidence=$6, grounding_status=$7, grounding_errors=$8, updated_at=$9
		WHERE id=$10
	`
	res, err := s.db.ExecContext(ctx, query,
		enrichment, l.Status, l.FitScore, l.Intent, l.Reasoning,
		evidence, l.GroundingStatus, groundingErrors, l.UpdatedAt, l.ID,
	)
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

func (s *PostgresStore) FindByID(ctx context.Context, id int64) (*Lead, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, idempotency_key, email, campaign_id, name, enrichment_data, status,
			fit_score, intent, reasoning, evidence, grounding_status, grounding_errors, created_at, updated_at
		FROM leads WHERE id=$1`, id)
	return scanLead(row)
}

func (s *PostgresStore) FindByIdempotencyKey(ctx context.Context, key string) (*Lead, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, idempotency_key, email, campaign_id, name, enrichment_data, status,
			fit_score, intent, reasoning, evidence, grounding_status, grounding_errors, created_at, updated_at
		FROM leads WHERE idempotency_key=$1`, key)
	return scanLead(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (*Lead, error) {
	var l Lead
	var name sql.NullString
	var enrichment, evidence, groundingErrors []byte
	var intent, groundingStatus sql.NullString

	err := row.Scan(&l.ID, &l.IdempotencyKey, &l.Email, &l.CampaignID, &name, &enrichment, &l.Status,
		&l.FitScore, &intent, &l.Reasoning, &evidence, &groundingStatus, &groundingErrors, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	l.Name = name.String
	l.Intent = Intent(intent.String)
	l.GroundingStatus = GroundingStatus(groundingStatus.String)

	if len(enrichment) > 0 {
		if err := json.Unmarshal(enrichment, &l.EnrichmentData); err != nil {
			return nil, fmt.Errorf("lead: unmarshal enrichment: %w", err)
		}
	}
	if len(evidence) > 0 {
		if err := json.Unmarshal(evidence, &l.Evidence); err != nil {
			return nil, fmt.Errorf("lead: unmarshal evidence: %w", err)
		}
	}
	if len(groundingErrors) > 0 {
		if err := json.Unmarshal(groundingErrors, &l.GroundingErrors); err != nil {
			return nil, fmt.Errorf("lead: unmarshal grounding errors: %w", err)
		}
	}
	return &l, nil
}

func marshalOrNil(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case []Evidence:
		if len(t) == 0 {
			return nil, nil
		}
	case []string:
		if len(t) == 0 {
			return nil, nil
		}
	case map[string]any:
		if len(t) == 0 {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

// MemoryStore is an in-process Store used by tests and local/demo runs
// that don't have a Postgres instance handy.
type MemoryStore struct {
	mu       sync.Mutex
	byID     map[int64]*Lead
	byKey    map[string]int64
	nextID   int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[int64]*Lead),
		byKey: make(map[string]int64),
	}
}

func (s *MemoryStore) Create(ctx context.Context, l *Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byKey[l.IdempotencyKey]; exists {
		return fmt.Errorf("lead: idempotency key %q already exists", l.IdempotencyKey)
	}
	s.nextID++
	l.ID = s.nextID
	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now
	cp := *l
	s.byID[l.ID] = &cp
	s.byKey[l.IdempotencyKey] = l.ID
	return nil
}

func (s *MemoryStore) Save(ctx context.Context, l *Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[l.ID]; !exists {
		return ErrNotFound
	}
	l.UpdatedAt = time.Now().UTC()
	cp := *l
	s.byID[l.ID] = &cp
	return nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id int64) (*Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *MemoryStore) FindByIdempotencyKey(ctx context.Context, key string) (*Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byKey[key]
	if !ok {
		return nil, ErrNotFound
	}
	l := s.byID[id]
	cp := *l
	return &cp, nil
}
