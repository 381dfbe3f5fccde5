// Package audit implements the append-only CrmSyncLog store (spec.md §3,
// §4.4), grounded on the teacher's audit.Logger/StoreLogger split: a thin
// Entry type plus a Store interface with Postgres and in-memory
// implementations, rather than the teacher's tenant-scoped event log
// (this domain has no tenant concept).
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Entry is one CrmSyncLog row. Params must already be redacted by the
// caller (pkg/mcp.Redactor) before being stored — the store itself never
// redacts, it only persists.
type Entry struct {
	ID             string
	Action         string
	EntityType     string
	EntityID       *string
	Params         map[string]any
	Result         string
	MCPExecutionID string
	IdempotencyKey *string
	Mock           bool
	LeadID         *int64
	DurationMs     int64
	ErrorMsg       string
	Timestamp      time.Time

	ExecutionID string // alias kept for callers that set it before MCPExecutionID is known
}

// Store is the append/fetch boundary over CrmSyncLog.
type Store interface {
	Append(ctx context.Context, e Entry) error
	FindByExecutionID(ctx context.Context, executionID string) ([]Entry, error)
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS crm_sync_log (
	id               TEXT PRIMARY KEY,
	action           TEXT NOT NULL,
	entity_type      TEXT NOT NULL DEFAULT '',
	entity_id        TEXT,
	params           JSONB NOT NULL DEFAULT '{}',
	result           TEXT NOT NULL,
	mcp_execution_id TEXT NOT NULL,
	idempotency_key  TEXT,
	mock             BOOLEAN NOT NULL DEFAULT false,
	lead_id          BIGINT,
	duration_ms      BIGINT NOT NULL DEFAULT 0,
	error_message    TEXT,
	"timestamp"      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_crm_sync_log_execution ON crm_sync_log (mcp_execution_id);
CREATE INDEX IF NOT EXISTS idx_crm_sync_log_lead ON crm_sync_log (lead_id);
`

// PostgresStore persists CrmSyncLog rows via database/sql + lib/pq,
// matching pkg/lead.PostgresStore's direct-SQL, no-ORM boundary.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-opened *sql.DB.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the crm_sync_log table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, pgSchema)
	if err != nil {
		return fmt.Errorf("audit: ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	execID := e.MCPExecutionID
	if execID == "" {
		execID = e.ExecutionID
	}
	paramsJSON, err := json.Marshal(e.Params)
	if err != nil {
		return fmt.Errorf("audit: marshal params: %w", err)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO crm_sync_log
			(id, action, entity_type, entity_id, params, result, mcp_execution_id,
			 idempotency_key, mock, lead_id, duration_ms, error_message, "timestamp")
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, e.ID, e.Action, e.EntityType, e.EntityID, paramsJSON, e.Result, execID,
		e.IdempotencyKey, e.Mock, e.LeadID, e.DurationMs, nullableString(e.ErrorMsg), e.Timestamp)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByExecutionID(ctx context.Context, executionID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, entity_type, entity_id, params, result, mcp_execution_id,
		       idempotency_key, mock, lead_id, duration_ms, error_message, "timestamp"
		FROM crm_sync_log WHERE mcp_execution_id = $1 ORDER BY "timestamp" ASC
	`, executionID)
	if err != nil {
		return nil, fmt.Errorf("audit: query by execution id: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var paramsJSON []byte
		var errMsg sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &e.EntityType, &e.EntityID, &paramsJSON, &e.Result,
			&e.MCPExecutionID, &e.IdempotencyKey, &e.Mock, &e.LeadID, &e.DurationMs, &errMsg, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("audit: scan row: %w", err)
		}
		if errMsg.Valid {
			e.ErrorMsg = errMsg.String
		}
		if len(paramsJSON) > 0 {
			_ = json.Unmarshal(paramsJSON, &e.Params)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
