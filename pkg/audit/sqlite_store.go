package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS crm_sync_log (
	id               TEXT PRIMARY KEY,
	action           TEXT NOT NULL,
	entity_type      TEXT NOT NULL DEFAULT '',
	entity_id        TEXT,
	params           TEXT NOT NULL DEFAULT '{}',
	result           TEXT NOT NULL,
	mcp_execution_id TEXT NOT NULL,
	idempotency_key  TEXT,
	mock             INTEGER NOT NULL DEFAULT 0,
	lead_id          INTEGER,
	duration_ms      INTEGER NOT NULL DEFAULT 0,
	error_message    TEXT,
	timestamp        DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_crm_sync_log_execution_sqlite ON crm_sync_log (mcp_execution_id);
CREATE INDEX IF NOT EXISTS idx_crm_sync_log_lead_sqlite ON crm_sync_log (lead_id);
`

// SQLiteStore is the lite-mode audit Store, mirroring pkg/lead.SQLiteStore's
// fallback role: a single-file CrmSyncLog for deployments with no Postgres
// configured.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an already-opened *sql.DB (driver "sqlite").
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// EnsureSchema creates the crm_sync_log table if it does not exist.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	if err != nil {
		return fmt.Errorf("audit: ensure sqlite schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, e Entry) error {
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
			 idempotency_key, mock, lead_id, duration_ms, error_message, timestamp)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
	`, e.ID, e.Action, e.EntityType, e.EntityID, paramsJSON, e.Result, execID,
		e.IdempotencyKey, e.Mock, e.LeadID, e.DurationMs, nullableString(e.ErrorMsg), e.Timestamp)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FindByExecutionID(ctx context.Context, executionID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, entity_type, entity_id, params, result, mcp_execution_id,
		       idempotency_key, mock, lead_id, duration_ms, error_message, timestamp
		FROM crm_sync_log WHERE mcp_execution_id = ? ORDER BY timestamp ASC
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
