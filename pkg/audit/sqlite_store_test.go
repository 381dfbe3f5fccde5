package audit

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteAuditStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := NewSQLiteStore(db)
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

func TestSQLiteStore_AppendAndFindByExecutionID(t *testing.T) {
	store := newTestSQLiteAuditStore(t)
	ctx := context.Background()
	leadID := int64(5)

	require.NoError(t, store.Append(ctx, Entry{
		Action: "upsert_lead", Result: "success", MCPExecutionID: "exec-9",
		Params: map[string]any{"email": "j***@example.com"}, LeadID: &leadID,
	}))
	require.NoError(t, store.Append(ctx, Entry{
		Action: "log_activity", Result: "success", MCPExecutionID: "exec-9",
	}))
	require.NoError(t, store.Append(ctx, Entry{
		Action: "set_lead_score", Result: "success", MCPExecutionID: "exec-other",
	}))

	found, err := store.FindByExecutionID(ctx, "exec-9")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "upsert_lead", found[0].Action)
	assert.Equal(t, "j***@example.com", found[0].Params["email"])
}
