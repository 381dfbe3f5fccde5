package audit

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore_Append(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	leadID := int64(7)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO crm_sync_log")).
		WithArgs(sqlmock.AnyArg(), "upsert_lead", "Lead", nil, sqlmock.AnyArg(), "success",
			"exec-123", nil, true, &leadID, int64(150), nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = store.Append(context.Background(), Entry{
		Action:         "upsert_lead",
		EntityType:     "Lead",
		Params:         map[string]any{"email": "j***@example.com"},
		Result:         "success",
		MCPExecutionID: "exec-123",
		Mock:           true,
		LeadID:         &leadID,
		DurationMs:     150,
	})
	assert.NoError(t, err)
}

func TestPostgresStore_Append_FallsBackToExecutionIDAlias(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO crm_sync_log")).
		WithArgs(sqlmock.AnyArg(), "log_activity", "", nil, sqlmock.AnyArg(), "success",
			"exec-from-alias", nil, false, nil, int64(0), nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = store.Append(context.Background(), Entry{
		Action:      "log_activity",
		Result:      "success",
		ExecutionID: "exec-from-alias",
	})
	assert.NoError(t, err)
}

func TestPostgresStore_FindByExecutionID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "action", "entity_type", "entity_id", "params", "result", "mcp_execution_id",
		"idempotency_key", "mock", "lead_id", "duration_ms", "error_message", "timestamp",
	}).AddRow("entry-1", "upsert_lead", "Lead", nil, []byte(`{"email":"j***@example.com"}`), "success",
		"exec-123", nil, true, int64(7), int64(150), nil, now)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, action, entity_type")).
		WithArgs("exec-123").
		WillReturnRows(rows)

	entries, err := store.FindByExecutionID(context.Background(), "exec-123")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "upsert_lead", entries[0].Action)
	assert.Equal(t, "j***@example.com", entries[0].Params["email"])
	require.NotNil(t, entries[0].LeadID)
	assert.Equal(t, int64(7), *entries[0].LeadID)
}

func TestPostgresStore_EnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS crm_sync_log")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, store.EnsureSchema(context.Background()))
}
