package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_AppendAssignsID(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Append(context.Background(), Entry{Action: "upsert_lead", Result: "success"}))

	all := store.All()
	require.Len(t, all, 1)
	assert.NotEmpty(t, all[0].ID)
}

func TestMemoryStore_FindByExecutionID_UsesAliasFallback(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, Entry{Action: "upsert_lead", MCPExecutionID: "exec-1"}))
	require.NoError(t, store.Append(ctx, Entry{Action: "log_activity", ExecutionID: "exec-1"}))
	require.NoError(t, store.Append(ctx, Entry{Action: "set_lead_score", MCPExecutionID: "exec-2"}))

	found, err := store.FindByExecutionID(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.ElementsMatch(t, []string{"upsert_lead", "log_activity"}, []string{found[0].Action, found[1].Action})
}

func TestMemoryStore_FindByExecutionID_NoMatch(t *testing.T) {
	store := NewMemoryStore()
	found, err := store.FindByExecutionID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, found)
}
