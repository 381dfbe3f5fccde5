package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadcatalyst/core/pkg/audit"
	"github.com/leadcatalyst/core/pkg/metrics"
)

func TestMockExecutor_ExecuteSucceedsAndAudits(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterRequiredTools())
	store := audit.NewMemoryStore()
	exec := NewMockExecutor(reg, store, "mock", nil)

	result, err := exec.Execute(context.Background(), "upsert_lead", map[string]any{
		"email": "jane@example.com", "firstName": "Jane",
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.CRMRecordID)
	assert.True(t, result.Mock)

	entries := store.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "upsert_lead", entries[0].Action)
}

func TestMockExecutor_RecordsCRMAPIDurationWhenMetricsWired(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterRequiredTools())
	rec, err := metrics.New()
	require.NoError(t, err)
	exec := NewMockExecutor(reg, audit.NewMemoryStore(), "mock", rec)

	result, err := exec.Execute(context.Background(), "upsert_lead", map[string]any{
		"email": "jane@example.com", "firstName": "Jane",
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestMockExecutor_SchemaFailureIsClientFaultAndDoesNotMutate(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterRequiredTools())
	store := audit.NewMemoryStore()
	exec := NewMockExecutor(reg, store, "mock", nil)

	result, err := exec.Execute(context.Background(), "upsert_lead", map[string]any{"firstName": "Jane"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.True(t, result.ClientFault)
	assert.Empty(t, result.CRMRecordID)
}

func TestMockExecutor_UnknownToolIsClientFault(t *testing.T) {
	reg := NewRegistry()
	exec := NewMockExecutor(reg, audit.NewMemoryStore(), "mock", nil)

	result, err := exec.Execute(context.Background(), "not_a_real_tool", map[string]any{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.True(t, result.ClientFault)
}
