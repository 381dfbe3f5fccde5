package lead

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "leads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := NewSQLiteStore(db)
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

func TestSQLiteStore_CreateFindSave(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	l := &Lead{IdempotencyKey: "k1", Email: "a@example.com", CampaignID: "spring", Status: StatusPending}
	require.NoError(t, store.Create(ctx, l))
	require.NotZero(t, l.ID)

	found, err := store.FindByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, found.Status)

	found.Status = StatusEnriched
	found.FitScore = 70
	found.Evidence = []Evidence{{Source: SourceProduct, FieldPath: "x", Value: "y", ClaimType: ClaimBehavior}}
	require.NoError(t, store.Save(ctx, found))

	reloaded, err := store.FindByIdempotencyKey(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, StatusEnriched, reloaded.Status)
	assert.Equal(t, 70, reloaded.FitScore)
	require.Len(t, reloaded.Evidence, 1)
}

func TestSQLiteStore_FindByID_NotFound(t *testing.T) {
	store := newTestSQLiteStore(t)
	_, err := store.FindByID(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_Save_UnknownIDFails(t *testing.T) {
	store := newTestSQLiteStore(t)
	err := store.Save(context.Background(), &Lead{ID: 999, Status: StatusPending})
	assert.ErrorIs(t, err, ErrNotFound)
}
