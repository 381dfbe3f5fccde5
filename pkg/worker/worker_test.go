package worker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/leadcatalyst/core/pkg/ai"
	"github.com/leadcatalyst/core/pkg/audit"
	"github.com/leadcatalyst/core/pkg/enrichment"
	"github.com/leadcatalyst/core/pkg/lead"
	"github.com/leadcatalyst/core/pkg/mcp"
	"github.com/leadcatalyst/core/pkg/metrics"
	"github.com/leadcatalyst/core/pkg/queue"
	"github.com/leadcatalyst/core/pkg/tools"
)

func newTestWorker(t *testing.T, enr enrichment.Provider) (*Worker, lead.Store) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	reg := tools.NewRegistry()
	require.NoError(t, reg.RegisterRequiredTools())
	executor := tools.NewMockExecutor(reg, audit.NewMemoryStore(), "mock", nil)

	limiter := mcp.NewRateLimiter(rdb, mcp.DefaultLimiterConfig(), nil)
	idem := mcp.NewStore(rdb, nil)
	breakers := mcp.NewRegistry(mcp.DefaultBreakerConfig())
	rec, err := metrics.New()
	require.NoError(t, err)

	orch := mcp.NewOrchestrator(mcp.NewGuard(), limiter, idem, breakers, executor, "mock", rec, nil)

	leadStore := lead.NewMemoryStore()
	w := New(queue.New(rdb), leadStore, enr, ai.NewStubProvider(), orch, rec, nil, 1)
	return w, leadStore
}

func TestProcessJob_HighFitLeadSyncsToCRM(t *testing.T) {
	companies := map[string]enrichment.Company{
		"acme.com": {Name: "Acme", Domain: "acme.com", Industry: "Fintech"},
	}
	w, store := newTestWorker(t, enrichment.NewStaticProvider(companies))

	l := &lead.Lead{IdempotencyKey: "k1", Email: "jane@acme.com", CampaignID: "spring", Name: "Jane Doe", Status: lead.StatusPending}
	require.NoError(t, store.Create(context.Background(), l))

	job := &queue.Job{Data: queue.Payload{LeadID: l.ID}}
	err := w.processJob(context.Background(), job)
	require.NoError(t, err)

	saved, err := store.FindByID(context.Background(), l.ID)
	require.NoError(t, err)
	require.Equal(t, lead.StatusSyncedToCRM, saved.Status)
	require.Equal(t, lead.GroundingValid, saved.GroundingStatus)
}

func TestProcessJob_NoEnrichmentStillEnrichesAndSyncs(t *testing.T) {
	w, store := newTestWorker(t, enrichment.NewStaticProvider(nil))

	l := &lead.Lead{IdempotencyKey: "k2", Email: "bob@example.com", CampaignID: "spring", Status: lead.StatusPending}
	require.NoError(t, store.Create(context.Background(), l))

	job := &queue.Job{Data: queue.Payload{LeadID: l.ID}}
	err := w.processJob(context.Background(), job)
	require.NoError(t, err)

	saved, err := store.FindByID(context.Background(), l.ID)
	require.NoError(t, err)
	require.Equal(t, lead.StatusSyncedToCRM, saved.Status)
	require.Equal(t, 40, saved.FitScore)
}

func TestProcessJob_MissingLeadIsSkippedSilently(t *testing.T) {
	w, _ := newTestWorker(t, enrichment.NewStaticProvider(nil))

	job := &queue.Job{Data: queue.Payload{LeadID: 9999}}
	err := w.processJob(context.Background(), job)
	require.NoError(t, err)
}

func TestOnExhausted_MarksLeadPermanentlyFailed(t *testing.T) {
	w, store := newTestWorker(t, enrichment.NewStaticProvider(nil))

	l := &lead.Lead{IdempotencyKey: "k3", Email: "carl@example.com", CampaignID: "spring", Status: lead.StatusPending}
	require.NoError(t, store.Create(context.Background(), l))

	w.onExhausted(context.Background(), &queue.Job{}, queue.DLQEntry{LeadID: l.ID, AttemptsMade: 5})

	saved, err := store.FindByID(context.Background(), l.ID)
	require.NoError(t, err)
	require.Equal(t, lead.StatusPermanentlyFailed, saved.Status)
}

func TestRun_StopSignalEndsLeaseLoops(t *testing.T) {
	w, _ := newTestWorker(t, enrichment.NewStaticProvider(nil))

	done := make(chan struct{})
	go func() {
		_ = w.Run(context.Background())
		close(done)
	}()

	w.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after Stop()")
	}
}
