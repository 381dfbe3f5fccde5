package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadcatalyst/core/pkg/enrichment"
	"github.com/leadcatalyst/core/pkg/lead"
)

type fakeExecutor struct {
	calls   []string
	succeed bool
}

func (f *fakeExecutor) Execute(ctx context.Context, toolName string, params map[string]any) (ToolResult, error) {
	f.calls = append(f.calls, toolName)
	if !f.succeed {
		return ToolResult{Success: false, Error: "boom"}, nil
	}
	return ToolResult{Success: true, CRMRecordID: "00Qtest123456789"}, nil
}

type noopMetrics struct{}

func (noopMetrics) MCPAction(ctx context.Context, tool, status, crmProvider string)               {}
func (noopMetrics) GroundingDecision(ctx context.Context, status string)                           {}
func (noopMetrics) RateLimitViolation(ctx context.Context, limitType string)                        {}
func (noopMetrics) SafetyBlock(ctx context.Context, tool, reason string)                            {}
func (noopMetrics) CircuitBreakerState(ctx context.Context, crmProvider, operation string, s int64) {}
func (noopMetrics) MCPActionDuration(ctx context.Context, tool, crmProvider string, seconds float64) {
}

func newTestOrchestrator(t *testing.T, exec Executor, perLeadLimit int) *Orchestrator {
	t.Helper()
	cfg := DefaultLimiterConfig()
	cfg.PerLead = TierLimit{Limit: perLeadLimit, Window: time.Minute}
	limiter := newTestLimiter(t, cfg)
	idem := newTestIdempotencyStore(t)
	return NewOrchestrator(NewGuard(), limiter, idem, NewRegistry(DefaultBreakerConfig()), exec, "mock", noopMetrics{}, nil)
}

func validAnalysis() lead.AnalysisResult {
	return lead.AnalysisResult{
		FitScore:        80,
		Intent:          lead.IntentHighFit,
		GroundingStatus: lead.GroundingValid,
	}
}

func TestOrchestrator_CompletedRunsFullPlan(t *testing.T) {
	exec := &fakeExecutor{succeed: true}
	o := newTestOrchestrator(t, exec, 10)
	l := &lead.Lead{ID: 1, Email: "a@example.com", Name: "Jane Doe"}
	company := &enrichment.Company{Name: "Acme", Industry: "Fintech"}

	decision := o.Run(context.Background(), l, validAnalysis(), company)

	require.Equal(t, OutcomeCompleted, decision.Outcome)
	assert.Contains(t, exec.calls, "upsert_lead")
	assert.Contains(t, exec.calls, "set_lead_score")
	assert.Contains(t, exec.calls, "sync_firmographics")
	assert.Contains(t, exec.calls, "log_activity")
}

func TestOrchestrator_RejectedGroundingShortCircuits(t *testing.T) {
	exec := &fakeExecutor{succeed: true}
	o := newTestOrchestrator(t, exec, 10)
	l := &lead.Lead{ID: 2, Email: "b@example.com"}

	analysis := lead.AnalysisResult{GroundingStatus: lead.GroundingRejected}
	decision := o.Run(context.Background(), l, analysis, nil)

	assert.Equal(t, OutcomeRejectedByGround, decision.Outcome)
	assert.Empty(t, exec.calls)
}

func TestOrchestrator_CriticalFailureHalts(t *testing.T) {
	exec := &fakeExecutor{succeed: false}
	o := newTestOrchestrator(t, exec, 10)
	l := &lead.Lead{ID: 3, Email: "c@example.com", Name: "Jane Doe"}

	decision := o.Run(context.Background(), l, validAnalysis(), nil)

	assert.Equal(t, OutcomeBlocked, decision.Outcome)
	assert.True(t, decision.Halt)
	assert.Equal(t, []string{"upsert_lead"}, exec.calls, "critical failure must halt before later steps")
}

func TestOrchestrator_PerLeadRateLimitOnThirdInvocation(t *testing.T) {
	exec := &fakeExecutor{succeed: true}
	o := newTestOrchestrator(t, exec, 2)
	l := &lead.Lead{ID: 4, Email: "d@example.com", Name: "Jane Doe"}

	d1 := o.Run(context.Background(), l, validAnalysis(), nil)
	d2 := o.Run(context.Background(), l, validAnalysis(), nil)
	d3 := o.Run(context.Background(), l, validAnalysis(), nil)

	assert.Equal(t, OutcomeCompleted, d1.Outcome)
	assert.Equal(t, OutcomeCompleted, d2.Outcome)
	assert.Equal(t, OutcomeRateLimited, d3.Outcome)
	assert.Contains(t, d3.Errors[0], "Per-lead rate limit exceeded")
}
