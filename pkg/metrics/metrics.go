// Package metrics instruments the core with the counters, gauges, and
// histograms named in spec.md §6. The exposition format (Prometheus text,
// OTLP, etc.) is an external collaborator's concern — this package only
// creates and records instruments against the OpenTelemetry Meter API,
// mirroring pkg/observability's RED-metrics pattern in the teacher without
// pulling in its OTLP exporter wiring.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Recorder holds every instrument the core emits. Construct one with New
// and pass it through to the worker, MCP orchestrator, and tool registry —
// matching the teacher's "explicit handles passed through the orchestrator"
// pattern (spec.md §9) rather than a mutable package-level singleton.
type Recorder struct {
	meter metric.Meter

	leadsProcessedTotal     metric.Int64Counter
	mcpActionsTotal         metric.Int64Counter
	groundingDecisionsTotal metric.Int64Counter
	rateLimitViolations     metric.Int64Counter
	safetyBlocksTotal       metric.Int64Counter

	circuitBreakerState metric.Int64Gauge

	aiAnalysisDuration  metric.Float64Histogram
	mcpActionDuration   metric.Float64Histogram
	crmAPIDuration      metric.Float64Histogram
}

// New creates a Recorder backed by a local (non-exporting) MeterProvider.
// Callers that need a real exposition pipeline can instead pass a
// provider obtained from their own OTLP/Prometheus wiring via NewWithMeter.
func New() (*Recorder, error) {
	mp := sdkmetric.NewMeterProvider()
	return NewWithMeter(mp.Meter("leadcatalyst"))
}

// NewWithMeter builds a Recorder against an externally supplied Meter.
func NewWithMeter(meter metric.Meter) (*Recorder, error) {
	r := &Recorder{meter: meter}

	var err error
	if r.leadsProcessedTotal, err = meter.Int64Counter("leads_processed_total"); err != nil {
		return nil, err
	}
	if r.mcpActionsTotal, err = meter.Int64Counter("mcp_actions_total"); err != nil {
		return nil, err
	}
	if r.groundingDecisionsTotal, err = meter.Int64Counter("mcp_grounding_decisions_total"); err != nil {
		return nil, err
	}
	if r.rateLimitViolations, err = meter.Int64Counter("mcp_rate_limit_violations_total"); err != nil {
		return nil, err
	}
	if r.safetyBlocksTotal, err = meter.Int64Counter("mcp_safety_blocks_total"); err != nil {
		return nil, err
	}
	if r.circuitBreakerState, err = meter.Int64Gauge("mcp_circuit_breaker_state"); err != nil {
		return nil, err
	}
	if r.aiAnalysisDuration, err = meter.Float64Histogram("ai_analysis_duration_seconds"); err != nil {
		return nil, err
	}
	if r.mcpActionDuration, err = meter.Float64Histogram("mcp_action_duration_seconds"); err != nil {
		return nil, err
	}
	if r.crmAPIDuration, err = meter.Float64Histogram("mcp_crm_api_duration_seconds"); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Recorder) LeadProcessed(ctx context.Context, status string) {
	r.leadsProcessedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (r *Recorder) MCPAction(ctx context.Context, tool, status, crmProvider string) {
	r.mcpActionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool), attribute.String("status", status), attribute.String("crm_provider", crmProvider),
	))
}

func (r *Recorder) GroundingDecision(ctx context.Context, status string) {
	r.groundingDecisionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (r *Recorder) RateLimitViolation(ctx context.Context, limitType string) {
	r.rateLimitViolations.Add(ctx, 1, metric.WithAttributes(attribute.String("limit_type", limitType)))
}

func (r *Recorder) SafetyBlock(ctx context.Context, tool, reason string) {
	r.safetyBlocksTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", tool), attribute.String("reason", reason)))
}

// CircuitBreakerState records 0=closed, 1=half-open, 2=open.
func (r *Recorder) CircuitBreakerState(ctx context.Context, crmProvider, operation string, state int64) {
	r.circuitBreakerState.Record(ctx, state, metric.WithAttributes(
		attribute.String("crm_provider", crmProvider), attribute.String("operation", operation),
	))
}

func (r *Recorder) AIAnalysisDuration(ctx context.Context, seconds float64) {
	r.aiAnalysisDuration.Record(ctx, seconds)
}

func (r *Recorder) MCPActionDuration(ctx context.Context, tool, crmProvider string, seconds float64) {
	r.mcpActionDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("tool", tool), attribute.String("crm_provider", crmProvider)))
}

func (r *Recorder) CRMAPIDuration(ctx context.Context, crmProvider, operation, status string, seconds float64) {
	r.crmAPIDuration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("crm_provider", crmProvider), attribute.String("operation", operation), attribute.String("status", status),
	))
}
