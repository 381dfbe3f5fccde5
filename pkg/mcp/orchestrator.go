package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leadcatalyst/core/pkg/enrichment"
	"github.com/leadcatalyst/core/pkg/lead"
)

// Outcome is the terminal status of one orchestrator Run call (spec.md §4.5).
type Outcome string

const (
	OutcomeCompleted         Outcome = "COMPLETED"
	OutcomeRejectedByGround  Outcome = "REJECTED_BY_GROUNDING"
	OutcomeRateLimited       Outcome = "RATE_LIMITED"
	OutcomeBlocked           Outcome = "BLOCKED"
)

// ToolResult is the CRM executor's return shape (spec.md §4.4).
type ToolResult struct {
	Success     bool
	Data        map[string]any
	Error       string
	CRMRecordID string
	Warnings    []string
	RetryAfter  time.Duration
	Mock        bool
	ClientFault bool // true for 4xx-class failures; excluded from breaker failure counts
}

// Executor runs one named tool call. Implemented by pkg/tools so this
// package never imports the concrete registry (avoids a dependency
// cycle, since the registry itself depends on mcp's blocked-pattern
// matcher and redactor).
type Executor interface {
	Execute(ctx context.Context, toolName string, params map[string]any) (ToolResult, error)
}

// ActionStep is one entry in the plan built for a lead (spec.md §4.5).
type ActionStep struct {
	Tool     string
	Params   map[string]any
	Critical bool
}

// ActionResult pairs a step with what happened when it ran (or was
// skipped).
type ActionResult struct {
	Step   ActionStep
	Result ToolResult
	Err    error
	Status string // "executed", "blocked", "rate_limited", "idempotent_replay"
}

// PlanDecision is the orchestrator's final verdict for one Run call,
// grounded on the teacher's GovernanceFirewall.InterceptPlan shape
// (ordered step evaluation folded into one aggregate result).
type PlanDecision struct {
	Outcome     Outcome
	ExecutionID string
	Results     []ActionResult
	Errors      []string
	Halt        bool
	RetryAfter  time.Duration
}

// CRMMetrics is the narrow slice of pkg/metrics.Recorder the orchestrator
// needs, kept as an interface so this package doesn't import metrics
// (and so tests can assert on calls without a real Meter).
type CRMMetrics interface {
	MCPAction(ctx context.Context, tool, status, crmProvider string)
	GroundingDecision(ctx context.Context, status string)
	RateLimitViolation(ctx context.Context, limitType string)
	SafetyBlock(ctx context.Context, tool, reason string)
	CircuitBreakerState(ctx context.Context, crmProvider, operation string, state int64)
	MCPActionDuration(ctx context.Context, tool, crmProvider string, seconds float64)
}

// Orchestrator composes the safety guard, rate limiter, idempotency
// store, and breaker registry around an Executor.
type Orchestrator struct {
	Guard       *Guard
	Limiter     *RateLimiter
	Idempotency *Store
	Breakers    *Registry
	Redactor    *Redactor
	Executor    Executor
	CRMProvider string
	Metrics     CRMMetrics
	Logger      *slog.Logger
}

// NewOrchestrator wires the MCP core components around an executor.
func NewOrchestrator(guard *Guard, limiter *RateLimiter, idem *Store, breakers *Registry, executor Executor, crmProvider string, metrics CRMMetrics, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		Guard:       guard,
		Limiter:     limiter,
		Idempotency: idem,
		Breakers:    breakers,
		Redactor:    NewRedactor(),
		Executor:    executor,
		CRMProvider: crmProvider,
		Metrics:     metrics,
		Logger:      logger,
	}
}

// BuildPlan constructs the ordered action plan for a non-rejected
// analysis (spec.md §4.5 "MCP orchestrator action-plan builder").
func BuildPlan(l *lead.Lead, analysis lead.AnalysisResult, company *enrichment.Company) []ActionStep {
	first, last := splitName(l.Name)

	steps := []ActionStep{
		{
			Tool: "upsert_lead",
			Params: map[string]any{
				"email":     l.Email,
				"firstName": first,
				"lastName":  last,
				"company":   companyName(company),
			},
			Critical: true,
		},
	}

	steps = append(steps, ActionStep{
		Tool: "set_lead_score",
		Params: map[string]any{
			"leadId":    l.ID,
			"score":     analysis.FitScore,
			"scoreType": "fit",
		},
		Critical: false,
	})

	if company != nil {
		steps = append(steps, ActionStep{
			Tool: "sync_firmographics",
			Params: map[string]any{
				"leadId": l.ID,
				"firmographics": map[string]any{
					"industry":  company.Industry,
					"employees": company.Employees,
					"geo":       company.Geo,
					"techStack": company.TechStack,
				},
			},
			Critical: false,
		})
	}

	steps = append(steps, ActionStep{
		Tool: "log_activity",
		Params: map[string]any{
			"relatedToId": l.ID,
			"type":        "ai_analysis",
			"description": fmt.Sprintf("AI analysis: intent=%s fitScore=%d decision=%s", analysis.Intent, analysis.FitScore, analysis.Decision),
		},
		Critical: false,
	})

	return steps
}

func splitName(name string) (first, last string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func companyName(c *enrichment.Company) string {
	if c == nil {
		return ""
	}
	return c.Name
}

// Run executes the full §4.3 + §4.4 flow for a lead: grounding gate,
// rate limiting, then the ordered action plan with safety/breaker/
// idempotency gating per action.
func (o *Orchestrator) Run(ctx context.Context, l *lead.Lead, analysis lead.AnalysisResult, company *enrichment.Company) PlanDecision {
	execID := uuid.NewString()
	ctx = WithExecutionID(ctx, execID)

	if analysis.GroundingStatus == lead.GroundingRejected {
		o.Metrics.GroundingDecision(ctx, string(lead.GroundingRejected))
		return PlanDecision{Outcome: OutcomeRejectedByGround, ExecutionID: execID, Halt: true}
	}
	o.Metrics.GroundingDecision(ctx, string(analysis.GroundingStatus))

	accountKey := accountKeyFor(l.Email)
	leadKey := fmt.Sprintf("%d", l.ID)
	decision := o.Limiter.Check(ctx, leadKey, accountKey)
	if !decision.Allowed {
		for _, tier := range decision.Violated {
			o.Metrics.RateLimitViolation(ctx, string(tier))
		}
		return PlanDecision{
			Outcome:     OutcomeRateLimited,
			ExecutionID: execID,
			Errors:      []string{rateLimitMessage(decision.Violated)},
			Halt:        true,
			RetryAfter:  decision.RetryAfter,
		}
	}

	execCtx := ExecutionContext{
		ExecutionID:     execID,
		LeadID:          l.ID,
		LeadEmail:       l.Email,
		GroundingStatus: string(analysis.GroundingStatus),
		Timestamp:       time.Now(),
	}
	if v := o.Guard.CheckContext(execCtx); v != nil {
		o.Metrics.SafetyBlock(ctx, "", v.Reason)
		return PlanDecision{Outcome: OutcomeBlocked, ExecutionID: execID, Errors: []string{v.Error()}, Halt: true}
	}

	plan := BuildPlan(l, analysis, company)
	results := make([]ActionResult, 0, len(plan))
	var errs []string

	for _, step := range plan {
		res := o.runStep(ctx, execID, l, step)
		results = append(results, res)

		if res.Status == "blocked" {
			errs = append(errs, fmt.Sprintf("%s: %v", step.Tool, res.Err))
			if step.Critical {
				return PlanDecision{Outcome: OutcomeBlocked, ExecutionID: execID, Results: results, Errors: errs, Halt: true}
			}
			continue
		}
		if !res.Result.Success {
			msg := res.Result.Error
			if msg == "" && res.Err != nil {
				msg = res.Err.Error()
			}
			errs = append(errs, fmt.Sprintf("%s: %s", step.Tool, msg))
			if step.Critical {
				return PlanDecision{Outcome: OutcomeBlocked, ExecutionID: execID, Results: results, Errors: errs, Halt: true}
			}
		}
	}

	return PlanDecision{Outcome: OutcomeCompleted, ExecutionID: execID, Results: results, Errors: errs}
}

func (o *Orchestrator) runStep(ctx context.Context, execID string, l *lead.Lead, step ActionStep) ActionResult {
	if v := o.Guard.CheckToolName(step.Tool); v != nil {
		o.Metrics.SafetyBlock(ctx, step.Tool, v.Reason)
		return ActionResult{Step: step, Err: *v, Status: "blocked"}
	}
	if v := o.Guard.CheckParams(step.Params); v != nil {
		o.Metrics.SafetyBlock(ctx, step.Tool, v.Reason)
		return ActionResult{Step: step, Err: *v, Status: "blocked"}
	}

	mode := KeyWindowed
	if step.Tool == "upsert_lead" || step.Tool == "convert_lead" {
		mode = KeyStable
	}
	idemKey := DeriveKey(mode, l.Email, l.CampaignID, step.Tool, DefaultWindow)
	if rec := o.Idempotency.IsProcessed(ctx, idemKey); rec.Processed {
		return ActionResult{
			Step:   step,
			Result: ToolResult{Success: true, Data: map[string]any{"replay": true}},
			Status: "idempotent_replay",
		}
	}

	breaker := o.Breakers.Get(o.CRMProvider, step.Tool)
	if !breaker.Allow() {
		o.Metrics.CircuitBreakerState(ctx, o.CRMProvider, step.Tool, int64(breaker.State()))
		return ActionResult{Step: step, Err: fmt.Errorf("circuit open for %s/%s", o.CRMProvider, step.Tool), Status: "blocked"}
	}

	crmStatus, allowed := o.Limiter.CheckCRMProvider(ctx, o.CRMProvider)
	if !allowed {
		o.Metrics.RateLimitViolation(ctx, string(TierCRMProvider))
		return ActionResult{
			Step:   step,
			Result: ToolResult{Success: false, Error: "CRM provider rate limit exceeded", RetryAfter: crmStatus.Window},
			Status: "rate_limited",
		}
	}

	start := time.Now()
	result, err := o.Executor.Execute(ctx, step.Tool, step.Params)
	elapsed := time.Since(start).Seconds()
	o.Metrics.MCPActionDuration(ctx, step.Tool, o.CRMProvider, elapsed)

	if err != nil || !result.Success {
		breaker.RecordFailure(result.ClientFault)
		o.Metrics.CircuitBreakerState(ctx, o.CRMProvider, step.Tool, int64(breaker.State()))
		o.Metrics.MCPAction(ctx, step.Tool, "failure", o.CRMProvider)
		return ActionResult{Step: step, Result: result, Err: err, Status: "executed"}
	}

	breaker.RecordSuccess()
	o.Metrics.MCPAction(ctx, step.Tool, "success", o.CRMProvider)
	o.Idempotency.StoreResult(ctx, idemKey, result, DefaultResultTTL)
	return ActionResult{Step: step, Result: result, Status: "executed"}
}

func accountKeyFor(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return email
	}
	return strings.ToLower(email[at+1:])
}

func rateLimitMessage(tiers []Tier) string {
	for _, t := range tiers {
		if t == TierLead {
			return "Per-lead rate limit exceeded"
		}
	}
	for _, t := range tiers {
		if t == TierAccount {
			return "Per-account rate limit exceeded"
		}
	}
	return "Global rate limit exceeded"
}
