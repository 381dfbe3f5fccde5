// Package worker implements the lead ingestion worker: the single-flow
// consumer loop that leases jobs, runs enrichment/AI/grounding, hands the
// result to the MCP orchestrator, and acks/retries/DLQs per spec.md §4.5.
//
// The loop shape (lease -> process -> ack/fail, with a configurable
// concurrency pool) is grounded on the teacher's cmd/helm dispatcher
// idiom of a single Run entrypoint wired from explicit collaborators,
// adapted from a CLI dispatcher into a queue consumer.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/leadcatalyst/core/pkg/ai"
	"github.com/leadcatalyst/core/pkg/enrichment"
	"github.com/leadcatalyst/core/pkg/grounding"
	"github.com/leadcatalyst/core/pkg/lead"
	"github.com/leadcatalyst/core/pkg/mcp"
	"github.com/leadcatalyst/core/pkg/metrics"
	"github.com/leadcatalyst/core/pkg/queue"
)

// QueueName is the base queue leads are processed from.
const QueueName = "lead-ingest"

// WallClockCap bounds one job's total processing time (spec.md §5
// default 60s).
const WallClockCap = 60 * time.Second

// Worker ties the queue, stores, and MCP orchestrator together into the
// per-job state machine of spec.md §4.5.
type Worker struct {
	Queue         *queue.Client
	LeadStore     lead.Store
	Enrichment    enrichment.Provider
	AI            ai.Provider
	Orchestrator  *mcp.Orchestrator
	Metrics       *metrics.Recorder
	Logger        *slog.Logger
	Concurrency   int
	LeaseTimeout  time.Duration
	EnqueueOpts   queue.EnqueueOptions
	WallClockCap  time.Duration

	shutdownOnce sync.Once
	stopCh       chan struct{}
}

// New builds a Worker with spec-matching defaults for fields left zero.
func New(q *queue.Client, stores lead.Store, enr enrichment.Provider, aiProvider ai.Provider, orch *mcp.Orchestrator, rec *metrics.Recorder, logger *slog.Logger, concurrency int) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Worker{
		Queue:        q,
		LeadStore:    stores,
		Enrichment:   enr,
		AI:           aiProvider,
		Orchestrator: orch,
		Metrics:      rec,
		Logger:       logger,
		Concurrency:  concurrency,
		LeaseTimeout: 5 * time.Second,
		EnqueueOpts:  queue.DefaultEnqueueOptions(),
		WallClockCap: WallClockCap,
		stopCh:       make(chan struct{}),
	}
}

// Run starts Concurrency lease loops and blocks until every loop has
// returned. A loop stops leasing once ctx is cancelled or Stop is called.
// In-flight jobs run under a context derived from ctx, so cancelling ctx
// cancels them as well; there is no separate grace period for in-flight
// jobs.
func (w *Worker) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < w.Concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			w.leaseLoop(ctx, worker)
		}(i)
	}
	wg.Wait()
	return nil
}

// Stop signals every lease loop to refuse further leases.
func (w *Worker) Stop() {
	w.shutdownOnce.Do(func() { close(w.stopCh) })
}

func (w *Worker) leaseLoop(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		default:
		}

		job, err := w.Queue.Lease(ctx, QueueName, w.LeaseTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			// Lease timeout or transient backend hiccup: loop and retry.
			continue
		}

		jobCtx, cancel := context.WithTimeout(ctx, w.WallClockCap)
		err = w.processJob(jobCtx, job)
		cancel()

		if err != nil {
			w.Logger.Warn("lead job failed", "leadId", job.Data.LeadID, "error", err)
			if ferr := w.Queue.Fail(ctx, job, err, time.Second, w.onExhausted); ferr != nil {
				w.Logger.Error("failed to record job failure", "error", ferr)
			}
			continue
		}
		if aerr := w.Queue.Ack(ctx, job); aerr != nil {
			w.Logger.Error("failed to ack job", "error", aerr)
		}
	}
}

// onExhausted marks the lead PERMANENTLY_FAILED once the DLQ processor's
// retry budget is spent (spec.md §4.5's final state machine branch).
func (w *Worker) onExhausted(ctx context.Context, job *queue.Job, entry queue.DLQEntry) {
	l, err := w.LeadStore.FindByID(ctx, entry.LeadID)
	if err != nil {
		w.Logger.Error("could not load lead for DLQ finalisation", "leadId", entry.LeadID, "error", err)
		return
	}
	l.Status = lead.StatusPermanentlyFailed
	if err := w.LeadStore.Save(ctx, l); err != nil {
		w.Logger.Error("could not persist PERMANENTLY_FAILED status", "leadId", entry.LeadID, "error", err)
	}
	w.Metrics.LeadProcessed(ctx, string(lead.StatusPermanentlyFailed))
}

// processJob implements the single-job process step of spec.md §4.5.
func (w *Worker) processJob(ctx context.Context, job *queue.Job) error {
	l, err := w.LeadStore.FindByID(ctx, job.Data.LeadID)
	if err != nil {
		if errors.Is(err, lead.ErrNotFound) {
			// Missing lead: non-retryable, the job itself is malformed.
			return nil
		}
		return fmt.Errorf("worker: load lead: %w", err)
	}

	company := w.lookupEnrichment(ctx, l.Email)

	start := time.Now()
	partial := ai.PartialLead{Email: l.Email, Name: l.Name, CampaignID: l.CampaignID}
	result, err := w.AI.AnalyzeLead(ctx, partial, company)
	w.Metrics.AIAnalysisDuration(ctx, time.Since(start).Seconds())
	if err != nil {
		result = lead.FallbackAnalysis(err.Error())
	} else {
		result = grounding.Validate(result, company)
	}
	l.FitScore = result.FitScore
	l.Intent = result.Intent
	l.Reasoning = result.Reasoning
	l.Evidence = result.Evidence
	l.GroundingStatus = result.GroundingStatus
	l.GroundingErrors = result.GroundingErrors
	l.Status = lead.StatusEnriched
	if err := w.LeadStore.Save(ctx, l); err != nil {
		return fmt.Errorf("worker: persist enrichment: %w", err)
	}

	decision := w.Orchestrator.Run(ctx, l, result, company)

	switch decision.Outcome {
	case mcp.OutcomeRejectedByGround:
		l.Status = lead.StatusAIRejected
		w.Metrics.LeadProcessed(ctx, string(lead.StatusAIRejected))
		return w.LeadStore.Save(ctx, l)

	case mcp.OutcomeRateLimited:
		w.Metrics.LeadProcessed(ctx, "rate_limited")
		if decision.RetryAfter > 0 {
			time.Sleep(decision.RetryAfter)
		}
		return fmt.Errorf("worker: rate limited: %s", strings.Join(decision.Errors, "; "))

	case mcp.OutcomeBlocked:
		l.Status = lead.StatusMCPBlocked
		w.Metrics.LeadProcessed(ctx, string(lead.StatusMCPBlocked))
		if err := w.LeadStore.Save(ctx, l); err != nil {
			return err
		}
		return fmt.Errorf("worker: blocked by mcp: %s", strings.Join(decision.Errors, "; "))

	default: // OutcomeCompleted
		l.Status = lead.StatusSyncedToCRM
		w.Metrics.LeadProcessed(ctx, string(lead.StatusSyncedToCRM))
		return w.LeadStore.Save(ctx, l)
	}
}

func (w *Worker) lookupEnrichment(ctx context.Context, email string) *enrichment.Company {
	if w.Enrichment == nil {
		return nil
	}
	domain := emailDomain(email)
	if domain == "" {
		return nil
	}
	company, err := w.Enrichment.GetCompanyByDomain(ctx, domain)
	if err != nil {
		w.Logger.Warn("enrichment lookup failed, treating as absent", "domain", domain, "error", err)
		return nil
	}
	return company
}

func emailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}
