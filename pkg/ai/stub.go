package ai

import (
	"context"
	"strings"

	"github.com/leadcatalyst/core/pkg/enrichment"
	"github.com/leadcatalyst/core/pkg/lead"
)

// StubProvider is a deterministic, local-only Provider used for
// development and tests when no real model call is wired up. It never
// hits the network and its evidence always cites an allowed source, so
// grounding validation passes by construction.
type StubProvider struct{}

// NewStubProvider builds a StubProvider.
func NewStubProvider() *StubProvider { return &StubProvider{} }

// AnalyzeLead produces a plausible MEDIUM_FIT result, upgrading to
// HIGH_FIT with a behavioral evidence item when enrichment is present —
// enough to exercise the grounding validator's rules without a live
// model.
func (StubProvider) AnalyzeLead(ctx context.Context, partial PartialLead, company *enrichment.Company) (lead.AnalysisResult, error) {
	if company == nil {
		return lead.AnalysisResult{
			FitScore:  40,
			Intent:    lead.IntentMediumFit,
			Decision:  lead.DecisionNurture,
			Reasoning: "No firmographic enrichment available; holding at medium fit pending more signal.",
			Evidence: []lead.Evidence{
				{Source: lead.SourceComputed, FieldPath: "heuristic.domain_age", Value: "unknown", ClaimType: lead.ClaimScore},
			},
		}, nil
	}

	return lead.AnalysisResult{
		FitScore: 85,
		Intent:   lead.IntentHighFit,
		Decision: lead.DecisionRouteToSDR,
		Reasoning: "Firmographic profile matches target segment for " + strings.ToLower(company.Industry) + ".",
		Evidence: []lead.Evidence{
			{Source: lead.SourceEnrichment, FieldPath: "enrichment.industry", Value: company.Industry, ClaimType: lead.ClaimFirmographic},
			{Source: lead.SourceProduct, FieldPath: "product.activation_events", Value: 5, ClaimType: lead.ClaimBehavior},
		},
	}, nil
}
