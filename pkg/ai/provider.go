// Package ai defines the AI analysis collaborator interface (spec.md §6).
// The model call itself is out of scope for the core; only the interface
// and the request/response shapes live here, matching the teacher's
// dependency-injected-provider pattern (spec.md §9).
package ai

import (
	"context"

	"github.com/leadcatalyst/core/pkg/enrichment"
	"github.com/leadcatalyst/core/pkg/lead"
)

// PartialLead is the subset of Lead fields sent to the AI provider.
type PartialLead struct {
	Email      string
	Name       string
	CampaignID string
}

// Provider analyzes a lead and returns an AnalysisResult. Grounding fields
// must be left unset by implementations — they are stamped by
// pkg/grounding, never by the provider.
type Provider interface {
	AnalyzeLead(ctx context.Context, partial PartialLead, company *enrichment.Company) (lead.AnalysisResult, error)
}
