// Package lead defines the Lead data model and its persistence boundary.
//
// This follows the teacher's "explicit data-access boundary" pattern
// (store/ledger's Ledger interface over database/sql) rather than an ORM:
// the core depends on the Store interface, not on any particular driver.
package lead

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Status is the lifecycle state of a Lead (spec.md §4.5).
type Status string

const (
	StatusPending           Status = "PENDING"
	StatusEnriched          Status = "ENRICHED"
	StatusSyncedToCRM       Status = "SYNCED_TO_CRM"
	StatusAIRejected        Status = "AI_REJECTED"
	StatusMCPBlocked        Status = "MCP_BLOCKED"
	StatusPermanentlyFailed Status = "PERMANENTLY_FAILED"
)

// EvidenceSource is the closed set of allowed evidence sources (spec.md §3).
type EvidenceSource string

const (
	SourceSalesforce EvidenceSource = "SALESFORCE"
	SourceMarketo    EvidenceSource = "MARKETO"
	SourceProduct    EvidenceSource = "PRODUCT"
	SourceEnrichment EvidenceSource = "ENRICHMENT"
	SourceComputed   EvidenceSource = "COMPUTED"
)

// AllowedSources is the closed set checked by the grounding validator's
// unauthorized-source rule.
var AllowedSources = map[EvidenceSource]bool{
	SourceSalesforce: true,
	SourceMarketo:    true,
	SourceProduct:    true,
	SourceEnrichment: true,
	SourceComputed:   true,
}

// ClaimType categorizes what kind of claim a piece of Evidence supports.
type ClaimType string

const (
	ClaimFirmographic ClaimType = "FIRMOGRAPHIC"
	ClaimBehavior     ClaimType = "BEHAVIOR"
	ClaimPipeline     ClaimType = "PIPELINE"
	ClaimScore        ClaimType = "SCORE"
)

// BehavioralSources are the sources that count as "behavioral/computed"
// for the grounding validator's high-intent rule (spec.md §4.2 rule 4).
var BehavioralSources = map[EvidenceSource]bool{
	SourceProduct:    true,
	SourceMarketo:    true,
	SourceComputed:   true,
	SourceSalesforce: true,
}

// Evidence is a value object inside a Lead, justifying one AI claim.
type Evidence struct {
	Source    EvidenceSource `json:"source"`
	FieldPath string         `json:"field_path"`
	Value     any            `json:"value"`
	ClaimType ClaimType      `json:"claim_type"`
}

// Intent is the AI's assessment of behavioral readiness to buy.
type Intent string

const (
	IntentLowFit       Intent = "LOW_FIT"
	IntentMediumFit    Intent = "MEDIUM_FIT"
	IntentHighFit      Intent = "HIGH_FIT"
	IntentManualReview Intent = "MANUAL_REVIEW"
)

// Decision is the AI's routing recommendation.
type Decision string

const (
	DecisionRouteToSDR Decision = "ROUTE_TO_SDR"
	DecisionNurture    Decision = "NURTURE"
	DecisionIgnore     Decision = "IGNORE"
)

// GroundingStatus is stamped onto an AnalysisResult by the grounding
// validator, never by the AI collaborator itself.
type GroundingStatus string

const (
	GroundingValid      GroundingStatus = "VALID"
	GroundingDowngraded GroundingStatus = "DOWNGRADED"
	GroundingRejected   GroundingStatus = "REJECTED"
)

// AnalysisResult is the transient output of the AI provider, later stamped
// by the Grounding Validator with GroundingStatus/GroundingErrors.
type AnalysisResult struct {
	FitScore        int             `json:"fit_score"`
	Intent          Intent          `json:"intent"`
	Decision        Decision        `json:"decision"`
	Reasoning       string          `json:"reasoning"`
	Evidence        []Evidence      `json:"evidence"`
	GroundingStatus GroundingStatus `json:"grounding_status,omitempty"`
	GroundingErrors []string        `json:"grounding_errors,omitempty"`
}

// FallbackAnalysis is the named constructor for the fallback analysis
// result used whenever the AI provider raises an unexpected error
// (spec.md §4.2 Notes, §7 "Unknown").
func FallbackAnalysis(reason string) AnalysisResult {
	return AnalysisResult{
		FitScore:        0,
		Intent:          IntentManualReview,
		Decision:        DecisionIgnore,
		Reasoning:       reason,
		GroundingStatus: GroundingRejected,
		GroundingErrors: []string{reason},
	}
}

// Lead is the persistent, primary record (spec.md §3).
type Lead struct {
	ID             int64
	IdempotencyKey string
	Email          string
	CampaignID     string
	Name           string

	EnrichmentData map[string]any

	Status Status

	FitScore        int
	Intent          Intent
	Reasoning       string
	Evidence        []Evidence
	GroundingStatus GroundingStatus
	GroundingErrors []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ComputeIdempotencyKey implements the formula from spec.md §3:
// SHA256(lowercase(email) || ":" || campaignId), after trimming both inputs.
// Only the email is lowercased; campaignID keeps its case, so
// computeKey(e, c) == computeKey(trim(lower(e)), trim(c)).
func ComputeIdempotencyKey(email, campaignID string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	campaignID = strings.TrimSpace(campaignID)
	sum := sha256.Sum256([]byte(email + ":" + campaignID))
	return hex.EncodeToString(sum[:])
}
