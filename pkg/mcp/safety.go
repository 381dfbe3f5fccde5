// Package mcp implements the safety, quota, and orchestration core that
// stands between a grounded analysis result and the CRM executor layer:
// safety guard, PII redactor, tiered rate limiter, circuit breaker,
// idempotency store, and the plan orchestrator that ties them together.
//
// The package-level shape (a focused type per concern, composed by the
// orchestrator rather than inherited) is grounded on the teacher's
// pkg/firewall, pkg/guardian, pkg/kernel and pkg/util/resiliency split.
package mcp

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// blockedPatterns is the closed set of tool-name and parameter-value
// danger signatures (spec.md §4.3.1). Matching is case-insensitive.
var blockedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^delete_`),
	regexp.MustCompile(`(?i)^mass_`),
	regexp.MustCompile(`(?i)schema_change`),
	regexp.MustCompile(`(?i)permission_change`),
	regexp.MustCompile(`(?i)execute.*query`),
	regexp.MustCompile(`(?i)bulk_export`),
	regexp.MustCompile(`(?i)^merge_`),
	regexp.MustCompile(`(?i)hard_delete`),
	regexp.MustCompile(`\$\{.*\}`),
	regexp.MustCompile(`(?i)__proto__|constructor|prototype`),
}

// MatchesBlockedPattern reports whether s trips any blocked-name/value
// signature. Exported so pkg/tools can reuse the same matcher at
// registration time (spec.md §4.4: "Registration is rejected if the name
// matches a blocked pattern").
func MatchesBlockedPattern(s string) bool {
	for _, p := range blockedPatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// ExecutionContext carries the facts the safety guard checks before any
// tool executes (spec.md §4.3.1 "Context checks").
type ExecutionContext struct {
	ExecutionID     string
	LeadID          int64
	LeadEmail       string
	GroundingStatus string
	Timestamp       time.Time
}

// SafetyViolation explains why a call was blocked.
type SafetyViolation struct {
	Reason string
	Path   string // offending parameter path, empty for context-level violations
}

func (v SafetyViolation) Error() string {
	if v.Path != "" {
		return fmt.Sprintf("%s (at %s)", v.Reason, v.Path)
	}
	return v.Reason
}

// Guard is the safety core: it never mutates anything, it only decides.
type Guard struct {
	clock func() time.Time
}

// NewGuard builds a Guard using the real wall clock.
func NewGuard() *Guard {
	return &Guard{clock: time.Now}
}

// CheckContext validates the execution context ahead of any tool call.
// All checks must hold (spec.md §4.3.1); the first failure is returned.
func (g *Guard) CheckContext(ctx ExecutionContext) *SafetyViolation {
	if ctx.GroundingStatus == "REJECTED" {
		return &SafetyViolation{Reason: "grounding status is REJECTED"}
	}
	if strings.TrimSpace(ctx.LeadEmail) == "" {
		return &SafetyViolation{Reason: "lead email missing"}
	}
	if strings.TrimSpace(ctx.ExecutionID) == "" {
		return &SafetyViolation{Reason: "execution id missing"}
	}
	if ctx.LeadID == 0 {
		return &SafetyViolation{Reason: "lead id missing"}
	}

	now := g.clock()
	lower := now.Add(-1 * time.Hour)
	upper := now.Add(1 * time.Minute)
	if ctx.Timestamp.Before(lower) || ctx.Timestamp.After(upper) {
		return &SafetyViolation{Reason: "context timestamp out of bounds"}
	}
	return nil
}

// CheckToolName rejects a tool whose name itself trips a blocked pattern.
func (g *Guard) CheckToolName(name string) *SafetyViolation {
	if MatchesBlockedPattern(name) {
		return &SafetyViolation{Reason: fmt.Sprintf("tool name %q matches a blocked pattern", name)}
	}
	return nil
}

// CheckParams recursively walks params and reports the first string value
// (at any depth, through maps and slices) that trips a blocked pattern,
// with the offending path spec.md §4.3.1 requires.
func (g *Guard) CheckParams(params map[string]any) *SafetyViolation {
	return walkParams("", params)
}

func walkParams(path string, v any) *SafetyViolation {
	switch t := v.(type) {
	case string:
		if MatchesBlockedPattern(t) {
			return &SafetyViolation{Reason: "parameter value matches a blocked pattern", Path: path}
		}
	case map[string]any:
		for k, child := range t {
			childPath := k
			if path != "" {
				childPath = path + "." + k
			}
			if v := walkParams(childPath, child); v != nil {
				return v
			}
		}
	case []any:
		for i, child := range t {
			childPath := fmt.Sprintf("%s[%d]", path, i)
			if v := walkParams(childPath, child); v != nil {
				return v
			}
		}
	}
	return nil
}
