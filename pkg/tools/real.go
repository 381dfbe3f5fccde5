package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/leadcatalyst/core/pkg/audit"
	"github.com/leadcatalyst/core/pkg/mcp"
	"github.com/leadcatalyst/core/pkg/metrics"
)

// VendorClient is the narrow surface a concrete CRM API binding must
// provide. Real wraps one of these per spec.md §4.4 ("wraps a concrete
// vendor API"); the binding itself (Salesforce, HubSpot, ...) is a
// collaborator outside the core.
type VendorClient interface {
	Call(ctx context.Context, toolName string, sanitizedParams map[string]any) (mcp.ToolResult, error)
}

var idFormat = regexp.MustCompile(`^[A-Za-z0-9]{15}$|^[A-Za-z0-9]{18}$`)
var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// RealExecutor sanitises field values, validates CRM id formats, and
// builds search queries through a field-name-restricted builder before
// delegating to a vendor binding (spec.md §4.4).
type RealExecutor struct {
	Registry    *Registry
	Vendor      VendorClient
	Redactor    *mcp.Redactor
	AuditStore  audit.Store
	CRMProvider string
	Metrics     *metrics.Recorder
}

// NewRealExecutor wires a RealExecutor against a vendor binding. metrics may
// be nil, in which case CRM API call durations are not recorded.
func NewRealExecutor(reg *Registry, vendor VendorClient, store audit.Store, crmProvider string, rec *metrics.Recorder) *RealExecutor {
	return &RealExecutor{Registry: reg, Vendor: vendor, Redactor: mcp.NewRedactor(), AuditStore: store, CRMProvider: crmProvider, Metrics: rec}
}

// Execute implements mcp.Executor.
func (r *RealExecutor) Execute(ctx context.Context, toolName string, params map[string]any) (mcp.ToolResult, error) {
	start := time.Now()
	execID := mcp.ExecutionIDFromContext(ctx)

	if _, ok := r.Registry.Get(toolName); !ok {
		return mcp.ToolResult{Success: false, Error: fmt.Sprintf("unknown tool %q", toolName), ClientFault: true}, nil
	}
	if err := r.Registry.Validate(toolName, params); err != nil {
		res := mcp.ToolResult{Success: false, Error: err.Error(), ClientFault: true}
		r.logCall(ctx, toolName, params, res, execID, start)
		return res, nil
	}

	sanitized, err := sanitizeParams(params)
	if err != nil {
		res := mcp.ToolResult{Success: false, Error: err.Error(), ClientFault: true}
		r.logCall(ctx, toolName, params, res, execID, start)
		return res, nil
	}
	if err := validateIDFields(sanitized); err != nil {
		res := mcp.ToolResult{Success: false, Error: err.Error(), ClientFault: true}
		r.logCall(ctx, toolName, params, res, execID, start)
		return res, nil
	}

	if r.Vendor == nil {
		return mcp.ToolResult{}, fmt.Errorf("tools: no vendor binding configured for %s", r.CRMProvider)
	}

	callStart := time.Now()
	result, err := r.Vendor.Call(ctx, toolName, sanitized)
	if r.Metrics != nil {
		r.Metrics.CRMAPIDuration(ctx, r.CRMProvider, toolName, resultSummary(result), time.Since(callStart).Seconds())
	}
	r.logCall(ctx, toolName, params, result, execID, start)
	return result, err
}

func (r *RealExecutor) logCall(ctx context.Context, toolName string, params map[string]any, result mcp.ToolResult, executionID string, start time.Time) {
	if r.AuditStore == nil {
		return
	}
	entry := audit.Entry{
		Action:      toolName,
		Params:      r.Redactor.RedactParams(params),
		Result:      resultSummary(result),
		Mock:        false,
		DurationMs:  time.Since(start).Milliseconds(),
		ErrorMsg:    result.Error,
		Timestamp:   time.Now().UTC(),
		ExecutionID: executionID,
	}
	if result.CRMRecordID != "" {
		entry.EntityID = &result.CRMRecordID
	}
	_ = r.AuditStore.Append(ctx, entry)
}

// sanitizeParams escapes control characters, quotes, and backslashes in
// every string value (spec.md §4.4 "Field-value sanitisation").
func sanitizeParams(params map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(params))
	for k, v := range params {
		sv, err := sanitizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("tools: sanitising %q: %w", k, err)
		}
		out[k] = sv
	}
	return out, nil
}

func sanitizeValue(v any) (any, error) {
	switch t := v.(type) {
	case string:
		return sanitizeString(t), nil
	case map[string]any:
		return sanitizeParams(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			sv, err := sanitizeValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = sv
		}
		return out, nil
	default:
		return v, nil
	}
}

func sanitizeString(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&sb, `\u%04x`, r) // escape control characters
		case r == '\\':
			sb.WriteString(`\\`)
		case r == '"':
			sb.WriteString(`\"`)
		case r == '\'':
			sb.WriteString(`\'`)
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// validateIDFields rejects any "*Id"/"*ID"-suffixed string param whose
// value is not a 15- or 18-character alphanumeric CRM id.
func validateIDFields(params map[string]any) error {
	for k, v := range params {
		if !strings.HasSuffix(strings.ToLower(k), "id") {
			continue
		}
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		if !idFormat.MatchString(s) {
			return fmt.Errorf("tools: %q has invalid CRM id format: %q", k, s)
		}
	}
	return nil
}

// BuildSearchQuery constructs a simple field=value search clause,
// refusing any field name outside [A-Za-z_][A-Za-z0-9_]* (spec.md §4.4).
func BuildSearchQuery(field, value string) (string, error) {
	if !fieldNamePattern.MatchString(field) {
		return "", fmt.Errorf("tools: invalid search field name %q", field)
	}
	return fmt.Sprintf("%s = '%s'", field, sanitizeString(value)), nil
}
