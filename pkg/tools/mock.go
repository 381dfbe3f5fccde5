package tools

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/leadcatalyst/core/pkg/audit"
	"github.com/leadcatalyst/core/pkg/mcp"
	"github.com/leadcatalyst/core/pkg/metrics"
)

// idPrefixes maps a tool to the synthetic id prefix its CRM object type
// would carry (spec.md §4.4 "00Q-prefixed etc.").
var idPrefixes = map[string]string{
	"create_lead": "00Q", "upsert_lead": "00Q", "convert_lead": "00Q",
	"update_lead_status": "00Q", "update_lead_fields": "00Q", "set_lead_score": "00Q",
	"match_account": "001", "create_contact": "003", "link_contact_to_account": "003",
	"create_opportunity": "006", "update_opportunity_stage": "006", "set_opportunity_value": "006",
	"attach_campaign": "00X", "create_task": "00T", "log_activity": "00U",
	"add_note": "00N", "create_follow_up": "00T", "sync_firmographics": "00Q",
}

// MockExecutor simulates a CRM backend: randomized latency, synthetic
// opaque ids, and a CrmSyncLog row per call — used for local runs and
// tests (spec.md §4.4).
type MockExecutor struct {
	Registry    *Registry
	Redactor    *mcp.Redactor
	AuditStore  audit.Store
	CRMProvider string
	Metrics     *metrics.Recorder
}

// NewMockExecutor wires a MockExecutor against a tool Registry and audit
// store. metrics may be nil, in which case CRM API call durations are not
// recorded.
func NewMockExecutor(reg *Registry, store audit.Store, crmProvider string, rec *metrics.Recorder) *MockExecutor {
	return &MockExecutor{Registry: reg, Redactor: mcp.NewRedactor(), AuditStore: store, CRMProvider: crmProvider, Metrics: rec}
}

// Execute implements mcp.Executor.
func (m *MockExecutor) Execute(ctx context.Context, toolName string, params map[string]any) (mcp.ToolResult, error) {
	start := time.Now()

	if _, ok := m.Registry.Get(toolName); !ok {
		return mcp.ToolResult{Success: false, Error: fmt.Sprintf("unknown tool %q", toolName), ClientFault: true}, nil
	}
	execID := mcp.ExecutionIDFromContext(ctx)

	if err := m.Registry.Validate(toolName, params); err != nil {
		res := mcp.ToolResult{Success: false, Error: err.Error(), ClientFault: true}
		m.logCall(ctx, toolName, params, res, execID, start)
		return res, nil
	}

	callStart := time.Now()
	simulateLatency(ctx)

	recordID := syntheticID(toolName)
	result := mcp.ToolResult{
		Success:     true,
		Data:        map[string]any{"id": recordID},
		CRMRecordID: recordID,
		Mock:        true,
	}
	if m.Metrics != nil {
		m.Metrics.CRMAPIDuration(ctx, m.CRMProvider, toolName, resultSummary(result), time.Since(callStart).Seconds())
	}
	m.logCall(ctx, toolName, params, result, execID, start)
	return result, nil
}

func (m *MockExecutor) logCall(ctx context.Context, toolName string, params map[string]any, result mcp.ToolResult, executionID string, start time.Time) {
	if m.AuditStore == nil {
		return
	}
	entry := audit.Entry{
		Action:      toolName,
		Params:      m.Redactor.RedactParams(params),
		Result:      resultSummary(result),
		Mock:        true,
		DurationMs:  time.Since(start).Milliseconds(),
		ErrorMsg:    result.Error,
		Timestamp:   time.Now().UTC(),
		ExecutionID: executionID,
	}
	if result.CRMRecordID != "" {
		entry.EntityID = &result.CRMRecordID
	}
	_ = m.AuditStore.Append(ctx, entry)
}

func resultSummary(r mcp.ToolResult) string {
	if r.Success {
		return "success"
	}
	return "failure"
}

// simulateLatency sleeps 100-300ms, respecting ctx cancellation (spec.md
// §4.4).
func simulateLatency(ctx context.Context) {
	n, err := rand.Int(rand.Reader, big.NewInt(200))
	ms := int64(100)
	if err == nil {
		ms += n.Int64()
	}
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
	case <-ctx.Done():
	}
}

func syntheticID(toolName string) string {
	prefix, ok := idPrefixes[toolName]
	if !ok {
		prefix = "000"
	}
	suffix := randomAlphanumeric(15)
	return prefix + suffix
}

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func randomAlphanumeric(n int) string {
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphanumeric))))
		if err != nil {
			b[i] = alphanumeric[0]
			continue
		}
		b[i] = alphanumeric[idx.Int64()]
	}
	return string(b)
}
