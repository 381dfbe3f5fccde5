// Package tools implements the tool registry and the two conforming
// executor variants (mock and real) from spec.md §4.4, grounded on the
// teacher's mcp.ToolCatalog (name -> schema map, registration-time
// validation) and firewall.go's jsonschema.Compiler wiring.
package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/leadcatalyst/core/pkg/mcp"
)

// Category is the closed set from spec.md §4.4.
type Category string

const (
	CategoryLeadLifecycle   Category = "lead_lifecycle"
	CategoryFieldUpdates    Category = "field_updates"
	CategoryAccountContact  Category = "account_contact"
	CategorySalesWorkflow   Category = "sales_workflow"
	CategoryActivity        Category = "activity"
	CategoryEnrichmentSync  Category = "enrichment_sync"
)

// Tool describes one registered CRM operation.
type Tool struct {
	Name        string
	Description string
	Category    Category
	ParamsSchema string // raw JSON Schema text
	Dangerous   bool // always false; kept so callers can assert invariants
}

// RequiredTools is the minimum tool surface of spec.md §4.4.
var RequiredTools = []string{
	"create_lead", "upsert_lead", "convert_lead", "update_lead_status",
	"update_lead_fields", "set_lead_score", "match_account", "create_contact",
	"link_contact_to_account", "create_opportunity", "update_opportunity_stage",
	"set_opportunity_value", "attach_campaign", "create_task", "log_activity",
	"add_note", "create_follow_up", "sync_firmographics",
}

// Registry validates and stores Tool definitions, refusing registration
// of any name matching a blocked pattern (spec.md §4.4, reusing
// mcp.MatchesBlockedPattern).
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	schema map[string]*jsonschema.Schema
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:  make(map[string]Tool),
		schema: make(map[string]*jsonschema.Schema),
	}
}

// Register compiles t.ParamsSchema (if non-empty) and stores t. Dangerous
// is forced false per the spec's tool contract.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tools: tool name is required")
	}
	if mcp.MatchesBlockedPattern(t.Name) {
		return fmt.Errorf("tools: registration of %q rejected: matches a blocked pattern", t.Name)
	}
	t.Dangerous = false

	r.mu.Lock()
	defer r.mu.Unlock()

	if t.ParamsSchema != "" {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		url := fmt.Sprintf("https://leadcatalyst.local/tools/%s.schema.json", t.Name)
		if err := c.AddResource(url, strings.NewReader(t.ParamsSchema)); err != nil {
			return fmt.Errorf("tools: schema load for %q failed: %w", t.Name, err)
		}
		compiled, err := c.Compile(url)
		if err != nil {
			return fmt.Errorf("tools: schema compile for %q failed: %w", t.Name, err)
		}
		r.schema[t.Name] = compiled
	}
	r.tools[t.Name] = t
	return nil
}

// Get returns the registered Tool, if any.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Validate checks params against the tool's compiled schema, if one was
// registered. Schema validation failing a call before any side effect is
// an execution invariant of spec.md §4.4.
func (r *Registry) Validate(name string, params map[string]any) error {
	r.mu.RLock()
	schema, ok := r.schema[name]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	if err := schema.Validate(params); err != nil {
		return fmt.Errorf("tools: params for %q failed schema validation: %w", name, err)
	}
	return nil
}

// RegisterRequiredTools registers every tool in RequiredTools with the
// param schema builder from schemas.go. Intended for wiring at startup.
func (r *Registry) RegisterRequiredTools() error {
	for _, name := range RequiredTools {
		t := Tool{
			Name:         name,
			Description:  fmt.Sprintf("%s CRM operation", name),
			Category:     categoryFor(name),
			ParamsSchema: schemaFor(name),
		}
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func categoryFor(name string) Category {
	switch name {
	case "create_lead", "upsert_lead", "convert_lead", "update_lead_status":
		return CategoryLeadLifecycle
	case "update_lead_fields", "set_lead_score":
		return CategoryFieldUpdates
	case "match_account", "create_contact", "link_contact_to_account":
		return CategoryAccountContact
	case "create_opportunity", "update_opportunity_stage", "set_opportunity_value", "attach_campaign":
		return CategorySalesWorkflow
	case "create_task", "log_activity", "add_note", "create_follow_up":
		return CategoryActivity
	case "sync_firmographics":
		return CategoryEnrichmentSync
	default:
		return CategoryActivity
	}
}

// CallContext wraps a context.Context for a tool call. Neither executor
// variant in this package uses it; both take a context.Context directly.
type CallContext struct {
	ctx context.Context
}

func NewCallContext(ctx context.Context) CallContext { return CallContext{ctx: ctx} }
func (c CallContext) Context() context.Context       { return c.ctx }
