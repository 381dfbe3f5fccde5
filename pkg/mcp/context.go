package mcp

import "context"

type executionIDKey struct{}

// WithExecutionID threads the current MCP execution id onto ctx so
// executors (pkg/tools) can stamp it onto their audit rows without the
// Executor interface itself needing an extra parameter.
func WithExecutionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, executionIDKey{}, id)
}

// ExecutionIDFromContext returns the id set by WithExecutionID, or "".
func ExecutionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(executionIDKey{}).(string)
	return id
}
