// Package telemetry provides operation tagging and OpenTelemetry metrics for
// the repoSpanner client.
package telemetry

import (
	"context"
)

type contextKey string

// operationKey is the context key carrying the remote operation name.
const operationKey contextKey = "operation"

// Operation names used as metric attributes.
const (
	OpRefs    = "refs"
	OpObject  = "object"
	OpUnknown = "unknown"
)

// WithOperation returns a context tagged with the remote operation being
// performed, so the transport can attribute requests without parsing URLs.
func WithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, operationKey, op)
}

// OperationFromContext returns the operation tag, or "" if none was set.
func OperationFromContext(ctx context.Context) string {
	if op, ok := ctx.Value(operationKey).(string); ok {
		return op
	}
	return ""
}
