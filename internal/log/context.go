// Package log provides structured logging utilities for every node in the
// cluster: a global zerolog logger plus context-carried correlation fields.
package log

import "context"

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	nodeIDKey    ctxKey = "node_id"
	termKey      ctxKey = "term"
)

// ContextWithRequestID stores the request ID in the context.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the request ID from context, if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithNodeID stores the owning node's identity in the context.
func ContextWithNodeID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, nodeIDKey, id)
}

// NodeIDFromContext extracts the node ID from context, if present.
func NodeIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(nodeIDKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithTerm stores the cluster term observed when the context was created.
func ContextWithTerm(ctx context.Context, term uint64) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, termKey, term)
}

// TermFromContext extracts the term from context, if present.
func TermFromContext(ctx context.Context) (uint64, bool) {
	if ctx == nil {
		return 0, false
	}
	v, ok := ctx.Value(termKey).(uint64)
	return v, ok
}
