package common

import (
	"context"

	"github.com/google/uuid"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyBatchID   contextKey = "batch_id"
	ContextKeyPage      contextKey = "page_index"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithBatchID adds the batch being processed to the context
func WithBatchID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ContextKeyBatchID, id)
}

// BatchIDFromContext extracts the batch ID from context
func BatchIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ContextKeyBatchID).(uuid.UUID)
	return id, ok
}

// WithPage adds the 1-based page index to the context
func WithPage(ctx context.Context, page int) context.Context {
	return context.WithValue(ctx, ContextKeyPage, page)
}

// PageFromContext extracts the page index from context, 0 if absent
func PageFromContext(ctx context.Context) int {
	if p, ok := ctx.Value(ContextKeyPage).(int); ok {
		return p
	}
	return 0
}

// LogAttrs returns the slog attributes carried by ctx.
func LogAttrs(ctx context.Context) []any {
	var attrs []any
	if id, ok := BatchIDFromContext(ctx); ok {
		attrs = append(attrs, "batch_id", id.String())
	}
	if p := PageFromContext(ctx); p > 0 {
		attrs = append(attrs, "page", p)
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		attrs = append(attrs, "request_id", rid)
	}
	return attrs
}
