package domain

import "context"

type correlationKey struct{}

// WithCorrelationID threads a correlation identifier through a pipeline run
// so every outbound call can tag its request for tracing.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationIDFromContext returns the threaded correlation id, if any.
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
