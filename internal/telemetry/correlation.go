package telemetry

import (
	"context"

	"gamesession/server/logging"
)

type traceIDKey struct{}

// WithTraceID attaches a correlation id to ctx, minted once per inbound
// engine operation by the transport layer (SPEC_FULL.md §11), so a
// client's repeated calls can be correlated across log lines without
// exposing internal game/player ids as the correlation key.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, id)
}

// TraceIDFromContext returns the correlation id attached to ctx, if any.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(traceIDKey{}).(string)
	return id, ok
}

// CorrelatedPublisher wraps next so that every published Event is stamped
// with the calling context's correlation id, if one is set.
func CorrelatedPublisher(next logging.Publisher) logging.Publisher {
	if next == nil {
		return nil
	}
	return logging.PublisherFunc(func(ctx context.Context, event logging.Event) {
		if id, ok := TraceIDFromContext(ctx); ok {
			event.TraceID = id
		}
		next.Publish(ctx, event)
	})
}
