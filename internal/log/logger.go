package log

import (
	"context"

	"github.com/go-logr/logr"
)

// debugLevel is the verbosity used for per-request tracing.
const debugLevel = 1

func FromContext(ctx context.Context) logr.Logger {
	return logr.FromContextOrDiscard(ctx)
}

func WithLogger(ctx context.Context, logger logr.Logger) context.Context {
	return logr.NewContext(ctx, logger)
}

// WithValues returns a context whose logger carries the given key/value pairs.
func WithValues(ctx context.Context, keysAndValues ...interface{}) context.Context {
	return logr.NewContext(ctx, FromContext(ctx).WithValues(keysAndValues...))
}

func Debug(ctx context.Context, msg string, keysAndValues ...interface{}) {
	FromContext(ctx).V(debugLevel).Info(msg, keysAndValues...)
}
