package slogx

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

func FromContext(ctx context.Context) *slog.Logger {
	l, ok := ctx.Value(ctxKey{}).(*slog.Logger)
	if !ok {
		return slog.Default()
	}
	return l
}

// WithIdentity tags the context logger with the authenticated identity.
func WithIdentity(ctx context.Context, identity string) context.Context {
	return WithContext(ctx, FromContext(ctx).With("identity", identity))
}
