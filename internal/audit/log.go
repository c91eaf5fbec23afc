// Package audit records security-relevant events (provisioning, sign-ups,
// guard rejections) as structured log lines.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"tessera.id/internal/auth"
)

type requestIDKey struct{}

// WithRequestID attaches the request identifier to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the request identifier stored in ctx, if any.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

// Logger writes audit events through a slog.Logger.
type Logger struct {
	log *slog.Logger
}

func New(log *slog.Logger) *Logger {
	if log == nil {
		log = slog.Default()
	}
	return &Logger{log: log.With(slog.String("type", "audit"))}
}

// Record writes one event enriched with the request id and the authenticated
// principal from ctx.
func (l *Logger) Record(ctx context.Context, event string, attrs ...slog.Attr) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	base := make([]slog.Attr, 0, 3)
	base = append(base, slog.String("event", event))
	if rid := RequestID(ctx); rid != "" {
		base = append(base, slog.String("request_id", rid))
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		base = append(base, slog.String("subject", p.Subject), slog.String("principal_kind", p.Kind.String()))
	}
	args := make([]any, 0, len(attrs))
	for _, a := range attrs {
		args = append(args, a)
	}
	if len(args) > 0 {
		base = append(base, slog.Group("fields", args...))
	}
	l.log.LogAttrs(ctx, slog.LevelInfo, "audit", base...)
	return nil
}
