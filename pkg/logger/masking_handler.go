package logger

import (
	"context"
	"log/slog"
	"strings"
)

// Attribute key fragments whose values never belong in log output. Matched
// as substrings so variants like bot_token, sentry_dsn and redis_password
// are caught without listing each one.
var sensitiveKeyParts = []string{
	"token",
	"password",
	"secret",
	"dsn",
	"api_key",
	"authorization",
}

// MaskingHandler blanks credential-bearing attribute values before the
// record reaches the wrapped handler. Every logger in the process is built
// on top of it, so a bot token or database password passed as an attribute
// never lands in any sink.
type MaskingHandler struct {
	next slog.Handler
}

// NewMaskingHandler wraps next with attribute masking.
func NewMaskingHandler(next slog.Handler) *MaskingHandler {
	return &MaskingHandler{next: next}
}

func (h *MaskingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *MaskingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &MaskingHandler{next: h.next.WithAttrs(masked(attrs))}
}

func (h *MaskingHandler) WithGroup(name string) slog.Handler {
	return &MaskingHandler{next: h.next.WithGroup(name)}
}

// Handle rebuilds the record with sensitive values replaced and delegates.
func (h *MaskingHandler) Handle(ctx context.Context, record slog.Record) error {
	clean := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)

	record.Attrs(func(attr slog.Attr) bool {
		if isSensitiveKey(attr.Key) {
			attr.Value = slog.StringValue("***")
		}
		clean.AddAttrs(attr)
		return true
	})

	return h.next.Handle(ctx, clean)
}

func masked(attrs []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		if isSensitiveKey(attr.Key) {
			attr.Value = slog.StringValue("***")
		}
		out[i] = attr
	}
	return out
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}
