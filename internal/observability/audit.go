package observability

import (
	"context"
	"log/slog"
)

// Audit emits a security-relevant event to the structured log. Emission is
// best-effort: callers never branch on it and it must not block the primary
// response path.
func Audit(ctx context.Context, event string, attrs ...any) {
	base := []any{"event", event}
	base = append(base, attrs...)
	slog.InfoContext(ctx, "audit", base...)
}
