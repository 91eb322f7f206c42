package observability

import (
	"context"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

func Audit(r *http.Request, event string, attrs ...any) {
	base := []any{
		"event", event,
		"source", "http",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", chimiddleware.GetReqID(r.Context()),
	}
	base = append(base, attrs...)
	slog.InfoContext(r.Context(), "audit", base...)
}

// AuditCommand records a chat-command side of the same audit stream.
func AuditCommand(ctx context.Context, event, command, actorID string, attrs ...any) {
	base := []any{
		"event", event,
		"source", "discord",
		"command", command,
		"actor_id", actorID,
	}
	base = append(base, attrs...)
	slog.InfoContext(ctx, "audit", base...)
}
