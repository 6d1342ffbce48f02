package httpapi

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ashspire/songbot/internal/observability/logging"
)

// RequestContext annotates each request's context with a request ID and,
// for OAuth routes, the provider the request concerns, before the logging
// middleware captures them for the "request completed" line. It must wrap
// outside logging.RequestLogger so the populated context reaches it.
func RequestContext(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := logging.ContextWithRequestID(r.Context(), requestID)
		if provider := providerFromPath(r.URL.Path); provider != "" {
			ctx = logging.ContextWithChannelID(ctx, provider)
		}
		ctx = logging.ContextWithLogger(ctx, logging.WithContext(ctx, logger))

		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// providerFromPath extracts "<provider>" from "/oauth/<provider>/begin" and
// "/oauth/<provider>/callback", matching handleOAuth's own routing.
func providerFromPath(path string) string {
	trimmed := strings.TrimPrefix(path, "/oauth/")
	if trimmed == path {
		return ""
	}
	segments := strings.SplitN(trimmed, "/", 2)
	if len(segments) != 2 || segments[0] == "" {
		return ""
	}
	return segments[0]
}
