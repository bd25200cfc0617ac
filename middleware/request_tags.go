package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Request headers read by RequestTags
const (
	SourceHeader     = "X-Source"
	DiagnosticHeader = "X-Diagnostic-Mode"
)

// RequestTags copies X-Source and X-Diagnostic-Mode into the request context
func RequestTags(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if src := strings.TrimSpace(r.Header.Get(SourceHeader)); src != "" {
				ctx = context.WithValue(ctx, SourceKey, src)
			}
			if strings.EqualFold(strings.TrimSpace(r.Header.Get(DiagnosticHeader)), "true") {
				ctx = context.WithValue(ctx, DiagnosticKey, true)
				logger.Debug("diagnostic request",
					zap.String("request_id", GetRequestIDFromContext(ctx)),
					zap.String("path", r.URL.Path))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
