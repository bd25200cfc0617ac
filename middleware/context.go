package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// Context key type to avoid collisions
type contextKey string

const (
	// AppCheckKey is the context key for verified App Check claims
	AppCheckKey contextKey = "app_check"

	// SourceKey is the context key for the X-Source header value
	SourceKey contextKey = "import_source"

	// DiagnosticKey is the context key for the X-Diagnostic-Mode flag
	DiagnosticKey contextKey = "diagnostic_mode"
)

// GetRequestIDFromContext returns the id set by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}

// WithAppCheckClaims adds verified App Check claims to the context
func WithAppCheckClaims(ctx context.Context, claims *AppCheckClaims) context.Context {
	return context.WithValue(ctx, AppCheckKey, claims)
}

// GetAppCheckClaims retrieves App Check claims from context
func GetAppCheckClaims(ctx context.Context) *AppCheckClaims {
	if val := ctx.Value(AppCheckKey); val != nil {
		if claims, ok := val.(*AppCheckClaims); ok {
			return claims
		}
	}
	return nil
}

// GetSourceFromContext returns the caller-declared import source, if any
func GetSourceFromContext(ctx context.Context) string {
	if val, ok := ctx.Value(SourceKey).(string); ok {
		return val
	}
	return ""
}

// IsDiagnosticRequest reports whether the request was marked as probe traffic
func IsDiagnosticRequest(ctx context.Context) bool {
	val, _ := ctx.Value(DiagnosticKey).(bool)
	return val
}
