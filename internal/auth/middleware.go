package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/quill/internal/models"
	pkghttp "github.com/BradenHooton/quill/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// IdentityContextKey is the key for storing the authenticated identity in context
	IdentityContextKey contextKey = "identity"
)

// Authenticate resolves the bearer token on every request and injects the
// Identity into the request context. Store failures deny the request with 503.
func Authenticate(gate *Gate, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := gate.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				if errors.Is(err, models.ErrUnauthenticated) {
					pkghttp.WriteUnauthorized(w, "Authentication required")
					return
				}
				logger.Error("authentication check failed",
					slog.String("path", r.URL.Path),
					slog.Any("error", err),
				)
				pkghttp.WriteServiceUnavailable(w, "Unable to verify credentials")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireRole allows the request when the identity holds any of roles.
// Must be mounted after Authenticate.
func RequireRole(gate *Gate, roles ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, _ := IdentityFromContext(r.Context())

			if err := gate.Authorize(identity, roles...); err != nil {
				if errors.Is(err, models.ErrForbidden) {
					pkghttp.WriteForbidden(w, "Insufficient permissions")
					return
				}
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WithIdentity stores identity in ctx
func WithIdentity(ctx context.Context, identity *models.Identity) context.Context {
	return context.WithValue(ctx, IdentityContextKey, identity)
}

// IdentityFromContext extracts the authenticated identity from ctx
func IdentityFromContext(ctx context.Context) (*models.Identity, bool) {
	identity, ok := ctx.Value(IdentityContextKey).(*models.Identity)
	return identity, ok && identity != nil
}
