package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/quill/internal/models"
	pkghttp "github.com/BradenHooton/quill/pkg/http"
)

// Client-facing messages. Credential failures share one message so unknown
// accounts and wrong passwords produce identical responses.
const (
	msgInvalidCredentials = "Invalid credentials"
	msgAccountLocked      = "Account is temporarily locked. Please try again later."
	msgAccountInactive    = "Account is inactive"
	msgAuthRequired       = "Authentication required"
	msgInvalidToken       = "Invalid or expired token"
	msgInvalidResetToken  = "Invalid or expired reset token"
	msgConflict           = "An account with that email or username already exists"
	msgTooManyRequests    = "Too many login attempts. Please try again later."
	msgUnavailable        = "Service temporarily unavailable"
	msgInternal           = "Internal server error"
	msgInvalidBody        = "Invalid request body"
)

// writeServiceError translates a service error into the response envelope.
// Unexpected errors are logged and never exposed.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var ve *models.ValidationError
	switch {
	case errors.As(err, &ve):
		field := ve.Field
		if field == "" {
			field = "request"
		}
		pkghttp.WriteErrorWithFields(w, http.StatusBadRequest, "Validation failed", map[string]string{field: ve.Message})
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "Validation failed")
	case errors.Is(err, models.ErrInvalidCredentials):
		pkghttp.WriteUnauthorized(w, msgInvalidCredentials)
	case errors.Is(err, models.ErrAccountLocked):
		pkghttp.WriteUnauthorized(w, msgAccountLocked)
	case errors.Is(err, models.ErrAccountInactive):
		pkghttp.WriteUnauthorized(w, msgAccountInactive)
	case errors.Is(err, models.ErrInvalidOrExpiredToken):
		pkghttp.WriteUnauthorized(w, msgInvalidResetToken)
	case errors.Is(err, models.ErrInvalidToken):
		pkghttp.WriteUnauthorized(w, msgInvalidToken)
	case errors.Is(err, models.ErrUnauthenticated):
		pkghttp.WriteUnauthorized(w, msgAuthRequired)
	case errors.Is(err, models.ErrForbidden):
		pkghttp.WriteForbidden(w, "Insufficient permissions")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Resource not found")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, msgConflict)
	case errors.Is(err, models.ErrTooManyRequests):
		pkghttp.WriteTooManyRequests(w, msgTooManyRequests)
	case errors.Is(err, models.ErrServiceUnavailable):
		pkghttp.WriteServiceUnavailable(w, msgUnavailable)
	default:
		logger.Error("unhandled service error",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		pkghttp.WriteInternalError(w, msgInternal)
	}
}
