package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/quill/internal/auth"
	"github.com/BradenHooton/quill/internal/models"
	"github.com/BradenHooton/quill/internal/services"
	pkghttp "github.com/BradenHooton/quill/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Register(ctx context.Context, in services.RegisterInput) (*services.AuthResult, error)
	Login(ctx context.Context, in services.LoginInput) (*services.AuthResult, error)
	Logout(ctx context.Context, token string, meta services.RequestMeta) error
	LogoutAll(ctx context.Context, userID string, meta services.RequestMeta) (int, error)
	ValidateToken(ctx context.Context, token string) (*services.TokenStatus, error)
	RequestPasswordReset(ctx context.Context, email string, meta services.RequestMeta) (string, error)
	ResetPassword(ctx context.Context, token, newPassword string, meta services.RequestMeta) error
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// Request DTOs

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Username  string `json:"username" validate:"required,min=3,max=50"`
	Email     string `json:"email" validate:"required,email,max=255"`
	Password  string `json:"password" validate:"required,max=72"`
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
}

// LoginRequest accepts the account's username or email. Identifier takes
// precedence, then email, then username.
type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required_without_all=Email Username,max=255"`
	Email      string `json:"email" validate:"max=255"`
	Username   string `json:"username" validate:"max=50"`
	Password   string `json:"password" validate:"required,max=128"`
}

func (r LoginRequest) identifier() string {
	switch {
	case r.Identifier != "":
		return r.Identifier
	case r.Email != "":
		return r.Email
	default:
		return r.Username
	}
}

// PasswordResetRequest starts the reset flow
type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

// CompletePasswordResetRequest finishes the reset flow
type CompletePasswordResetRequest struct {
	Token       string `json:"token" validate:"required,max=256"`
	NewPassword string `json:"new_password" validate:"required,max=72"`
}

func (h *AuthHandler) requestMeta(r *http.Request) services.RequestMeta {
	info := pkghttp.ExtractClientInfo(r, h.ipConfig)
	return services.RequestMeta{IPAddress: info.IPAddress, UserAgent: info.UserAgent}
}

// bind decodes and validates the body, writing a 400 on failure
func bind(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		pkghttp.WriteBadRequest(w, msgInvalidBody)
		return false
	}
	if fields := ValidateRequest(dst); fields != nil {
		pkghttp.WriteErrorWithFields(w, http.StatusBadRequest, "Validation failed", fields)
		return false
	}
	return true
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !bind(w, r, &req) {
		return
	}

	result, err := h.service.Register(r.Context(), services.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Meta:      h.requestMeta(r),
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteSuccess(w, http.StatusCreated, "User registered successfully", result)
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !bind(w, r, &req) {
		return
	}

	result, err := h.service.Login(r.Context(), services.LoginInput{
		Identifier: req.identifier(),
		Password:   req.Password,
		Meta:       h.requestMeta(r),
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteSuccess(w, http.StatusOK, "Login successful", result)
}

// Logout handles POST /auth/logout. Revoking an already revoked or expired
// token still succeeds; only a missing bearer token is rejected.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, err := auth.ExtractBearerToken(r.Header.Get("Authorization"))
	if err != nil {
		pkghttp.WriteUnauthorized(w, msgAuthRequired)
		return
	}

	if err := h.service.Logout(r.Context(), token, h.requestMeta(r)); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteSuccess(w, http.StatusOK, "Logged out successfully", nil)
}

// LogoutAll handles POST /auth/logout-all. Requires Authenticate.
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, msgAuthRequired)
		return
	}

	revoked, err := h.service.LogoutAll(r.Context(), identity.UserID, h.requestMeta(r))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteSuccess(w, http.StatusOK, "Logged out of all sessions", map[string]int{
		"sessions_revoked": revoked,
	})
}

// ValidateToken handles GET /auth/validate-token
func (h *AuthHandler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	token, err := auth.ExtractBearerToken(r.Header.Get("Authorization"))
	if err != nil {
		pkghttp.WriteUnauthorized(w, msgAuthRequired)
		return
	}

	status, err := h.service.ValidateToken(r.Context(), token)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if !status.Valid {
		pkghttp.WriteUnauthorized(w, msgInvalidToken)
		return
	}

	pkghttp.WriteSuccess(w, http.StatusOK, "Token is valid", status)
}

// RequestPasswordReset handles POST /auth/reset-password. The response is
// the same whether or not the email is registered.
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if !bind(w, r, &req) {
		return
	}

	if _, err := h.service.RequestPasswordReset(r.Context(), req.Email, h.requestMeta(r)); err != nil {
		if errors.Is(err, models.ErrValidation) || errors.Is(err, models.ErrServiceUnavailable) {
			writeServiceError(w, r, h.logger, err)
			return
		}
		h.logger.Error("password reset request failed", slog.Any("error", err))
	}

	pkghttp.WriteSuccess(w, http.StatusOK, "If the email is registered, password reset instructions have been sent", nil)
}

// ResetPassword handles PUT /auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req CompletePasswordResetRequest
	if !bind(w, r, &req) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Token, req.NewPassword, h.requestMeta(r)); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteSuccess(w, http.StatusOK, "Password reset successful", nil)
}
