package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/BradenHooton/quill/internal/auth"
	"github.com/BradenHooton/quill/internal/services"
	pkghttp "github.com/BradenHooton/quill/pkg/http"
	"github.com/go-chi/chi/v5"
)

// UserServiceInterface defines the interface for user lookups
type UserServiceInterface interface {
	GetUserByID(ctx context.Context, id string) (*services.UserResponse, error)
	ListUsers(ctx context.Context, limit, offset int) ([]*services.UserResponse, error)
	UpdateProfile(ctx context.Context, userID string, in services.ProfileInput) (*services.UserResponse, error)
}

// AdminServiceInterface defines the interface for account administration
type AdminServiceInterface interface {
	DeactivateUser(ctx context.Context, actorID, targetID string, meta services.RequestMeta) error
	AssignRole(ctx context.Context, actorID, targetID, roleName string, meta services.RequestMeta) (*services.UserResponse, error)
}

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	users    UserServiceInterface
	admin    AdminServiceInterface
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(users UserServiceInterface, admin AdminServiceInterface, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		users:    users,
		admin:    admin,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// UpdateProfileRequest represents the request body for editing one's own profile
type UpdateProfileRequest struct {
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
}

// AssignRoleRequest represents the request body for granting a role
type AssignRoleRequest struct {
	Role string `json:"role" validate:"required,max=50"`
}

func (h *UserHandler) requestMeta(r *http.Request) services.RequestMeta {
	info := pkghttp.ExtractClientInfo(r, h.ipConfig)
	return services.RequestMeta{IPAddress: info.IPAddress, UserAgent: info.UserAgent}
}

// Me handles GET /users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, msgAuthRequired)
		return
	}

	user, err := h.users.GetUserByID(r.Context(), identity.UserID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteSuccess(w, http.StatusOK, "User retrieved", user)
}

// UpdateMe handles PUT /users/me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, msgAuthRequired)
		return
	}

	var req UpdateProfileRequest
	if !bind(w, r, &req) {
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), identity.UserID, services.ProfileInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Meta:      h.requestMeta(r),
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteSuccess(w, http.StatusOK, "Profile updated", user)
}

// GetUser handles GET /users/{id}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetUserByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteSuccess(w, http.StatusOK, "User retrieved", user)
}

// ListUsers handles GET /users?limit=&offset=
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	users, err := h.users.ListUsers(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteSuccess(w, http.StatusOK, "Users retrieved", users)
}

// Deactivate handles POST /users/{id}/deactivate
func (h *UserHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, msgAuthRequired)
		return
	}

	if err := h.admin.DeactivateUser(r.Context(), identity.UserID, chi.URLParam(r, "id"), h.requestMeta(r)); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteSuccess(w, http.StatusOK, "User deactivated", nil)
}

// AssignRole handles POST /users/{id}/roles
func (h *UserHandler) AssignRole(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, msgAuthRequired)
		return
	}

	var req AssignRoleRequest
	if !bind(w, r, &req) {
		return
	}

	user, err := h.admin.AssignRole(r.Context(), identity.UserID, chi.URLParam(r, "id"), req.Role, h.requestMeta(r))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteSuccess(w, http.StatusOK, "Role assigned", user)
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
