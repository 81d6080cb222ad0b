package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/quill/internal/auth"
	"github.com/BradenHooton/quill/internal/models"
	"github.com/BradenHooton/quill/internal/services"
	pkghttp "github.com/BradenHooton/quill/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.10:40000"
	return req
}

// WithIdentity attaches an authenticated identity to the request
func WithIdentity(req *http.Request, userID string, roles ...string) *http.Request {
	identity := &models.Identity{
		UserID: userID,
		Roles:  models.NewRoleSet(roles...),
	}
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

// DecodeEnvelope checks status and content type and decodes the envelope
func DecodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int) pkghttp.Response {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp pkghttp.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "Failed to decode response JSON")
	return resp
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	RegisterFunc             func(ctx context.Context, in services.RegisterInput) (*services.AuthResult, error)
	LoginFunc                func(ctx context.Context, in services.LoginInput) (*services.AuthResult, error)
	LogoutFunc               func(ctx context.Context, token string, meta services.RequestMeta) error
	LogoutAllFunc            func(ctx context.Context, userID string, meta services.RequestMeta) (int, error)
	ValidateTokenFunc        func(ctx context.Context, token string) (*services.TokenStatus, error)
	RequestPasswordResetFunc func(ctx context.Context, email string, meta services.RequestMeta) (string, error)
	ResetPasswordFunc        func(ctx context.Context, token, newPassword string, meta services.RequestMeta) error
}

func (m *MockAuthService) Register(ctx context.Context, in services.RegisterInput) (*services.AuthResult, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, in)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAuthService) Login(ctx context.Context, in services.LoginInput) (*services.AuthResult, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, in)
	}
	return nil, models.ErrInvalidCredentials
}

func (m *MockAuthService) Logout(ctx context.Context, token string, meta services.RequestMeta) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, token, meta)
	}
	return nil
}

func (m *MockAuthService) LogoutAll(ctx context.Context, userID string, meta services.RequestMeta) (int, error) {
	if m.LogoutAllFunc != nil {
		return m.LogoutAllFunc(ctx, userID, meta)
	}
	return 0, nil
}

func (m *MockAuthService) ValidateToken(ctx context.Context, token string) (*services.TokenStatus, error) {
	if m.ValidateTokenFunc != nil {
		return m.ValidateTokenFunc(ctx, token)
	}
	return &services.TokenStatus{Valid: false}, nil
}

func (m *MockAuthService) RequestPasswordReset(ctx context.Context, email string, meta services.RequestMeta) (string, error) {
	if m.RequestPasswordResetFunc != nil {
		return m.RequestPasswordResetFunc(ctx, email, meta)
	}
	return "reset-token", nil
}

func (m *MockAuthService) ResetPassword(ctx context.Context, token, newPassword string, meta services.RequestMeta) error {
	if m.ResetPasswordFunc != nil {
		return m.ResetPasswordFunc(ctx, token, newPassword, meta)
	}
	return nil
}

// MockUserService implements UserServiceInterface for testing
type MockUserService struct {
	GetUserByIDFunc   func(ctx context.Context, id string) (*services.UserResponse, error)
	ListUsersFunc     func(ctx context.Context, limit, offset int) ([]*services.UserResponse, error)
	UpdateProfileFunc func(ctx context.Context, userID string, in services.ProfileInput) (*services.UserResponse, error)
}

func (m *MockUserService) GetUserByID(ctx context.Context, id string) (*services.UserResponse, error) {
	if m.GetUserByIDFunc != nil {
		return m.GetUserByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserService) ListUsers(ctx context.Context, limit, offset int) ([]*services.UserResponse, error) {
	if m.ListUsersFunc != nil {
		return m.ListUsersFunc(ctx, limit, offset)
	}
	return []*services.UserResponse{}, nil
}

func (m *MockUserService) UpdateProfile(ctx context.Context, userID string, in services.ProfileInput) (*services.UserResponse, error) {
	if m.UpdateProfileFunc != nil {
		return m.UpdateProfileFunc(ctx, userID, in)
	}
	return nil, models.ErrNotFound
}

// MockAdminService implements AdminServiceInterface for testing
type MockAdminService struct {
	DeactivateUserFunc func(ctx context.Context, actorID, targetID string, meta services.RequestMeta) error
	AssignRoleFunc     func(ctx context.Context, actorID, targetID, roleName string, meta services.RequestMeta) (*services.UserResponse, error)
}

func (m *MockAdminService) DeactivateUser(ctx context.Context, actorID, targetID string, meta services.RequestMeta) error {
	if m.DeactivateUserFunc != nil {
		return m.DeactivateUserFunc(ctx, actorID, targetID, meta)
	}
	return nil
}

func (m *MockAdminService) AssignRole(ctx context.Context, actorID, targetID, roleName string, meta services.RequestMeta) (*services.UserResponse, error) {
	if m.AssignRoleFunc != nil {
		return m.AssignRoleFunc(ctx, actorID, targetID, roleName, meta)
	}
	return nil, models.ErrNotFound
}

// MockAuditService implements AuditServiceInterface for testing
type MockAuditService struct {
	GetUserAuditTrailFunc func(ctx context.Context, userID string, limit, offset int) ([]*models.AuditLog, error)
}

func (m *MockAuditService) GetUserAuditTrail(ctx context.Context, userID string, limit, offset int) ([]*models.AuditLog, error) {
	if m.GetUserAuditTrailFunc != nil {
		return m.GetUserAuditTrailFunc(ctx, userID, limit, offset)
	}
	return []*models.AuditLog{}, nil
}
