package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/quill/internal/models"
	"github.com/microcosm-cc/bluemonday"
)

// UserStore defines the user lookups used for profiles and administration
type UserStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	SetActive(ctx context.Context, id string, active bool) error
	UpdateProfile(ctx context.Context, id, firstName, lastName string) (*models.User, error)
}

// UserResponse represents a user in the HTTP response
type UserResponse struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	FirstName     string     `json:"first_name,omitempty"`
	LastName      string     `json:"last_name,omitempty"`
	Roles         []string   `json:"roles"`
	IsActive      bool       `json:"is_active"`
	EmailVerified bool       `json:"email_verified"`
	LastLogin     *time.Time `json:"last_login,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// NewUserResponse converts a user model to its public representation
func NewUserResponse(user *models.User) *UserResponse {
	return &UserResponse{
		ID:            user.ID,
		Username:      user.Username,
		Email:         user.Email,
		FirstName:     user.FirstName,
		LastName:      user.LastName,
		Roles:         user.Roles.Names(),
		IsActive:      user.IsActive,
		EmailVerified: user.EmailVerified,
		LastLogin:     user.LastLogin,
		CreatedAt:     user.CreatedAt,
	}
}

// ProfileInput carries the fields a user may change on their own account
type ProfileInput struct {
	FirstName string
	LastName  string
	Meta      RequestMeta
}

// UserService handles user business logic
type UserService struct {
	repo      UserStore
	audit     *AuditService
	sanitizer *bluemonday.Policy
	logger    *slog.Logger
}

// NewUserService creates a new UserService
func NewUserService(repo UserStore, audit *AuditService, logger *slog.Logger) *UserService {
	return &UserService{
		repo:      repo,
		audit:     audit,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger,
	}
}

// GetUserByID retrieves a user by ID
func (s *UserService) GetUserByID(ctx context.Context, id string) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("user not found", slog.String("user_id", id))
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get user", slog.String("user_id", id), slog.Any("error", err))
		return nil, unavailableOrInternal(err)
	}

	return NewUserResponse(user), nil
}

// ListUsers retrieves a list of users with pagination
func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]*UserResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	users, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		s.logger.Error("failed to list users", slog.Int("limit", limit), slog.Int("offset", offset), slog.Any("error", err))
		return nil, unavailableOrInternal(err)
	}

	out := make([]*UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, NewUserResponse(u))
	}
	return out, nil
}

// UpdateProfile replaces the display names of userID. Markup is stripped
// before storage.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*UserResponse, error) {
	if err := validateNames(in.FirstName, in.LastName); err != nil {
		return nil, err
	}

	user, err := s.repo.UpdateProfile(ctx, userID,
		sanitizeName(s.sanitizer, in.FirstName),
		sanitizeName(s.sanitizer, in.LastName),
	)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to update profile", slog.String("user_id", userID), slog.Any("error", err))
		return nil, unavailableOrInternal(err)
	}

	s.audit.Record(ctx, AuditEntry{
		EventType: models.AuditEventTypeProfileUpdate,
		Action:    models.AuditActionUpdate,
		ActorID:   userID,
		TargetID:  userID,
		Success:   true,
		Meta:      in.Meta,
	})
	s.logger.Info("profile updated", slog.String("user_id", userID))

	return NewUserResponse(user), nil
}

func unavailableOrInternal(err error) error {
	if errors.Is(err, models.ErrServiceUnavailable) {
		return models.ErrServiceUnavailable
	}
	return models.ErrInternalServer
}
