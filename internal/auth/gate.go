package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BradenHooton/quill/internal/models"
)

// TokenValidator resolves a raw token to its live session.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*models.Session, error)
}

// UserRepository interface for fetching user data
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// Gate turns bearer credentials into an Identity and checks role membership.
type Gate struct {
	tokens TokenValidator
	users  UserRepository
}

func NewGate(tokens TokenValidator, users UserRepository) *Gate {
	return &Gate{tokens: tokens, users: users}
}

// ExtractBearerToken parses an Authorization header of the form "Bearer <token>".
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", models.ErrUnauthenticated
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", models.ErrUnauthenticated
	}

	token := strings.TrimSpace(parts[1])
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", models.ErrUnauthenticated
	}
	return token, nil
}

// Authenticate validates the bearer credential in header and loads its owner.
// Missing, malformed, invalid and orphaned credentials as well as inactive
// owners yield ErrUnauthenticated.
func (g *Gate) Authenticate(ctx context.Context, header string) (*models.Identity, error) {
	token, err := ExtractBearerToken(header)
	if err != nil {
		return nil, err
	}

	session, err := g.tokens.Validate(ctx, token)
	if err != nil {
		if errors.Is(err, models.ErrInvalidToken) {
			return nil, models.ErrUnauthenticated
		}
		return nil, err
	}

	user, err := g.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthenticated
		}
		return nil, fmt.Errorf("%w: load user: %v", models.ErrServiceUnavailable, err)
	}

	if !user.IsActive {
		return nil, models.ErrUnauthenticated
	}

	roles := user.Roles
	if roles == nil {
		roles = models.NewRoleSet()
	}

	return &models.Identity{
		UserID:    user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Roles:     roles,
		Token:     token,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// Authorize succeeds when identity holds at least one of the required roles.
// An empty requirement only demands authentication.
func (g *Gate) Authorize(identity *models.Identity, required ...string) error {
	if identity == nil {
		return models.ErrUnauthenticated
	}
	if len(required) == 0 || identity.Roles.HasAny(required...) {
		return nil
	}
	return models.ErrForbidden
}
