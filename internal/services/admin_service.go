package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/BradenHooton/quill/internal/models"
)

// AdminService handles account administration: deactivation and role grants
type AdminService struct {
	users    UserStore
	roles    RoleRepository
	sessions SessionService
	tx       Transactor
	audit    *AuditService
	logger   *slog.Logger
}

// NewAdminService creates a new AdminService
func NewAdminService(
	users UserStore,
	roles RoleRepository,
	sessions SessionService,
	tx Transactor,
	audit *AuditService,
	logger *slog.Logger,
) *AdminService {
	return &AdminService{
		users:    users,
		roles:    roles,
		sessions: sessions,
		tx:       tx,
		audit:    audit,
		logger:   logger,
	}
}

// DeactivateUser marks targetID inactive and revokes all of its sessions in
// one transaction. Admins cannot deactivate themselves.
func (s *AdminService) DeactivateUser(ctx context.Context, actorID, targetID string, meta RequestMeta) error {
	if actorID == targetID {
		return models.NewValidationError("id", "cannot deactivate your own account")
	}

	var revoked int
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.users.SetActive(ctx, targetID, false); err != nil {
			return err
		}
		var err error
		revoked, err = s.sessions.RevokeAllForUser(ctx, targetID, models.RevokeReasonDeactivated)
		return err
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to deactivate user", slog.String("user_id", targetID), slog.Any("error", err))
		return unavailableOrInternal(err)
	}

	s.logger.Info("user deactivated",
		slog.String("actor_id", actorID),
		slog.String("user_id", targetID),
		slog.Int("sessions_revoked", revoked))
	s.audit.Record(ctx, AuditEntry{
		EventType: models.AuditEventTypeDeactivate,
		Action:    models.AuditActionUpdate,
		ActorID:   actorID,
		TargetID:  targetID,
		Success:   true,
		Meta:      meta,
		Metadata:  models.AuditMetadata{"sessions_revoked": revoked},
	})
	return nil
}

// AssignRole grants roleName to targetID and returns the updated user.
// Granting a role the user already holds succeeds.
func (s *AdminService) AssignRole(ctx context.Context, actorID, targetID, roleName string, meta RequestMeta) (*UserResponse, error) {
	roleName = strings.ToLower(strings.TrimSpace(roleName))

	role, err := s.roles.GetByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.NewValidationError("role", "unknown role")
		}
		s.logger.Error("failed to load role", slog.String("role", roleName), slog.Any("error", err))
		return nil, unavailableOrInternal(err)
	}

	if _, err := s.users.GetByID(ctx, targetID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get user", slog.String("user_id", targetID), slog.Any("error", err))
		return nil, unavailableOrInternal(err)
	}

	if err := s.roles.AssignToUser(ctx, targetID, role.ID); err != nil {
		s.logger.Error("failed to assign role",
			slog.String("user_id", targetID),
			slog.String("role", role.Name),
			slog.Any("error", err))
		return nil, unavailableOrInternal(err)
	}

	user, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		s.logger.Error("failed to reload user", slog.String("user_id", targetID), slog.Any("error", err))
		return nil, unavailableOrInternal(err)
	}

	s.logger.Info("role assigned",
		slog.String("actor_id", actorID),
		slog.String("user_id", targetID),
		slog.String("role", role.Name))
	s.audit.Record(ctx, AuditEntry{
		EventType: models.AuditEventTypeRoleChange,
		Action:    models.AuditActionUpdate,
		ActorID:   actorID,
		TargetID:  targetID,
		Success:   true,
		Meta:      meta,
		Metadata:  models.AuditMetadata{"role": role.Name},
	})
	return NewUserResponse(user), nil
}
