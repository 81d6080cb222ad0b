package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/quill/internal/models"
	pkglogger "github.com/BradenHooton/quill/pkg/logger"
)

// AuditLogRepository persists audit entries
type AuditLogRepository interface {
	Create(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error)
	GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.AuditLog, error)
}

// AuditEntry describes one security-relevant event
type AuditEntry struct {
	EventType     string
	Action        string
	ActorID       string
	TargetID      string
	Success       bool
	FailureReason string
	Meta          RequestMeta
	Metadata      models.AuditMetadata
}

// AuditService handles audit logging with dual-write pattern (slog + database)
type AuditService struct {
	repo        AuditLogRepository
	auditLogger *pkglogger.AuditLogger
	logger      *slog.Logger
}

// NewAuditService creates a new AuditService
func NewAuditService(repo AuditLogRepository, auditLogger *pkglogger.AuditLogger, logger *slog.Logger) *AuditService {
	return &AuditService{
		repo:        repo,
		auditLogger: auditLogger,
		logger:      logger,
	}
}

// Record writes entry to the structured log and the audit table. A failed
// database write is logged and never returned to the caller. Calling Record on
// a nil service is a no-op.
func (s *AuditService) Record(ctx context.Context, entry AuditEntry) {
	if s == nil {
		return
	}

	event := pkglogger.AuditEvent{
		EventType:     entry.EventType,
		ActorID:       entry.ActorID,
		TargetID:      entry.TargetID,
		IPAddress:     entry.Meta.IPAddress,
		UserAgent:     entry.Meta.UserAgent,
		Success:       entry.Success,
		FailureReason: entry.FailureReason,
	}
	if len(entry.Metadata) > 0 {
		event.Metadata = make(map[string]string, len(entry.Metadata))
		for k, v := range entry.Metadata {
			event.Metadata[k] = fmt.Sprint(v)
		}
	}
	s.auditLogger.Log(ctx, event)

	log := &models.AuditLog{
		EventType: entry.EventType,
		ActorID:   optionalString(entry.ActorID),
		TargetID:  optionalString(entry.TargetID),
		Action:    entry.Action,
		Success:   entry.Success,
		IPAddress: optionalString(entry.Meta.IPAddress),
		UserAgent: optionalString(entry.Meta.UserAgent),
		Metadata:  entry.Metadata,
	}
	log.FailureReason = optionalString(entry.FailureReason)

	if _, err := s.repo.Create(ctx, log); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist audit log",
			slog.String("event_type", entry.EventType),
			slog.Any("error", err),
		)
	}
}

// GetUserAuditTrail retrieves audit trail for a specific user
func (s *AuditService) GetUserAuditTrail(ctx context.Context, userID string, limit, offset int) ([]*models.AuditLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	logs, err := s.repo.GetByUserID(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get user audit trail: %w", err)
	}
	return logs, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
