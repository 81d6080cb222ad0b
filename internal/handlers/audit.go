package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/quill/internal/models"
	pkghttp "github.com/BradenHooton/quill/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	defaultAuditPageSize = 50
	maxAuditPageSize     = 100
)

// AuditServiceInterface defines the interface for reading the audit trail
type AuditServiceInterface interface {
	GetUserAuditTrail(ctx context.Context, userID string, limit, offset int) ([]*models.AuditLog, error)
}

// AuditHandler handles audit log HTTP requests
type AuditHandler struct {
	audit  AuditServiceInterface
	logger *slog.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(audit AuditServiceInterface, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{
		audit:  audit,
		logger: logger,
	}
}

// AuditLogResponse represents an audit log entry in HTTP response
type AuditLogResponse struct {
	ID            string               `json:"id"`
	EventType     string               `json:"event_type"`
	ActorID       *string              `json:"actor_id,omitempty"`
	TargetID      *string              `json:"target_id,omitempty"`
	Action        string               `json:"action"`
	Success       bool                 `json:"success"`
	FailureReason *string              `json:"failure_reason,omitempty"`
	IPAddress     *string              `json:"ip_address,omitempty"`
	UserAgent     *string              `json:"user_agent,omitempty"`
	Metadata      models.AuditMetadata `json:"metadata,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
}

// AuditTrailResponse is one page of a user's audit trail
type AuditTrailResponse struct {
	Logs   []*AuditLogResponse `json:"logs"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

// GetUserAuditTrail handles GET /users/{id}/audit?limit=&offset=
func (h *AuditHandler) GetUserAuditTrail(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(targetID); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid user id")
		return
	}

	limit := queryInt(r, "limit", defaultAuditPageSize)
	if limit <= 0 || limit > maxAuditPageSize {
		limit = defaultAuditPageSize
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	logs, err := h.audit.GetUserAuditTrail(r.Context(), targetID, limit, offset)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	out := make([]*AuditLogResponse, len(logs))
	for i, l := range logs {
		out[i] = auditLogToResponse(l)
	}

	pkghttp.WriteSuccess(w, http.StatusOK, "Audit trail retrieved", AuditTrailResponse{
		Logs:   out,
		Limit:  limit,
		Offset: offset,
	})
}

func auditLogToResponse(l *models.AuditLog) *AuditLogResponse {
	return &AuditLogResponse{
		ID:            l.ID,
		EventType:     l.EventType,
		ActorID:       l.ActorID,
		TargetID:      l.TargetID,
		Action:        l.Action,
		Success:       l.Success,
		FailureReason: l.FailureReason,
		IPAddress:     l.IPAddress,
		UserAgent:     l.UserAgent,
		Metadata:      l.Metadata,
		CreatedAt:     l.CreatedAt,
	}
}
