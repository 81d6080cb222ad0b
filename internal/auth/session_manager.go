package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/quill/internal/cache"
	"github.com/BradenHooton/quill/internal/metrics"
	"github.com/BradenHooton/quill/internal/models"
	pkgauth "github.com/BradenHooton/quill/pkg/auth"
	pkglogger "github.com/BradenHooton/quill/pkg/logger"
)

// SessionStore persists the token-hash to user mapping.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	Deactivate(ctx context.Context, tokenHash string) (bool, error)
	DeactivateAllForUser(ctx context.Context, userID string) ([]*models.Session, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Blacklist records revoked token digests until their natural expiry.
type Blacklist interface {
	Add(ctx context.Context, entry *models.BlacklistedToken) error
	IsBlacklisted(ctx context.Context, tokenHash string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type SessionConfig struct {
	TTL          time.Duration
	StoreTimeout time.Duration
}

// SessionManager issues, validates and revokes opaque session tokens.
//
// A token moves ISSUED -> ACTIVE -> EXPIRED or REVOKED. Validation consults
// the blacklist on every call and fails closed on any store error.
type SessionManager struct {
	sessions  SessionStore
	blacklist Blacklist
	cache     cache.Cache
	config    SessionConfig
	logger    *slog.Logger
	now       func() time.Time
}

type SessionOption func(*SessionManager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) SessionOption {
	return func(m *SessionManager) { m.now = now }
}

// WithSessionCache enables read-through caching of session lookups.
func WithSessionCache(c cache.Cache) SessionOption {
	return func(m *SessionManager) { m.cache = c }
}

func NewSessionManager(sessions SessionStore, blacklist Blacklist, config SessionConfig, logger *slog.Logger, opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		sessions:  sessions,
		blacklist: blacklist,
		cache:     cache.Nop{},
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IssueMeta describes the client a token is issued to.
type IssueMeta struct {
	IPAddress string
	UserAgent string
}

type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
	Session   *models.Session
}

// Issue creates a new active session for userID. A non-positive ttl uses the
// configured default. The raw token is returned once and never stored.
func (m *SessionManager) Issue(ctx context.Context, userID string, ttl time.Duration, meta IssueMeta) (*IssuedToken, error) {
	if ttl <= 0 {
		ttl = m.config.TTL
	}

	token, err := pkgauth.GenerateOpaqueToken()
	if err != nil {
		return nil, err
	}

	now := m.now()
	session := &models.Session{
		TokenHash: pkgauth.HashToken(token),
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
		Active:    true,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	}

	opCtx, cancel := m.storeContext(ctx)
	defer cancel()

	if err := m.sessions.Create(opCtx, session); err != nil {
		return nil, storeError(opCtx, "create session", err)
	}

	metrics.TokensIssuedTotal.Inc()
	return &IssuedToken{Token: token, ExpiresAt: session.ExpiresAt, Session: session}, nil
}

// Validate returns the live session for token. Absent, inactive, expired and
// blacklisted tokens all yield ErrInvalidToken. Store failures yield
// ErrServiceUnavailable and never a positive result.
func (m *SessionManager) Validate(ctx context.Context, token string) (*models.Session, error) {
	if token == "" {
		metrics.TokenValidationsTotal.WithLabelValues("invalid").Inc()
		return nil, models.ErrInvalidToken
	}

	hash := pkgauth.HashToken(token)
	now := m.now()

	opCtx, cancel := m.storeContext(ctx)
	defer cancel()

	listed, err := m.blacklist.IsBlacklisted(opCtx, hash)
	if err != nil {
		metrics.TokenValidationsTotal.WithLabelValues("error").Inc()
		return nil, storeError(opCtx, "check blacklist", err)
	}
	if listed {
		metrics.TokenValidationsTotal.WithLabelValues("revoked").Inc()
		return nil, models.ErrInvalidToken
	}

	session, err := m.lookup(opCtx, hash, now)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			metrics.TokenValidationsTotal.WithLabelValues("invalid").Inc()
			return nil, models.ErrInvalidToken
		}
		metrics.TokenValidationsTotal.WithLabelValues("error").Inc()
		return nil, storeError(opCtx, "load session", err)
	}

	if !session.Active {
		metrics.TokenValidationsTotal.WithLabelValues("revoked").Inc()
		return nil, models.ErrInvalidToken
	}

	if session.Expired(now) {
		m.expire(opCtx, session)
		metrics.TokenValidationsTotal.WithLabelValues("expired").Inc()
		return nil, models.ErrInvalidToken
	}

	metrics.TokenValidationsTotal.WithLabelValues("valid").Inc()
	return session, nil
}

// Revoke blacklists token until its original expiry and deactivates its
// session. Unknown, expired and already revoked tokens are a no-op.
func (m *SessionManager) Revoke(ctx context.Context, token, reason string) error {
	if token == "" {
		return nil
	}

	hash := pkgauth.HashToken(token)
	now := m.now()

	opCtx, cancel := m.storeContext(ctx)
	defer cancel()

	session, err := m.sessions.GetByTokenHash(opCtx, hash)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return storeError(opCtx, "load session", err)
	}

	if err := m.revokeSession(opCtx, session, reason, now); err != nil {
		return err
	}

	if _, err := m.sessions.Deactivate(opCtx, hash); err != nil {
		return storeError(opCtx, "deactivate session", err)
	}

	m.evict(opCtx, hash)
	return nil
}

// RevokeAllForUser revokes every active session of userID and returns how
// many were revoked.
func (m *SessionManager) RevokeAllForUser(ctx context.Context, userID, reason string) (int, error) {
	now := m.now()

	opCtx, cancel := m.storeContext(ctx)
	defer cancel()

	sessions, err := m.sessions.DeactivateAllForUser(opCtx, userID)
	if err != nil {
		return 0, storeError(opCtx, "deactivate user sessions", err)
	}

	for _, s := range sessions {
		if err := m.revokeSession(opCtx, s, reason, now); err != nil {
			return 0, err
		}
		m.evict(opCtx, s.TokenHash)
	}

	return len(sessions), nil
}

// revokeSession blacklists a session that has not yet expired.
func (m *SessionManager) revokeSession(ctx context.Context, session *models.Session, reason string, now time.Time) error {
	if session.Expired(now) {
		return nil
	}

	err := m.blacklist.Add(ctx, &models.BlacklistedToken{
		TokenHash:     session.TokenHash,
		UserID:        session.UserID,
		BlacklistedAt: now,
		ExpiresAt:     session.ExpiresAt,
		Reason:        reason,
	})
	if err != nil {
		return storeError(ctx, "blacklist token", err)
	}

	metrics.TokensRevokedTotal.WithLabelValues(reason).Inc()
	m.logger.Info("session revoked",
		slog.String("user_id", session.UserID),
		slog.String("token", pkglogger.TokenFingerprint(session.TokenHash)),
		slog.String("reason", reason),
	)
	return nil
}

type CleanupResult struct {
	Sessions    int64
	Blacklisted int64
}

// CleanupExpired removes expired sessions and blacklist entries. Entries that
// have not yet expired are never touched, so concurrent runs are safe.
func (m *SessionManager) CleanupExpired(ctx context.Context) (CleanupResult, error) {
	now := m.now()
	var result CleanupResult

	blacklisted, err := m.blacklist.DeleteExpired(ctx, now)
	if err != nil {
		return result, fmt.Errorf("failed to purge blacklist: %w", err)
	}
	result.Blacklisted = blacklisted

	sessions, err := m.sessions.DeleteExpired(ctx, now)
	if err != nil {
		return result, fmt.Errorf("failed to purge sessions: %w", err)
	}
	result.Sessions = sessions

	metrics.CleanupRemovedTotal.WithLabelValues("blacklist").Add(float64(blacklisted))
	metrics.CleanupRemovedTotal.WithLabelValues("session").Add(float64(sessions))
	return result, nil
}

func sessionCacheKey(hash string) string {
	return "session:" + hash
}

// lookup reads through the cache. Cache failures fall back to the store.
func (m *SessionManager) lookup(ctx context.Context, hash string, now time.Time) (*models.Session, error) {
	key := sessionCacheKey(hash)

	raw, err := m.cache.Get(ctx, key)
	switch {
	case err == nil:
		var s models.Session
		if jsonErr := json.Unmarshal(raw, &s); jsonErr == nil {
			return &s, nil
		}
		m.evict(ctx, hash)
	case !errors.Is(err, cache.ErrMiss):
		m.logger.Warn("session cache read failed, using database", slog.Any("error", err))
	}

	session, err := m.sessions.GetByTokenHash(ctx, hash)
	if err != nil {
		return nil, err
	}

	if session.Active && !session.Expired(now) {
		if raw, err := json.Marshal(session); err == nil {
			if err := m.cache.Set(ctx, key, raw, session.ExpiresAt.Sub(now)); err != nil {
				m.logger.Warn("session cache write failed", slog.Any("error", err))
			}
		}
	}

	return session, nil
}

// expire flips a lapsed session inactive. Failures are logged only; the
// caller rejects the token either way.
func (m *SessionManager) expire(ctx context.Context, session *models.Session) {
	fingerprint := pkglogger.TokenFingerprint(session.TokenHash)
	if _, err := m.sessions.Deactivate(ctx, session.TokenHash); err != nil {
		m.logger.Warn("failed to deactivate expired session",
			slog.String("user_id", session.UserID),
			slog.String("token", fingerprint),
			slog.Any("error", err),
		)
	} else {
		m.logger.Info("session expired",
			slog.String("user_id", session.UserID),
			slog.String("token", fingerprint),
		)
	}
	m.evict(ctx, session.TokenHash)
}

func (m *SessionManager) evict(ctx context.Context, hash string) {
	if err := m.cache.Delete(ctx, sessionCacheKey(hash)); err != nil {
		m.logger.Warn("session cache delete failed", slog.Any("error", err))
	}
}

func (m *SessionManager) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.config.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.config.StoreTimeout)
}

// storeError maps store failures to ErrServiceUnavailable. Domain errors
// pass through unchanged.
func storeError(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, models.ErrServiceUnavailable):
		return err
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrConflict):
		return fmt.Errorf("failed to %s: %w", op, err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %s timed out: %v", models.ErrServiceUnavailable, op, err)
	default:
		return fmt.Errorf("%w: %s: %v", models.ErrServiceUnavailable, op, err)
	}
}
