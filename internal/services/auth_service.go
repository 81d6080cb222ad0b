package services

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/BradenHooton/quill/internal/auth"
	"github.com/BradenHooton/quill/internal/metrics"
	"github.com/BradenHooton/quill/internal/models"
	"github.com/BradenHooton/quill/internal/repositories"
	pkgauth "github.com/BradenHooton/quill/pkg/auth"
	pkglogger "github.com/BradenHooton/quill/pkg/logger"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

// UserRepository defines the credential store operations used by the auth flows
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	ExistsByEmailOrUsername(ctx context.Context, email, username string) (emailTaken, usernameTaken bool, err error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	RecordLoginFailure(ctx context.Context, id string, now time.Time, threshold int, lockUntil time.Time) (*repositories.LockoutState, error)
	RecordLoginSuccess(ctx context.Context, id string, now time.Time) error
	SetPasswordResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	ConsumePasswordResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (string, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// RoleRepository defines the role lookups used at registration and by admins
type RoleRepository interface {
	GetByName(ctx context.Context, name string) (*models.Role, error)
	AssignToUser(ctx context.Context, userID string, roleID int) error
}

// LoginAttemptRepository is the append-only login attempt log
type LoginAttemptRepository interface {
	RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error
}

// SessionService issues, validates and revokes opaque session tokens
type SessionService interface {
	Issue(ctx context.Context, userID string, ttl time.Duration, meta auth.IssueMeta) (*auth.IssuedToken, error)
	Validate(ctx context.Context, token string) (*models.Session, error)
	Revoke(ctx context.Context, token, reason string) error
	RevokeAllForUser(ctx context.Context, userID, reason string) (int, error)
}

// Transactor runs fn inside a single database transaction
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// AuthConfig holds the session and lockout policy
type AuthConfig struct {
	SessionTTL       time.Duration
	PasswordResetTTL time.Duration
	LockoutThreshold int
	LockoutDuration  time.Duration
}

// AuthServiceDeps groups the collaborators of AuthService
type AuthServiceDeps struct {
	Users    UserRepository
	Roles    RoleRepository
	Attempts LoginAttemptRepository
	Sessions SessionService
	Tx       Transactor
	Hasher   *pkgauth.PasswordHasher
	Throttle *LoginThrottle
	Timing   *auth.TimingDelay
	Notifier PasswordResetNotifier
	Audit    *AuditService
}

// AuthService handles authentication business logic
type AuthService struct {
	users     UserRepository
	roles     RoleRepository
	attempts  LoginAttemptRepository
	sessions  SessionService
	tx        Transactor
	hasher    *pkgauth.PasswordHasher
	throttle  *LoginThrottle
	timing    *auth.TimingDelay
	notifier  PasswordResetNotifier
	audit     *AuditService
	sanitizer *bluemonday.Policy
	config    AuthConfig
	logger    *slog.Logger
	now       func() time.Time
}

// AuthOption configures optional AuthService behaviour
type AuthOption func(*AuthService)

// WithAuthClock overrides the time source used for lockout and reset expiry
func WithAuthClock(now func() time.Time) AuthOption {
	return func(s *AuthService) { s.now = now }
}

// NewAuthService creates a new AuthService
func NewAuthService(deps AuthServiceDeps, config AuthConfig, logger *slog.Logger, opts ...AuthOption) *AuthService {
	s := &AuthService{
		users:     deps.Users,
		roles:     deps.Roles,
		attempts:  deps.Attempts,
		sessions:  deps.Sessions,
		tx:        deps.Tx,
		hasher:    deps.Hasher,
		throttle:  deps.Throttle,
		timing:    deps.Timing,
		notifier:  deps.Notifier,
		audit:     deps.Audit,
		sanitizer: bluemonday.StrictPolicy(),
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
	if s.notifier == nil {
		s.notifier = NewLogEmailService(logger)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestMeta identifies the client behind a request
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

func (m RequestMeta) issueMeta() auth.IssueMeta {
	return auth.IssueMeta{IPAddress: m.IPAddress, UserAgent: m.UserAgent}
}

// RegisterInput carries the fields accepted at registration
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	Meta      RequestMeta
}

// LoginInput carries a username or email plus password
type LoginInput struct {
	Identifier string
	Password   string
	Meta       RequestMeta
}

// AuthResult is returned by register and login
type AuthResult struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	User      *UserResponse `json:"user"`
}

// TokenStatus reports the outcome of a token validation
type TokenStatus struct {
	Valid     bool      `json:"valid"`
	UserID    string    `json:"user_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

var (
	fieldValidator  = validator.New()
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,50}$`)
)

const maxNameLength = 100

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if err := fieldValidator.Var(email, "required,email,max=255"); err != nil {
		return models.NewValidationError("email", "must be a valid email address")
	}
	return nil
}

func validateNewPassword(password string) error {
	if err := pkgauth.ValidatePassword(password); err != nil {
		return models.NewValidationError("password",
			"must be 8-72 bytes and contain upper and lower case letters, a digit and a special character")
	}
	return nil
}

func validateRegistration(in RegisterInput) error {
	if !usernamePattern.MatchString(in.Username) {
		return models.NewValidationError("username", "must be 3-50 letters, digits, '.', '_' or '-'")
	}
	if err := validateEmail(in.Email); err != nil {
		return err
	}
	if err := validateNames(in.FirstName, in.LastName); err != nil {
		return err
	}
	return validateNewPassword(in.Password)
}

func validateNames(firstName, lastName string) error {
	if len(firstName) > maxNameLength {
		return models.NewValidationError("first_name", "must have a maximum of 100 characters")
	}
	if len(lastName) > maxNameLength {
		return models.NewValidationError("last_name", "must have a maximum of 100 characters")
	}
	return nil
}

// Register creates a user with the default role and an initial session. The
// user, its role link and its session are written in one transaction.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = normalizeEmail(in.Email)

	if err := validateRegistration(in); err != nil {
		return nil, err
	}

	emailTaken, usernameTaken, err := s.users.ExistsByEmailOrUsername(ctx, in.Email, in.Username)
	if err != nil {
		return nil, s.storeFailure("failed to check registration uniqueness", err)
	}
	if emailTaken || usernameTaken {
		s.logger.Info("registration rejected: account exists",
			slog.Bool("email_taken", emailTaken),
			slog.Bool("username_taken", usernameTaken))
		s.audit.Record(ctx, AuditEntry{
			EventType:     models.AuditEventTypeRegister,
			Action:        models.AuditActionCreate,
			FailureReason: "conflict",
			Meta:          in.Meta,
		})
		return nil, models.ErrConflict
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user := &models.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    sanitizeName(s.sanitizer, in.FirstName),
		LastName:     sanitizeName(s.sanitizer, in.LastName),
		IsActive:     true,
	}

	var (
		created *models.User
		issued  *auth.IssuedToken
	)
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.users.Create(ctx, user)
		if err != nil {
			return err
		}
		if created.Roles == nil {
			created.Roles = models.NewRoleSet()
		}

		role, err := s.roles.GetByName(ctx, models.DefaultRole)
		switch {
		case errors.Is(err, models.ErrNotFound):
			s.logger.Warn("default role missing, user created without role",
				slog.String("user_id", created.ID),
				slog.String("role", models.DefaultRole))
		case err != nil:
			return err
		default:
			if err := s.roles.AssignToUser(ctx, created.ID, role.ID); err != nil {
				return err
			}
			created.Roles.Add(role.Name)
		}

		issued, err = s.sessions.Issue(ctx, created.ID, s.config.SessionTTL, in.Meta.issueMeta())
		return err
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		return nil, s.storeFailure("failed to register user", err)
	}

	s.logger.Info("user registered", slog.String("user_id", created.ID))
	s.audit.Record(ctx, AuditEntry{
		EventType: models.AuditEventTypeRegister,
		Action:    models.AuditActionCreate,
		ActorID:   created.ID,
		TargetID:  created.ID,
		Success:   true,
		Meta:      in.Meta,
	})

	return &AuthResult{
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
		User:      NewUserResponse(created),
	}, nil
}

// Login authenticates by username or email and issues a new session token.
// Unknown users and wrong passwords both yield ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (result *AuthResult, err error) {
	start := time.Now()
	defer func() {
		s.timing.WaitFrom(ctx, start, err == nil)
	}()

	identifier := strings.TrimSpace(in.Identifier)
	if identifier == "" || in.Password == "" {
		s.hasher.VerifyDummy(in.Password)
		s.recordAttempt(ctx, nil, identifier, in.Meta, models.FailureReasonInvalidInput)
		metrics.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, models.ErrInvalidCredentials
	}

	if !s.throttle.Allow(ctx, identifier, in.Meta.IPAddress) {
		s.recordAttempt(ctx, nil, identifier, in.Meta, models.FailureReasonThrottled)
		metrics.LoginAttemptsTotal.WithLabelValues("throttled").Inc()
		return nil, models.ErrTooManyRequests
	}

	user, err := s.users.GetByIdentifier(ctx, identifier)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return nil, s.storeFailure("failed to look up user for login", err)
		}
		s.hasher.VerifyDummy(in.Password)
		s.logger.Info("login failed: invalid credentials")
		s.recordAttempt(ctx, nil, identifier, in.Meta, models.FailureReasonUnknownUser)
		s.auditLogin(ctx, "", in.Meta, models.FailureReasonUnknownUser)
		metrics.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, models.ErrInvalidCredentials
	}

	now := s.now()

	if user.IsLocked(now) {
		s.logger.Info("login blocked: account locked", slog.String("user_id", user.ID))
		s.recordAttempt(ctx, &user.ID, identifier, in.Meta, models.FailureReasonLocked)
		s.auditLogin(ctx, user.ID, in.Meta, models.FailureReasonLocked)
		metrics.LoginAttemptsTotal.WithLabelValues("locked").Inc()
		return nil, models.ErrAccountLocked
	}

	if !s.hasher.Verify(user.PasswordHash, in.Password) {
		state, err := s.users.RecordLoginFailure(ctx, user.ID, now, s.config.LockoutThreshold, now.Add(s.config.LockoutDuration))
		if err != nil {
			return nil, s.storeFailure("failed to record login failure", err)
		}
		if state.LockedUntil != nil && state.FailedLoginCount >= s.config.LockoutThreshold {
			metrics.AccountLockoutsTotal.Inc()
			s.logger.Warn("account locked after repeated failures",
				slog.String("user_id", user.ID),
				slog.Int("failed_login_count", state.FailedLoginCount),
				slog.Time("locked_until", *state.LockedUntil))
		}
		s.logger.Info("login failed: invalid credentials")
		s.recordAttempt(ctx, &user.ID, identifier, in.Meta, models.FailureReasonBadPassword)
		s.auditLogin(ctx, user.ID, in.Meta, models.FailureReasonBadPassword)
		metrics.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, models.ErrInvalidCredentials
	}

	if !user.IsActive {
		s.logger.Info("login blocked: account inactive", slog.String("user_id", user.ID))
		s.recordAttempt(ctx, &user.ID, identifier, in.Meta, models.FailureReasonInactive)
		s.auditLogin(ctx, user.ID, in.Meta, models.FailureReasonInactive)
		metrics.LoginAttemptsTotal.WithLabelValues("inactive").Inc()
		return nil, models.ErrAccountInactive
	}

	if err := s.users.RecordLoginSuccess(ctx, user.ID, now); err != nil {
		return nil, s.storeFailure("failed to record login success", err)
	}

	issued, err := s.sessions.Issue(ctx, user.ID, s.config.SessionTTL, in.Meta.issueMeta())
	if err != nil {
		return nil, s.storeFailure("failed to issue session", err)
	}

	user.FailedLoginCount = 0
	user.LockedUntil = nil
	user.LastLogin = &now

	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	s.recordAttempt(ctx, &user.ID, identifier, in.Meta, "")
	s.auditLogin(ctx, user.ID, in.Meta, "")
	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()

	return &AuthResult{
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
		User:      NewUserResponse(user),
	}, nil
}

// Logout revokes token. Unknown or already revoked tokens succeed.
func (s *AuthService) Logout(ctx context.Context, token string, meta RequestMeta) error {
	session, err := s.sessions.Validate(ctx, token)
	if err != nil && !errors.Is(err, models.ErrInvalidToken) {
		return err
	}

	if err := s.sessions.Revoke(ctx, token, models.RevokeReasonLogout); err != nil {
		return err
	}

	if session != nil {
		s.logger.Info("user logged out", slog.String("user_id", session.UserID))
		s.audit.Record(ctx, AuditEntry{
			EventType: models.AuditEventTypeLogout,
			Action:    models.AuditActionRevoke,
			ActorID:   session.UserID,
			TargetID:  session.UserID,
			Success:   true,
			Meta:      meta,
		})
	}
	return nil
}

// LogoutAll revokes every session belonging to userID
func (s *AuthService) LogoutAll(ctx context.Context, userID string, meta RequestMeta) (int, error) {
	revoked, err := s.sessions.RevokeAllForUser(ctx, userID, models.RevokeReasonLogoutAll)
	if err != nil {
		return 0, err
	}

	s.logger.Info("user logged out everywhere",
		slog.String("user_id", userID),
		slog.Int("sessions_revoked", revoked))
	s.audit.Record(ctx, AuditEntry{
		EventType: models.AuditEventTypeLogoutAll,
		Action:    models.AuditActionRevoke,
		ActorID:   userID,
		TargetID:  userID,
		Success:   true,
		Meta:      meta,
		Metadata:  models.AuditMetadata{"sessions_revoked": revoked},
	})
	return revoked, nil
}

// ValidateToken reports whether token maps to a live session. Invalid tokens
// are a negative result, not an error; store failures are errors.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*TokenStatus, error) {
	session, err := s.sessions.Validate(ctx, token)
	if err != nil {
		if errors.Is(err, models.ErrInvalidToken) {
			return &TokenStatus{Valid: false}, nil
		}
		return nil, err
	}
	return &TokenStatus{Valid: true, UserID: session.UserID, ExpiresAt: session.ExpiresAt}, nil
}

// RequestPasswordReset issues a single-use reset token for email. Unknown
// emails get a token that was never stored, so callers cannot tell the cases
// apart.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string, meta RequestMeta) (string, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return "", err
	}

	token, err := pkgauth.GenerateOpaqueToken()
	if err != nil {
		s.logger.Error("failed to generate reset token", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return "", s.storeFailure("failed to look up user for password reset", err)
		}
		s.logger.Info("password reset requested for unknown email")
		metrics.PasswordResetsTotal.WithLabelValues("request", "unknown_email").Inc()
		s.audit.Record(ctx, AuditEntry{
			EventType:     models.AuditEventTypePasswordResetRequest,
			Action:        models.AuditActionUpdate,
			FailureReason: "unknown_email",
			Meta:          meta,
		})
		return token, nil
	}

	expiresAt := s.now().Add(s.config.PasswordResetTTL)
	if err := s.users.SetPasswordResetToken(ctx, user.ID, pkgauth.HashToken(token), expiresAt); err != nil {
		return "", s.storeFailure("failed to store reset token", err)
	}

	if err := s.notifier.SendPasswordReset(ctx, user.Email, token, expiresAt); err != nil {
		s.logger.Error("failed to deliver password reset",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
	}

	s.logger.Info("password reset requested",
		slog.String("user_id", user.ID),
		slog.String("email", pkglogger.SanitizedEmail(user.Email)))
	metrics.PasswordResetsTotal.WithLabelValues("request", "success").Inc()
	s.audit.Record(ctx, AuditEntry{
		EventType: models.AuditEventTypePasswordResetRequest,
		Action:    models.AuditActionUpdate,
		TargetID:  user.ID,
		Success:   true,
		Meta:      meta,
	})
	return token, nil
}

// ResetPassword consumes token, stores the new password and revokes every
// session of the user, all in one transaction.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string, meta RequestMeta) error {
	if strings.TrimSpace(token) == "" {
		metrics.PasswordResetsTotal.WithLabelValues("complete", "invalid_token").Inc()
		return models.ErrInvalidOrExpiredToken
	}
	if err := validateNewPassword(newPassword); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	var (
		userID  string
		revoked int
	)
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		userID, err = s.users.ConsumePasswordResetToken(ctx, pkgauth.HashToken(token), hash, s.now())
		if err != nil {
			return err
		}
		revoked, err = s.sessions.RevokeAllForUser(ctx, userID, models.RevokeReasonPasswordReset)
		return err
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("password reset rejected: invalid or expired token")
			metrics.PasswordResetsTotal.WithLabelValues("complete", "invalid_token").Inc()
			s.audit.Record(ctx, AuditEntry{
				EventType:     models.AuditEventTypePasswordReset,
				Action:        models.AuditActionUpdate,
				FailureReason: "invalid_token",
				Meta:          meta,
			})
			return models.ErrInvalidOrExpiredToken
		}
		return s.storeFailure("failed to reset password", err)
	}

	s.logger.Info("password reset completed",
		slog.String("user_id", userID),
		slog.Int("sessions_revoked", revoked))
	metrics.PasswordResetsTotal.WithLabelValues("complete", "success").Inc()
	s.audit.Record(ctx, AuditEntry{
		EventType: models.AuditEventTypePasswordReset,
		Action:    models.AuditActionUpdate,
		ActorID:   userID,
		TargetID:  userID,
		Success:   true,
		Meta:      meta,
		Metadata:  models.AuditMetadata{"sessions_revoked": revoked},
	})
	return nil
}

// sanitizeName strips all markup from a display name
func sanitizeName(policy *bluemonday.Policy, name string) string {
	return strings.TrimSpace(policy.Sanitize(strings.TrimSpace(name)))
}

// recordAttempt appends to the login attempt log. Failures are logged only.
func (s *AuthService) recordAttempt(ctx context.Context, userID *string, identifier string, meta RequestMeta, failureReason string) {
	attempt := &models.LoginAttempt{
		UserID:      userID,
		Identifier:  identifier,
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
		AttemptedAt: s.now(),
		Success:     failureReason == "",
	}
	if failureReason != "" {
		attempt.FailureReason = &failureReason
	}

	if err := s.attempts.RecordAttempt(ctx, attempt); err != nil {
		s.logger.Error("failed to record login attempt", slog.Any("error", err))
	}
}

func (s *AuthService) auditLogin(ctx context.Context, userID string, meta RequestMeta, failureReason string) {
	s.audit.Record(ctx, AuditEntry{
		EventType:     models.AuditEventTypeLogin,
		Action:        models.AuditActionAccess,
		ActorID:       userID,
		TargetID:      userID,
		Success:       failureReason == "",
		FailureReason: failureReason,
		Meta:          meta,
	})
}

// storeFailure logs err and returns the sentinel exposed to callers. Store
// outages keep ErrServiceUnavailable; anything else becomes ErrInternalServer.
func (s *AuthService) storeFailure(msg string, err error) error {
	s.logger.Error(msg, slog.Any("error", err))
	if errors.Is(err, models.ErrServiceUnavailable) {
		return models.ErrServiceUnavailable
	}
	return models.ErrInternalServer
}
